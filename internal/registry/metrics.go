package registry

import "github.com/prometheus/client_golang/prometheus"

var (
	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "modelkeep",
		Subsystem: "registry",
		Name:      "cache_hits_total",
		Help:      "Metadata lookups answered by the cache",
	})
	cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "modelkeep",
		Subsystem: "registry",
		Name:      "cache_misses_total",
		Help:      "Metadata lookups that required a header parse",
	})
	parseErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "modelkeep",
		Subsystem: "registry",
		Name:      "parse_errors_total",
		Help:      "Header parses that fell back to the filename heuristic",
	})
	reindexRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "modelkeep",
		Subsystem: "registry",
		Name:      "reindex_total",
		Help:      "Registry reindex operations",
	})
)

func init() {
	prometheus.MustRegister(cacheHits, cacheMisses, parseErrors, reindexRuns)
}
