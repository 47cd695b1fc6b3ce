// Package registry builds the ordered, indexable list of known models
// from a directory scan, consulting the metadata cache so only changed
// files pay the header-parse cost.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"modelkeep/internal/common/fsutil"
	"modelkeep/internal/gguf"
	"modelkeep/internal/metacache"
	"modelkeep/pkg/types"
)

const modelExt = ".gguf"

// parseWorkers bounds the fan-out of header parsing during a reindex.
// Each task touches only its own file and its own cache key.
const parseWorkers = 4

// IndexOutOfRangeError reports a request for a nonexistent model index.
type IndexOutOfRangeError struct {
	Index int
	Count int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("index out of range: %d (registry has %d models)", e.Index, e.Count)
}

// IsIndexOutOfRange reports whether err is an out-of-range index request.
func IsIndexOutOfRange(err error) bool {
	_, ok := err.(*IndexOutOfRangeError)
	return ok
}

// Registry publishes generations of model descriptors. A generation is
// immutable once published; readers never observe a partial index.
type Registry struct {
	mu     sync.RWMutex
	dir    string
	cache  *metacache.Store
	models []types.ModelDescriptor
	log    zerolog.Logger

	// parse invocations, observable in tests
	parses int
}

// New creates a registry over dir backed by the given cache store.
// A leading '~' in dir is expanded to the user's home directory.
func New(dir string, cache *metacache.Store, log zerolog.Logger) (*Registry, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	return &Registry{
		dir:   abs,
		cache: cache,
		log:   log.With().Str("component", "registry").Logger(),
	}, nil
}

// Dir returns the absolute model directory being indexed.
func (r *Registry) Dir() string { return r.dir }

// Reindex scans the model directory, resolves metadata for every
// eligible file (cache hit, or header parse with filename fallback),
// and publishes the new generation as one atomic replacement. Indices
// are 1..N in lexicographic path order, so an unchanged directory
// always yields an identical list.
func (r *Registry) Reindex() ([]types.ModelDescriptor, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(e.Name()), modelExt) {
			continue
		}
		paths = append(paths, filepath.Join(r.dir, e.Name()))
	}
	sort.Strings(paths)

	reindexRuns.Inc()

	descs := make([]types.ModelDescriptor, len(paths))
	var wg sync.WaitGroup
	sem := make(chan struct{}, parseWorkers)
	for i, p := range paths {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, p string) {
			defer wg.Done()
			defer func() { <-sem }()
			descs[i] = r.resolve(p)
		}(i, p)
	}
	// Join all tasks before assigning indices or publishing; callers
	// must never see a partially populated generation.
	wg.Wait()

	for i := range descs {
		descs[i].Index = i + 1
	}

	if err := r.cache.Flush(); err != nil {
		r.log.Warn().Err(err).Msg("cache flush failed")
	}

	r.mu.Lock()
	r.models = descs
	r.mu.Unlock()
	r.log.Info().Int("models", len(descs)).Msg("registry published")

	return r.List(), nil
}

// resolve produces the descriptor for one file: cached metadata when
// the fingerprint matches, otherwise a fresh header parse with the
// filename heuristic as fallback.
func (r *Registry) resolve(path string) types.ModelDescriptor {
	fallback := gguf.ParseFilename(path)

	fp, err := metacache.FingerprintOf(path)
	if err != nil {
		// File vanished between listing and stat; index what the name tells us.
		r.log.Warn().Err(err).Str("path", path).Msg("stat failed during reindex")
		return descriptorFrom(path, metacache.Fingerprint{}, fallback)
	}

	if e, res := r.cache.Get(path); res == metacache.Hit {
		cacheHits.Inc()
		return descriptorFrom(path, e.Fingerprint, e.Meta.Merge(fallback))
	}
	cacheMisses.Inc()

	r.mu.Lock()
	r.parses++
	r.mu.Unlock()

	meta, err := gguf.Parse(path)
	if err != nil {
		parseErrors.Inc()
		r.log.Warn().Err(err).Str("path", path).Msg("header unreadable, using filename heuristic")
		meta = fallback
	} else {
		meta = meta.Merge(fallback)
	}
	r.cache.Put(path, fp, meta)
	return descriptorFrom(path, fp, meta)
}

func descriptorFrom(path string, fp metacache.Fingerprint, meta gguf.Metadata) types.ModelDescriptor {
	name := meta.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return types.ModelDescriptor{
		Name:          name,
		Path:          path,
		Size:          fp.Size,
		MTime:         fp.MTime,
		Architecture:  meta.Architecture,
		Quantization:  meta.Quantization,
		ContextLength: meta.ContextLength,
	}
}

// List returns a copy of the current generation.
func (r *Registry) List() []types.ModelDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ModelDescriptor, len(r.models))
	copy(out, r.models)
	return out
}

// ByIndex returns the descriptor with the given 1-based index.
func (r *Registry) ByIndex(n int) (types.ModelDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n < 1 || n > len(r.models) {
		return types.ModelDescriptor{}, &IndexOutOfRangeError{Index: n, Count: len(r.models)}
	}
	return r.models[n-1], nil
}

// ByPath returns the descriptor for the given absolute path, if present
// in the current generation.
func (r *Registry) ByPath(path string) (types.ModelDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.models {
		if d.Path == path {
			return d, true
		}
	}
	return types.ModelDescriptor{}, false
}
