// Package metacache persists parsed model metadata keyed by absolute
// file path, validated by a (size, mtime) fingerprint so a mutated file
// is never served stale metadata.
package metacache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"modelkeep/internal/common/fsutil"
	"modelkeep/internal/gguf"
)

// schemaVersion guards forward-readability of the on-disk document.
const schemaVersion = 1

// Fingerprint is a cheap proxy for "file unchanged". Not a content hash.
type Fingerprint struct {
	Size  int64 `json:"size"`
	MTime int64 `json:"mtime"`
}

// FingerprintOf stats path and returns its current fingerprint.
func FingerprintOf(path string) (Fingerprint, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{Size: fi.Size(), MTime: fi.ModTime().UnixNano()}, nil
}

// Entry pairs a fingerprint with the metadata parsed at that fingerprint.
type Entry struct {
	Fingerprint Fingerprint   `json:"fingerprint"`
	Meta        gguf.Metadata `json:"meta"`
}

// Result classifies a cache lookup.
type Result int

const (
	// Hit means the entry exists and the file is unchanged.
	Hit Result = iota
	// Stale means the entry exists but the file changed; the cached
	// metadata is withheld.
	Stale
	// Missing means no entry exists (or the cache is disabled).
	Missing
)

type document struct {
	Version int              `json:"version"`
	Entries map[string]Entry `json:"entries"`
}

// Store is the persistent path→metadata map. All methods are safe for
// concurrent use; entries are keyed per absolute path so parallel parses
// of different files never contend on the same key.
type Store struct {
	mu       sync.Mutex
	path     string
	entries  map[string]Entry
	disabled bool
	log      zerolog.Logger
}

// New creates a store backed by the file at path. When the parent
// directory is not writable the store runs in disabled mode: every Get
// reports Missing and Flush is a no-op. That degrades lookups to forced
// rebuilds but never fails the caller.
func New(path string, log zerolog.Logger) *Store {
	s := &Store{
		path:    path,
		entries: make(map[string]Entry),
		log:     log.With().Str("component", "metacache").Logger(),
	}
	if path == "" || !fsutil.DirWritable(filepath.Dir(path)) {
		s.disabled = true
		s.log.Warn().Str("path", path).Msg("cache location not writable, running with cache disabled")
	}
	return s
}

// LoadAll reads the whole cache file into memory. A missing file is a
// normal cold start; an unreadable or corrupt file is discarded with a
// single warning and treated as empty.
func (s *Store) LoadAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disabled {
		return
	}
	b, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("path", s.path).Msg("cache unreadable, rebuilding from scratch")
		}
		return
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("cache corrupt, rebuilding from scratch")
		return
	}
	if doc.Version != schemaVersion {
		s.log.Warn().Int("version", doc.Version).Msg("cache schema version mismatch, rebuilding from scratch")
		return
	}
	if doc.Entries != nil {
		s.entries = doc.Entries
	}
}

// Get stats path and compares against the stored fingerprint. Cached
// metadata is returned only on an exact match; any mismatch reports
// Stale without the outdated metadata.
func (s *Store) Get(path string) (Entry, Result) {
	s.mu.Lock()
	e, ok := s.entries[path]
	disabled := s.disabled
	s.mu.Unlock()
	if disabled || !ok {
		return Entry{}, Missing
	}
	fp, err := FingerprintOf(path)
	if err != nil {
		return Entry{}, Stale
	}
	if fp != e.Fingerprint {
		return Entry{}, Stale
	}
	return e, Hit
}

// Put records metadata parsed at the given fingerprint.
func (s *Store) Put(path string, fp Fingerprint, meta gguf.Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disabled {
		return
	}
	s.entries[path] = Entry{Fingerprint: fp, Meta: meta}
}

// Len reports the number of cached entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Flush writes the whole store to disk via a temp file and atomic
// rename, so the on-disk cache is never observed half-written. Callers
// must flush only after all Puts of a scan generation completed.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disabled {
		return nil
	}
	doc := document{Version: schemaVersion, Entries: s.entries}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.AtomicWriteFile(s.path, b, 0o644)
}
