// Package session owns the single currently-loaded model handle, its
// verified hardware status and the live generation parameters. Loads
// replace the session atomically; parameter changes mutate it in place
// without touching the engine.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"modelkeep/internal/engine"
	"modelkeep/internal/hardware"
	"modelkeep/internal/raminfo"
	"modelkeep/internal/registry"
	"modelkeep/pkg/types"
)

// Config encapsulates all tunables for Session construction.
type Config struct {
	Registry     *registry.Registry
	Engine       engine.Engine
	Monitor      *hardware.Monitor
	LastUsedPath string
	// Defaults applied to every load unless the caller overrides them.
	GPULayers     int
	ContextLength int
	Threads       int
	Params        types.GenParams
	Logger        zerolog.Logger
}

// UseDefaultLayers tells load operations to use the configured GPU
// layer count instead of an explicit per-load value.
const UseDefaultLayers = -1

type active struct {
	desc     types.ModelDescriptor
	hw       types.HardwareStatus
	params   types.GenParams
	loadedAt time.Time
	fallback bool
	handle   engine.Handle
}

// Session is the active-model state machine: Unloaded until the first
// successful load, then Active until Close. At most one model is
// resident; a failed load never disturbs the current one.
type Session struct {
	mu  sync.Mutex
	cfg Config
	cur *active
	log zerolog.Logger
}

// New constructs a Session. Zero-value fields of cfg get defaults.
func New(cfg Config) *Session {
	if cfg.ContextLength <= 0 {
		cfg.ContextLength = 4096
	}
	if cfg.Params == (types.GenParams{}) {
		cfg.Params = types.DefaultGenParams()
	}
	return &Session{
		cfg: cfg,
		log: cfg.Logger.With().Str("component", "session").Logger(),
	}
}

// LoadByIndex loads the model with the given 1-based registry index.
// gpuLayers may be UseDefaultLayers.
func (s *Session) LoadByIndex(ctx context.Context, n, gpuLayers int) (types.ActiveInfo, error) {
	desc, err := s.cfg.Registry.ByIndex(n)
	if err != nil {
		return types.ActiveInfo{}, err
	}
	return s.load(ctx, desc, gpuLayers)
}

// LoadLast re-loads the model recorded by the last successful load. The
// pointer is validated against the current registry; a dangling pointer
// yields IsLastModelMissing, never an attempt to load a stale path.
func (s *Session) LoadLast(ctx context.Context) (types.ActiveInfo, error) {
	last, err := readLastUsed(s.cfg.LastUsedPath)
	if err != nil {
		return types.ActiveInfo{}, ErrLastModelMissing("")
	}
	desc, ok := s.cfg.Registry.ByPath(last.Path)
	if !ok {
		return types.ActiveInfo{}, ErrLastModelMissing(last.Path)
	}
	return s.load(ctx, desc, UseDefaultLayers)
}

// load acquires and verifies the new handle before releasing the old
// one. The brief double residency buys the guarantee that a failed load
// leaves a usable model behind.
func (s *Session) load(ctx context.Context, desc types.ModelDescriptor, gpuLayers int) (types.ActiveInfo, error) {
	opts := engine.LoadOptions{
		GPULayers:     s.cfg.GPULayers,
		ContextLength: s.cfg.ContextLength,
		Threads:       s.cfg.Threads,
	}
	if gpuLayers != UseDefaultLayers {
		opts.GPULayers = gpuLayers
	}
	if desc.ContextLength > 0 && desc.ContextLength < opts.ContextLength {
		opts.ContextLength = desc.ContextLength
	}

	s.log.Info().Str("path", desc.Path).Int("gpu_layers", opts.GPULayers).Msg("loading model")
	start := time.Now()
	handle, err := s.cfg.Engine.Load(ctx, desc.Path, opts)
	if err != nil {
		s.log.Error().Err(err).Str("path", desc.Path).Msg("load failed, previous session retained")
		return types.ActiveInfo{}, ErrLoadFailure(desc.Path, err)
	}

	status, warn := s.cfg.Monitor.Verify(opts.GPULayers, handle.OffloadedLayers())

	s.mu.Lock()
	old := s.cur
	params := s.cfg.Params
	if old != nil {
		params = old.params
	}
	s.cur = &active{
		desc:     desc,
		hw:       status,
		params:   params,
		loadedAt: time.Now(),
		fallback: warn != nil,
		handle:   handle,
	}
	info := s.infoLocked()
	s.mu.Unlock()

	if old != nil {
		if err := old.handle.Close(); err != nil {
			s.log.Warn().Err(err).Str("path", old.desc.Path).Msg("failed to release previous model")
		}
	}

	if err := writeLastUsed(s.cfg.LastUsedPath, types.LastUsed{Index: desc.Index, Path: desc.Path}); err != nil {
		s.log.Warn().Err(err).Msg("failed to persist last-used pointer")
	}

	s.log.Info().
		Str("path", desc.Path).
		Str("mode", string(status.Mode)).
		Dur("took", time.Since(start)).
		Msg("model loaded")
	return info, nil
}

// ApplyParams swaps the generation parameters of the active session.
// O(1), no file I/O, no engine work; descriptor and handle are untouched.
func (s *Session) ApplyParams(p types.GenParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return ErrNotLoaded()
	}
	s.cur.params = p
	s.log.Debug().Float64("temperature", p.Temperature).Msg("generation parameters applied")
	return nil
}

// Params returns the current generation parameters.
func (s *Session) Params() (types.GenParams, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return types.GenParams{}, ErrNotLoaded()
	}
	return s.cur.params, nil
}

// ActiveInfo returns a read-only view of the loaded session.
func (s *Session) ActiveInfo() (types.ActiveInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return types.ActiveInfo{}, ErrNotLoaded()
	}
	return s.infoLocked(), nil
}

// Loaded reports whether a model is currently active.
func (s *Session) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil
}

// Close releases the active model, if any.
func (s *Session) Close() error {
	s.mu.Lock()
	cur := s.cur
	s.cur = nil
	s.mu.Unlock()
	if cur == nil {
		return nil
	}
	return cur.handle.Close()
}

func (s *Session) infoLocked() types.ActiveInfo {
	c := s.cur
	return types.ActiveInfo{
		Descriptor:       c.desc,
		Hardware:         c.hw,
		Params:           c.params,
		RAMEstimateMB:    raminfo.EstimateMB(c.desc.Quantization, c.desc.ContextLength),
		LoadedAt:         c.loadedAt,
		HardwareFallback: c.fallback,
	}
}
