// Package hardware determines the true acceleration state of the
// machine and of each completed load. The classification is always
// derived from what actually happened, never from what was requested.
package hardware

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"modelkeep/pkg/types"
)

// FallbackWarning reports that acceleration was requested but the
// engine ended up offloading nothing. It is non-fatal and must be shown
// to the caller, not merely logged.
type FallbackWarning struct {
	RequestedLayers int
}

func (w *FallbackWarning) Error() string {
	return fmt.Sprintf("requested %d GPU layers but 0 were offloaded, running on CPU", w.RequestedLayers)
}

// IsFallbackWarning reports whether err is a hardware fallback warning.
func IsFallbackWarning(err error) bool {
	_, ok := err.(*FallbackWarning)
	return ok
}

// Monitor answers two questions: can this machine accelerate at all
// (probed once per process) and what did a specific load actually
// achieve (verified every time).
type Monitor struct {
	probeOnce   sync.Once
	probeResult bool
	probeFn     func() bool
	now         func() time.Time
	log         zerolog.Logger
}

// NewMonitor builds a Monitor using the default environment probe.
func NewMonitor(log zerolog.Logger) *Monitor {
	return &Monitor{
		probeFn: probeCUDA,
		now:     time.Now,
		log:     log.With().Str("component", "hardware").Logger(),
	}
}

// NewMonitorWithProbe injects a capability probe, for tests and for
// platforms with their own detection.
func NewMonitorWithProbe(probe func() bool, log zerolog.Logger) *Monitor {
	m := NewMonitor(log)
	m.probeFn = probe
	return m
}

// ProbeCapability reports whether acceleration is possible on this
// machine. The underlying check is environment-level and expensive, so
// the result is memoized for the process lifetime.
func (m *Monitor) ProbeCapability() bool {
	m.probeOnce.Do(func() {
		m.probeResult = m.probeFn()
		m.log.Info().Bool("gpu_capable", m.probeResult).Msg("capability probe")
	})
	return m.probeResult
}

// Verify classifies the outcome of one load. It is never cached: the
// offload result can differ between loads even on the same machine.
// Mode is GPU only when layers were actually offloaded and the machine
// is capable; a requested-but-not-achieved offload returns a non-nil
// *FallbackWarning alongside the CPU status.
func (m *Monitor) Verify(requestedLayers, effectiveLayers int) (types.HardwareStatus, *FallbackWarning) {
	capable := m.ProbeCapability()
	status := types.HardwareStatus{
		Mode:            types.ModeCPU,
		EffectiveLayers: effectiveLayers,
		CapabilityProbe: capable,
		CheckedAt:       m.now(),
	}
	if effectiveLayers > 0 && capable {
		status.Mode = types.ModeGPU
	}
	if status.Mode == types.ModeCPU {
		// CPU mode must not claim offloaded layers.
		status.EffectiveLayers = 0
	}
	if requestedLayers > 0 && status.EffectiveLayers == 0 {
		warn := &FallbackWarning{RequestedLayers: requestedLayers}
		m.log.Warn().
			Int("requested_layers", requestedLayers).
			Int("effective_layers", effectiveLayers).
			Bool("gpu_capable", capable).
			Msg("GPU acceleration requested but not achieved, falling back to CPU")
		return status, warn
	}
	m.log.Info().
		Str("mode", string(status.Mode)).
		Int("effective_layers", status.EffectiveLayers).
		Msg("hardware status verified")
	return status, nil
}

// probeCUDA looks for CUDA indicators in the environment: device
// visibility, the llama.cpp CUDA switches, the driver CLI on PATH, or
// the runtime library on disk.
func probeCUDA() bool {
	if v, ok := os.LookupEnv("CUDA_VISIBLE_DEVICES"); ok && v != "" && v != "-1" {
		return true
	}
	if os.Getenv("GGML_CUDA") == "1" || os.Getenv("LLAMA_CUBLAS") == "1" {
		return true
	}
	if _, err := exec.LookPath("nvidia-smi"); err == nil {
		return true
	}
	for _, p := range []string{
		"/usr/local/cuda/lib64/libcudart.so",
		"/usr/lib/x86_64-linux-gnu/libcudart.so",
	} {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}
