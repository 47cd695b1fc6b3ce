package types

import "time"

// ModelDescriptor describes one GGUF model file known to the registry.
type ModelDescriptor struct {
	// 1-based position within the published registry generation.
	// example: 1
	Index int `json:"index" example:"1"`
	// Human-friendly name derived from the filename (stem, no extension).
	// example: tinyllama-1.1b-chat
	Name string `json:"name" example:"tinyllama-1.1b-chat"`
	// Absolute path to the model file on disk.
	// example: /home/user/models/tinyllama-1.1b-chat.Q4_K_M.gguf
	Path string `json:"path" example:"/home/user/models/tinyllama-1.1b-chat.Q4_K_M.gguf"`
	// File size in bytes at index time.
	Size int64 `json:"size"`
	// File modification time (unix nanoseconds) at index time.
	MTime int64 `json:"mtime"`
	// Model architecture (e.g., llama, mistral, phi).
	// example: llama
	Architecture string `json:"architecture,omitempty" example:"llama"`
	// Quantization label (e.g., Q4_K_M).
	// example: Q4_K_M
	Quantization string `json:"quantization,omitempty" example:"Q4_K_M"`
	// Maximum context length in tokens, 0 when unknown.
	// example: 4096
	ContextLength int `json:"context_length,omitempty" example:"4096"`
}

// HardwareMode reports where model layers actually execute.
type HardwareMode string

const (
	ModeCPU HardwareMode = "CPU"
	ModeGPU HardwareMode = "GPU"
)

// HardwareStatus is the verified per-load acceleration outcome.
type HardwareStatus struct {
	// CPU or GPU, derived from what actually happened, never from the request.
	// example: GPU
	Mode HardwareMode `json:"mode" example:"GPU"`
	// Number of layers the engine actually offloaded.
	// example: 32
	EffectiveLayers int `json:"effective_layers" example:"32"`
	// Whether acceleration is possible on this machine at all.
	// example: true
	CapabilityProbe bool `json:"capability_probe" example:"true"`
	// When this status was computed.
	CheckedAt time.Time `json:"checked_at"`
}

// GenParams are the generation parameters applied to the active session.
// Hot-swapping them never touches the loaded weights.
type GenParams struct {
	// Sampling temperature (higher = more random).
	// example: 0.7
	Temperature float64 `json:"temperature" example:"0.7"`
	// Nucleus sampling probability.
	// example: 0.9
	TopP float64 `json:"top_p" example:"0.9"`
	// Top-K sampling: limit candidates to top K tokens.
	// example: 40
	TopK int `json:"top_k" example:"40"`
	// Penalty applied to repeated tokens.
	// example: 1.1
	RepeatPenalty float64 `json:"repeat_penalty" example:"1.1"`
}

// DefaultGenParams returns the parameter set used when nothing else is configured.
func DefaultGenParams() GenParams {
	return GenParams{
		Temperature:   0.7,
		TopP:          0.9,
		TopK:          40,
		RepeatPenalty: 1.1,
	}
}

// LastUsed is the persisted pointer to the most recently loaded model.
type LastUsed struct {
	Index int    `json:"model_index"`
	Path  string `json:"model_path"`
}

// ActiveInfo is a read-only view of the loaded session for callers.
type ActiveInfo struct {
	Descriptor ModelDescriptor `json:"descriptor"`
	Hardware   HardwareStatus  `json:"hardware"`
	Params     GenParams       `json:"params"`
	// Heuristic RAM requirement in MB for the loaded quantization and context.
	// example: 3900
	RAMEstimateMB int       `json:"ram_estimate_mb" example:"3900"`
	LoadedAt      time.Time `json:"loaded_at"`
	// True when acceleration was requested but not achieved on this load.
	HardwareFallback bool `json:"hardware_fallback,omitempty"`
}
