// Package engine abstracts the inference runtime that actually loads
// model weights. The lifecycle subsystem only needs to acquire a handle
// and ask it how many layers ended up offloaded.
package engine

import "context"

// LoadOptions are the settings passed to the runtime for one load.
type LoadOptions struct {
	// Number of layers to offload to the accelerator. 0 forces CPU.
	GPULayers int
	// Context window size in tokens.
	ContextLength int
	// CPU threads for inference; 0 lets the runtime decide.
	Threads int
}

// Handle is a loaded model. It stays valid until Close.
type Handle interface {
	// OffloadedLayers reports how many layers the runtime actually
	// placed on the accelerator for this load.
	OffloadedLayers() int
	// Close releases the model and its memory.
	Close() error
}

// Engine loads model files. Load blocks until the weights are usable or
// the load failed; a failed load must leave no resources behind.
type Engine interface {
	Load(ctx context.Context, path string, opts LoadOptions) (Handle, error)
}

// unavailableError signals that no real runtime is compiled into this
// binary (built without the 'llama' tag).
type unavailableError struct{ msg string }

func (e unavailableError) Error() string { return e.msg }

// ErrUnavailable constructs an engine-unavailable error.
func ErrUnavailable(msg string) error { return unavailableError{msg: msg} }

// IsUnavailable reports whether err means the runtime is not built in.
func IsUnavailable(err error) bool {
	_, ok := err.(unavailableError)
	return ok
}
