//go:build !llama

package engine

// No-CGO stub compiled when the 'llama' build tag is not set. Default
// builds and CI stay CGO-free; the stub refuses to load rather than
// pretending a model is resident.

import "context"

var llamaBuilt = false

type llamaEngine struct{}

// NewLlamaEngine returns the stub engine in builds without llama support.
func NewLlamaEngine() Engine { return &llamaEngine{} }

func (e *llamaEngine) Load(ctx context.Context, path string, opts LoadOptions) (Handle, error) {
	return nil, ErrUnavailable("llama support not built (missing 'llama' build tag)")
}
