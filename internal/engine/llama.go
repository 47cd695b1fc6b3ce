//go:build llama

package engine

// cgo link directives for the in-process llama runtime.
// - rpath $ORIGIN lets the loader find libllama.so next to the binary.
// - -L${SRCDIR}/../../bin resolves libllama.so at link time for builds
//   produced into ./bin.
/*
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../bin -lllama
*/
import "C"

import (
	"context"
	"errors"
	"strings"

	llama "github.com/go-skynet/go-llama.cpp"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

// llamaEngine loads models in-process through go-llama.cpp.
type llamaEngine struct{}

// NewLlamaEngine returns the in-process llama.cpp engine.
func NewLlamaEngine() Engine { return &llamaEngine{} }

type llamaHandle struct {
	model *llama.LLama
	// layers llama.cpp was configured to offload; the binding exposes no
	// post-load query, so this is what the runtime accepted at load time.
	gpuLayers int
}

func (e *llamaEngine) Load(ctx context.Context, path string, opts LoadOptions) (Handle, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("model path is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mo := []llama.ModelOption{
		llama.SetContext(opts.ContextLength),
		llama.SetGPULayers(opts.GPULayers),
	}
	m, err := llama.New(path, mo...)
	if err != nil {
		return nil, err
	}
	return &llamaHandle{model: m, gpuLayers: opts.GPULayers}, nil
}

func (h *llamaHandle) OffloadedLayers() int { return h.gpuLayers }

func (h *llamaHandle) Close() error {
	if h.model != nil {
		h.model.Free()
		h.model = nil
	}
	return nil
}
