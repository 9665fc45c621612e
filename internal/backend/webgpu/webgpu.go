// Package webgpu exposes the GPU side of the convolution backends.
//
// GPU execution of the convolution primitives is not implemented: NewEngine
// always fails with ErrUnsupported and callers fall back to the CPU backend.
// IsAvailable reports whether a WebGPU adapter can be acquired at all, which
// the CLI surfaces in its environment report.
package webgpu

import (
	"errors"

	"github.com/born-ml/qconv/internal/conv"
)

// ErrUnsupported is returned by NewEngine.
var ErrUnsupported = errors.New("webgpu: convolution engine not supported")

// NewEngine returns a GPU conv.Engine. It is not implemented and always
// returns ErrUnsupported.
func NewEngine() (conv.Engine, error) {
	return nil, ErrUnsupported
}

// IsAvailable reports whether a WebGPU adapter can be acquired.
func IsAvailable() bool {
	ok, _ := probe()
	return ok
}

// Probe reports whether a WebGPU adapter can be acquired and, when it
// cannot, why.
func Probe() error {
	_, err := probe()
	return err
}
