// Package nn implements convolution layers for quantization-aware training.
//
// This package provides:
//   - Module interface: Forward/Backward contract shared by the layers
//   - Parameter: Trainable tensor paired with its gradient accumulator
//   - Conv: Floating-point N-d convolution over a conv.Engine
//   - QuantConv: Convolution whose activations pass through an 8-bit codec
//
// Layers never own the training loop: callers zero gradients, run Backward,
// and hand accumulated gradients to an optimizer.
package nn

import (
	"github.com/born-ml/qconv/internal/tensor"
)

// Module is the common interface of the convolution layers.
type Module interface {
	// Forward computes the output for a batch laid out as [N, C, spatial...].
	Forward(bottom *tensor.Tensor) (*tensor.Tensor, error)

	// Backward propagates topDiff into the buffers named by g.
	Backward(topDiff, bottom *tensor.Tensor, g Gradients) error

	// Parameters returns all trainable parameters.
	Parameters() []*Parameter
}

// Gradients names the buffers a backward pass writes.
//
// A nil field skips that gradient. Weight and Bias are accumulated into, so
// callers zero them before a fresh accumulation pass; Bottom is overwritten
// sample by sample.
type Gradients struct {
	Weight *tensor.Tensor // [out_channels, in_channels/group, kernel...]
	Bias   *tensor.Tensor // [out_channels]; ignored by layers without bias
	Bottom *tensor.Tensor // same shape as the forward input
}
