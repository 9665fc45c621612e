package nn

import (
	"github.com/born-ml/qconv/internal/tensor"
)

// Parameter represents a trainable parameter in a neural network.
//
// Parameters pair a tensor with a gradient buffer of the same shape. Backward
// passes accumulate into the gradient; ZeroGrad resets it.
//
// Example:
//
//	w := layer.Weight()
//	w.ZeroGrad()
//	_ = layer.Backward(topDiff, bottom, layer.ParamGradients(nil))
//	grad := w.Grad().Data()
type Parameter struct {
	name   string         // Parameter name (e.g., "qconv.weight")
	tensor *tensor.Tensor // The parameter tensor
	grad   *tensor.Tensor // Gradient accumulator
}

// NewParameter creates a new trainable parameter with a zeroed gradient.
func NewParameter(name string, t *tensor.Tensor) *Parameter {
	return &Parameter{
		name:   name,
		tensor: t,
		grad:   tensor.Zeros(t.Shape()),
	}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.Tensor {
	return p.tensor
}

// Grad returns the gradient accumulator.
func (p *Parameter) Grad() *tensor.Tensor {
	return p.grad
}

// ZeroGrad clears the gradient accumulator.
//
// This should be called before each training iteration to avoid
// accumulating gradients from previous iterations.
func (p *Parameter) ZeroGrad() {
	p.grad.Fill(0)
}
