package conv

import (
	"fmt"

	"github.com/born-ml/qconv/internal/tensor"
)

// OutputExtent returns the output size of one spatial axis:
//
//	floor((input + 2*pad - (dilation*(kernel-1) + 1)) / stride) + 1
//
// A configuration whose dilated kernel does not fit in the padded input is
// rejected with ErrInvalidConfig.
func OutputExtent(input, kernel, stride, pad, dilation int) (int, error) {
	switch {
	case stride <= 0:
		return 0, fmt.Errorf("%w: stride %d must be positive", ErrInvalidConfig, stride)
	case kernel <= 0:
		return 0, fmt.Errorf("%w: kernel %d must be positive", ErrInvalidConfig, kernel)
	case dilation <= 0:
		return 0, fmt.Errorf("%w: dilation %d must be positive", ErrInvalidConfig, dilation)
	case input < 0 || pad < 0:
		return 0, fmt.Errorf("%w: input %d and pad %d must be non-negative", ErrInvalidConfig, input, pad)
	}

	extent := dilation*(kernel-1) + 1
	numerator := input + 2*pad - extent
	if numerator < 0 {
		return 0, fmt.Errorf("%w: dilated kernel %d exceeds padded input %d", ErrInvalidConfig, extent, input+2*pad)
	}
	return numerator/stride + 1, nil
}

// Layout is a geometry resolved against a concrete input shape.
//
// It carries everything the engine primitives need to address one sample:
// the normalized geometry, spatial extents and per-sample element counts.
type Layout struct {
	Geometry Geometry

	InputShape  tensor.Shape // [N, C_in, spatial...]
	OutputShape tensor.Shape // [N, C_out, out_spatial...]

	InSpatial  []int
	OutSpatial []int

	BottomDim int // elements of one input sample
	TopDim    int // elements of one output sample
}

// Resolve normalizes the geometry and computes the output shape for an input
// of shape [N, C_in, spatial...].
//
// An input whose rank or channel count disagrees with the geometry is
// reported as ErrShapeMismatch; a kernel that does not fit the padded input
// as ErrInvalidConfig.
func (g Geometry) Resolve(input tensor.Shape) (*Layout, error) {
	ng, err := g.Normalize()
	if err != nil {
		return nil, err
	}

	axes := ng.NumSpatialAxes()
	if len(input) != axes+2 {
		return nil, fmt.Errorf("%w: input shape %v has %d axes, want %d (N, C and %d spatial)",
			ErrShapeMismatch, input, len(input), axes+2, axes)
	}
	if err := input.Validate(); err != nil {
		return nil, fmt.Errorf("%w: input shape: %v", ErrShapeMismatch, err)
	}
	if input[1] != ng.InChannels {
		return nil, fmt.Errorf("%w: input has %d channels, layer expects %d", ErrShapeMismatch, input[1], ng.InChannels)
	}

	outSpatial := make([]int, axes)
	for i := 0; i < axes; i++ {
		outSpatial[i], err = OutputExtent(input[2+i], ng.Kernel[i], ng.Stride[i], ng.Pad[i], ng.Dilation[i])
		if err != nil {
			return nil, fmt.Errorf("spatial axis %d: %w", i, err)
		}
	}

	output := append(tensor.Shape{input[0], ng.OutChannels}, outSpatial...)
	return &Layout{
		Geometry:    ng,
		InputShape:  input.Clone(),
		OutputShape: output,
		InSpatial:   append([]int(nil), input[2:]...),
		OutSpatial:  outSpatial,
		BottomDim:   input.CountFrom(1),
		TopDim:      output.CountFrom(1),
	}, nil
}

// Batch returns the number of samples.
func (l *Layout) Batch() int {
	return l.InputShape[0]
}

// InSpatialSize returns the number of spatial positions of one input channel.
func (l *Layout) InSpatialSize() int {
	return tensor.Shape(l.InSpatial).NumElements()
}

// OutSpatialSize returns the number of spatial positions of one output channel.
func (l *Layout) OutSpatialSize() int {
	return tensor.Shape(l.OutSpatial).NumElements()
}

// KernelDim returns the rows of one group's column matrix:
// in_channels/group times the kernel size.
func (l *Layout) KernelDim() int {
	return l.Geometry.FanIn()
}

// ColumnSize returns the length of the full column buffer of one sample.
func (l *Layout) ColumnSize() int {
	return l.Geometry.InChannels * l.Geometry.KernelSize() * l.OutSpatialSize()
}

// CheckInput verifies that t matches the resolved input shape.
func (l *Layout) CheckInput(name string, t *tensor.Tensor) error {
	return checkShape(name, t, l.InputShape)
}

// CheckOutput verifies that t matches the resolved output shape.
func (l *Layout) CheckOutput(name string, t *tensor.Tensor) error {
	return checkShape(name, t, l.OutputShape)
}

// CheckWeight verifies that t matches the weight shape.
func (l *Layout) CheckWeight(name string, t *tensor.Tensor) error {
	return checkShape(name, t, l.Geometry.WeightShape())
}

// CheckBias verifies that t matches the bias shape.
func (l *Layout) CheckBias(name string, t *tensor.Tensor) error {
	return checkShape(name, t, l.Geometry.BiasShape())
}

func checkShape(name string, t *tensor.Tensor, want tensor.Shape) error {
	if t == nil {
		return fmt.Errorf("%w: %s is nil, want shape %v", ErrShapeMismatch, name, want)
	}
	if !t.Shape().Equal(want) {
		return fmt.Errorf("%w: %s has shape %v, want %v", ErrShapeMismatch, name, t.Shape(), want)
	}
	return nil
}
