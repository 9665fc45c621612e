// Package conv holds the N-dimensional convolution infrastructure: layer
// geometry, output shape resolution and the Engine primitives a convolution
// layer is built from.
package conv

import (
	"errors"
	"fmt"

	"github.com/born-ml/qconv/internal/tensor"
)

var (
	// ErrInvalidConfig reports a geometry that cannot produce a valid convolution.
	ErrInvalidConfig = errors.New("conv: invalid configuration")

	// ErrShapeMismatch reports a buffer whose shape disagrees with the resolved layout.
	ErrShapeMismatch = errors.New("conv: shape mismatch")
)

// Geometry is the static configuration of a convolution layer.
//
// Kernel has one entry per spatial axis and fixes the number of spatial axes.
// Stride, Pad and Dilation accept either no entries (defaults 1, 0 and 1),
// a single entry applied to every axis, or one entry per axis.
// Group of 0 is treated as 1.
type Geometry struct {
	Kernel   []int
	Stride   []int
	Pad      []int
	Dilation []int

	InChannels  int
	OutChannels int
	Group       int
	BiasTerm    bool
}

// Uniform builds a geometry with the same kernel, stride and padding on every
// one of axes spatial axes, unit dilation and a single group.
func Uniform(axes, inChannels, outChannels, kernel, stride, pad int, bias bool) Geometry {
	return Geometry{
		Kernel:      repeat(kernel, axes),
		Stride:      []int{stride},
		Pad:         []int{pad},
		InChannels:  inChannels,
		OutChannels: outChannels,
		BiasTerm:    bias,
	}
}

// NumSpatialAxes returns the number of spatial axes.
func (g Geometry) NumSpatialAxes() int {
	return len(g.Kernel)
}

// Normalize expands Stride, Pad, Dilation and Group to their explicit form and
// validates the result.
func (g Geometry) Normalize() (Geometry, error) {
	axes := len(g.Kernel)
	if axes == 0 {
		return Geometry{}, fmt.Errorf("%w: kernel must have at least one spatial axis", ErrInvalidConfig)
	}

	out := g
	out.Kernel = append([]int(nil), g.Kernel...)

	var err error
	if out.Stride, err = expand("stride", g.Stride, axes, 1); err != nil {
		return Geometry{}, err
	}
	if out.Pad, err = expand("pad", g.Pad, axes, 0); err != nil {
		return Geometry{}, err
	}
	if out.Dilation, err = expand("dilation", g.Dilation, axes, 1); err != nil {
		return Geometry{}, err
	}
	if out.Group == 0 {
		out.Group = 1
	}

	if err := out.validate(); err != nil {
		return Geometry{}, err
	}
	return out, nil
}

// Validate reports whether the geometry is usable.
func (g Geometry) Validate() error {
	_, err := g.Normalize()
	return err
}

func (g Geometry) validate() error {
	for i := range g.Kernel {
		if g.Kernel[i] <= 0 {
			return fmt.Errorf("%w: kernel[%d]=%d must be positive", ErrInvalidConfig, i, g.Kernel[i])
		}
		if g.Stride[i] <= 0 {
			return fmt.Errorf("%w: stride[%d]=%d must be positive", ErrInvalidConfig, i, g.Stride[i])
		}
		if g.Pad[i] < 0 {
			return fmt.Errorf("%w: pad[%d]=%d must be non-negative", ErrInvalidConfig, i, g.Pad[i])
		}
		if g.Dilation[i] <= 0 {
			return fmt.Errorf("%w: dilation[%d]=%d must be positive", ErrInvalidConfig, i, g.Dilation[i])
		}
	}
	if g.InChannels <= 0 || g.OutChannels <= 0 {
		return fmt.Errorf("%w: channels in=%d out=%d must be positive", ErrInvalidConfig, g.InChannels, g.OutChannels)
	}
	if g.Group < 0 {
		return fmt.Errorf("%w: group %d must be positive", ErrInvalidConfig, g.Group)
	}
	if g.InChannels%g.Group != 0 || g.OutChannels%g.Group != 0 {
		return fmt.Errorf("%w: group %d must divide channels in=%d out=%d",
			ErrInvalidConfig, g.Group, g.InChannels, g.OutChannels)
	}
	return nil
}

// KernelSize returns the number of taps of one kernel plane.
func (g Geometry) KernelSize() int {
	return tensor.Shape(g.Kernel).NumElements()
}

// WeightShape returns [out_channels, in_channels/group, kernel...].
func (g Geometry) WeightShape() tensor.Shape {
	group := max(g.Group, 1)
	shape := tensor.Shape{g.OutChannels, g.InChannels / group}
	return append(shape, g.Kernel...)
}

// BiasShape returns [out_channels].
func (g Geometry) BiasShape() tensor.Shape {
	return tensor.Shape{g.OutChannels}
}

// FanIn returns in_channels/group times the kernel size.
func (g Geometry) FanIn() int {
	return g.InChannels / max(g.Group, 1) * g.KernelSize()
}

// FanOut returns out_channels/group times the kernel size.
func (g Geometry) FanOut() int {
	return g.OutChannels / max(g.Group, 1) * g.KernelSize()
}

// Is1x1 reports whether every axis has kernel 1, stride 1 and no padding, in
// which case a sample block is already its own column matrix.
func (g Geometry) Is1x1() bool {
	for i := range g.Kernel {
		if g.Kernel[i] != 1 || at(g.Stride, i, 1) != 1 || at(g.Pad, i, 0) != 0 {
			return false
		}
	}
	return true
}

// String returns a compact description of the geometry.
func (g Geometry) String() string {
	return fmt.Sprintf("Conv%dD(in=%d, out=%d, kernel=%v, stride=%v, pad=%v, dilation=%v, group=%d, bias=%v)",
		len(g.Kernel), g.InChannels, g.OutChannels, g.Kernel, g.Stride, g.Pad, g.Dilation, max(g.Group, 1), g.BiasTerm)
}

func expand(name string, values []int, axes, def int) ([]int, error) {
	switch len(values) {
	case 0:
		return repeat(def, axes), nil
	case 1:
		return repeat(values[0], axes), nil
	case axes:
		return append([]int(nil), values...), nil
	default:
		return nil, fmt.Errorf("%w: %s has %d entries, want 0, 1 or %d", ErrInvalidConfig, name, len(values), axes)
	}
}

func repeat(v, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func at(values []int, i, def int) int {
	switch len(values) {
	case 0:
		return def
	case 1:
		return values[0]
	default:
		return values[i]
	}
}
