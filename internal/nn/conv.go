package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/qconv/internal/conv"
	"github.com/born-ml/qconv/internal/parallel"
	"github.com/born-ml/qconv/internal/tensor"
)

// ConvConfig configures a convolution layer.
type ConvConfig struct {
	conv.Geometry

	// Workers bounds the goroutines used across the samples of a batch.
	// Zero or negative selects the CPU count; 1 runs strictly sequentially.
	Workers int

	// Seed seeds the Xavier weight initializer.
	Seed int64
}

// Conv is an N-dimensional floating-point convolution layer.
//
// Performs convolution: output = Conv(input, weight) + bias
//
// Input shape:  [batch, in_channels, spatial...]
// Weight shape: [out_channels, in_channels/group, kernel...]
// Bias shape:   [out_channels]
// Output shape: [batch, out_channels, out_spatial...]
//
// Example:
//
//	// 1 channel -> 6 channels, 5x5 kernel
//	layer, err := nn.NewConv(nn.ConvConfig{Geometry: conv.Uniform(2, 1, 6, 5, 1, 0, true)}, cpu.New())
//	output, err := layer.Forward(input) // [32, 1, 28, 28] -> [32, 6, 24, 24]
type Conv struct {
	geometry conv.Geometry
	engine   conv.Engine
	par      parallel.Config

	weight *Parameter
	bias   *Parameter // nil without bias term

	layout *conv.Layout
}

// Compile-time check that Conv implements Module.
var _ Module = (*Conv)(nil)

// NewConv creates a convolution layer with Xavier-initialized weights and
// zero bias. Invalid geometry is rejected with conv.ErrInvalidConfig.
func NewConv(cfg ConvConfig, engine conv.Engine) (*Conv, error) {
	return newConv("conv", cfg, engine)
}

func newConv(name string, cfg ConvConfig, engine conv.Engine) (*Conv, error) {
	g, err := cfg.Geometry.Normalize()
	if err != nil {
		return nil, err
	}
	if engine == nil {
		return nil, fmt.Errorf("%w: %s: nil engine", conv.ErrInvalidConfig, name)
	}

	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // weight init only
	weight := Xavier(g.FanIn(), g.FanOut(), g.WeightShape(), rng)

	c := &Conv{
		geometry: g,
		engine:   engine,
		par:      parallel.WithWorkers(cfg.Workers),
		weight:   NewParameter(name+".weight", weight),
	}
	if g.BiasTerm {
		c.bias = NewParameter(name+".bias", Zeros(g.BiasShape()))
	}
	return c, nil
}

// Reshape resolves the output shape for an input shape. It is a no-op when
// the shape is unchanged since the previous call.
func (c *Conv) Reshape(input tensor.Shape) (*conv.Layout, error) {
	if c.layout != nil && c.layout.InputShape.Equal(input) {
		return c.layout, nil
	}
	l, err := c.geometry.Resolve(input)
	if err != nil {
		return nil, err
	}
	c.layout = l
	return l, nil
}

// resolve reshapes the layer for bottom.
func (c *Conv) resolve(bottom *tensor.Tensor) (*conv.Layout, error) {
	if bottom == nil {
		return nil, fmt.Errorf("%w: bottom is nil", conv.ErrShapeMismatch)
	}
	return c.Reshape(bottom.Shape())
}

// Forward allocates the output and runs ForwardInto.
func (c *Conv) Forward(bottom *tensor.Tensor) (*tensor.Tensor, error) {
	l, err := c.resolve(bottom)
	if err != nil {
		return nil, err
	}
	top := tensor.Zeros(l.OutputShape)
	if err := c.ForwardInto(bottom, top); err != nil {
		return nil, err
	}
	return top, nil
}

// ForwardInto writes Conv(bottom) + bias into top.
func (c *Conv) ForwardInto(bottom, top *tensor.Tensor) error {
	l, err := c.resolve(bottom)
	if err != nil {
		return err
	}
	if err := l.CheckOutput("top", top); err != nil {
		return err
	}

	weight := c.weight.Tensor().Data()
	return parallel.For(l.Batch(), func(_, n int) error {
		out := top.Sample(n)
		c.engine.ForwardMatMul(l, bottom.Sample(n), weight, out)
		if c.bias != nil {
			c.engine.AddBias(l, out, c.bias.Tensor().Data())
		}
		return nil
	}, c.par)
}

// Backward accumulates parameter gradients and writes the input gradient.
func (c *Conv) Backward(topDiff, bottom *tensor.Tensor, g Gradients) error {
	l, err := c.checkBackward(topDiff, bottom, g)
	if err != nil {
		return err
	}

	biasDiff := c.biasDiff(g)
	if biasDiff != nil || g.Weight != nil {
		for n := 0; n < l.Batch(); n++ {
			if biasDiff != nil {
				c.engine.BackwardBias(l, biasDiff, topDiff.Sample(n))
			}
			if g.Weight != nil {
				c.engine.BackwardWeight(l, g.Weight.Data(), bottom.Sample(n), topDiff.Sample(n))
			}
		}
	}

	return c.backwardInput(l, topDiff, g.Bottom)
}

// checkBackward resolves the layout and validates every buffer a backward
// pass may touch before any of them is written.
func (c *Conv) checkBackward(topDiff, bottom *tensor.Tensor, g Gradients) (*conv.Layout, error) {
	l, err := c.resolve(bottom)
	if err != nil {
		return nil, err
	}
	if err := l.CheckOutput("top diff", topDiff); err != nil {
		return nil, err
	}
	if g.Weight != nil {
		if err := l.CheckWeight("weight diff", g.Weight); err != nil {
			return nil, err
		}
	}
	if g.Bias != nil && c.bias != nil {
		if err := l.CheckBias("bias diff", g.Bias); err != nil {
			return nil, err
		}
	}
	if g.Bottom != nil {
		if err := l.CheckInput("bottom diff", g.Bottom); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (c *Conv) biasDiff(g Gradients) []float32 {
	if c.bias == nil || g.Bias == nil {
		return nil
	}
	return g.Bias.Data()
}

// backwardInput writes the input gradient of every sample against the
// continuous weight. Samples write disjoint slices and run in parallel.
func (c *Conv) backwardInput(l *conv.Layout, topDiff, bottomDiff *tensor.Tensor) error {
	if bottomDiff == nil {
		return nil
	}
	weight := c.weight.Tensor().Data()
	return parallel.For(l.Batch(), func(_, n int) error {
		c.engine.BackwardInput(l, bottomDiff.Sample(n), topDiff.Sample(n), weight)
		return nil
	}, c.par)
}

// ParamGradients returns Gradients bound to the layer's own accumulators
// plus the given bottom gradient (nil skips it).
func (c *Conv) ParamGradients(bottomDiff *tensor.Tensor) Gradients {
	g := Gradients{Weight: c.weight.Grad(), Bottom: bottomDiff}
	if c.bias != nil {
		g.Bias = c.bias.Grad()
	}
	return g
}

// Parameters returns all trainable parameters.
func (c *Conv) Parameters() []*Parameter {
	if c.bias != nil {
		return []*Parameter{c.weight, c.bias}
	}
	return []*Parameter{c.weight}
}

// Weight returns the weight parameter.
func (c *Conv) Weight() *Parameter {
	return c.weight
}

// Bias returns the bias parameter, or nil when the layer has no bias term.
func (c *Conv) Bias() *Parameter {
	return c.bias
}

// Geometry returns the normalized geometry.
func (c *Conv) Geometry() conv.Geometry {
	return c.geometry
}

// Layout returns the most recently resolved layout, or nil before the first
// Reshape.
func (c *Conv) Layout() *conv.Layout {
	return c.layout
}

// Engine returns the engine executing the primitives.
func (c *Conv) Engine() conv.Engine {
	return c.engine
}

// String returns a string representation of the layer.
func (c *Conv) String() string {
	return fmt.Sprintf("%v on %s", c.geometry, c.engine.Name())
}
