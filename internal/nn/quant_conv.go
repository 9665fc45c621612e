package nn

import (
	"fmt"

	"github.com/born-ml/qconv/internal/conv"
	"github.com/born-ml/qconv/internal/parallel"
	"github.com/born-ml/qconv/internal/quant"
	"github.com/born-ml/qconv/internal/tensor"
)

// QuantConvConfig configures a QuantConv layer.
type QuantConvConfig struct {
	conv.Geometry

	// Scale converts activations to 8-bit levels: level = trunc(x*Scale + 0.5)
	// clamped to [0, 255]. It is fixed for the lifetime of the layer.
	Scale float32

	// Workers bounds the goroutines used across the samples of a batch.
	// Zero or negative selects the CPU count; 1 runs strictly sequentially.
	Workers int

	// Seed seeds the Xavier weight initializer.
	Seed int64
}

// QuantConv is a convolution that simulates uint8 activations.
//
// Forward, per sample:
//
//	levels = quantize(bottom)         // integers in [0, 255]
//	raw    = W * im2col(levels)       // continuous W
//	top    = raw / scale (+ bias)
//
// Backward, per sample:
//
//	dBias   += sum over positions of topDiff
//	dW      += topDiff * im2col(dequantize(quantize(bottom)))^T
//	dBottom  = col2im(W^T * topDiff)  // straight-through estimator
//
// The weight gradient sees exactly the lossy activation forward multiplied
// against, while the input gradient treats quantization as the identity.
//
// QuantConv wraps a Conv: geometry, parameters and engine are the wrapped
// layer's, and any conv.Engine can execute it.
type QuantConv struct {
	base  *Conv
	codec quant.Codec

	// One scratch set per worker; sized for the layout in sized.
	scratch []quantScratch
	sized   *conv.Layout
}

// Compile-time check that QuantConv implements Module.
var _ Module = (*QuantConv)(nil)

// quantScratch holds one worker's per-sample buffers. Nothing in them
// survives from one sample to the next.
type quantScratch struct {
	levels []float32 // [bottom_dim] quantized levels, or round-tripped values in backward
	raw    []float32 // [top_dim] GEMM result before dequantization
}

// NewQuantConv creates a quantized convolution layer.
//
// An invalid geometry or scale is rejected with conv.ErrInvalidConfig.
func NewQuantConv(cfg QuantConvConfig, engine conv.Engine) (*QuantConv, error) {
	codec, err := quant.NewCodec(cfg.Scale)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", conv.ErrInvalidConfig, err)
	}

	base, err := newConv("qconv", ConvConfig{
		Geometry: cfg.Geometry,
		Workers:  cfg.Workers,
		Seed:     cfg.Seed,
	}, engine)
	if err != nil {
		return nil, err
	}

	return &QuantConv{base: base, codec: codec}, nil
}

// Reshape resolves the output shape for an input shape and sizes the
// per-worker scratch buffers. It is a no-op when the shape is unchanged.
func (q *QuantConv) Reshape(input tensor.Shape) (*conv.Layout, error) {
	l, err := q.base.Reshape(input)
	if err != nil {
		return nil, err
	}
	if l == q.sized {
		return l, nil
	}

	q.scratch = make([]quantScratch, q.base.par.Workers(l.Batch()))
	for i := range q.scratch {
		q.scratch[i] = quantScratch{
			levels: make([]float32, l.BottomDim),
			raw:    make([]float32, l.TopDim),
		}
	}
	q.sized = l
	return l, nil
}

func (q *QuantConv) resolve(bottom *tensor.Tensor) (*conv.Layout, error) {
	if bottom == nil {
		return nil, fmt.Errorf("%w: bottom is nil", conv.ErrShapeMismatch)
	}
	return q.Reshape(bottom.Shape())
}

// Forward allocates the output and runs ForwardInto.
func (q *QuantConv) Forward(bottom *tensor.Tensor) (*tensor.Tensor, error) {
	l, err := q.resolve(bottom)
	if err != nil {
		return nil, err
	}
	top := tensor.Zeros(l.OutputShape)
	if err := q.ForwardInto(bottom, top); err != nil {
		return nil, err
	}
	return top, nil
}

// ForwardInto writes the quantized convolution of bottom into top.
//
// Activations outside [0, 255/scale] saturate silently. Shapes are checked
// before top is written.
func (q *QuantConv) ForwardInto(bottom, top *tensor.Tensor) error {
	l, err := q.resolve(bottom)
	if err != nil {
		return err
	}
	if err := l.CheckOutput("top", top); err != nil {
		return err
	}

	engine := q.base.engine
	weight := q.base.weight.Tensor().Data()
	var bias []float32
	if q.base.bias != nil {
		bias = q.base.bias.Tensor().Data()
	}

	return parallel.For(l.Batch(), func(worker, n int) error {
		s := &q.scratch[worker]
		q.codec.QuantizeSlice(s.levels, bottom.Sample(n))
		engine.ForwardMatMul(l, s.levels, weight, s.raw)

		out := top.Sample(n)
		q.codec.DequantizeSlice(out, s.raw)
		if bias != nil {
			engine.AddBias(l, out, bias)
		}
		return nil
	}, q.base.par)
}

// Backward accumulates the bias and weight gradients into g.Bias and
// g.Weight and overwrites g.Bottom with the input gradient.
//
// Parameter gradients are accumulated in sample order on the calling
// goroutine, so results do not depend on the worker count. Input gradients
// run in parallel.
func (q *QuantConv) Backward(topDiff, bottom *tensor.Tensor, g Gradients) error {
	if _, err := q.resolve(bottom); err != nil {
		return err
	}
	l, err := q.base.checkBackward(topDiff, bottom, g)
	if err != nil {
		return err
	}

	engine := q.base.engine
	biasDiff := q.base.biasDiff(g)
	if biasDiff != nil || g.Weight != nil {
		s := &q.scratch[0]
		for n := 0; n < l.Batch(); n++ {
			top := topDiff.Sample(n)
			if biasDiff != nil {
				engine.BackwardBias(l, biasDiff, top)
			}
			if g.Weight != nil {
				q.codec.RoundTripSlice(s.levels, bottom.Sample(n))
				engine.BackwardWeight(l, g.Weight.Data(), s.levels, top)
			}
		}
	}

	return q.base.backwardInput(l, topDiff, g.Bottom)
}

// ForwardEach runs Forward on several inputs that share the layer's
// parameters. Inputs may have different shapes.
func (q *QuantConv) ForwardEach(bottoms []*tensor.Tensor) ([]*tensor.Tensor, error) {
	tops := make([]*tensor.Tensor, len(bottoms))
	for i, bottom := range bottoms {
		top, err := q.Forward(bottom)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		tops[i] = top
	}
	return tops, nil
}

// BackwardEach runs Backward for several bottom/top pairs that share the
// layer's parameters. Weight and bias gradients from every pair accumulate
// into g.Weight and g.Bias; bottomDiffs[i] receives the input gradient of
// pair i. A nil bottomDiffs, or a nil entry, skips that input gradient.
// g.Bottom must be nil.
//
// Every pair is validated before any buffer is written.
func (q *QuantConv) BackwardEach(topDiffs, bottoms []*tensor.Tensor, g Gradients, bottomDiffs []*tensor.Tensor) error {
	if g.Bottom != nil {
		return fmt.Errorf("%w: BackwardEach takes input gradients through bottomDiffs", conv.ErrShapeMismatch)
	}
	if len(topDiffs) != len(bottoms) {
		return fmt.Errorf("%w: %d top diffs for %d bottoms", conv.ErrShapeMismatch, len(topDiffs), len(bottoms))
	}
	if bottomDiffs != nil && len(bottomDiffs) != len(bottoms) {
		return fmt.Errorf("%w: %d bottom diffs for %d bottoms", conv.ErrShapeMismatch, len(bottomDiffs), len(bottoms))
	}

	pairs := make([]Gradients, len(bottoms))
	for i := range bottoms {
		pairs[i] = g
		if bottomDiffs != nil {
			pairs[i].Bottom = bottomDiffs[i]
		}
		if _, err := q.base.checkBackward(topDiffs[i], bottoms[i], pairs[i]); err != nil {
			return fmt.Errorf("pair %d: %w", i, err)
		}
	}

	for i := range bottoms {
		if err := q.Backward(topDiffs[i], bottoms[i], pairs[i]); err != nil {
			return fmt.Errorf("pair %d: %w", i, err)
		}
	}
	return nil
}

// ParamGradients returns Gradients bound to the layer's own accumulators
// plus the given bottom gradient (nil skips it).
func (q *QuantConv) ParamGradients(bottomDiff *tensor.Tensor) Gradients {
	return q.base.ParamGradients(bottomDiff)
}

// Parameters returns all trainable parameters.
func (q *QuantConv) Parameters() []*Parameter {
	return q.base.Parameters()
}

// Weight returns the weight parameter.
func (q *QuantConv) Weight() *Parameter {
	return q.base.Weight()
}

// Bias returns the bias parameter, or nil when the layer has no bias term.
func (q *QuantConv) Bias() *Parameter {
	return q.base.Bias()
}

// Geometry returns the normalized geometry.
func (q *QuantConv) Geometry() conv.Geometry {
	return q.base.Geometry()
}

// Layout returns the most recently resolved layout.
func (q *QuantConv) Layout() *conv.Layout {
	return q.base.Layout()
}

// Codec returns the activation codec.
func (q *QuantConv) Codec() quant.Codec {
	return q.codec
}

// Scale returns the quantization scale.
func (q *QuantConv) Scale() float32 {
	return q.codec.Scale()
}

// String returns a string representation of the layer.
func (q *QuantConv) String() string {
	return fmt.Sprintf("Quant%v, scale=%g", q.base, q.codec.Scale())
}
