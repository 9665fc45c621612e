package nn

import (
	"math/rand"
	"testing"

	"github.com/born-ml/qconv/internal/backend/cpu"
	"github.com/born-ml/qconv/internal/conv"
	"github.com/born-ml/qconv/internal/quant"
	"github.com/born-ml/qconv/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQuantConv(t *testing.T, g conv.Geometry, scale float32, workers int) *QuantConv {
	t.Helper()
	q, err := NewQuantConv(QuantConvConfig{Geometry: g, Scale: scale, Workers: workers, Seed: 7}, cpu.New())
	require.NoError(t, err)
	return q
}

// TestQuantConv_EndToEnd runs a single 1x1 tap: 3.7 quantizes to 4, 4*2 = 8.
func TestQuantConv_EndToEnd(t *testing.T) {
	q := newQuantConv(t, conv.Uniform(2, 1, 1, 1, 1, 0, false), 1, 1)
	q.Weight().Tensor().Data()[0] = 2

	bottom := mustFromSlice([]float32{3.7}, tensor.Shape{1, 1, 1, 1})
	top, err := q.Forward(bottom)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 1, 1, 1}, top.Shape())
	assert.Equal(t, []float32{8}, top.Data())

	topDiff := mustFromSlice([]float32{1}, tensor.Shape{1, 1, 1, 1})
	bottomDiff := tensor.Zeros(bottom.Shape())
	require.NoError(t, q.Backward(topDiff, bottom, q.ParamGradients(bottomDiff)))

	assert.Equal(t, []float32{4}, q.Weight().Grad().Data(), "weight gradient uses the quantized activation")
	assert.Equal(t, []float32{2}, bottomDiff.Data(), "input gradient uses the continuous weight")
}

func TestQuantConv_KnownValues(t *testing.T) {
	// 2x2 kernel over a 3x3 input; scale 2 turns 0.5..4.5 into levels 1..9.
	q := newQuantConv(t, conv.Uniform(2, 1, 1, 2, 1, 0, false), 2, 1)
	copy(q.Weight().Tensor().Data(), []float32{1, 2, 3, 4})

	bottom := mustFromSlice([]float32{0.5, 1, 1.5, 2, 2.5, 3, 3.5, 4, 4.5}, tensor.Shape{1, 1, 3, 3})
	top, err := q.Forward(bottom)
	require.NoError(t, err)

	// Levels 1..9 give 37, 47, 67, 77, divided by the scale.
	assert.Equal(t, []float32{18.5, 23.5, 33.5, 38.5}, top.Data())
}

func TestQuantConv_Saturation(t *testing.T) {
	q := newQuantConv(t, conv.Uniform(1, 1, 1, 1, 1, 0, false), 1, 1)
	q.Weight().Tensor().Data()[0] = 1

	bottom := mustFromSlice([]float32{-3, -0.2, 0.2, 254.6, 255, 300, 1e9}, tensor.Shape{1, 1, 7})
	top, err := q.Forward(bottom)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0, 255, 255, 255, 255}, top.Data())
}

func TestQuantConv_BiasToggle(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	bottom := randomTensor(rng, tensor.Shape{3, 2, 5, 5}, -1, 3)

	withoutEngine := newRecordingEngine()
	without, err := NewQuantConv(QuantConvConfig{Geometry: conv.Uniform(2, 2, 4, 3, 1, 1, false), Scale: 8, Workers: 1}, withoutEngine)
	require.NoError(t, err)

	withEngine := newRecordingEngine()
	with, err := NewQuantConv(QuantConvConfig{Geometry: conv.Uniform(2, 2, 4, 3, 1, 1, true), Scale: 8, Workers: 1}, withEngine)
	require.NoError(t, err)

	copy(with.Weight().Tensor().Data(), without.Weight().Tensor().Data())
	bias := with.Bias().Tensor().Data()
	copy(bias, []float32{0.5, -1, 2, 0.25})

	plain, err := without.Forward(bottom)
	require.NoError(t, err)
	biased, err := with.Forward(bottom)
	require.NoError(t, err)

	assert.Zero(t, withoutEngine.addBiasCalls)
	assert.Nil(t, without.Bias())
	assert.Len(t, without.Parameters(), 1)
	assert.Equal(t, 3, withEngine.addBiasCalls)
	assert.Len(t, with.Parameters(), 2)

	// Without bias the output is exactly the dequantized GEMM result.
	l := without.Layout()
	codec := without.Codec()
	for n := 0; n < 3; n++ {
		levels := make([]float32, l.BottomDim)
		codec.QuantizeSlice(levels, bottom.Sample(n))
		raw := make([]float32, l.TopDim)
		cpu.New().ForwardMatMul(l, levels, without.Weight().Tensor().Data(), raw)
		want := make([]float32, l.TopDim)
		codec.DequantizeSlice(want, raw)
		assert.Equal(t, want, plain.Sample(n))
	}

	outSize := l.OutSpatialSize()
	for n := 0; n < 3; n++ {
		for c := 0; c < 4; c++ {
			for i := 0; i < outSize; i++ {
				idx := c*outSize + i
				assert.Equal(t, plain.Sample(n)[idx]+bias[c], biased.Sample(n)[idx])
			}
		}
	}
}

// TestQuantConv_ForwardBackwardConsistency checks that the weight gradient is
// fed dequantize(quantize(x)) for exactly the levels forward multiplied.
func TestQuantConv_ForwardBackwardConsistency(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	engine := newRecordingEngine()
	q, err := NewQuantConv(QuantConvConfig{Geometry: conv.Uniform(2, 3, 2, 3, 2, 1, true), Scale: 5, Workers: 1}, engine)
	require.NoError(t, err)

	bottom := randomTensor(rng, tensor.Shape{2, 3, 6, 6}, -10, 60)
	top, err := q.Forward(bottom)
	require.NoError(t, err)

	topDiff := randomTensor(rng, top.Shape(), -1, 1)
	require.NoError(t, q.Backward(topDiff, bottom, q.ParamGradients(nil)))

	require.Len(t, engine.forwardInputs, 2)
	require.Len(t, engine.weightInputs, 2)
	for n := 0; n < 2; n++ {
		levels := engine.forwardInputs[n]
		seen := engine.weightInputs[n]
		for i := range levels {
			assert.GreaterOrEqual(t, levels[i], float32(quant.MinLevel))
			assert.LessOrEqual(t, levels[i], float32(quant.MaxLevel))
			assert.Equal(t, levels[i]/q.Scale(), seen[i], "sample %d element %d", n, i)
		}
	}
}

func TestQuantConv_Determinism(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	g := conv.Geometry{Kernel: []int{3, 3}, Pad: []int{1}, Stride: []int{1, 2}, InChannels: 4, OutChannels: 6, Group: 2, BiasTerm: true}
	bottom := randomTensor(rng, tensor.Shape{5, 4, 7, 8}, -2, 10)

	var outputs [][]float32
	var weightGrads, biasGrads, bottomGrads [][]float32
	for _, workers := range []int{1, 1, 3, 8} {
		q := newQuantConv(t, g, 16, workers)

		top, err := q.Forward(bottom)
		require.NoError(t, err)
		outputs = append(outputs, top.Data())

		topDiff := randomTensor(rand.New(rand.NewSource(14)), top.Shape(), -1, 1)
		bottomDiff := tensor.Zeros(bottom.Shape())
		require.NoError(t, q.Backward(topDiff, bottom, q.ParamGradients(bottomDiff)))
		weightGrads = append(weightGrads, q.Weight().Grad().Data())
		biasGrads = append(biasGrads, q.Bias().Grad().Data())
		bottomGrads = append(bottomGrads, bottomDiff.Data())
	}

	for i := 1; i < len(outputs); i++ {
		assert.Equal(t, outputs[0], outputs[i], "run %d forward", i)
		assert.Equal(t, weightGrads[0], weightGrads[i], "run %d weight grad", i)
		assert.Equal(t, biasGrads[0], biasGrads[i], "run %d bias grad", i)
		assert.Equal(t, bottomGrads[0], bottomGrads[i], "run %d bottom grad", i)
	}
}

func TestQuantConv_BatchIndependence(t *testing.T) {
	rng := rand.New(rand.NewSource(15))
	g := conv.Uniform(2, 2, 3, 3, 1, 0, true)
	sample := randomTensor(rng, tensor.Shape{1, 2, 6, 6}, 0, 4)
	topDiff0 := randomTensor(rng, tensor.Shape{1, 3, 4, 4}, -1, 1)

	single := newQuantConv(t, g, 32, 4)
	top1, err := single.Forward(sample)
	require.NoError(t, err)
	bottomDiff1 := tensor.Zeros(sample.Shape())
	require.NoError(t, single.Backward(topDiff0, sample, single.ParamGradients(bottomDiff1)))

	for _, workers := range []int{1, 4} {
		// Same sample placed second in a batch with arbitrary neighbors.
		batch := randomTensor(rng, tensor.Shape{3, 2, 6, 6}, -100, 100)
		copy(batch.Sample(1), sample.Data())
		topDiff := randomTensor(rng, tensor.Shape{3, 3, 4, 4}, -1, 1)
		copy(topDiff.Sample(1), topDiff0.Data())

		q := newQuantConv(t, g, 32, workers)
		top, err := q.Forward(batch)
		require.NoError(t, err)
		assert.Equal(t, top1.Sample(0), top.Sample(1))

		bottomDiff := tensor.Zeros(batch.Shape())
		require.NoError(t, q.Backward(topDiff, batch, Gradients{Bottom: bottomDiff}))
		assert.Equal(t, bottomDiff1.Sample(0), bottomDiff.Sample(1))
	}
}

// TestQuantConv_MatchesConvOnRepresentableInputs compares against the
// floating-point layer when quantization is lossless.
func TestQuantConv_MatchesConvOnRepresentableInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(16))
	g := conv.Uniform(2, 2, 3, 3, 1, 1, true)

	q := newQuantConv(t, g, 1, 2)
	c, err := NewConv(ConvConfig{Geometry: g, Workers: 2, Seed: 7}, cpu.New())
	require.NoError(t, err)
	copy(q.Bias().Tensor().Data(), []float32{1, 2, 3})
	copy(c.Bias().Tensor().Data(), []float32{1, 2, 3})
	assert.Equal(t, c.Weight().Tensor().Data(), q.Weight().Tensor().Data(), "same seed, same init")

	bottom := tensor.Zeros(tensor.Shape{2, 2, 5, 5})
	for i := range bottom.Data() {
		bottom.Data()[i] = float32(rng.Intn(256))
	}

	qTop, err := q.Forward(bottom)
	require.NoError(t, err)
	cTop, err := c.Forward(bottom)
	require.NoError(t, err)
	assert.Equal(t, cTop.Data(), qTop.Data())

	topDiff := randomTensor(rng, qTop.Shape(), -1, 1)
	qDiff := tensor.Zeros(bottom.Shape())
	cDiff := tensor.Zeros(bottom.Shape())
	require.NoError(t, q.Backward(topDiff, bottom, q.ParamGradients(qDiff)))
	require.NoError(t, c.Backward(topDiff, bottom, c.ParamGradients(cDiff)))

	assert.Equal(t, c.Weight().Grad().Data(), q.Weight().Grad().Data())
	assert.Equal(t, c.Bias().Grad().Data(), q.Bias().Grad().Data())
	assert.Equal(t, cDiff.Data(), qDiff.Data())
}

// TestQuantConv_GradientsAgainstConv checks the two gradient paths against the
// floating-point layer: the weight path sees round-tripped activations, the
// input path ignores quantization.
func TestQuantConv_GradientsAgainstConv(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	g := conv.Geometry{Kernel: []int{3}, Dilation: []int{2}, InChannels: 2, OutChannels: 2, BiasTerm: true}

	q := newQuantConv(t, g, 3, 1)
	c, err := NewConv(ConvConfig{Geometry: g, Workers: 1, Seed: 7}, cpu.New())
	require.NoError(t, err)

	bottom := randomTensor(rng, tensor.Shape{2, 2, 9}, -5, 90)
	rounded := bottom.Clone()
	q.Codec().RoundTripSlice(rounded.Data(), bottom.Data())

	l, err := q.Reshape(bottom.Shape())
	require.NoError(t, err)
	topDiff := randomTensor(rng, l.OutputShape, -1, 1)

	qDiff := tensor.Zeros(bottom.Shape())
	require.NoError(t, q.Backward(topDiff, bottom, q.ParamGradients(qDiff)))

	// Weight gradient of the float layer on the round-tripped input.
	require.NoError(t, c.Backward(topDiff, rounded, c.ParamGradients(nil)))
	assert.Equal(t, c.Weight().Grad().Data(), q.Weight().Grad().Data())
	assert.Equal(t, c.Bias().Grad().Data(), q.Bias().Grad().Data())

	// Input gradient of the float layer on the original input.
	cDiff := tensor.Zeros(bottom.Shape())
	require.NoError(t, c.Backward(topDiff, bottom, Gradients{Bottom: cDiff}))
	assert.Equal(t, cDiff.Data(), qDiff.Data())
}

func TestQuantConv_GradientAccumulation(t *testing.T) {
	rng := rand.New(rand.NewSource(18))
	q := newQuantConv(t, conv.Uniform(2, 1, 2, 2, 1, 0, true), 4, 2)
	bottom := randomTensor(rng, tensor.Shape{2, 1, 4, 4}, 0, 8)

	l, err := q.Reshape(bottom.Shape())
	require.NoError(t, err)
	topDiff := randomTensor(rng, l.OutputShape, -1, 1)

	require.NoError(t, q.Backward(topDiff, bottom, q.ParamGradients(nil)))
	once := append([]float32(nil), q.Weight().Grad().Data()...)
	onceBias := append([]float32(nil), q.Bias().Grad().Data()...)

	require.NoError(t, q.Backward(topDiff, bottom, q.ParamGradients(nil)))
	for i := range once {
		assert.InDelta(t, 2*once[i], q.Weight().Grad().Data()[i], 1e-4)
	}
	for i := range onceBias {
		assert.InDelta(t, 2*onceBias[i], q.Bias().Grad().Data()[i], 1e-4)
	}

	for _, p := range q.Parameters() {
		p.ZeroGrad()
		for _, v := range p.Grad().Data() {
			assert.Zero(t, v)
		}
	}
}

func TestQuantConv_SkipsUnrequestedGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(19))
	engine := newRecordingEngine()
	q, err := NewQuantConv(QuantConvConfig{Geometry: conv.Uniform(1, 1, 1, 3, 1, 0, true), Scale: 1, Workers: 1}, engine)
	require.NoError(t, err)

	bottom := randomTensor(rng, tensor.Shape{2, 1, 8}, 0, 10)
	l, err := q.Reshape(bottom.Shape())
	require.NoError(t, err)
	topDiff := randomTensor(rng, l.OutputShape, -1, 1)

	bottomDiff := tensor.Zeros(bottom.Shape())
	require.NoError(t, q.Backward(topDiff, bottom, Gradients{Bottom: bottomDiff}))
	assert.Empty(t, engine.weightInputs)
	for _, p := range q.Parameters() {
		for _, v := range p.Grad().Data() {
			assert.Zero(t, v)
		}
	}
	assert.NotEqual(t, make([]float32, bottomDiff.NumElements()), bottomDiff.Data())

	// Input gradient overwrites rather than accumulates.
	first := append([]float32(nil), bottomDiff.Data()...)
	require.NoError(t, q.Backward(topDiff, bottom, Gradients{Bottom: bottomDiff}))
	assert.Equal(t, first, bottomDiff.Data())
}

func TestNewQuantConv_ConfigErrors(t *testing.T) {
	g := conv.Uniform(2, 1, 1, 3, 1, 0, false)

	_, err := NewQuantConv(QuantConvConfig{Geometry: g, Scale: 0}, cpu.New())
	assert.ErrorIs(t, err, conv.ErrInvalidConfig)
	assert.ErrorIs(t, err, quant.ErrInvalidScale)

	_, err = NewQuantConv(QuantConvConfig{Geometry: conv.Uniform(2, 1, 1, 3, 0, 0, false), Scale: 1}, cpu.New())
	assert.ErrorIs(t, err, conv.ErrInvalidConfig)

	_, err = NewQuantConv(QuantConvConfig{Geometry: g, Scale: 1}, nil)
	assert.ErrorIs(t, err, conv.ErrInvalidConfig)

	q := newQuantConv(t, g, 1, 1)
	_, err = q.Reshape(tensor.Shape{1, 1, 2, 2})
	assert.ErrorIs(t, err, conv.ErrInvalidConfig, "kernel larger than input")
}

func TestQuantConv_ShapeMismatchLeavesOutputsUntouched(t *testing.T) {
	rng := rand.New(rand.NewSource(20))
	q := newQuantConv(t, conv.Uniform(2, 1, 2, 3, 1, 0, true), 1, 1)
	bottom := randomTensor(rng, tensor.Shape{1, 1, 5, 5}, 0, 5)

	top := tensor.Zeros(tensor.Shape{1, 2, 4, 4})
	top.Fill(-1)
	err := q.ForwardInto(bottom, top)
	assert.ErrorIs(t, err, conv.ErrShapeMismatch)
	for _, v := range top.Data() {
		assert.Equal(t, float32(-1), v)
	}

	_, err = q.Forward(nil)
	assert.ErrorIs(t, err, conv.ErrShapeMismatch)

	_, err = q.Forward(tensor.Zeros(tensor.Shape{1, 3, 5, 5}))
	assert.ErrorIs(t, err, conv.ErrShapeMismatch, "wrong channel count")

	topDiff := randomTensor(rng, tensor.Shape{1, 2, 3, 3}, -1, 1)
	bottomDiff := tensor.Zeros(bottom.Shape())
	bottomDiff.Fill(-1)
	err = q.Backward(topDiff, bottom, Gradients{
		Weight: tensor.Zeros(tensor.Shape{2, 1, 2, 2}),
		Bias:   q.Bias().Grad(),
		Bottom: bottomDiff,
	})
	assert.ErrorIs(t, err, conv.ErrShapeMismatch)
	for _, v := range bottomDiff.Data() {
		assert.Equal(t, float32(-1), v)
	}
	for _, v := range q.Bias().Grad().Data() {
		assert.Zero(t, v)
	}

	err = q.Backward(tensor.Zeros(tensor.Shape{1, 2, 4, 4}), bottom, q.ParamGradients(nil))
	assert.ErrorIs(t, err, conv.ErrShapeMismatch)
}

func TestQuantConv_Reshape(t *testing.T) {
	q := newQuantConv(t, conv.Uniform(2, 3, 8, 3, 2, 1, false), 4, 2)

	l, err := q.Reshape(tensor.Shape{4, 3, 9, 9})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{4, 8, 5, 5}, l.OutputShape)
	assert.Len(t, q.scratch, 2)
	assert.Len(t, q.scratch[0].levels, 3*9*9)
	assert.Len(t, q.scratch[0].raw, 8*5*5)

	same, err := q.Reshape(tensor.Shape{4, 3, 9, 9})
	require.NoError(t, err)
	assert.Same(t, l, same)

	l, err = q.Reshape(tensor.Shape{1, 3, 16, 12})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 8, 8, 6}, l.OutputShape)
	assert.Len(t, q.scratch, 1)
	assert.Len(t, q.scratch[0].levels, 3*16*12)

	bottom := tensor.Zeros(tensor.Shape{1, 3, 16, 12})
	top, err := q.Forward(bottom)
	require.NoError(t, err)
	assert.Equal(t, l.OutputShape, top.Shape())
}

func TestQuantConv_String(t *testing.T) {
	q := newQuantConv(t, conv.Uniform(2, 1, 6, 5, 1, 0, true), 0.5, 1)
	assert.Contains(t, q.String(), "QuantConv2D(in=1, out=6")
	assert.Contains(t, q.String(), "scale=0.5")
	assert.Equal(t, "qconv.weight", q.Weight().Name())
	assert.Equal(t, "qconv.bias", q.Bias().Name())
}

func BenchmarkQuantConv_Forward(b *testing.B) {
	rng := rand.New(rand.NewSource(21))
	q, err := NewQuantConv(QuantConvConfig{Geometry: conv.Uniform(2, 16, 32, 3, 1, 1, true), Scale: 32}, cpu.New())
	require.NoError(b, err)
	bottom := randomTensor(rng, tensor.Shape{8, 16, 32, 32}, 0, 4)
	top := tensor.Zeros(tensor.Shape{8, 32, 32, 32})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = q.ForwardInto(bottom, top)
	}
}

func TestQuantConv_EachSharesParameters(t *testing.T) {
	rng := rand.New(rand.NewSource(22))
	g := conv.Uniform(2, 2, 3, 3, 1, 1, true)

	// Two inputs of different spatial size through one layer.
	bottoms := []*tensor.Tensor{
		randomTensor(rng, tensor.Shape{2, 2, 5, 5}, 0, 4),
		randomTensor(rng, tensor.Shape{1, 2, 4, 6}, 0, 4),
	}
	topDiffs := []*tensor.Tensor{
		randomTensor(rng, tensor.Shape{2, 3, 5, 5}, -1, 1),
		randomTensor(rng, tensor.Shape{1, 3, 4, 6}, -1, 1),
	}

	q := newQuantConv(t, g, 16, 2)
	tops, err := q.ForwardEach(bottoms)
	require.NoError(t, err)
	require.Len(t, tops, 2)

	bottomDiffs := []*tensor.Tensor{tensor.Zeros(bottoms[0].Shape()), tensor.Zeros(bottoms[1].Shape())}
	require.NoError(t, q.BackwardEach(topDiffs, bottoms, q.ParamGradients(nil), bottomDiffs))

	// The same pairs run one by one on a fresh layer.
	ref := newQuantConv(t, g, 16, 2)
	for i := range bottoms {
		top, err := ref.Forward(bottoms[i])
		require.NoError(t, err)
		assert.Equal(t, top.Data(), tops[i].Data(), "input %d", i)

		bottomDiff := tensor.Zeros(bottoms[i].Shape())
		require.NoError(t, ref.Backward(topDiffs[i], bottoms[i], ref.ParamGradients(bottomDiff)))
		assert.Equal(t, bottomDiff.Data(), bottomDiffs[i].Data(), "input %d", i)
	}
	assert.Equal(t, ref.Weight().Grad().Data(), q.Weight().Grad().Data())
	assert.Equal(t, ref.Bias().Grad().Data(), q.Bias().Grad().Data())
}

func TestQuantConv_BackwardEachValidatesAllPairs(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	q := newQuantConv(t, conv.Uniform(1, 1, 2, 3, 1, 0, true), 4, 1)

	bottoms := []*tensor.Tensor{
		randomTensor(rng, tensor.Shape{1, 1, 6}, 0, 2),
		randomTensor(rng, tensor.Shape{1, 1, 6}, 0, 2),
	}
	good := randomTensor(rng, tensor.Shape{1, 2, 4}, -1, 1)
	bad := randomTensor(rng, tensor.Shape{1, 2, 5}, -1, 1)

	// The second pair is malformed, so the first must not be applied either.
	err := q.BackwardEach([]*tensor.Tensor{good, bad}, bottoms, q.ParamGradients(nil), nil)
	assert.ErrorIs(t, err, conv.ErrShapeMismatch)
	for _, p := range q.Parameters() {
		for _, v := range p.Grad().Data() {
			assert.Zero(t, v)
		}
	}

	err = q.BackwardEach([]*tensor.Tensor{good}, bottoms, q.ParamGradients(nil), nil)
	assert.ErrorIs(t, err, conv.ErrShapeMismatch)

	err = q.BackwardEach([]*tensor.Tensor{good, good}, bottoms, q.ParamGradients(tensor.Zeros(tensor.Shape{1, 1, 6})), nil)
	assert.ErrorIs(t, err, conv.ErrShapeMismatch)
}
