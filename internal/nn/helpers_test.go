package nn

import (
	"math/rand"
	"sync"

	"github.com/born-ml/qconv/internal/backend/cpu"
	"github.com/born-ml/qconv/internal/conv"
	"github.com/born-ml/qconv/internal/tensor"
)

// recordingEngine wraps the CPU backend and keeps copies of what the layer
// feeds into the primitives.
type recordingEngine struct {
	conv.Engine

	mu            sync.Mutex
	forwardInputs [][]float32
	weightInputs  [][]float32
	addBiasCalls  int
}

func newRecordingEngine() *recordingEngine {
	return &recordingEngine{Engine: cpu.New()}
}

func (r *recordingEngine) ForwardMatMul(l *conv.Layout, input, weight, output []float32) {
	r.mu.Lock()
	r.forwardInputs = append(r.forwardInputs, append([]float32(nil), input...))
	r.mu.Unlock()
	r.Engine.ForwardMatMul(l, input, weight, output)
}

func (r *recordingEngine) AddBias(l *conv.Layout, output, bias []float32) {
	r.mu.Lock()
	r.addBiasCalls++
	r.mu.Unlock()
	r.Engine.AddBias(l, output, bias)
}

func (r *recordingEngine) BackwardWeight(l *conv.Layout, weightDiff, input, topDiff []float32) {
	r.mu.Lock()
	r.weightInputs = append(r.weightInputs, append([]float32(nil), input...))
	r.mu.Unlock()
	r.Engine.BackwardWeight(l, weightDiff, input, topDiff)
}

// randomTensor fills a tensor with values uniform in [lo, hi).
func randomTensor(rng *rand.Rand, shape tensor.Shape, lo, hi float64) *tensor.Tensor {
	t := tensor.Zeros(shape)
	for i := range t.Data() {
		t.Data()[i] = float32(lo + rng.Float64()*(hi-lo))
	}
	return t
}

func mustFromSlice(data []float32, shape tensor.Shape) *tensor.Tensor {
	t, err := tensor.FromSlice(data, shape)
	if err != nil {
		panic(err)
	}
	return t
}
