package conv

// Engine provides the per-sample linear maps a convolution layer is built on.
//
// Every slice argument is one sample's block in row-major [C, spatial...]
// order, or a parameter tensor's storage. Callers validate shapes against the
// Layout before invoking a primitive; engines may panic on mismatched lengths.
//
// Accumulation contract:
//   - ForwardMatMul and BackwardInput overwrite their destination.
//   - AddBias adds into output in place.
//   - BackwardBias and BackwardWeight accumulate into their destination.
//
// Implementations must allow concurrent calls that write disjoint
// destinations.
type Engine interface {
	// Name identifies the engine, e.g. "CPU".
	Name() string

	// ForwardMatMul computes output = W * im2col(input).
	ForwardMatMul(l *Layout, input, weight, output []float32)

	// AddBias adds bias[c] to every spatial position of output channel c.
	AddBias(l *Layout, output, bias []float32)

	// BackwardBias accumulates the spatial sums of topDiff into biasDiff.
	BackwardBias(l *Layout, biasDiff, topDiff []float32)

	// BackwardWeight accumulates topDiff * im2col(input)^T into weightDiff.
	BackwardWeight(l *Layout, weightDiff, input, topDiff []float32)

	// BackwardInput writes col2im(W^T * topDiff) into inputDiff.
	BackwardInput(l *Layout, inputDiff, topDiff, weight []float32)
}
