package cpu

import (
	"github.com/born-ml/qconv/internal/conv"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// BackwardBias accumulates sum over positions of topDiff[c] into biasDiff[c].
func (cpu *CPUBackend) BackwardBias(l *conv.Layout, biasDiff, topDiff []float32) {
	checkLen("BackwardBias", "topDiff", topDiff, l.TopDim)
	checkLen("BackwardBias", "biasDiff", biasDiff, l.Geometry.OutChannels)

	outSize := l.OutSpatialSize()
	for c := range biasDiff {
		var sum float32
		for _, v := range topDiff[c*outSize : (c+1)*outSize] {
			sum += v
		}
		biasDiff[c] += sum
	}
}

// BackwardWeight accumulates dW[g] += topDiff[g] * col[g]^T.
func (cpu *CPUBackend) BackwardWeight(l *conv.Layout, weightDiff, input, topDiff []float32) {
	checkLen("BackwardWeight", "input", input, l.BottomDim)
	checkLen("BackwardWeight", "topDiff", topDiff, l.TopDim)
	checkLen("BackwardWeight", "weightDiff", weightDiff, l.Geometry.WeightShape().NumElements())

	col, release := cpu.columns(l, input)
	defer release()

	g := l.Geometry
	outPerGroup := g.OutChannels / g.Group
	kernelDim := l.KernelDim()
	outSize := l.OutSpatialSize()

	for grp := 0; grp < g.Group; grp++ {
		blas32.Gemm(blas.NoTrans, blas.Trans, 1,
			general(outPerGroup, outSize, topDiff[grp*outPerGroup*outSize:]),
			general(kernelDim, outSize, col[grp*kernelDim*outSize:]),
			1,
			general(outPerGroup, kernelDim, weightDiff[grp*outPerGroup*kernelDim:]))
	}
}

// BackwardInput computes colDiff[g] = W[g]^T * topDiff[g] and scatters it
// back onto inputDiff with col2im. inputDiff is overwritten.
func (cpu *CPUBackend) BackwardInput(l *conv.Layout, inputDiff, topDiff, weight []float32) {
	checkLen("BackwardInput", "inputDiff", inputDiff, l.BottomDim)
	checkLen("BackwardInput", "topDiff", topDiff, l.TopDim)
	checkLen("BackwardInput", "weight", weight, l.Geometry.WeightShape().NumElements())

	g := l.Geometry
	outPerGroup := g.OutChannels / g.Group
	kernelDim := l.KernelDim()
	outSize := l.OutSpatialSize()

	colDiff := inputDiff
	if !g.Is1x1() {
		buf := cpu.acquire(l.ColumnSize())
		defer cpu.cols.Put(buf)
		colDiff = *buf
	}

	for grp := 0; grp < g.Group; grp++ {
		blas32.Gemm(blas.Trans, blas.NoTrans, 1,
			general(outPerGroup, kernelDim, weight[grp*outPerGroup*kernelDim:]),
			general(outPerGroup, outSize, topDiff[grp*outPerGroup*outSize:]),
			0,
			general(kernelDim, outSize, colDiff[grp*kernelDim*outSize:]))
	}

	if !g.Is1x1() {
		col2im(l, colDiff, inputDiff)
	}
}
