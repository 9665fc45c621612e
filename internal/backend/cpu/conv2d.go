package cpu

import (
	"github.com/born-ml/qconv/internal/conv"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// ForwardMatMul computes output[g] = W[g] * col[g] for every group g.
//
// Shapes per group:
//
//	W[g]:      [C_out/G, kernel_dim]
//	col[g]:    [kernel_dim, out_size]
//	output[g]: [C_out/G, out_size]
func (cpu *CPUBackend) ForwardMatMul(l *conv.Layout, input, weight, output []float32) {
	checkLen("ForwardMatMul", "input", input, l.BottomDim)
	checkLen("ForwardMatMul", "weight", weight, l.Geometry.WeightShape().NumElements())
	checkLen("ForwardMatMul", "output", output, l.TopDim)

	col, release := cpu.columns(l, input)
	defer release()

	g := l.Geometry
	outPerGroup := g.OutChannels / g.Group
	kernelDim := l.KernelDim()
	outSize := l.OutSpatialSize()

	for grp := 0; grp < g.Group; grp++ {
		blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
			general(outPerGroup, kernelDim, weight[grp*outPerGroup*kernelDim:]),
			general(kernelDim, outSize, col[grp*kernelDim*outSize:]),
			0,
			general(outPerGroup, outSize, output[grp*outPerGroup*outSize:]))
	}
}

// AddBias adds bias[c] to every spatial position of channel c.
func (cpu *CPUBackend) AddBias(l *conv.Layout, output, bias []float32) {
	checkLen("AddBias", "output", output, l.TopDim)
	checkLen("AddBias", "bias", bias, l.Geometry.OutChannels)

	outSize := l.OutSpatialSize()
	for c, b := range bias {
		plane := output[c*outSize : (c+1)*outSize]
		for i := range plane {
			plane[i] += b
		}
	}
}
