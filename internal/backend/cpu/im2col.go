package cpu

import "github.com/born-ml/qconv/internal/conv"

// im2col expands one sample into its column matrix.
//
// Input:  data [C, in_spatial...]
// Output: col  [C * kernel_size, out_size]
//
// Row c*kernel_size + k holds, for every output position, the input value
// under kernel tap k of channel c (zero where the tap falls into padding).
// Rows of one group are contiguous because channels are grouped in order.
// This is the transpose of the per-position row layout of a 2D im2col, so that
// a layer's forward pass is a single W * col GEMM per group.
func im2col(l *conv.Layout, data, col []float32) {
	walkColumns(l, func(colIdx, dataIdx int) {
		if dataIdx < 0 {
			col[colIdx] = 0
			return
		}
		col[colIdx] = data[dataIdx]
	})
}

// col2im scatters a column matrix back onto a sample, summing the
// contributions of overlapping kernel taps. data is overwritten.
func col2im(l *conv.Layout, col, data []float32) {
	for i := range data {
		data[i] = 0
	}
	walkColumns(l, func(colIdx, dataIdx int) {
		if dataIdx >= 0 {
			data[dataIdx] += col[colIdx]
		}
	})
}

// walkColumns visits every (column index, input index) pair of the column
// matrix in row-major order. dataIdx is -1 for taps that land in padding.
func walkColumns(l *conv.Layout, visit func(colIdx, dataIdx int)) {
	g := l.Geometry
	axes := g.NumSpatialAxes()
	channels := g.InChannels
	kernelSize := g.KernelSize()
	outSize := l.OutSpatialSize()
	inSize := l.InSpatialSize()

	kIdx := make([]int, axes)
	oIdx := make([]int, axes)

	colIdx := 0
	for c := 0; c < channels; c++ {
		chanBase := c * inSize
		for k := 0; k < kernelSize; k++ {
			unravel(k, g.Kernel, kIdx)
			for o := 0; o < outSize; o++ {
				unravel(o, l.OutSpatial, oIdx)

				offset := 0
				inside := true
				for a := 0; a < axes; a++ {
					pos := oIdx[a]*g.Stride[a] - g.Pad[a] + kIdx[a]*g.Dilation[a]
					if pos < 0 || pos >= l.InSpatial[a] {
						inside = false
						break
					}
					offset = offset*l.InSpatial[a] + pos
				}

				if inside {
					visit(colIdx, chanBase+offset)
				} else {
					visit(colIdx, -1)
				}
				colIdx++
			}
		}
	}
}

// unravel converts a flat row-major index into per-axis coordinates.
func unravel(idx int, dims, coords []int) {
	for a := len(dims) - 1; a >= 0; a-- {
		coords[a] = idx % dims[a]
		idx /= dims[a]
	}
}
