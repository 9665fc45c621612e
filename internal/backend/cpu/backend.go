// Package cpu implements the convolution primitives on the host with im2col
// and gonum's float32 BLAS.
package cpu

import (
	"fmt"
	"sync"

	"github.com/born-ml/qconv/internal/conv"
	"gonum.org/v1/gonum/blas/blas32"
)

// CPUBackend implements conv.Engine on the host.
//
// Column buffers are drawn from a pool so concurrent calls on different
// samples never share scratch memory.
type CPUBackend struct {
	cols sync.Pool
}

// Compile-time check that CPUBackend implements conv.Engine.
var _ conv.Engine = (*CPUBackend)(nil)

// New creates a new CPU backend.
func New() *CPUBackend {
	return &CPUBackend{}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// columns returns the column matrix of one sample and a release func.
// 1x1 convolutions use the sample block directly.
func (cpu *CPUBackend) columns(l *conv.Layout, input []float32) ([]float32, func()) {
	if l.Geometry.Is1x1() {
		return input, func() {}
	}
	buf := cpu.acquire(l.ColumnSize())
	im2col(l, input, *buf)
	return *buf, func() { cpu.cols.Put(buf) }
}

func (cpu *CPUBackend) acquire(size int) *[]float32 {
	if v, ok := cpu.cols.Get().(*[]float32); ok && cap(*v) >= size {
		*v = (*v)[:size]
		return v
	}
	buf := make([]float32, size)
	return &buf
}

// general views data as a dense rows x cols row-major matrix.
func general(rows, cols int, data []float32) blas32.General {
	return blas32.General{
		Rows:   rows,
		Cols:   cols,
		Stride: cols,
		Data:   data[:rows*cols],
	}
}

func checkLen(op, name string, data []float32, want int) {
	if len(data) != want {
		panic(fmt.Sprintf("cpu: %s: %s has %d elements, want %d", op, name, len(data), want))
	}
}
