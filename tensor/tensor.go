// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the dense float32 tensors the convolution layers
// consume and produce.
//
// Tensors are row-major and contiguous. Convolution inputs are laid out as
// [batch, channels, spatial...]; Sample(n) returns the block of one batch
// item without copying.
//
// Example:
//
//	x := tensor.Zeros(tensor.Shape{8, 3, 32, 32})
//	first := x.Sample(0) // 3*32*32 values
package tensor

import (
	"github.com/born-ml/qconv/internal/tensor"
)

// Shape represents tensor dimensions.
type Shape = tensor.Shape

// Tensor is a dense float32 tensor.
type Tensor = tensor.Tensor

// New creates a zero-filled tensor, rejecting invalid shapes.
func New(shape Shape) (*Tensor, error) {
	return tensor.New(shape)
}

// Zeros creates a zero-filled tensor. It panics on an invalid shape.
func Zeros(shape Shape) *Tensor {
	return tensor.Zeros(shape)
}

// FromSlice wraps data (without copying) in a tensor of the given shape.
func FromSlice(data []float32, shape Shape) (*Tensor, error) {
	return tensor.FromSlice(data, shape)
}
