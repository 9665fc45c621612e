// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides a pure Go CPU backend for convolution layers.
//
// The backend lowers every spatial convolution to im2col followed by a
// single-precision GEMM per group, with a direct path for 1x1 kernels. It is
// stateless apart from a pool of column buffers and is safe for concurrent
// use.
//
// Example:
//
//	import (
//	    "github.com/born-ml/qconv/backend/cpu"
//	    "github.com/born-ml/qconv/nn"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    layer, err := nn.NewQuantConv(nn.QuantConvConfig{
//	        Geometry: nn.Uniform(2, 1, 8, 3, 1, 1, false),
//	        Scale:    64,
//	    }, backend)
//	}
package cpu

import (
	internalcpu "github.com/born-ml/qconv/internal/backend/cpu"
	"github.com/born-ml/qconv/nn"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements nn.Engine.
var _ nn.Engine = (*Backend)(nil)

// New creates a new CPU backend.
func New() *Backend {
	return internalcpu.New()
}
