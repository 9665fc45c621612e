// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides convolution layers for quantization-aware training.
//
// # Overview
//
// Two layers share one geometry description and one set of engine
// primitives:
//   - Conv: floating-point N-d convolution
//   - QuantConv: convolution whose input activations are simulated as uint8
//
// QuantConv runs the forward pass on quantized activations and computes
// gradients with a straight-through estimator: the weight gradient sees the
// quantized activations, the input gradient ignores quantization.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/qconv/backend/cpu"
//	    "github.com/born-ml/qconv/nn"
//	    "github.com/born-ml/qconv/tensor"
//	)
//
//	func main() {
//	    layer, err := nn.NewQuantConv(nn.QuantConvConfig{
//	        Geometry: nn.Uniform(2, 3, 16, 3, 1, 1, true),
//	        Scale:    32,
//	    }, cpu.New())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    x := tensor.Zeros(tensor.Shape{8, 3, 32, 32})
//	    y, err := layer.Forward(x) // [8, 16, 32, 32]
//
//	    dx := tensor.Zeros(x.Shape())
//	    err = layer.Backward(dy, x, layer.ParamGradients(dx))
//	}
//
// # Gradients
//
// Weight and bias gradients accumulate across Backward calls; zero them with
// Parameter.ZeroGrad between training steps. The input gradient is
// overwritten.
package nn
