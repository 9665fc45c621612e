// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/born-ml/qconv/internal/conv"
	"github.com/born-ml/qconv/internal/nn"
)

// Errors reported by layer construction and by Forward/Backward.
var (
	ErrInvalidConfig = conv.ErrInvalidConfig
	ErrShapeMismatch = conv.ErrShapeMismatch
)

// Module interface defines the common interface of the convolution layers.
type Module = nn.Module

// Gradients names the buffers a backward pass writes.
type Gradients = nn.Gradients

// Parameter represents a trainable parameter in a neural network.
type Parameter = nn.Parameter

// Geometry is the static configuration of a convolution layer.
type Geometry = conv.Geometry

// Layout is a geometry resolved against an input shape.
type Layout = conv.Layout

// Engine executes the convolution primitives.
type Engine = conv.Engine

// Uniform builds a geometry with the same kernel, stride and padding on every
// spatial axis.
//
// Example:
//
//	g := nn.Uniform(2, 1, 6, 5, 1, 0, true) // 1 -> 6 channels, 5x5 kernel
func Uniform(axes, inChannels, outChannels, kernel, stride, pad int, bias bool) Geometry {
	return conv.Uniform(axes, inChannels, outChannels, kernel, stride, pad, bias)
}

// OutputExtent returns the output length of one spatial axis.
func OutputExtent(input, kernel, stride, pad, dilation int) (int, error) {
	return conv.OutputExtent(input, kernel, stride, pad, dilation)
}

// Layers

// ConvConfig configures a Conv layer.
type ConvConfig = nn.ConvConfig

// Conv represents an N-dimensional floating-point convolution layer.
type Conv = nn.Conv

// NewConv creates a convolution layer executed by engine.
//
// Example:
//
//	layer, err := nn.NewConv(nn.ConvConfig{Geometry: nn.Uniform(2, 1, 32, 3, 1, 1, true)}, cpu.New())
func NewConv(cfg ConvConfig, engine Engine) (*Conv, error) {
	return nn.NewConv(cfg, engine)
}

// QuantConvConfig configures a QuantConv layer.
type QuantConvConfig = nn.QuantConvConfig

// QuantConv represents a convolution layer with simulated uint8 activations.
type QuantConv = nn.QuantConv

// NewQuantConv creates a quantized convolution layer executed by engine.
func NewQuantConv(cfg QuantConvConfig, engine Engine) (*QuantConv, error) {
	return nn.NewQuantConv(cfg, engine)
}
