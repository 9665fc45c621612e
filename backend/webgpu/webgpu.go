// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU side of the convolution backends.
//
// Convolution on the GPU is not implemented yet. NewEngine reports
// ErrUnsupported, so callers pick the CPU backend:
//
//	engine, err := webgpu.NewEngine()
//	if errors.Is(err, webgpu.ErrUnsupported) {
//	    engine = cpu.New()
//	}
package webgpu

import (
	internalwebgpu "github.com/born-ml/qconv/internal/backend/webgpu"
	"github.com/born-ml/qconv/nn"
)

// ErrUnsupported is returned by NewEngine.
var ErrUnsupported = internalwebgpu.ErrUnsupported

// NewEngine returns a GPU engine. It always fails with ErrUnsupported.
func NewEngine() (nn.Engine, error) {
	return internalwebgpu.NewEngine()
}

// IsAvailable checks if a WebGPU adapter can be acquired on the current
// system.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}

// Probe tries to acquire a WebGPU adapter and returns why it failed, or nil
// when an adapter is available.
func Probe() error {
	return internalwebgpu.Probe()
}
