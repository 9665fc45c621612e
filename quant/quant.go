// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package quant provides the 8-bit activation codec used by quantized
// convolution layers.
//
// A value v maps to the level trunc(v*scale + 0.5) clamped to [0, 255], and a
// level maps back to level/scale.
package quant

import (
	"github.com/born-ml/qconv/internal/quant"
)

// Level bounds.
const (
	MinLevel = quant.MinLevel
	MaxLevel = quant.MaxLevel
)

// ErrInvalidScale is returned for a non-positive or non-finite scale.
var ErrInvalidScale = quant.ErrInvalidScale

// Codec converts between continuous values and 8-bit levels.
type Codec = quant.Codec

// NewCodec creates a codec with the given scale.
//
// Example:
//
//	codec, err := quant.NewCodec(32)
//	level := codec.Quantize(1.5) // 48
func NewCodec(scale float32) (Codec, error) {
	return quant.NewCodec(scale)
}
