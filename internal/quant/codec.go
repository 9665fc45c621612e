// Package quant implements the unsigned 8-bit fixed-point codec used to
// simulate int8 inference inside a float32 training graph.
//
// A continuous value v maps to the integer level trunc(v*scale + 0.5) clamped
// to [MinLevel, MaxLevel]; a level maps back to level / scale. Levels are kept
// as float32 so that quantized blocks can be fed to ordinary float GEMMs.
package quant

import (
	"errors"
	"fmt"
	"math"
)

// Representable level range of the codec.
const (
	MinLevel = 0
	MaxLevel = 255
)

// ErrInvalidScale is returned when a scale is not a positive finite number.
var ErrInvalidScale = errors.New("quant: invalid scale")

// Codec quantizes and dequantizes values with one fixed scale factor.
//
// A Codec is immutable and safe for concurrent use.
type Codec struct {
	scale float32
}

// NewCodec creates a codec for the given scale.
func NewCodec(scale float32) (Codec, error) {
	s := float64(scale)
	if math.IsNaN(s) || math.IsInf(s, 0) || scale <= 0 {
		return Codec{}, fmt.Errorf("%w: %v (must be positive and finite)", ErrInvalidScale, scale)
	}
	return Codec{scale: scale}, nil
}

// Scale returns the scale factor.
func (c Codec) Scale() float32 {
	return c.scale
}

// Step returns the continuous width of one quantization level (1/scale).
func (c Codec) Step() float32 {
	return 1 / c.scale
}

// Quantize maps v to its saturated integer level.
//
// Rounding happens before clamping: the result is trunc(v*scale + 0.5),
// then clamped to [MinLevel, MaxLevel]. Values in (-1.5/scale, 0) therefore
// truncate toward zero and land on level 0 exactly like negatives that clamp.
// NaN saturates to MinLevel.
func (c Codec) Quantize(v float32) float32 {
	// The conversion forces rounding of the product so the add is never fused.
	t := float32(v*c.scale) + 0.5
	level := math.Trunc(float64(t))
	switch {
	case level > MaxLevel:
		return MaxLevel
	case level >= MinLevel:
		return float32(level)
	default:
		return MinLevel
	}
}

// Dequantize maps a level back to the continuous domain.
func (c Codec) Dequantize(level float32) float32 {
	return level / c.scale
}

// RoundTrip returns Dequantize(Quantize(v)), the value the quantized
// forward pass effectively sees for v.
func (c Codec) RoundTrip(v float32) float32 {
	return c.Dequantize(c.Quantize(v))
}

// QuantizeSlice writes Quantize(src[i]) into dst[i].
func (c Codec) QuantizeSlice(dst, src []float32) {
	checkLen("QuantizeSlice", dst, src)
	for i, v := range src {
		dst[i] = c.Quantize(v)
	}
}

// DequantizeSlice writes Dequantize(src[i]) into dst[i].
func (c Codec) DequantizeSlice(dst, src []float32) {
	checkLen("DequantizeSlice", dst, src)
	for i, v := range src {
		dst[i] = v / c.scale
	}
}

// RoundTripSlice writes RoundTrip(src[i]) into dst[i].
func (c Codec) RoundTripSlice(dst, src []float32) {
	checkLen("RoundTripSlice", dst, src)
	for i, v := range src {
		dst[i] = c.Quantize(v) / c.scale
	}
}

func checkLen(op string, dst, src []float32) {
	if len(dst) != len(src) {
		panic(fmt.Sprintf("quant.%s: dst length %d != src length %d", op, len(dst), len(src)))
	}
}
