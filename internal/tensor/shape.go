package tensor

import "fmt"

// Shape represents the dimensions of a tensor.
//
// Convolution tensors use the layout [N, C, spatial...]: axis 0 is the batch,
// axis 1 the channels, and the remaining axes are spatial.
type Shape []int

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks if the shape is valid (all dimensions > 0).
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// CountFrom returns the number of elements spanned by axes [axis, len(s)).
//
// CountFrom(1) of a batched shape is the per-sample element count.
func (s Shape) CountFrom(axis int) int {
	if axis < 0 || axis > len(s) {
		panic(fmt.Sprintf("shape: axis %d out of range for %dD shape", axis, len(s)))
	}
	return Shape(s[axis:]).NumElements()
}

// String returns the shape formatted as (d0, d1, ...).
func (s Shape) String() string {
	out := "("
	for i, dim := range s {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%d", dim)
	}
	return out + ")"
}
