package rope

import "errors"

var (
	// ErrShapeMismatch reports extents of the input, gradient, cos or sin
	// tensors that disagree with each other.
	ErrShapeMismatch = errors.New("rope: shape mismatch")

	// ErrUnsupportedLayout reports a layout the kernel cannot address in place:
	// malformed strides or a view that reaches outside its buffer.
	// There is no copy fallback.
	ErrUnsupportedLayout = errors.New("rope: unsupported layout")

	// ErrLowPrecision is a warning, never returned: cos/sin are stored below
	// float32, so angle quantization adds to the rotation error.
	ErrLowPrecision = errors.New("rope: cos/sin precision below float32")

	// ErrStateConsumed is returned when Backward sees a Saved record twice.
	ErrStateConsumed = errors.New("rope: saved state already consumed by backward")
)
