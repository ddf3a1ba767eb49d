// Package tensor provides strided tensors for the rotary embedding kernels.
// A tensor is a flat buffer plus a Layout; views such as transposes, narrowed
// ranges and stepped slices share the buffer and only change the layout.
package tensor

import (
	"fmt"
	"math"
	"strings"
)

// DType identifies the element type stored in a tensor.
type DType uint8

const (
	Float32 DType = iota
	Float16
)

// String returns a human-readable name for the type.
func (d DType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Float16:
		return "float16"
	default:
		return "unknown"
	}
}

// Storage is element access into a flat buffer. Reduced precision storage
// widens to float32 on Load and rounds on Store.
type Storage interface {
	Len() int
	Load(i int) float32
	Store(i int, v float32)
}

// Strided is implemented by every tensor type in this package.
type Strided interface {
	Layout() Layout
	Storage() Storage
	DType() DType
}

// Tensor represents a multi-dimensional array of float32 values.
// It stores data in a flat slice with shape, strides and offset for indexing.
type Tensor struct {
	Data    []float32 // Flat data storage, possibly shared with other views
	Shape   []int     // Dimensions (e.g., [seq, batch, heads, dim])
	Strides []int     // Element step per axis
	Offset  int       // Position of element (0, 0, ...) in Data
}

type float32Storage []float32

func (s float32Storage) Len() int               { return len(s) }
func (s float32Storage) Load(i int) float32     { return s[i] }
func (s float32Storage) Store(i int, v float32) { s[i] = v }

// NewTensor creates a new contiguous tensor with the given shape, initialized to zeros.
func NewTensor(shape []int) *Tensor {
	return &Tensor{
		Data:    make([]float32, NumElements(shape)),
		Shape:   copyShape(shape),
		Strides: ContiguousStrides(shape),
	}
}

// NewStrided allocates a zeroed tensor whose elements are placed according to strides.
// The strides must describe a non-overlapping placement; the buffer is sized to
// the highest addressed element.
func NewStrided(shape, strides []int) (*Tensor, error) {
	l, n, err := allocLayout(shape, strides)
	if err != nil {
		return nil, err
	}
	return &Tensor{Data: make([]float32, n), Shape: l.Shape, Strides: l.Strides}, nil
}

// FromSlice creates a tensor from existing data with the given shape.
// Returns an error if data size doesn't match the shape.
func FromSlice(data []float32, shape []int) (*Tensor, error) {
	expectedSize := 1
	for _, dim := range shape {
		if dim < 0 {
			return nil, fmt.Errorf("invalid dimension %d in shape %v", dim, shape)
		}
		expectedSize *= dim
	}
	if len(data) != expectedSize {
		return nil, fmt.Errorf("data size %d does not match shape %v (expected %d elements)",
			len(data), shape, expectedSize)
	}

	dataCopy := make([]float32, len(data))
	copy(dataCopy, data)

	return &Tensor{
		Data:    dataCopy,
		Shape:   copyShape(shape),
		Strides: ContiguousStrides(shape),
	}, nil
}

// NewTensorFromData creates a tensor from existing data with the given shape.
// It copies the data to ensure the tensor owns its memory. Panics on size mismatch.
func NewTensorFromData(data []float32, shape []int) *Tensor {
	t, err := FromSlice(data, shape)
	if err != nil {
		panic(err)
	}
	return t
}

// Layout returns the tensor's index mapping.
func (t *Tensor) Layout() Layout {
	return Layout{Shape: t.Shape, Strides: t.Strides, Offset: t.Offset}
}

// Storage returns element access to the underlying buffer.
func (t *Tensor) Storage() Storage { return float32Storage(t.Data) }

// DType reports Float32.
func (t *Tensor) DType() DType { return Float32 }

func (t *Tensor) withLayout(l Layout) *Tensor {
	return &Tensor{Data: t.Data, Shape: l.Shape, Strides: l.Strides, Offset: l.Offset}
}

// View returns a contiguous tensor with a different shape sharing the same data.
// Returns an error if the tensor is not contiguous or the total size doesn't match.
func (t *Tensor) View(newShape []int) (*Tensor, error) {
	if !t.IsContiguous() {
		return nil, fmt.Errorf("cannot view non-contiguous tensor with strides %v", t.Strides)
	}
	newSize := 1
	for _, dim := range newShape {
		if dim < 0 {
			return nil, fmt.Errorf("invalid dimension %d in shape %v", dim, newShape)
		}
		newSize *= dim
	}
	if newSize != t.Size() {
		return nil, fmt.Errorf("cannot view tensor of size %d as shape %v (total size %d)",
			t.Size(), newShape, newSize)
	}
	return &Tensor{
		Data:    t.Data,
		Shape:   copyShape(newShape),
		Strides: ContiguousStrides(newShape),
		Offset:  t.Offset,
	}, nil
}

// Transpose returns a view with two dimensions exchanged. No data is moved.
func (t *Tensor) Transpose(dim1, dim2 int) (*Tensor, error) {
	l, err := t.Layout().Transpose(dim1, dim2)
	if err != nil {
		return nil, err
	}
	return t.withLayout(l), nil
}

// Permute returns a view whose axis i is axis order[i] of t.
func (t *Tensor) Permute(order ...int) (*Tensor, error) {
	l, err := t.Layout().Permute(order...)
	if err != nil {
		return nil, err
	}
	return t.withLayout(l), nil
}

// Narrow returns a view restricted to [start, start+length) along axis.
func (t *Tensor) Narrow(axis, start, length int) (*Tensor, error) {
	l, err := t.Layout().Narrow(axis, start, length)
	if err != nil {
		return nil, err
	}
	return t.withLayout(l), nil
}

// Step returns a view keeping every step-th index along axis.
func (t *Tensor) Step(axis, step int) (*Tensor, error) {
	l, err := t.Layout().Step(axis, step)
	if err != nil {
		return nil, err
	}
	return t.withLayout(l), nil
}

// Flip returns a view with axis reversed.
func (t *Tensor) Flip(axis int) (*Tensor, error) {
	l, err := t.Layout().Flip(axis)
	if err != nil {
		return nil, err
	}
	return t.withLayout(l), nil
}

// IsContiguous reports whether the tensor is row-major with no gaps.
func (t *Tensor) IsContiguous() bool {
	return t.Layout().IsContiguous()
}

// Size returns the total number of elements in the tensor.
func (t *Tensor) Size() int {
	return NumElements(t.Shape)
}

// FlatIndex converts multi-dimensional indices to an offset into Data.
func (t *Tensor) FlatIndex(indices []int) int {
	return t.Layout().Index(indices)
}

// Get retrieves a value at the specified indices.
func (t *Tensor) Get(indices []int) float32 {
	return t.Data[t.FlatIndex(indices)]
}

// Set sets a value at the specified indices.
func (t *Tensor) Set(indices []int, value float32) {
	t.Data[t.FlatIndex(indices)] = value
}

// Clone creates a contiguous deep copy of the tensor's logical contents.
func (t *Tensor) Clone() *Tensor {
	out := NewTensor(t.Shape)
	i := 0
	t.Layout().ForEach(func(_ []int, off int) {
		out.Data[i] = t.Data[off]
		i++
	})
	return out
}

// Contiguous returns t itself when it is already a compact row-major tensor,
// otherwise a contiguous copy.
func (t *Tensor) Contiguous() *Tensor {
	if t.IsContiguous() && t.Offset == 0 && len(t.Data) == t.Size() {
		return t
	}
	return t.Clone()
}

// Values returns the logical contents in row-major order.
func (t *Tensor) Values() []float32 {
	return t.Clone().Data
}

// Equals checks if two tensors have the same shape and approximately equal
// logical values, regardless of their layouts. NaN is never equal to anything.
func (t *Tensor) Equals(other *Tensor, tolerance float32) bool {
	if !t.ShapeEquals(other) {
		return false
	}
	a, b := t.Values(), other.Values()
	for i := range a {
		if a[i] == b[i] {
			continue
		}
		if !(math.Abs(float64(a[i]-b[i])) <= float64(tolerance)) {
			return false
		}
	}
	return true
}

// ShapeEquals checks if two tensors have the same shape.
func (t *Tensor) ShapeEquals(other *Tensor) bool {
	return shapeEquals(t.Shape, other.Shape)
}

// String returns a string representation of the tensor.
func (t *Tensor) String() string {
	var sb strings.Builder
	sb.WriteString("Tensor[")
	for i, dim := range t.Shape {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("%d", dim))
	}
	sb.WriteString("]: ")
	sb.WriteString(formatData(t.Layout(), t.Storage(), 0, t.Offset))
	return sb.String()
}

// EmptyLike allocates a zeroed tensor of the same element type as like,
// with the given shape placed according to strides.
func EmptyLike(like Strided, shape, strides []int) (Strided, error) {
	switch like.DType() {
	case Float32:
		return NewStrided(shape, strides)
	case Float16:
		return NewHalfStrided(shape, strides)
	default:
		return nil, fmt.Errorf("unsupported dtype %v", like.DType())
	}
}

// ValuesOf returns the logical contents of any strided tensor as float32 in row-major order.
func ValuesOf(t Strided) []float32 {
	l, s := t.Layout(), t.Storage()
	out := make([]float32, 0, l.Size())
	l.ForEach(func(_ []int, off int) {
		out = append(out, s.Load(off))
	})
	return out
}

// allocLayout checks an allocation request and returns the buffer length it needs.
func allocLayout(shape, strides []int) (Layout, int, error) {
	l := Layout{Shape: copyShape(shape), Strides: copyShape(strides)}
	if len(strides) != len(shape) {
		return Layout{}, 0, fmt.Errorf("strides %v do not match shape %v", strides, shape)
	}
	for i, dim := range shape {
		if dim < 0 {
			return Layout{}, 0, fmt.Errorf("invalid dimension %d in shape %v", dim, shape)
		}
		if strides[i] < 0 {
			return Layout{}, 0, fmt.Errorf("allocation strides must be non-negative, got %v", strides)
		}
	}
	_, hi := l.Span()
	return l, hi + 1, nil
}

// formatData recursively formats tensor data
func formatData(l Layout, s Storage, dim, offset int) string {
	if len(l.Shape) == 0 {
		return fmt.Sprintf("%g", s.Load(offset))
	}

	var sb strings.Builder
	sb.WriteString("[")
	limit := 3
	if dim == len(l.Shape)-1 {
		limit = 6
	}
	for i := 0; i < l.Shape[dim] && i < limit; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		off := offset + i*l.Strides[dim]
		if dim == len(l.Shape)-1 {
			sb.WriteString(fmt.Sprintf("%g", s.Load(off)))
		} else {
			sb.WriteString(formatData(l, s, dim+1, off))
		}
	}
	if l.Shape[dim] > limit {
		sb.WriteString(", ...")
	}
	sb.WriteString("]")
	return sb.String()
}

func shapeEquals(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
