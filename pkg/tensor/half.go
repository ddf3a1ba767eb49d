package tensor

import (
	"fmt"

	"github.com/x448/float16"
)

// HalfTensor is a strided tensor of IEEE 754 binary16 values. Arithmetic on
// its elements happens in float32; values are rounded only when stored.
type HalfTensor struct {
	Data    []float16.Float16
	Shape   []int
	Strides []int
	Offset  int
}

type halfStorage []float16.Float16

func (s halfStorage) Len() int               { return len(s) }
func (s halfStorage) Load(i int) float32     { return s[i].Float32() }
func (s halfStorage) Store(i int, v float32) { s[i] = float16.Fromfloat32(v) }

// NewHalfTensor creates a contiguous zeroed float16 tensor.
func NewHalfTensor(shape []int) *HalfTensor {
	return &HalfTensor{
		Data:    make([]float16.Float16, NumElements(shape)),
		Shape:   copyShape(shape),
		Strides: ContiguousStrides(shape),
	}
}

// NewHalfStrided allocates a zeroed float16 tensor placed according to strides.
func NewHalfStrided(shape, strides []int) (*HalfTensor, error) {
	l, n, err := allocLayout(shape, strides)
	if err != nil {
		return nil, err
	}
	return &HalfTensor{Data: make([]float16.Float16, n), Shape: l.Shape, Strides: l.Strides}, nil
}

// HalfFromFloat32 rounds the logical contents of t into a contiguous float16 tensor.
func HalfFromFloat32(t *Tensor) *HalfTensor {
	out := NewHalfTensor(t.Shape)
	i := 0
	t.Layout().ForEach(func(_ []int, off int) {
		out.Data[i] = float16.Fromfloat32(t.Data[off])
		i++
	})
	return out
}

// Float32 widens the logical contents into a contiguous float32 tensor.
func (t *HalfTensor) Float32() *Tensor {
	out := NewTensor(t.Shape)
	copy(out.Data, ValuesOf(t))
	return out
}

// Layout returns the tensor's index mapping.
func (t *HalfTensor) Layout() Layout {
	return Layout{Shape: t.Shape, Strides: t.Strides, Offset: t.Offset}
}

// Storage returns element access to the underlying buffer.
func (t *HalfTensor) Storage() Storage { return halfStorage(t.Data) }

// DType reports Float16.
func (t *HalfTensor) DType() DType { return Float16 }

// Size returns the total number of elements in the tensor.
func (t *HalfTensor) Size() int { return NumElements(t.Shape) }

// Get retrieves the value at indices, widened to float32.
func (t *HalfTensor) Get(indices []int) float32 {
	return t.Data[t.Layout().Index(indices)].Float32()
}

// Set rounds value to float16 and stores it at indices.
func (t *HalfTensor) Set(indices []int, value float32) {
	t.Data[t.Layout().Index(indices)] = float16.Fromfloat32(value)
}

// Transpose returns a view with two dimensions exchanged.
func (t *HalfTensor) Transpose(dim1, dim2 int) (*HalfTensor, error) {
	l, err := t.Layout().Transpose(dim1, dim2)
	if err != nil {
		return nil, err
	}
	return &HalfTensor{Data: t.Data, Shape: l.Shape, Strides: l.Strides, Offset: l.Offset}, nil
}

// Step returns a view keeping every step-th index along axis.
func (t *HalfTensor) Step(axis, step int) (*HalfTensor, error) {
	l, err := t.Layout().Step(axis, step)
	if err != nil {
		return nil, err
	}
	return &HalfTensor{Data: t.Data, Shape: l.Shape, Strides: l.Strides, Offset: l.Offset}, nil
}

// String returns a string representation of the tensor.
func (t *HalfTensor) String() string {
	return fmt.Sprintf("HalfTensor%v: %s", t.Shape, formatData(t.Layout(), t.Storage(), 0, t.Offset))
}
