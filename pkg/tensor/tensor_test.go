package tensor

import (
	"fmt"
	"math"
	"strings"
	"testing"
)

// TestNewTensor tests tensor creation
func TestNewTensor(t *testing.T) {
	tests := []struct {
		name     string
		shape    []int
		expected int
		strides  []int
	}{
		{"1D", []int{5}, 5, []int{1}},
		{"2D", []int{3, 4}, 12, []int{4, 1}},
		{"3D", []int{2, 3, 4}, 24, []int{12, 4, 1}},
		{"empty axis", []int{2, 0, 4}, 0, []int{0, 4, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tensor := NewTensor(tt.shape)

			if !shapeEquals(tensor.Shape, tt.shape) {
				t.Errorf("Expected shape %v, got %v", tt.shape, tensor.Shape)
			}
			if !shapeEquals(tensor.Strides, tt.strides) || tensor.Offset != 0 {
				t.Errorf("Expected strides %v at offset 0, got %v at %d", tt.strides, tensor.Strides, tensor.Offset)
			}
			if !tensor.IsContiguous() {
				t.Errorf("New tensor should be contiguous")
			}

			if len(tensor.Data) != tt.expected {
				t.Errorf("Expected data length %d, got %d", tt.expected, len(tensor.Data))
			}

			// Check all zeros
			for i, v := range tensor.Data {
				if v != 0 {
					t.Errorf("Expected zero at index %d, got %f", i, v)
				}
			}
		})
	}
}

// TestFromSlice tests creating tensor from slice
func TestFromSlice(t *testing.T) {
	tests := []struct {
		name      string
		data      []float32
		shape     []int
		wantErr   bool
		errString string
	}{
		{
			name:    "valid 2D",
			data:    []float32{1, 2, 3, 4, 5, 6},
			shape:   []int{2, 3},
			wantErr: false,
		},
		{
			name:    "valid 3D",
			data:    []float32{1, 2, 3, 4, 5, 6, 7, 8},
			shape:   []int{2, 2, 2},
			wantErr: false,
		},
		{
			name:      "size mismatch",
			data:      []float32{1, 2, 3},
			shape:     []int{2, 3},
			wantErr:   true,
			errString: "data size 3 does not match shape",
		},
		{
			name:      "negative dimension",
			data:      []float32{1, 2, 3, 4},
			shape:     []int{2, -2},
			wantErr:   true,
			errString: "invalid dimension",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tensor, err := FromSlice(tt.data, tt.shape)

			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error, got nil")
				} else if tt.errString != "" && !strings.Contains(err.Error(), tt.errString) {
					t.Errorf("Expected error containing %q, got %q", tt.errString, err.Error())
				}
				return
			}

			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}

			if !shapeEquals(tensor.Shape, tt.shape) {
				t.Errorf("Expected shape %v, got %v", tt.shape, tensor.Shape)
			}

			for i, v := range tensor.Data {
				if v != tt.data[i] {
					t.Errorf("Data mismatch at index %d: expected %f, got %f", i, tt.data[i], v)
				}
			}

			// The tensor owns a copy
			tt.data[0] = -100
			if tensor.Data[0] == -100 {
				t.Error("FromSlice should copy its input")
			}
		})
	}
}

// TestView tests tensor reshaping
func TestView(t *testing.T) {
	tests := []struct {
		name      string
		data      []float32
		shape     []int
		from      func(*Tensor) (*Tensor, error) // view taken before reshaping
		newShape  []int
		wantErr   bool
		errString string
	}{
		{
			name:     "valid reshape 2x3 to 3x2",
			data:     []float32{1, 2, 3, 4, 5, 6},
			shape:    []int{2, 3},
			newShape: []int{3, 2},
			wantErr:  false,
		},
		{
			name:     "valid reshape to 1D",
			data:     []float32{1, 2, 3, 4},
			shape:    []int{2, 2},
			newShape: []int{4},
			wantErr:  false,
		},
		{
			name:      "size mismatch",
			data:      []float32{1, 2, 3, 4},
			shape:     []int{2, 2},
			newShape:  []int{3, 2},
			wantErr:   true,
			errString: "cannot view tensor of size 4",
		},
		{
			name:      "negative dimension",
			data:      []float32{1, 2, 3, 4},
			shape:     []int{2, 2},
			newShape:  []int{-2, 2},
			wantErr:   true,
			errString: "invalid dimension",
		},
		{
			name:     "narrowed rows keep their offset",
			data:     []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
			shape:    []int{3, 4},
			from:     func(t *Tensor) (*Tensor, error) { return t.Narrow(0, 1, 2) },
			newShape: []int{2, 2, 2},
			wantErr:  false,
		},
		{
			name:      "narrowed columns are not contiguous",
			data:      []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
			shape:     []int{3, 4},
			from:      func(t *Tensor) (*Tensor, error) { return t.Narrow(1, 1, 2) },
			newShape:  []int{6},
			wantErr:   true,
			errString: "cannot view non-contiguous tensor",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tensor, _ := FromSlice(tt.data, tt.shape)
			if tt.from != nil {
				var err error
				if tensor, err = tt.from(tensor); err != nil {
					t.Fatalf("Unexpected error: %v", err)
				}
			}
			view, err := tensor.View(tt.newShape)

			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error, got nil")
				} else if tt.errString != "" && !strings.Contains(err.Error(), tt.errString) {
					t.Errorf("Expected error containing %q, got %q", tt.errString, err.Error())
				}
				return
			}

			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}

			if !shapeEquals(view.Shape, tt.newShape) {
				t.Errorf("Expected shape %v, got %v", tt.newShape, view.Shape)
			}

			// Verify data is shared and the logical order is kept
			if &view.Data[0] != &tensor.Data[0] || view.Offset != tensor.Offset {
				t.Error("View should share data with original tensor")
			}
			got, want := view.Values(), tensor.Values()
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("Element %d: expected %f, got %f", i, want[i], got[i])
				}
			}
		})
	}
}

// TestTranspose tests dimension swapping
func TestTranspose(t *testing.T) {
	tests := []struct {
		name      string
		data      []float32
		shape     []int
		dim1      int
		dim2      int
		wantErr   bool
		errString string
	}{
		{
			name:    "transpose 2D",
			data:    []float32{1, 2, 3, 4, 5, 6},
			shape:   []int{2, 3},
			dim1:    0,
			dim2:    1,
			wantErr: false,
		},
		{
			name:    "transpose 3D",
			data:    []float32{1, 2, 3, 4, 5, 6, 7, 8},
			shape:   []int{2, 2, 2},
			dim1:    0,
			dim2:    2,
			wantErr: false,
		},
		{
			name:      "invalid dim1",
			data:      []float32{1, 2, 3, 4},
			shape:     []int{2, 2},
			dim1:      -1,
			dim2:      1,
			wantErr:   true,
			errString: "invalid transpose dimensions",
		},
		{
			name:      "invalid dim2",
			data:      []float32{1, 2, 3, 4},
			shape:     []int{2, 2},
			dim1:      0,
			dim2:      5,
			wantErr:   true,
			errString: "invalid transpose dimensions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tensor, _ := FromSlice(tt.data, tt.shape)
			transposed, err := tensor.Transpose(tt.dim1, tt.dim2)

			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error, got nil")
				} else if tt.errString != "" && !strings.Contains(err.Error(), tt.errString) {
					t.Errorf("Expected error containing %q, got %q", tt.errString, err.Error())
				}
				return
			}

			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}

			// Check shape
			expectedShape := copyShapeInt(tt.shape)
			expectedShape[tt.dim1], expectedShape[tt.dim2] = expectedShape[tt.dim2], expectedShape[tt.dim1]
			if !shapeEquals(transposed.Shape, expectedShape) {
				t.Errorf("Expected shape %v, got %v", expectedShape, transposed.Shape)
			}

			// Transpose is a view: values move with their indices, data is shared
			if &transposed.Data[0] != &tensor.Data[0] {
				t.Error("Transpose should share data with original tensor")
			}
			src := make([]int, len(tt.shape))
			tensor.Layout().ForEach(func(idx []int, _ int) {
				copy(src, idx)
				src[tt.dim1], src[tt.dim2] = src[tt.dim2], src[tt.dim1]
				if got, want := transposed.Get(src), tensor.Get(idx); got != want {
					t.Errorf("transposed%v = %f, want %f", src, got, want)
				}
			})
		})
	}
}

// TestViewNonContiguous tests that View refuses strided tensors
func TestViewNonContiguous(t *testing.T) {
	tensor := NewTensor([]int{2, 3})
	transposed, _ := tensor.Transpose(0, 1)
	if _, err := transposed.View([]int{6}); err == nil {
		t.Error("Expected error viewing a transposed tensor")
	}
	if _, err := transposed.Contiguous().View([]int{6}); err != nil {
		t.Errorf("Unexpected error viewing a contiguous copy: %v", err)
	}
}

// TestStridedViews tests narrow, step, flip and permute against direct indexing
func TestStridedViews(t *testing.T) {
	data := make([]float32, 4*3*2)
	for i := range data {
		data[i] = float32(i)
	}
	base := NewTensorFromData(data, []int{4, 3, 2})

	tests := []struct {
		name  string
		view  func() (*Tensor, error)
		shape []int
		src   func(idx []int) []int // index into base for a view index
	}{
		{
			name:  "narrow",
			view:  func() (*Tensor, error) { return base.Narrow(0, 1, 2) },
			shape: []int{2, 3, 2},
			src:   func(i []int) []int { return []int{i[0] + 1, i[1], i[2]} },
		},
		{
			name:  "step",
			view:  func() (*Tensor, error) { return base.Step(1, 2) },
			shape: []int{4, 2, 2},
			src:   func(i []int) []int { return []int{i[0], 2 * i[1], i[2]} },
		},
		{
			name:  "flip",
			view:  func() (*Tensor, error) { return base.Flip(0) },
			shape: []int{4, 3, 2},
			src:   func(i []int) []int { return []int{3 - i[0], i[1], i[2]} },
		},
		{
			name:  "permute",
			view:  func() (*Tensor, error) { return base.Permute(2, 0, 1) },
			shape: []int{2, 4, 3},
			src:   func(i []int) []int { return []int{i[1], i[2], i[0]} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view, err := tt.view()
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !shapeEquals(view.Shape, tt.shape) {
				t.Fatalf("Expected shape %v, got %v", tt.shape, view.Shape)
			}
			if err := view.Layout().Validate(len(view.Data)); err != nil {
				t.Fatalf("View layout invalid: %v", err)
			}
			clone := view.Clone()
			if !clone.IsContiguous() || len(clone.Data) != clone.Size() {
				t.Errorf("Clone is not compact: strides %v, %d elements", clone.Strides, len(clone.Data))
			}
			i := 0
			view.Layout().ForEach(func(idx []int, off int) {
				want := base.Get(tt.src(idx))
				if view.Data[off] != want || view.Get(idx) != want || clone.Data[i] != want {
					t.Errorf("view%v = %f, want %f", idx, view.Get(idx), want)
				}
				i++
			})
		})
	}
}

// TestViewErrors tests invalid view arguments
func TestViewErrors(t *testing.T) {
	base := NewTensor([]int{4, 3})
	if _, err := base.Narrow(0, 3, 2); err == nil {
		t.Error("Expected error narrowing past the end")
	}
	if _, err := base.Narrow(2, 0, 1); err == nil {
		t.Error("Expected error for invalid axis")
	}
	if _, err := base.Step(1, 0); err == nil {
		t.Error("Expected error for zero step")
	}
	if _, err := base.Permute(0, 0); err == nil {
		t.Error("Expected error for repeated axis")
	}
	if _, err := base.Permute(0); err == nil {
		t.Error("Expected error for short permutation")
	}
	if _, err := base.Flip(-1); err == nil {
		t.Error("Expected error for invalid axis")
	}
}

// TestLayoutSpanAndValidate tests addressed ranges and buffer checks
func TestLayoutSpanAndValidate(t *testing.T) {
	tests := []struct {
		name    string
		layout  Layout
		n       int
		lo, hi  int
		wantErr bool
	}{
		{"contiguous", Layout{Shape: []int{2, 3}, Strides: []int{3, 1}}, 6, 0, 5, false},
		{"offset", Layout{Shape: []int{2, 3}, Strides: []int{3, 1}, Offset: 1}, 6, 1, 6, true},
		{"negative stride", Layout{Shape: []int{2, 3}, Strides: []int{-3, 1}, Offset: 3}, 6, 0, 5, false},
		{"broadcast", Layout{Shape: []int{4, 3}, Strides: []int{0, 1}}, 3, 0, 2, false},
		{"empty", Layout{Shape: []int{0, 3}, Strides: []int{3, 1}}, 0, 0, -1, false},
		{"negative extent", Layout{Shape: []int{-1, 3}, Strides: []int{3, 1}}, 6, 0, 0, true},
		{"strides mismatch", Layout{Shape: []int{2, 3}, Strides: []int{1}}, 6, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.layout.Validate(tt.n)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			lo, hi := tt.layout.Span()
			if lo != tt.lo || hi != tt.hi {
				t.Errorf("Span() = [%d, %d], want [%d, %d]", lo, hi, tt.lo, tt.hi)
			}
		})
	}
}

// TestIsContiguous tests contiguity detection
func TestIsContiguous(t *testing.T) {
	tests := []struct {
		name   string
		layout Layout
		want   bool
	}{
		{"row-major", Layout{Shape: []int{2, 3, 4}, Strides: []int{12, 4, 1}}, true},
		{"unit axis stride ignored", Layout{Shape: []int{2, 1, 4}, Strides: []int{4, 99, 1}}, true},
		{"transposed", Layout{Shape: []int{3, 2}, Strides: []int{1, 3}}, false},
		{"gap", Layout{Shape: []int{2, 3}, Strides: []int{4, 1}}, false},
		{"scalar", Layout{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.layout.IsContiguous(); got != tt.want {
				t.Errorf("IsContiguous() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestNewStrided tests allocation with explicit strides
func TestNewStrided(t *testing.T) {
	tensor, err := NewStrided([]int{3, 2, 4}, []int{4, 12, 1})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(tensor.Data) != 24 {
		t.Errorf("Expected 24 elements, got %d", len(tensor.Data))
	}
	swapped, _ := tensor.Transpose(0, 1)
	if !swapped.IsContiguous() {
		t.Errorf("Expected contiguous tensor after swapping axes 0 and 1, strides %v", swapped.Strides)
	}

	if _, err := NewStrided([]int{2, 2}, []int{1}); err == nil {
		t.Error("Expected error for strides mismatch")
	}
	if _, err := NewStrided([]int{2, 2}, []int{-2, 1}); err == nil {
		t.Error("Expected error for negative allocation stride")
	}
	empty, err := NewStrided([]int{0, 4}, []int{4, 1})
	if err != nil || len(empty.Data) != 0 {
		t.Errorf("Expected empty allocation, got %v elements, err %v", len(empty.Data), err)
	}
}

// TestEquals tests logical comparison across layouts
func TestEquals(t *testing.T) {
	a := NewTensorFromData([]float32{1, 2, 3, 4, 5, 6}, []int{2, 3})
	bt := NewTensorFromData([]float32{1, 4, 2, 5, 3, 6}, []int{3, 2})
	b, _ := bt.Transpose(0, 1)

	if !a.Equals(b, 0) {
		t.Error("Expected tensors with equal logical values to be equal")
	}
	b.Set([]int{1, 2}, 6.5)
	if a.Equals(b, 0.1) {
		t.Error("Expected tensors to differ after Set")
	}
	if !floatEquals(bt.Data[5], 6.5, 1e-6) {
		t.Errorf("Set on view should write through, got %f", bt.Data[5])
	}

	nan := NewTensorFromData([]float32{float32(math.NaN()), 2, 3, 4, 5, 6}, []int{2, 3})
	if nan.Equals(nan, 0) || nan.Equals(a, 1e9) {
		t.Error("Expected NaN elements to compare unequal")
	}
	inf := NewTensorFromData([]float32{float32(math.Inf(1)), 2}, []int{2})
	if !inf.Equals(inf, 0) {
		t.Error("Expected equal infinities to compare equal")
	}
}

// TestShapeEquals tests shape comparison
func TestShapeEquals(t *testing.T) {
	a := NewTensor([]int{2, 3, 4})
	b := NewTensor([]int{2, 3, 4})
	c := NewTensor([]int{2, 3})
	d := NewTensor([]int{3, 2, 4})

	if !a.ShapeEquals(b) {
		t.Error("Expected a.ShapeEquals(b) to be true")
	}

	if a.ShapeEquals(c) {
		t.Error("Expected a.ShapeEquals(c) to be false")
	}

	if a.ShapeEquals(d) {
		t.Error("Expected a.ShapeEquals(d) to be false")
	}
}

// TestSize tests element count
func TestSize(t *testing.T) {
	tests := []struct {
		shape    []int
		expected int
	}{
		{[]int{2, 3}, 6},
		{[]int{1, 2, 3, 4}, 24},
		{[]int{5}, 5},
		{[]int{3, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v", tt.shape), func(t *testing.T) {
			tensor := NewTensor(tt.shape)
			if tensor.Size() != tt.expected {
				t.Errorf("Expected Size %d, got %d", tt.expected, tensor.Size())
			}
		})
	}
}

// TestString tests string representation
func TestString(t *testing.T) {
	tensor := NewTensor([]int{2, 3})
	tensor.Data[0] = 1.5
	tensor.Data[1] = 2.5
	tensor.Data[2] = 3.5

	str := tensor.String()
	if !strings.Contains(str, "Tensor[2, 3]") {
		t.Errorf("String() should contain shape, got %q", str)
	}
	if !strings.Contains(str, "1.5") {
		t.Error("String() should contain '1.5'")
	}

	transposed, _ := tensor.Transpose(0, 1)
	if !strings.Contains(transposed.String(), "[[1.5, 0], [2.5, 0], [3.5, 0]]") {
		t.Errorf("String() should follow strides, got %q", transposed.String())
	}
}

// Helper functions

func copyShapeInt(shape []int) []int {
	result := make([]int, len(shape))
	copy(result, shape)
	return result
}

func floatEquals(a, b, tolerance float32) bool {
	return math.Abs(float64(a-b)) < float64(tolerance)
}
