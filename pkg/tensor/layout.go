package tensor

import "fmt"

// Layout maps logical indices onto a flat element buffer.
// Element (i0, i1, ...) lives at Offset + i0*Strides[0] + i1*Strides[1] + ...
// Strides may be zero (broadcast) or negative as long as every addressed
// element stays inside the buffer.
type Layout struct {
	Shape   []int
	Strides []int
	Offset  int
}

// ContiguousStrides returns row-major strides for shape.
func ContiguousStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

// NumElements returns the product of the extents in shape.
func NumElements(shape []int) int {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	return size
}

// Size returns the number of logical elements.
func (l Layout) Size() int {
	return NumElements(l.Shape)
}

// Index converts logical indices to a flat buffer offset.
func (l Layout) Index(indices []int) int {
	if len(indices) != len(l.Shape) {
		panic(fmt.Sprintf("indices length %d does not match shape dimensions %d",
			len(indices), len(l.Shape)))
	}
	idx := l.Offset
	for i, v := range indices {
		if v < 0 || v >= l.Shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d with size %d",
				v, i, l.Shape[i]))
		}
		idx += v * l.Strides[i]
	}
	return idx
}

// Span returns the lowest and highest buffer offsets addressed by the layout.
// For an empty layout lo > hi.
func (l Layout) Span() (lo, hi int) {
	lo, hi = l.Offset, l.Offset
	for i, dim := range l.Shape {
		if dim == 0 {
			return 0, -1
		}
		step := (dim - 1) * l.Strides[i]
		if step < 0 {
			lo += step
		} else {
			hi += step
		}
	}
	return lo, hi
}

// Validate checks that the layout is well formed and fits a buffer of n elements.
func (l Layout) Validate(n int) error {
	if len(l.Strides) != len(l.Shape) {
		return fmt.Errorf("strides %v do not match shape %v", l.Strides, l.Shape)
	}
	for i, dim := range l.Shape {
		if dim < 0 {
			return fmt.Errorf("invalid dimension %d at axis %d in shape %v", dim, i, l.Shape)
		}
	}
	lo, hi := l.Span()
	if lo > hi {
		return nil
	}
	if lo < 0 || hi >= n {
		return fmt.Errorf("layout shape %v strides %v offset %d addresses [%d, %d], outside buffer of %d elements",
			l.Shape, l.Strides, l.Offset, lo, hi, n)
	}
	return nil
}

// IsContiguous reports whether the layout is row-major with no gaps.
func (l Layout) IsContiguous() bool {
	expected := 1
	for i := len(l.Shape) - 1; i >= 0; i-- {
		if l.Shape[i] == 1 {
			continue
		}
		if l.Strides[i] != expected {
			return false
		}
		expected *= l.Shape[i]
	}
	return true
}

// Transpose returns the layout with axes a and b exchanged.
func (l Layout) Transpose(a, b int) (Layout, error) {
	rank := len(l.Shape)
	if a < 0 || a >= rank || b < 0 || b >= rank {
		return Layout{}, fmt.Errorf("invalid transpose dimensions %d and %d for tensor with %d dimensions",
			a, b, rank)
	}
	out := l.clone()
	out.Shape[a], out.Shape[b] = out.Shape[b], out.Shape[a]
	out.Strides[a], out.Strides[b] = out.Strides[b], out.Strides[a]
	return out, nil
}

// Permute reorders axes so that axis i of the result is axis order[i] of l.
func (l Layout) Permute(order ...int) (Layout, error) {
	if len(order) != len(l.Shape) {
		return Layout{}, fmt.Errorf("permutation %v does not match rank %d", order, len(l.Shape))
	}
	seen := make([]bool, len(order))
	out := Layout{
		Shape:   make([]int, len(order)),
		Strides: make([]int, len(order)),
		Offset:  l.Offset,
	}
	for i, axis := range order {
		if axis < 0 || axis >= len(order) || seen[axis] {
			return Layout{}, fmt.Errorf("invalid permutation %v", order)
		}
		seen[axis] = true
		out.Shape[i] = l.Shape[axis]
		out.Strides[i] = l.Strides[axis]
	}
	return out, nil
}

// Narrow restricts axis to [start, start+length).
func (l Layout) Narrow(axis, start, length int) (Layout, error) {
	if axis < 0 || axis >= len(l.Shape) {
		return Layout{}, fmt.Errorf("invalid axis %d for tensor with %d dimensions", axis, len(l.Shape))
	}
	if start < 0 || length < 0 || start+length > l.Shape[axis] {
		return Layout{}, fmt.Errorf("narrow [%d, %d) out of range for axis %d with size %d",
			start, start+length, axis, l.Shape[axis])
	}
	out := l.clone()
	out.Shape[axis] = length
	if length > 0 {
		out.Offset += start * l.Strides[axis]
	}
	return out, nil
}

// Step keeps every step-th index along axis, starting at 0.
func (l Layout) Step(axis, step int) (Layout, error) {
	if axis < 0 || axis >= len(l.Shape) {
		return Layout{}, fmt.Errorf("invalid axis %d for tensor with %d dimensions", axis, len(l.Shape))
	}
	if step <= 0 {
		return Layout{}, fmt.Errorf("step must be positive, got %d", step)
	}
	out := l.clone()
	out.Shape[axis] = (l.Shape[axis] + step - 1) / step
	out.Strides[axis] = l.Strides[axis] * step
	return out, nil
}

// Flip reverses axis, producing a negative stride.
func (l Layout) Flip(axis int) (Layout, error) {
	if axis < 0 || axis >= len(l.Shape) {
		return Layout{}, fmt.Errorf("invalid axis %d for tensor with %d dimensions", axis, len(l.Shape))
	}
	out := l.clone()
	if l.Shape[axis] > 0 {
		out.Offset += (l.Shape[axis] - 1) * l.Strides[axis]
	}
	out.Strides[axis] = -l.Strides[axis]
	return out, nil
}

// ForEach calls fn for every logical index in row-major order together with
// its buffer offset. The indices slice is reused between calls.
func (l Layout) ForEach(fn func(indices []int, offset int)) {
	if l.Size() == 0 {
		return
	}
	indices := make([]int, len(l.Shape))
	offset := l.Offset
	for {
		fn(indices, offset)
		axis := len(l.Shape) - 1
		for ; axis >= 0; axis-- {
			indices[axis]++
			offset += l.Strides[axis]
			if indices[axis] < l.Shape[axis] {
				break
			}
			offset -= indices[axis] * l.Strides[axis]
			indices[axis] = 0
		}
		if axis < 0 {
			return
		}
	}
}

func (l Layout) clone() Layout {
	return Layout{
		Shape:   copyShape(l.Shape),
		Strides: copyShape(l.Strides),
		Offset:  l.Offset,
	}
}

func copyShape(shape []int) []int {
	result := make([]int, len(shape))
	copy(result, shape)
	return result
}
