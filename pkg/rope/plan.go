package rope

import (
	"fmt"

	"fusedrope/pkg/tensor"
)

// plan is the validated geometry of one kernel launch. The input is viewed as
// rows of D elements: one row per (sequence, batch, head, ...) index.
type plan struct {
	seq    int   // S, extent of axis 0
	inner  []int // extents of the axes between sequence and head dimension
	span   int   // product of inner, rows per sequence position
	rows   int   // S times span
	dim    int   // D
	rotary int   // d2, the rotated prefix of D

	src, dst tensor.Layout
	cos, sin tensor.Layout
}

// newPlan validates the operands and lays out the result. Nothing is
// allocated or written until every check has passed.
func newPlan(op string, t, cos, sin tensor.Strided, transposeOutput, partial bool) (*plan, error) {
	if isNil(t) || isNil(cos) || isNil(sin) {
		return nil, fmt.Errorf("%w: %s: nil operand", ErrShapeMismatch, op)
	}
	src, cl, sl := t.Layout(), cos.Layout(), sin.Layout()

	if err := checkLayout(op, "input", t); err != nil {
		return nil, err
	}
	if err := checkLayout(op, "cos", cos); err != nil {
		return nil, err
	}
	if err := checkLayout(op, "sin", sin); err != nil {
		return nil, err
	}

	rank := len(src.Shape)
	if rank < 2 {
		return nil, fmt.Errorf("%w: %s: expected input of rank >= 2 (seq, ..., dim), got shape %v",
			ErrShapeMismatch, op, src.Shape)
	}
	dim := src.Shape[rank-1]
	if dim%2 != 0 && !partial {
		return nil, fmt.Errorf("%w: %s: head dim must be even, got %d", ErrShapeMismatch, op, dim)
	}
	if !sameShape(cl.Shape, sl.Shape) {
		return nil, fmt.Errorf("%w: %s: cos shape %v differs from sin shape %v",
			ErrShapeMismatch, op, cl.Shape, sl.Shape)
	}
	crank := len(cl.Shape)
	if crank < 2 || crank > rank {
		return nil, fmt.Errorf("%w: %s: cos/sin of shape %v cannot broadcast against input %v",
			ErrShapeMismatch, op, cl.Shape, src.Shape)
	}
	if cl.Shape[0] != src.Shape[0] {
		return nil, fmt.Errorf("%w: %s: input has sequence length %d, cos/sin have %d",
			ErrShapeMismatch, op, src.Shape[0], cl.Shape[0])
	}
	for i := 1; i < crank-1; i++ {
		if cl.Shape[i] != 1 {
			return nil, fmt.Errorf("%w: %s: expected cos/sin of shape [seq, 1, ..., 1, dim], got %v",
				ErrShapeMismatch, op, cl.Shape)
		}
	}
	// With partial rotary only the rotated prefix has to pair up; an odd
	// head dim leaves its last element in the pass-through tail.
	rotary := cl.Shape[crank-1]
	switch {
	case rotary == dim && rotary%2 == 0:
	case !partial:
		return nil, fmt.Errorf("%w: %s: cos/sin last dim %d differs from input head dim %d",
			ErrShapeMismatch, op, rotary, dim)
	case rotary > dim || rotary%2 != 0:
		return nil, fmt.Errorf("%w: %s: rotary dim %d must be even and at most head dim %d",
			ErrShapeMismatch, op, rotary, dim)
	}

	p := &plan{
		seq:    src.Shape[0],
		inner:  src.Shape[1 : rank-1],
		dim:    dim,
		rotary: rotary,
		src:    src,
		cos:    cl,
		sin:    sl,
	}
	p.span = tensor.NumElements(p.inner)
	p.rows = p.seq * p.span
	p.dst = tensor.Layout{Shape: append([]int(nil), src.Shape...), Strides: outputStrides(src.Shape, transposeOutput)}
	return p, nil
}

// outputStrides places the result sequence-major, or batch-major when
// transposed so that swapping axes 0 and 1 afterwards yields a contiguous tensor.
// A rank-2 tensor has no batch axis and is always sequence-major.
func outputStrides(shape []int, transposed bool) []int {
	if !transposed || len(shape) < 3 {
		return tensor.ContiguousStrides(shape)
	}
	storage := append([]int(nil), shape...)
	storage[0], storage[1] = storage[1], storage[0]
	strides := tensor.ContiguousStrides(storage)
	strides[0], strides[1] = strides[1], strides[0]
	return strides
}

// isNil also catches typed nil pointers wrapped in the interface.
func isNil(t tensor.Strided) bool {
	switch v := t.(type) {
	case nil:
		return true
	case *tensor.Tensor:
		return v == nil
	case *tensor.HalfTensor:
		return v == nil
	}
	return false
}

func checkLayout(op, name string, t tensor.Strided) error {
	if err := t.Layout().Validate(t.Storage().Len()); err != nil {
		return fmt.Errorf("%w: %s: %s: %v", ErrUnsupportedLayout, op, name, err)
	}
	return nil
}

// rowBase returns the buffer offset of element 0 of the given row in l,
// where l shares the plan's leading (sequence, inner...) axes.
func (p *plan) rowBase(l tensor.Layout, row int) int {
	off := l.Offset
	for i := len(p.inner) - 1; i >= 0; i-- {
		n := p.inner[i]
		off += (row % n) * l.Strides[1+i]
		row /= n
	}
	return off + row*l.Strides[0]
}

func sameShape(a, b []int) bool {
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
