// Package rope implements a fused Rotary Position Embedding (RoPE) transform
// and its gradient for activations laid out as (seq, batch, heads, head_dim).
//
// The head dimension is split into two halves and element i is rotated
// together with element i+D/2 (the "rotate-half" pairing). Input may be any
// strided view; it is read in place. The result is written either
// sequence-major or batch-major, the latter so that a caller who swaps axes 0
// and 1 afterwards gets a contiguous tensor without another copy.
//
// Forward returns a Saved record holding cos, sin and the layout choice.
// Backward consumes that record exactly once. Gradients flow only to the
// input tensor; cos, sin and the layout flag are constants.
package rope

import (
	"fmt"
	"sync/atomic"

	"fusedrope/pkg/tensor"
)

// Float is the set of tensor types the transform reads and writes.
type Float interface {
	*tensor.Tensor | *tensor.HalfTensor
	tensor.Strided
}

// Saved is the state a forward call hands to its backward call. It only
// references cos and sin, so one table can back any number of calls; callers
// must not modify them while a backward call is pending.
type Saved struct {
	cos, sin        tensor.Strided
	shape           []int // logical shape of the forward output
	transposeOutput bool
	partial         bool
	consumed        atomic.Bool
}

// Cos returns the cosine tensor used by the forward call.
func (s *Saved) Cos() tensor.Strided { return s.cos }

// Sin returns the sine tensor used by the forward call.
func (s *Saved) Sin() tensor.Strided { return s.sin }

// TransposeOutput reports the output layout chosen at forward time.
func (s *Saved) TransposeOutput() bool { return s.transposeOutput }

// Shape returns the logical shape of the forward output. The gradient passed
// to Backward must have exactly this shape.
func (s *Saved) Shape() []int { return append([]int(nil), s.shape...) }

// Forward rotates t by the angles whose cosine and sine are given.
//
// Parameters:
//   - t: input of shape (seq, batch, heads, head_dim) or any rank >= 2 with
//     sequence first and head_dim last; any strides
//   - cos, sin: shape (seq, 1, ..., 1, head_dim)
//   - transposeOutput: write the result batch-major instead of sequence-major
//
// Returns:
//   - rotated tensor with the logical shape of t and the element type of t
//   - state for the matching Backward call
//   - error wrapping ErrShapeMismatch or ErrUnsupportedLayout; no output is
//     produced on error
func Forward[T Float](t T, cos, sin tensor.Strided, transposeOutput bool, opts ...Option) (T, *Saved, error) {
	var zero T
	cfg := newConfig(opts)

	p, err := newPlan("forward", t, cos, sin, transposeOutput, cfg.partial)
	if err != nil {
		return zero, nil, err
	}
	if cos.DType() != tensor.Float32 || sin.DType() != tensor.Float32 {
		cfg.warning(fmt.Errorf("%w: cos/sin of shape %v are %v and %v",
			ErrLowPrecision, p.cos.Shape, cos.DType(), sin.DType()))
	}

	out, err := tensor.EmptyLike(t, p.dst.Shape, p.dst.Strides)
	if err != nil {
		return zero, nil, err
	}
	p.run(t.Storage(), out.Storage(), cos.Storage(), sin.Storage(), forward, cfg.workers)

	saved := &Saved{
		cos:             cos,
		sin:             sin,
		shape:           append([]int(nil), p.dst.Shape...),
		transposeOutput: transposeOutput,
		partial:         cfg.partial,
	}
	return out.(T), saved, nil
}

// Backward maps the gradient of the forward output to the gradient of its input.
// gradOut must have the logical shape of the forward output; its strides are
// free. The result uses the layout chosen at forward time.
//
// A rejected gradient leaves saved unconsumed, so the caller may retry with
// a correct one.
func Backward[T Float](saved *Saved, gradOut T, opts ...Option) (T, error) {
	var zero T
	if saved == nil {
		return zero, fmt.Errorf("%w: backward: nil saved state", ErrShapeMismatch)
	}
	if isNil(gradOut) {
		return zero, fmt.Errorf("%w: backward: nil gradient", ErrShapeMismatch)
	}
	if shape := gradOut.Layout().Shape; !sameShape(shape, saved.shape) {
		return zero, fmt.Errorf("%w: backward: gradient shape %v, forward output shape %v",
			ErrShapeMismatch, shape, saved.shape)
	}
	cfg := newConfig(opts)

	p, err := newPlan("backward", gradOut, saved.cos, saved.sin, saved.transposeOutput, saved.partial)
	if err != nil {
		return zero, err
	}
	if !saved.consumed.CompareAndSwap(false, true) {
		return zero, ErrStateConsumed
	}

	out, err := tensor.EmptyLike(gradOut, p.dst.Shape, p.dst.Strides)
	if err != nil {
		return zero, err
	}
	p.run(gradOut.Storage(), out.Storage(), saved.cos.Storage(), saved.sin.Storage(), backward, cfg.workers)
	return out.(T), nil
}

// Apply computes cos and sin of freqs and rotates t by them.
// freqs has shape (seq, 1, ..., 1, head_dim).
func Apply[T Float](t T, freqs tensor.Strided, transposeOutput bool, opts ...Option) (T, *Saved, error) {
	var zero T
	table, err := NewTable(freqs)
	if err != nil {
		return zero, nil, err
	}
	out, saved, err := Forward(t, table.cos, table.sin, transposeOutput, opts...)
	if err != nil {
		return zero, nil, err
	}
	if freqs.DType() != tensor.Float32 {
		cfg := newConfig(opts)
		cfg.warning(fmt.Errorf("%w: angles of shape %v are %v",
			ErrLowPrecision, freqs.Layout().Shape, freqs.DType()))
	}
	return out, saved, nil
}

// ApplyCached rotates t by precomputed cos and sin. The values are trusted as
// given; only their shapes and storage precision are checked.
func ApplyCached[T Float](t T, cos, sin tensor.Strided, transposeOutput bool, opts ...Option) (T, *Saved, error) {
	return Forward(t, cos, sin, transposeOutput, opts...)
}

// ApplyTable rotates t by a shared Table.
func ApplyTable[T Float](t T, table *Table, transposeOutput bool, opts ...Option) (T, *Saved, error) {
	if table == nil {
		var zero T
		return zero, nil, fmt.Errorf("%w: nil table", ErrShapeMismatch)
	}
	return Forward(t, table.cos, table.sin, transposeOutput, opts...)
}

// Node describes the operator to an external differentiation framework.
type Node struct {
	Name string
	// Inputs names the forward arguments in order.
	Inputs []string
	// RequiresGrad marks which inputs receive a gradient.
	RequiresGrad []bool
}

// FusedRoPE is the node description for Forward/Backward.
var FusedRoPE = Node{
	Name:         "fused_rope",
	Inputs:       []string{"t", "cos", "sin", "transpose_output_memory"},
	RequiresGrad: []bool{true, false, false, false},
}
