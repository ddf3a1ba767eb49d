package rope

import (
	"fmt"
	"math"

	"fusedrope/pkg/tensor"
)

// Table holds cos and sin of a set of rotation angles. It is built once and
// shared read-only by every forward call that uses it, typically by all
// layers of a network.
//
// The trigonometric functions are evaluated in float64 and then rounded to
// float32, so the angles never lose precision to the activations' element type.
type Table struct {
	cos *tensor.Tensor
	sin *tensor.Tensor
}

// NewTable computes cos and sin of freqs.
//
// Parameters:
//   - freqs: angles of shape (seq, 1, ..., 1, head_dim), any element type and strides
//
// Returns:
//   - *Table with contiguous float32 cos and sin of the same shape
//   - error wrapping ErrShapeMismatch or ErrUnsupportedLayout
func NewTable(freqs tensor.Strided) (*Table, error) {
	if isNil(freqs) {
		return nil, fmt.Errorf("%w: nil angles", ErrShapeMismatch)
	}
	if err := checkLayout("table", "angles", freqs); err != nil {
		return nil, err
	}
	l := freqs.Layout()
	if len(l.Shape) < 2 {
		return nil, fmt.Errorf("%w: angles must have shape (seq, 1, ..., 1, dim), got %v",
			ErrShapeMismatch, l.Shape)
	}
	cos := tensor.NewTensor(l.Shape)
	sin := tensor.NewTensor(l.Shape)
	src := freqs.Storage()
	i := 0
	l.ForEach(func(_ []int, off int) {
		angle := float64(src.Load(off))
		cos.Data[i] = float32(math.Cos(angle))
		sin.Data[i] = float32(math.Sin(angle))
		i++
	})
	return &Table{cos: cos, sin: sin}, nil
}

// Frequencies returns the standard RoPE angle table of shape (seqLen, 1, 1, dim).
//
// The frequency schedule is:
//
//	inv_freq[i] = 1.0 / (base ^ (2*i / dim)) for i in [0, dim/2)
//	angle[m][i] = angle[m][i+dim/2] = m * inv_freq[i]
//
// Both halves carry the same angle, matching the rotate-half pairing.
func Frequencies(seqLen, dim int, base float64) (*tensor.Tensor, error) {
	if dim%2 != 0 || dim <= 0 {
		return nil, fmt.Errorf("%w: dim must be positive and even, got %d", ErrShapeMismatch, dim)
	}
	if seqLen <= 0 {
		return nil, fmt.Errorf("%w: seq_len must be positive, got %d", ErrShapeMismatch, seqLen)
	}
	if base <= 0 {
		return nil, fmt.Errorf("base must be positive, got %f", base)
	}

	half := dim / 2
	invFreq := make([]float64, half)
	for i := range invFreq {
		// In log space: exp(-ln(base) * 2*i / dim)
		invFreq[i] = math.Exp(-math.Log(base) * float64(2*i) / float64(dim))
	}

	out := tensor.NewTensor([]int{seqLen, 1, 1, dim})
	for pos := 0; pos < seqLen; pos++ {
		row := out.Data[pos*dim : (pos+1)*dim]
		for i, f := range invFreq {
			angle := float32(float64(pos) * f)
			row[i] = angle
			row[i+half] = angle
		}
	}
	return out, nil
}

// NewStandardTable is Frequencies followed by NewTable.
func NewStandardTable(seqLen, dim int, base float64) (*Table, error) {
	freqs, err := Frequencies(seqLen, dim, base)
	if err != nil {
		return nil, err
	}
	return NewTable(freqs)
}

// Cos returns the cosine tensor. It must not be modified.
func (tb *Table) Cos() *tensor.Tensor { return tb.cos }

// Sin returns the sine tensor. It must not be modified.
func (tb *Table) Sin() *tensor.Tensor { return tb.sin }

// SeqLen returns the number of positions in the table.
func (tb *Table) SeqLen() int { return tb.cos.Shape[0] }

// Dim returns the rotated dimension.
func (tb *Table) Dim() int { return tb.cos.Shape[len(tb.cos.Shape)-1] }

// Slice returns a table viewing positions [offset, offset+length) without copying.
// It lets incremental decoding rotate new tokens at their absolute positions.
func (tb *Table) Slice(offset, length int) (*Table, error) {
	cos, err := tb.cos.Narrow(0, offset, length)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}
	sin, err := tb.sin.Narrow(0, offset, length)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}
	return &Table{cos: cos, sin: sin}, nil
}
