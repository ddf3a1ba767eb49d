package rope

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"

	"fusedrope/pkg/tensor"
)

func randomTensor(r *rand.Rand, shape []int) *tensor.Tensor {
	t := tensor.NewTensor(shape)
	for i := range t.Data {
		t.Data[i] = float32(r.NormFloat64())
	}
	return t
}

// randomAngles returns (seq, 1, 1, dim) angles in [-pi, pi) with independent
// halves, so tests exercise each cos/sin element separately.
func randomAngles(r *rand.Rand, seq, dim int) *tensor.Tensor {
	t := tensor.NewTensor([]int{seq, 1, 1, dim})
	for i := range t.Data {
		t.Data[i] = float32((r.Float64()*2 - 1) * math.Pi)
	}
	return t
}

func mustTable(t *testing.T, freqs *tensor.Tensor) *Table {
	t.Helper()
	table, err := NewTable(freqs)
	if err != nil {
		t.Fatalf("NewTable() error: %v", err)
	}
	return table
}

// referenceForward evaluates the rotation element by element through logical
// indices, independent of the kernel's row and stride handling.
func referenceForward(x tensor.Strided, cos, sin *tensor.Tensor) []float32 {
	l := x.Layout()
	s := x.Storage()
	dim := l.Shape[len(l.Shape)-1]
	half := dim / 2
	out := make([]float32, 0, l.Size())
	at := func(idx []int, d int) float32 {
		j := append([]int(nil), idx...)
		j[len(j)-1] = d
		return s.Load(l.Index(j))
	}
	l.ForEach(func(idx []int, off int) {
		pos, d := idx[0], idx[len(idx)-1]
		c := cos.Get([]int{pos, 0, 0, d})
		sn := sin.Get([]int{pos, 0, 0, d})
		v := s.Load(off)
		if d < half {
			out = append(out, v*c-at(idx, d+half)*sn)
		} else {
			out = append(out, v*c+at(idx, d-half)*sn)
		}
	})
	return out
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func maxAbsDiff(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	if len(a) == 0 {
		return 0
	}
	diff := make([]float64, len(a))
	floats.SubTo(diff, toFloat64(a), toFloat64(b))
	return floats.Norm(diff, math.Inf(1))
}

func dot(a, b []float32) float64 {
	return floats.Dot(toFloat64(a), toFloat64(b))
}
