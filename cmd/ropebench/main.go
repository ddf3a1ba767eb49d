package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"runtime"
	"strings"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"

	"fusedrope/pkg/rope"
	"fusedrope/pkg/tensor"
)

func main() {
	// Define command line flags
	seqLen := flag.Int("seq", 512, "Sequence length")
	batch := flag.Int("batch", 4, "Batch size")
	heads := flag.Int("heads", 16, "Number of attention heads")
	headDim := flag.Int("dim", 128, "Head dimension (must be even)")
	base := flag.Float64("base", 10000.0, "RoPE frequency base")
	iters := flag.Int("iters", 10, "Number of timed forward/backward iterations")
	workers := flag.Int("workers", runtime.NumCPU(), "Goroutines per kernel launch")
	transpose := flag.Bool("transpose-output", false, "Write output batch-major")
	batchMajor := flag.Bool("batch-major-input", true, "Read input through a transposed (batch, seq) view")
	half := flag.Bool("half", false, "Use float16 activations")
	seed := flag.Uint64("seed", 1, "Random seed")

	flag.Parse()

	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("          Fused RoPE Forward/Backward")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	fmt.Printf("Configuration:\n")
	fmt.Printf("  Shape (s, b, h, d): (%d, %d, %d, %d)\n", *seqLen, *batch, *heads, *headDim)
	fmt.Printf("  Base: %g\n", *base)
	fmt.Printf("  Workers: %d\n", *workers)
	fmt.Printf("  Batch-major input: %v\n", *batchMajor)
	fmt.Printf("  Transpose output: %v\n", *transpose)
	fmt.Printf("  Float16: %v\n", *half)
	fmt.Println()

	table, err := rope.NewStandardTable(*seqLen, *headDim, *base)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building angle table: %v\n", err)
		os.Exit(1)
	}

	storage := randomStorage(rand.New(rand.NewSource(*seed)), *seqLen, *batch, *heads, *headDim, *batchMajor)

	opts := []rope.Option{rope.WithWorkers(*workers)}
	var fwd, bwd []float64
	var roundTrip float64
	if *half {
		var x *tensor.HalfTensor
		if x, err = halfInput(storage, *batchMajor); err == nil {
			fwd, bwd, roundTrip, err = run(x, table, *transpose, *iters, opts)
		}
	} else {
		x := storage
		if *batchMajor {
			x, err = x.Transpose(0, 1)
		}
		if err == nil {
			fwd, bwd, roundTrip, err = run(x, table, *transpose, *iters, opts)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running kernel: %v\n", err)
		os.Exit(1)
	}

	// Print statistics
	elements := float64(*seqLen * *batch * *heads * *headDim)
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("              Statistics")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Print(report("Forward", fwd, elements))
	fmt.Print(report("Backward", bwd, elements))
	fmt.Printf("  Round-trip max error: %.3g\n", roundTrip)
}

// randomStorage fills a (seq, batch, heads, dim) tensor, or with batchMajor a
// (batch, seq, heads, dim) one that the caller reads through a transposed view.
func randomStorage(r *rand.Rand, seqLen, batch, heads, dim int, batchMajor bool) *tensor.Tensor {
	shape := []int{seqLen, batch, heads, dim}
	if batchMajor {
		shape[0], shape[1] = shape[1], shape[0]
	}
	x := tensor.NewTensor(shape)
	for i := range x.Data {
		x.Data[i] = float32(r.NormFloat64())
	}
	return x
}

// halfInput rounds storage to float16 and, like the float32 path, reads it
// through a (seq, batch) view when it is stored batch-major.
func halfInput(storage *tensor.Tensor, batchMajor bool) (*tensor.HalfTensor, error) {
	x := tensor.HalfFromFloat32(storage)
	if batchMajor {
		return x.Transpose(0, 1)
	}
	return x, nil
}

// run times forward and backward and returns per-iteration milliseconds plus
// the largest deviation of Backward(Forward(x)) from x.
func run[T rope.Float](x T, table *rope.Table, transpose bool, iters int, opts []rope.Option) ([]float64, []float64, float64, error) {
	var fwd, bwd []float64
	maxErr := 0.0
	for i := 0; i < iters; i++ {
		start := time.Now()
		y, saved, err := rope.ApplyTable(x, table, transpose, opts...)
		if err != nil {
			return nil, nil, 0, err
		}
		fwd = append(fwd, float64(time.Since(start).Microseconds())/1000)

		start = time.Now()
		back, err := rope.Backward(saved, y, opts...)
		if err != nil {
			return nil, nil, 0, err
		}
		bwd = append(bwd, float64(time.Since(start).Microseconds())/1000)

		if i == 0 {
			want, got := tensor.ValuesOf(x), tensor.ValuesOf(back)
			for j := range want {
				maxErr = math.Max(maxErr, math.Abs(float64(got[j]-want[j])))
			}
		}
	}
	return fwd, bwd, maxErr, nil
}

// report formats one timing line. The spread is omitted below two samples.
func report(name string, ms []float64, elements float64) string {
	if len(ms) == 0 {
		return ""
	}
	throughput := func(mean float64) float64 { return elements / (mean / 1000) / 1e9 }
	if len(ms) < 2 {
		return fmt.Sprintf("  %-9s %8.3f ms  (%.2f Gelem/s)\n", name+":", ms[0], throughput(ms[0]))
	}
	mean, std := stat.MeanStdDev(ms, nil)
	return fmt.Sprintf("  %-9s %8.3f ms ± %.3f  (%.2f Gelem/s)\n", name+":", mean, std, throughput(mean))
}
