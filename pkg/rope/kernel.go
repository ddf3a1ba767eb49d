package rope

import (
	"sync"

	"fusedrope/pkg/tensor"
)

type direction int

const (
	forward direction = iota
	backward
)

// minRowsPerWorker keeps tiny launches on the calling goroutine.
const minRowsPerWorker = 64

// run applies the rotation to every row of src and writes the result to dst.
// Rows are independent, so they are split into contiguous chunks with one
// goroutine per chunk and no synchronization beyond the final join.
func (p *plan) run(src, dst, cos, sin tensor.Storage, dir direction, workers int) {
	if p.rows == 0 || p.dim == 0 {
		return
	}
	if limit := p.rows / minRowsPerWorker; workers > limit {
		workers = limit
	}
	if workers <= 1 {
		p.rotateRows(src, dst, cos, sin, dir, 0, p.rows)
		return
	}

	chunk := (p.rows + workers - 1) / workers
	var wg sync.WaitGroup
	for lo := 0; lo < p.rows; lo += chunk {
		hi := lo + chunk
		if hi > p.rows {
			hi = p.rows
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			p.rotateRows(src, dst, cos, sin, dir, lo, hi)
		}(lo, hi)
	}
	wg.Wait()
}

// rotateRows processes rows [lo, hi). Each pair (i, i+d2/2) is read once and
// both rotated values are written, so no intermediate tensor is materialized.
//
// Forward, with x1 = x[i], x2 = x[i+d2/2]:
//
//	y[i]      = x1*cos[i]      - x2*sin[i]
//	y[i+d2/2] = x2*cos[i+d2/2] + x1*sin[i+d2/2]
//
// Backward applies the transposed rotation to the incoming gradient g:
//
//	dx[i]      = g1*cos[i]      + g2*sin[i+d2/2]
//	dx[i+d2/2] = g2*cos[i+d2/2] - g1*sin[i]
func (p *plan) rotateRows(src, dst, cos, sin tensor.Storage, dir direction, lo, hi int) {
	half := p.rotary / 2
	sd := p.src.Strides[len(p.src.Strides)-1]
	dd := p.dst.Strides[len(p.dst.Strides)-1]
	cd := p.cos.Strides[len(p.cos.Strides)-1]
	nd := p.sin.Strides[len(p.sin.Strides)-1]

	for row := lo; row < hi; row++ {
		sb := p.rowBase(p.src, row)
		db := p.rowBase(p.dst, row)
		pos := row / p.span
		cb := p.cos.Offset + pos*p.cos.Strides[0]
		nb := p.sin.Offset + pos*p.sin.Strides[0]

		for i := 0; i < half; i++ {
			j := i + half
			x1 := src.Load(sb + i*sd)
			x2 := src.Load(sb + j*sd)
			c1, c2 := cos.Load(cb+i*cd), cos.Load(cb+j*cd)
			s1, s2 := sin.Load(nb+i*nd), sin.Load(nb+j*nd)

			var y1, y2 float32
			if dir == forward {
				y1 = x1*c1 - x2*s1
				y2 = x2*c2 + x1*s2
			} else {
				y1 = x1*c1 + x2*s2
				y2 = x2*c2 - x1*s1
			}
			dst.Store(db+i*dd, y1)
			dst.Store(db+j*dd, y2)
		}
		// Elements past the rotary prefix pass through.
		for d := p.rotary; d < p.dim; d++ {
			dst.Store(db+d*dd, src.Load(sb+d*sd))
		}
	}
}
