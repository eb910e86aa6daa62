// Package fractal is the CPU Mandelbrot engine: the reference
// implementation of the iteration the GPU kernel runs, and the fallback
// when no adapter is available.
package fractal

import (
	"github.com/gogpu/mandelzoom"
	"github.com/gogpu/mandelzoom/internal/parallel"
)

// DoneFlag marks a finished pixel in a packed result word. The low bits
// carry the iteration depth. The GPU kernel packs its result buffer the
// same way, so the two paths share one colorize step.
const DoneFlag uint32 = 1 << 31

// rowAlign matches the GPU dispatch granularity so that CPU and GPU
// result buffers have identical strides.
const rowAlign = 64

type fastPoint struct {
	cx, cy float64
	x, y   float64
}

type precisePoint struct {
	c    mandelzoom.PrecisePoint
	x, y mandelzoom.WideFloat
}

// Engine iterates z = z^2 + c over every pixel of a view, a bounded
// number of steps per frame, until each pixel either escapes or reaches
// the depth limit.
//
// Two representations back it: native float64 while the coordinate width
// is minimal, and WideFloat beyond that. The precise path is the
// bit-exact CPU reference for the GPU kernel.
//
// Iterate fans rows out over the worker pool; each pixel's state is
// owned by exactly one row, so no locking is needed.
type Engine struct {
	pool       *parallel.WorkerPool
	width      int // aligned row stride in pixels
	height     int
	depthLimit uint32

	// results holds one packed word per pixel: depth | DoneFlag.
	results []uint32

	// Exactly one of the two state slices is non-nil.
	fast    []fastPoint
	precise []precisePoint
}

// New builds an engine for the given coordinates over scaled pixel
// dimensions. The float64 path is used at the minimal coordinate width;
// its 52-bit mantissa covers the 32 fractional bits a two-word
// coordinate can hold.
func New(dims mandelzoom.Dimensions, coords *mandelzoom.Coordinates, depthLimit uint32, pool *parallel.WorkerPool) *Engine {
	e := &Engine{
		pool:       pool,
		width:      int(dims.AlignedWidth(rowAlign)),
		height:     int(dims.Height),
		depthLimit: depthLimit,
	}
	e.results = make([]uint32, e.width*e.height)

	if coords.Size() == 2 {
		e.seedFast(coords)
	} else {
		e.seedPrecise(coords)
	}

	mandelzoom.Logger().Debug("fractal engine",
		"width", e.width, "height", e.height,
		"precise", e.precise != nil, "words", coords.Size())
	return e
}

func (e *Engine) seedFast(coords *mandelzoom.Coordinates) {
	x0 := coords.X().Float64()
	y0 := coords.Y().Float64()
	step := coords.Step().Float64()

	e.fast = make([]fastPoint, e.width*e.height)
	i := 0
	for py := range e.height {
		cy := y0 + float64(py)*step
		for px := range e.width {
			cx := x0 + float64(px)*step
			e.fast[i] = fastPoint{cx: cx, cy: cy, x: cx, y: cy}
			i++
		}
	}
}

func (e *Engine) seedPrecise(coords *mandelzoom.Coordinates) {
	step := coords.Step()

	e.precise = make([]precisePoint, e.width*e.height)
	i := 0
	// Fixed-point adds are exact, so walking the grid by repeated
	// addition loses nothing over per-pixel multiplication.
	cy := coords.Y().Clone()
	for range e.height {
		cx := coords.X().Clone()
		for range e.width {
			e.precise[i] = precisePoint{
				c: mandelzoom.PrecisePoint{X: cx.Clone(), Y: cy.Clone()},
				x: cx.Clone(), y: cy.Clone(),
			}
			cx.Add(step)
			i++
		}
		cy.Add(step)
	}
}

// Precise reports whether the engine runs on the WideFloat path.
func (e *Engine) Precise() bool { return e.precise != nil }

// Width returns the aligned row stride in pixels.
func (e *Engine) Width() int { return e.width }

// Height returns the pixel height.
func (e *Engine) Height() int { return e.height }

// DepthLimit returns the maximum iteration depth.
func (e *Engine) DepthLimit() uint32 { return e.depthLimit }

// Results returns the packed per-pixel result buffer. The slice aliases
// the engine's state; callers must not mutate it and must not read it
// concurrently with Iterate.
func (e *Engine) Results() []uint32 { return e.results }

// Done reports whether every pixel has either escaped or reached the
// depth limit.
func (e *Engine) Done() bool {
	for _, r := range e.results {
		if r&DoneFlag == 0 {
			return false
		}
	}
	return true
}

// Iterate advances every unfinished pixel by at most budget iterations,
// one row per work item.
func (e *Engine) Iterate(budget uint32) {
	if budget == 0 {
		return
	}
	work := make([]func(), e.height)
	for py := range e.height {
		row := py * e.width
		work[py] = func() {
			if e.fast != nil {
				for idx := row; idx < row+e.width; idx++ {
					e.iterateFast(idx, budget)
				}
			} else {
				for idx := row; idx < row+e.width; idx++ {
					e.iteratePrecise(idx, budget)
				}
			}
		}
	}
	e.pool.ExecuteAll(work)
}

func (e *Engine) iterateFast(idx int, budget uint32) {
	depth := e.results[idx]
	if depth&DoneFlag != 0 {
		return
	}
	p := &e.fast[idx]

	x2 := p.x * p.x
	y2 := p.y * p.y
	start := depth
	for depth < e.depthLimit && x2+y2 < 4 {
		p.y = 2*p.x*p.y + p.cy
		p.x = x2 - y2 + p.cx
		depth++
		if depth-start >= budget {
			e.results[idx] = depth
			return
		}
		x2 = p.x * p.x
		y2 = p.y * p.y
	}
	e.results[idx] = depth | DoneFlag
}

func (e *Engine) iteratePrecise(idx int, budget uint32) {
	depth := e.results[idx]
	if depth&DoneFlag != 0 {
		return
	}
	p := &e.precise[idx]

	x2 := p.x.Mul(&p.x)
	y2 := p.y.Mul(&p.y)
	start := depth
	for depth < e.depthLimit && escapeSum(&x2, &y2) {
		// y = 2*x*y + cy; x = x^2 - y^2 + cx. The doubling happens as a
		// shift before the multiply.
		p.y.Shl(1)
		p.y = p.x.Mul(&p.y)
		p.y.Add(&p.c.Y)

		p.x = x2
		p.x.Sub(&y2)
		p.x.Add(&p.c.X)

		depth++
		if depth-start >= budget {
			e.results[idx] = depth
			return
		}
		x2 = p.x.Mul(&p.x)
		y2 = p.y.Mul(&p.y)
	}
	e.results[idx] = depth | DoneFlag
}

// escapeSum reports x2+y2 < 4, the interior test of the escape circle.
func escapeSum(x2, y2 *mandelzoom.WideFloat) bool {
	sum := x2.Clone()
	sum.Add(y2)
	return sum.CmpInt32(4) < 0
}
