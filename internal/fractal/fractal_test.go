package fractal

import (
	"testing"

	"github.com/gogpu/mandelzoom"
	"github.com/gogpu/mandelzoom/internal/parallel"
)

func mustCoords(t *testing.T, x, y, step float32, precision int) mandelzoom.Coordinates {
	t.Helper()
	c, err := mandelzoom.NewCoordinates(x, y, step, precision)
	if err != nil {
		t.Fatalf("NewCoordinates(%g, %g, %g): %v", x, y, step, err)
	}
	return c
}

// refResult runs the escape iteration in plain float64 with the same
// escape rule as the engine and returns the packed result word.
func refResult(cx, cy float64, limit uint32) uint32 {
	x, y := cx, cy
	var depth uint32
	x2, y2 := x*x, y*y
	for depth < limit && x2+y2 < 4 {
		y = 2*x*y + cy
		x = x2 - y2 + cx
		depth++
		x2, y2 = x*x, y*y
	}
	return depth | DoneFlag
}

// iterateAll drives the engine to completion in budget-sized slices.
func iterateAll(t *testing.T, e *Engine, budget uint32) {
	t.Helper()
	for i := 0; !e.Done(); i++ {
		if i > 10000 {
			t.Fatal("engine did not finish")
		}
		e.Iterate(budget)
	}
}

func newPool(t *testing.T) *parallel.WorkerPool {
	t.Helper()
	pool := parallel.NewWorkerPool(4)
	t.Cleanup(pool.Close)
	return pool
}

func TestEngineFastPathSelection(t *testing.T) {
	coords := mustCoords(t, -2, -1, 1, 16)
	e := New(mandelzoom.Dimensions{Width: 4, Height: 2}, &coords, 20, newPool(t))

	if e.Precise() {
		t.Error("Precise() = true at two words, want the float64 path")
	}
	if e.Width() != 64 {
		t.Errorf("Width() = %d, want 64 (aligned)", e.Width())
	}
	if e.Height() != 2 {
		t.Errorf("Height() = %d, want 2", e.Height())
	}
	if e.DepthLimit() != 20 {
		t.Errorf("DepthLimit() = %d, want 20", e.DepthLimit())
	}
}

func TestEnginePrecisePathSelection(t *testing.T) {
	coords := mustCoords(t, -2, -1, 1, 16)
	coords.SetPrecision(64)
	e := New(mandelzoom.Dimensions{Width: 4, Height: 2}, &coords, 20, newPool(t))

	if !e.Precise() {
		t.Errorf("Precise() = false at %d words, want the wide path", coords.Size())
	}
}

// An integer grid over c: every value in both representations is exact,
// so the engine must reproduce the reference loop depth for depth.
func TestIterateFast(t *testing.T) {
	const limit = 20
	coords := mustCoords(t, -2, -1, 1, 16)
	e := New(mandelzoom.Dimensions{Width: 4, Height: 2}, &coords, limit, newPool(t))

	iterateAll(t, e, limit)

	for py := range 2 {
		for px := range 4 {
			want := refResult(float64(px)-2, float64(py)-1, limit)
			got := e.Results()[py*e.Width()+px]
			if got != want {
				t.Errorf("pixel (%d, %d): got %#x, want %#x", px, py, got, want)
			}
		}
	}
}

func TestIteratePrecise(t *testing.T) {
	const limit = 20
	coords := mustCoords(t, -2, -1, 1, 16)
	coords.SetPrecision(64)
	e := New(mandelzoom.Dimensions{Width: 4, Height: 2}, &coords, limit, newPool(t))
	if !e.Precise() {
		t.Fatal("expected the wide path")
	}

	iterateAll(t, e, limit)

	for py := range 2 {
		for px := range 4 {
			want := refResult(float64(px)-2, float64(py)-1, limit)
			got := e.Results()[py*e.Width()+px]
			if got != want {
				t.Errorf("pixel (%d, %d): got %#x, want %#x", px, py, got, want)
			}
		}
	}
}

func TestIterateFastSlicedMatchesOneShot(t *testing.T) {
	const limit = 100
	dims := mandelzoom.Dimensions{Width: 16, Height: 8}

	c1 := mustCoords(t, -2, -1.25, 0.125, 16)
	sliced := New(dims, &c1, limit, newPool(t))
	iterateAll(t, sliced, 7)

	c2 := mustCoords(t, -2, -1.25, 0.125, 16)
	oneShot := New(dims, &c2, limit, newPool(t))
	iterateAll(t, oneShot, limit)

	for i := range sliced.Results() {
		if sliced.Results()[i] != oneShot.Results()[i] {
			t.Fatalf("pixel %d: sliced %#x != one-shot %#x",
				i, sliced.Results()[i], oneShot.Results()[i])
		}
	}
}

func TestIteratePreciseSlicedMatchesOneShot(t *testing.T) {
	const limit = 60
	dims := mandelzoom.Dimensions{Width: 8, Height: 4}

	c1 := mustCoords(t, -2, -1.25, 0.125, 64)
	c1.SetPrecision(64)
	sliced := New(dims, &c1, limit, newPool(t))
	if !sliced.Precise() {
		t.Fatal("expected the wide path")
	}
	iterateAll(t, sliced, 9)

	c2 := mustCoords(t, -2, -1.25, 0.125, 64)
	c2.SetPrecision(64)
	oneShot := New(dims, &c2, limit, newPool(t))
	iterateAll(t, oneShot, limit)

	for i := range sliced.Results() {
		if sliced.Results()[i] != oneShot.Results()[i] {
			t.Fatalf("pixel %d: sliced %#x != one-shot %#x",
				i, sliced.Results()[i], oneShot.Results()[i])
		}
	}
}

func TestDoneProgresses(t *testing.T) {
	const limit = 50
	// A view inside the main cardioid: every pixel runs to the limit.
	coords := mustCoords(t, -0.1, -0.1, 0.003125, 16)
	e := New(mandelzoom.Dimensions{Width: 64, Height: 2}, &coords, limit, newPool(t))

	if e.Done() {
		t.Fatal("Done() = true before any iteration")
	}
	e.Iterate(5)
	if e.Done() {
		t.Fatal("Done() = true after 5 of 50 iterations on interior pixels")
	}
	iterateAll(t, e, 5)

	for i, r := range e.Results() {
		if r != limit|DoneFlag {
			t.Fatalf("interior pixel %d: got %#x, want %#x", i, r, uint32(limit|DoneFlag))
		}
	}
}

func TestIterateZeroBudget(t *testing.T) {
	coords := mustCoords(t, -2, -1, 1, 16)
	e := New(mandelzoom.Dimensions{Width: 4, Height: 2}, &coords, 20, newPool(t))

	e.Iterate(0)

	for i, r := range e.Results() {
		if r != 0 {
			t.Fatalf("pixel %d advanced on a zero budget: %#x", i, r)
		}
	}
}
