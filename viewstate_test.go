package mandelzoom

import (
	"math"
	"testing"
)

func approx(t *testing.T, name string, got, want float64) {
	t.Helper()
	tol := 1e-5 * math.Max(math.Max(math.Abs(got), math.Abs(want)), 1)
	if math.Abs(got-want) > tol {
		t.Errorf("%s = %g, want %g", name, got, want)
	}
}

func TestViewStateDefault(t *testing.T) {
	vs := NewViewState(Dimensions{Width: 800, Height: 600}, 1, 64)

	step := 4.0 / 600
	approx(t, "step", vs.Coords().Step().Float64(), step)
	approx(t, "x", vs.Coords().X().Float64(), -400*step)
	approx(t, "y", vs.Coords().Y().Float64(), -300*step)
	if vs.Coords().Size() != 2 {
		t.Errorf("Size() = %d, want 2", vs.Coords().Size())
	}
}

func TestViewStateDefaultHiDPI(t *testing.T) {
	// Physical 1600x1200 at scale 2 must frame the same plane region as
	// logical 800x600 at scale 1: the step is per logical pixel.
	vs := NewViewState(Dimensions{Width: 1600, Height: 1200}, 2, 64)

	approx(t, "step", vs.Coords().Step().Float64(), 4.0/600)
	approx(t, "x", vs.Coords().X().Float64(), -400*4.0/600)
}

func TestSetDimensionsWhileDefault(t *testing.T) {
	vs := NewViewState(Dimensions{Width: 800, Height: 600}, 1, 64)

	vs.SetDimensions(Dimensions{Width: 1000, Height: 1000})

	approx(t, "step", vs.Coords().Step().Float64(), 4.0/1000)
	approx(t, "x", vs.Coords().X().Float64(), -2)
	approx(t, "y", vs.Coords().Y().Float64(), -2)
}

func TestSetDimensionsAfterNavigation(t *testing.T) {
	vs := NewViewState(Dimensions{Width: 800, Height: 600}, 1, 64)
	vs.ZoomWithAnchor(0.5, nil)
	step := vs.Coords().Step().Float64()
	x := vs.Coords().X().Float64()

	vs.SetDimensions(Dimensions{Width: 1000, Height: 400})

	if got := vs.Coords().Step().Float64(); got != step {
		t.Errorf("resize moved a navigated view: step %g -> %g", step, got)
	}
	if got := vs.Coords().X().Float64(); got != x {
		t.Errorf("resize moved a navigated view: x %g -> %g", x, got)
	}
}

func TestZoomCancel(t *testing.T) {
	vs := NewViewState(Dimensions{Width: 800, Height: 600}, 1, 64)
	step := vs.Coords().Step().Float64()
	x := vs.Coords().X().Float64()

	// Equal-magnitude deltas map to reciprocal factors, so in and out
	// cancel up to multiplication truncation.
	vs.ZoomWithAnchor(0.25, nil)
	vs.ZoomWithAnchor(-0.25, nil)

	approx(t, "step", vs.Coords().Step().Float64(), step)
	approx(t, "x", vs.Coords().X().Float64(), x)
}

func TestZoomInShrinksStep(t *testing.T) {
	vs := NewViewState(Dimensions{Width: 800, Height: 600}, 1, 64)
	step := vs.Coords().Step().Float64()

	vs.ZoomWithAnchor(0.5, &Point{X: 100, Y: 100})

	if got := vs.Coords().Step().Float64(); got >= step {
		t.Errorf("step after zoom in = %g, want below %g", got, step)
	}
}

func TestZoomOutStopsAtDefaultSpan(t *testing.T) {
	vs := NewViewState(Dimensions{Width: 800, Height: 600}, 1, 64)

	for range 50 {
		vs.ZoomWithAnchor(-1, nil)
	}

	// The step clamps at twice the default, one doubling past the full
	// escape circle.
	approx(t, "step", vs.Coords().Step().Float64(), 2*4.0/600)
	if vs.Coords().Size() != 2 {
		t.Errorf("Size() = %d, want 2", vs.Coords().Size())
	}
}

func TestMoveByScreenDelta(t *testing.T) {
	vs := NewViewState(Dimensions{Width: 800, Height: 600}, 2, 64)
	step := vs.Coords().Step().Float64()
	x := vs.Coords().X().Float64()
	y := vs.Coords().Y().Float64()

	// Physical drag deltas are halved at scale 2 before scaling by step.
	vs.MoveByScreenDelta(20, -10)

	approx(t, "x", vs.Coords().X().Float64(), x-10*step)
	approx(t, "y", vs.Coords().Y().Float64(), y+5*step)
}

func TestSetScaleFactorNavigated(t *testing.T) {
	vs := NewViewState(Dimensions{Width: 800, Height: 600}, 1, 64)
	vs.ZoomWithAnchor(0.5, nil)
	step := vs.Coords().Step().Float64()
	x := vs.Coords().X().Float64()

	vs.SetScaleFactor(2)

	approx(t, "step", vs.Coords().Step().Float64(), step*2)
	if got := vs.Coords().X().Float64(); got != x {
		t.Errorf("scale change moved the view: x %g -> %g", x, got)
	}
}

func TestReset(t *testing.T) {
	vs := NewViewState(Dimensions{Width: 800, Height: 600}, 1, 64)
	step := vs.Coords().Step().Float64()

	vs.ZoomWithAnchor(1.5, &Point{X: 10, Y: 20})
	vs.Reset()

	approx(t, "step", vs.Coords().Step().Float64(), step)

	// A reset view recenters on resize again.
	vs.SetDimensions(Dimensions{Width: 400, Height: 400})
	approx(t, "step", vs.Coords().Step().Float64(), 4.0/400)
}
