package mandelzoom

import (
	"fmt"
	"math"
)

// ViewState owns the viewport: coordinates, pixel dimensions and the
// HiDPI scale factor. It translates screen-space input (drag deltas,
// wheel zoom at a cursor) into coordinate-manager operations and tracks
// whether the view is still the default framing, which keeps resizes
// re-centered until the user first navigates.
type ViewState struct {
	dimensions  Dimensions
	scaleFactor float64
	coords      Coordinates
	reset       bool
}

// defaultCoordinates frames the escape circle of radius 2 along the
// shortest side, centered. The inputs are bounded by the viewport, so
// conversion failures indicate a broken invariant, not bad user input.
func defaultCoordinates(dimensions Dimensions, scaleFactor float64, precision int) Coordinates {
	step := 4 * float32(scaleFactor) / float32(dimensions.ShortestSide())
	x := -(float32(dimensions.Width) / float32(scaleFactor) / 2) * step
	y := -(float32(dimensions.Height) / float32(scaleFactor) / 2) * step
	c, err := NewCoordinates(x, y, step, precision)
	if err != nil {
		panic(fmt.Sprintf("mandelzoom: default framing for %dx%d: %v",
			dimensions.Width, dimensions.Height, err))
	}
	return c
}

// NewViewState returns the default framing for the given viewport.
func NewViewState(dimensions Dimensions, scaleFactor float64, precision int) *ViewState {
	return &ViewState{
		dimensions:  dimensions,
		scaleFactor: scaleFactor,
		coords:      defaultCoordinates(dimensions, scaleFactor, precision),
		reset:       true,
	}
}

// Reset restores the default framing at the current dimensions.
func (vs *ViewState) Reset() {
	vs.reset = true
	vs.coords = defaultCoordinates(vs.dimensions, vs.scaleFactor, vs.Precision())
}

// Dimensions returns the current viewport size.
func (vs *ViewState) Dimensions() Dimensions { return vs.dimensions }

// SetDimensions records a viewport resize. While the view is still the
// default framing it is recomputed for the new size; once the user has
// navigated, the coordinates stay put and the window simply shows more
// or less of the plane.
func (vs *ViewState) SetDimensions(dimensions Dimensions) {
	vs.dimensions = dimensions
	if vs.reset {
		vs.coords = defaultCoordinates(dimensions, vs.scaleFactor, vs.Precision())
	}
}

// ScaleFactor returns the HiDPI scale factor.
func (vs *ViewState) ScaleFactor() float64 { return vs.scaleFactor }

// SetScaleFactor records a monitor scale change. A navigated view keeps
// its position and rescales only the step, so the image covers the same
// plane region at the new pixel density.
func (vs *ViewState) SetScaleFactor(scaleFactor float64) {
	if vs.reset {
		vs.scaleFactor = scaleFactor
		vs.coords = defaultCoordinates(vs.dimensions, scaleFactor, vs.Precision())
		return
	}
	mul := vs.coords.fromDelta(float32(scaleFactor / vs.scaleFactor))
	vs.coords.step.MulAssign(&mul)
	vs.scaleFactor = scaleFactor
}

// Coords returns the underlying coordinate manager.
func (vs *ViewState) Coords() *Coordinates { return &vs.coords }

// Precision returns the configured precision in bits.
func (vs *ViewState) Precision() int { return vs.coords.Precision() }

// SetPrecision reconfigures the precision, resizing the coordinates.
func (vs *ViewState) SetPrecision(bits int) { vs.coords.SetPrecision(bits) }

// ZoomWithAnchor zooms by a wheel delta around an anchor point in screen
// coordinates, or around the viewport center when anchor is nil.
// Positive deltas zoom in by 1/(1+delta); negative zoom out by 1-delta,
// so equal-magnitude deltas cancel exactly.
func (vs *ViewState) ZoomWithAnchor(delta float32, anchor *Point) {
	vs.reset = false
	a := Point{
		X: float64(vs.dimensions.Width / 2),
		Y: float64(vs.dimensions.Height / 2),
	}
	if anchor != nil {
		a = *anchor
	}

	var mul float32
	if delta > 0 {
		mul = 1 / (1 + delta)
	} else {
		mul = 1 - delta
	}

	vs.coords.ZoomWithAnchor(
		mul,
		int32(math.Round(a.X/vs.scaleFactor)),
		int32(math.Round(a.Y/vs.scaleFactor)),
		2*4/float32(vs.dimensions.ShortestSide())*float32(vs.scaleFactor),
	)

	Logger().Debug("zoom",
		"x", vs.coords.x.Float32(),
		"y", vs.coords.y.Float32(),
		"step", vs.coords.step.Float32(),
		"words", vs.coords.Size())
}

// MoveByScreenDelta pans the view by a drag delta in screen pixels.
func (vs *ViewState) MoveByScreenDelta(dx, dy float32) {
	vs.reset = false
	vs.coords.MoveByDelta(dx/float32(vs.scaleFactor), dy/float32(vs.scaleFactor))

	Logger().Debug("pan",
		"x", vs.coords.x.Float32(),
		"y", vs.coords.y.Float32())
}
