package mandelzoom

import "fmt"

// minWordCount is the narrowest coordinate representation: one integer
// word plus one fractional word, roughly float-equivalent precision.
const minWordCount = 2

// Coordinates owns the view position (x, y) and the per-pixel step, all
// three at a single shared word width. The width grows and shrinks with
// the zoom level: whenever step needs more or fewer significant
// fractional bits than the current width provides, all three numbers
// resize in lock-step, preserving their values.
//
// Precision is defined relative to step, the per-pixel delta. x and y
// merely inherit step's width so that pixel-offset multiplications stay
// well-defined.
type Coordinates struct {
	x         WideFloat
	y         WideFloat
	step      WideFloat
	precision int
}

// NewCoordinates builds coordinates at the minimal width from native
// floats: the top-left corner (x, y) and the per-pixel step.
func NewCoordinates(x, y, step float32, precision int) (Coordinates, error) {
	wx, err := FromFloat32(x, minWordCount)
	if err != nil {
		return Coordinates{}, fmt.Errorf("mandelzoom: coordinate x: %w", err)
	}
	wy, err := FromFloat32(y, minWordCount)
	if err != nil {
		return Coordinates{}, fmt.Errorf("mandelzoom: coordinate y: %w", err)
	}
	wstep, err := FromFloat32(step, minWordCount)
	if err != nil {
		return Coordinates{}, fmt.Errorf("mandelzoom: coordinate step: %w", err)
	}
	return Coordinates{x: wx, y: wy, step: wstep, precision: precision}, nil
}

// NewMagnifiedCoordinates builds coordinates already zoomed to the given
// width, with step set to the smallest positive value that keeps the
// target precision representable. It seeds reference views deep inside
// the set, such as the calibration coordinate.
func NewMagnifiedCoordinates(x, y float64, size, precision int) (Coordinates, error) {
	wx, err := FromFloat64(x, size)
	if err != nil {
		return Coordinates{}, fmt.Errorf("mandelzoom: coordinate x: %w", err)
	}
	wy, err := FromFloat64(y, size)
	if err != nil {
		return Coordinates{}, fmt.Errorf("mandelzoom: coordinate y: %w", err)
	}
	return Coordinates{x: wx, y: wy, step: MinPositive(size, precision), precision: precision}, nil
}

// X returns the view's left edge.
func (c *Coordinates) X() *WideFloat { return &c.x }

// Y returns the view's top edge.
func (c *Coordinates) Y() *WideFloat { return &c.y }

// Step returns the fractal-plane distance between adjacent pixels.
func (c *Coordinates) Step() *WideFloat { return &c.step }

// Size returns the shared word count of x, y and step.
func (c *Coordinates) Size() int { return c.step.WordCount() }

// Precision returns the configured number of significant fractional bits
// kept below step's leading nonzero bit.
func (c *Coordinates) Precision() int { return c.precision }

// fromDelta converts a screen-space value into a wide number at the
// current width. Screen values are bounded by the viewport, so the
// conversion cannot fail; an error here means the width invariant is
// already broken.
func (c *Coordinates) fromDelta(v float32) WideFloat {
	w, err := FromFloat32(v, c.step.WordCount())
	if err != nil {
		panic(fmt.Sprintf("mandelzoom: screen delta %g: %v", v, err))
	}
	return w
}

// MoveByDelta pans the view by a screen-space delta: each component is
// scaled by step and subtracted from the corresponding coordinate.
// Panning never resizes.
func (c *Coordinates) MoveByDelta(dx, dy float32) {
	wdx := c.fromDelta(dx)
	wdx = wdx.Mul(&c.step)
	c.x.Sub(&wdx)

	wdy := c.fromDelta(dy)
	wdy = wdy.Mul(&c.step)
	c.y.Sub(&wdy)
}

// ZoomWithAnchor scales step by mul while keeping the anchor pixel
// visually stationary.
//
// The buffers resize first, before any new value is computed: the new
// step is the one that decides how many fractional bits are needed, but
// computing it at a stale width would lose or misplace bits, so the
// resize is driven by the current step and the configured precision.
// Only at the minimal width is the new step clamped to maxStep, which
// stops zooming out past the point where the narrowest representation
// suffices.
func (c *Coordinates) ZoomWithAnchor(mul float32, anchorX, anchorY int32, maxStep float32) {
	c.resize(c.step.PrecisionDiff(c.precision))
	n := c.step.WordCount()

	wmul := c.fromDelta(mul)
	newStep := c.step.Mul(&wmul)
	if n == minWordCount {
		limit := c.fromDelta(maxStep)
		if newStep.Cmp(&limit) > 0 {
			newStep = limit
		}
	}

	// delta = (step - newStep) * anchor keeps the anchor pixel's
	// fractal-plane position unchanged across the step change.
	stepDiff := c.step.Clone()
	stepDiff.Sub(&newStep)

	ax := FromInt32(anchorX, n)
	dx := stepDiff.Mul(&ax)
	c.x.Add(&dx)

	ay := FromInt32(anchorY, n)
	dy := stepDiff.Mul(&ay)
	c.y.Add(&dy)

	c.step = newStep
}

// SetPrecision changes the configured precision and resizes the triple
// accordingly, without otherwise changing the values.
func (c *Coordinates) SetPrecision(bits int) {
	c.precision = bits
	c.resize(c.step.PrecisionDiff(bits))
}

// resize applies a word-count change to x, y and step together, never
// shrinking below the minimal width.
func (c *Coordinates) resize(diff int) {
	if n := c.step.WordCount(); n+diff < minWordCount {
		diff = minWordCount - n
	}
	if diff == 0 {
		return
	}
	c.x.ChangePrecision(diff)
	c.y.ChangePrecision(diff)
	c.step.ChangePrecision(diff)
	Logger().Debug("coordinate width changed",
		"words", c.step.WordCount(), "precision", c.precision)
}
