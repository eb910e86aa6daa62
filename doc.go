// Package mandelzoom provides arbitrary-precision fixed-point arithmetic
// and view management for deep-zoom Mandelbrot rendering.
//
// # Overview
//
// A Mandelbrot zoom outruns float64 after a few dozen magnifications: the
// per-pixel step underflows and neighboring pixels collapse onto the same
// coordinate. mandelzoom represents coordinates as WideFloat, a
// two's-complement fixed-point number over 32-bit words whose width grows
// with the zoom level, so precision follows the magnification instead of
// being fixed up front.
//
// # Quick Start
//
//	import "github.com/gogpu/mandelzoom"
//
//	view := mandelzoom.NewViewState(
//		mandelzoom.Dimensions{Width: 800, Height: 600}, 1.0, 64)
//
//	// Zoom in around a screen point.
//	view.ZoomWithAnchor(0.1, &mandelzoom.Point{X: 400, Y: 300})
//
//	// The coordinate triple feeds a renderer.
//	coords := view.Coords()
//	_ = coords.X()    // left edge
//	_ = coords.Step() // per-pixel delta
//
// # Architecture
//
// The module is organized into:
//   - Public API: WideFloat, Coordinates, ViewState, FrameBalancer
//   - internal/fractal: CPU iteration engine over the worker pool
//   - internal/gpu: compute kernel dispatch via gogpu/wgpu
//   - cmd/mandelzoom: interactive ebiten viewer
//
// # Numbers
//
// WideFloat words are least significant first; the top word is a signed
// integer part, everything below is fraction. All arithmetic truncates
// toward zero rather than rounding, and both renderers implement the
// identical bit-exact semantics, so CPU and GPU frames are
// interchangeable pixel for pixel.
package mandelzoom
