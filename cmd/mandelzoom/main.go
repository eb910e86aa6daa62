// Command mandelzoom is an interactive deep-zoom Mandelbrot viewer.
//
// Drag to pan, scroll to zoom around the cursor, press R to reset the
// view, S to save a PNG snapshot and Escape to quit. Rendering is
// progressive: every frame spends
// a tuned iteration budget, so the image sharpens while the view holds
// still and stays responsive while it moves.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"golang.org/x/image/draw"

	"github.com/gogpu/mandelzoom"
	"github.com/gogpu/mandelzoom/internal/fractal"
	"github.com/gogpu/mandelzoom/internal/gpu"
	"github.com/gogpu/mandelzoom/internal/parallel"
)

// zoomSpeed converts one wheel notch into a zoom delta.
const zoomSpeed = 0.1

func main() {
	var (
		width      = flag.Int("width", 1024, "window width")
		height     = flag.Int("height", 640, "window height")
		fps        = flag.Float64("fps", 60, "target frame rate for budget tuning")
		depthLimit = flag.Uint("depth", 100000, "maximum iteration depth per pixel")
		precision  = flag.Int("precision", 64, "significant fractional bits below the per-pixel step")
		forceCPU   = flag.Bool("cpu", false, "render on the CPU even when a GPU is available")
		verbose    = flag.Bool("verbose", false, "enable debug logging")

		colorExponent = flag.Float64("color-exponent", 0.9, "exponent applied to the depth before coloring")
		colorShift    = flag.Float64("color-shift", 0, "phase shift of the color cycle")
		colorCutoff   = flag.Uint("color-cutoff", 0, "render depths at or above this black (0: depth limit)")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	mandelzoom.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))

	cutoff := uint32(*colorCutoff)
	if cutoff == 0 {
		cutoff = uint32(*depthLimit)
	}
	app := &App{
		fps:        *fps,
		precision:  *precision,
		depthLimit: uint32(*depthLimit),
		colors: colorParams{
			exponent: *colorExponent,
			shift:    *colorShift,
			cutoff:   cutoff,
		},
		balancer: mandelzoom.NewFrameBalancer(*fps),
		pool:     parallel.NewWorkerPool(0),
	}
	defer app.pool.Close()

	if !*forceCPU {
		renderer, err := gpu.New()
		if err != nil {
			mandelzoom.Logger().Warn("falling back to CPU rendering", "error", err)
		} else {
			app.gpu = renderer
			defer renderer.Close()
		}
	}

	ebiten.SetWindowTitle("mandelzoom")
	ebiten.SetWindowSize(*width, *height)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	if err := ebiten.RunGame(app); err != nil {
		mandelzoom.Logger().Error("viewer exited", "error", err)
		os.Exit(1)
	}
}

// colorParams shapes the depth-to-color mapping: the escape depth is
// raised to an exponent to stretch the shallow depths where most detail
// lives, shifted along the color cycle, and cut off to black above a
// configurable depth.
type colorParams struct {
	exponent float64
	shift    float64
	cutoff   uint32
}

// mapDepth returns the palette position for an escape depth.
func (c *colorParams) mapDepth(depth uint32) float64 {
	return math.Pow(float64(depth), c.exponent)*0.1 + c.shift
}

// App is the ebiten game loop around the renderers: it feeds input into
// the view state, runs one budgeted render slice per tick and blits the
// colorized result.
type App struct {
	fps        float64
	precision  int
	depthLimit uint32
	colors     colorParams

	view     *mandelzoom.ViewState
	balancer *mandelzoom.FrameBalancer
	pool     *parallel.WorkerPool

	gpu    *gpu.Renderer
	engine *fractal.Engine

	// results mirrors the renderer's packed per-pixel buffer at the
	// aligned row stride; pix is the colorized RGBA frame at the render
	// resolution.
	results []uint32
	pix     []byte
	frame   *ebiten.Image

	// dirty means the view moved and the next slice must restart the
	// renderer; present means the restart still owes its first frame.
	dirty   bool
	present bool

	dragX, dragY int
	dragging     bool
}

func (a *App) Update() error {
	if ebiten.IsKeyPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	if a.view == nil {
		// Layout has not run yet.
		return nil
	}

	a.handleInput()
	a.renderSlice()
	return nil
}

func (a *App) handleInput() {
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		a.view.Reset()
		a.balancer.Reset()
		a.dirty = true
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyS) {
		if err := a.saveSnapshot(); err != nil {
			mandelzoom.Logger().Warn("snapshot failed", "error", err)
		}
	}

	cx, cy := ebiten.CursorPosition()
	if _, wheelY := ebiten.Wheel(); wheelY != 0 {
		a.view.ZoomWithAnchor(float32(wheelY*zoomSpeed),
			&mandelzoom.Point{X: float64(cx), Y: float64(cy)})
		a.dirty = true
	}

	if ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) {
		if a.dragging && (cx != a.dragX || cy != a.dragY) {
			a.view.MoveByScreenDelta(float32(cx-a.dragX), float32(cy-a.dragY))
			a.dirty = true
		}
		a.dragX, a.dragY = cx, cy
		a.dragging = true
	} else {
		a.dragging = false
	}
}

// renderDims is the logical-resolution grid the renderers iterate;
// Draw upscales it to the physical window.
func (a *App) renderDims() mandelzoom.Dimensions {
	return a.view.Dimensions().Scale(1 / a.view.ScaleFactor())
}

// renderSlice runs one budgeted step of the progressive render: a
// calibration pass while the GPU budget for the current width is still
// unknown, then one presentation frame from scratch, then iteration
// frames until every pixel settles.
func (a *App) renderSlice() {
	coords := a.view.Coords()
	words := coords.Size()
	dims := a.renderDims()

	if a.dirty {
		a.dirty = false
		a.present = true
		a.ensureBuffers(dims)
		if a.gpu != nil {
			if err := a.gpu.Configure(dims, coords, a.depthLimit); err != nil {
				mandelzoom.Logger().Warn("disabling GPU rendering", "error", err)
				a.gpu.Close()
				a.gpu = nil
			}
		}
	}

	switch {
	case a.gpu != nil && a.present && !a.balancer.IsCalibrated(words):
		budget := a.balancer.StartCalibrationFrame(words)
		err := a.gpu.Calibrate(budget)
		a.balancer.EndFrame()
		if err != nil {
			mandelzoom.Logger().Warn("disabling GPU rendering", "error", err)
			a.gpu.Close()
			a.gpu = nil
			a.dirty = true
		}

	case a.present:
		a.present = false
		a.balancer.StartPresentationFrame(words)
		budget := a.balancer.PresentIterations(words)
		if a.gpu != nil {
			if err := a.gpu.Iterate(budget, a.results); err != nil {
				mandelzoom.Logger().Warn("disabling GPU rendering", "error", err)
				a.gpu.Close()
				a.gpu = nil
				a.dirty = true
				return
			}
		} else {
			a.engine = fractal.New(dims, coords, a.depthLimit, a.pool)
			a.engine.Iterate(budget)
			copy(a.results, a.engine.Results())
		}
		a.balancer.EndFrame()
		a.colorize(dims)

	case !a.done():
		a.balancer.StartIterationFrame()
		budget := a.balancer.IterationBudget()
		if a.gpu != nil {
			if err := a.gpu.Iterate(budget, a.results); err != nil {
				mandelzoom.Logger().Warn("disabling GPU rendering", "error", err)
				a.gpu.Close()
				a.gpu = nil
				a.dirty = true
				return
			}
		} else {
			a.engine.Iterate(budget)
			copy(a.results, a.engine.Results())
		}
		a.balancer.EndFrame()
		a.colorize(dims)
	}
}

func (a *App) done() bool {
	if a.gpu != nil {
		return a.gpu.Done()
	}
	return a.engine == nil || a.engine.Done()
}

func (a *App) ensureBuffers(dims mandelzoom.Dimensions) {
	stride := int(dims.AlignedWidth(64))
	w, h := int(dims.Width), int(dims.Height)
	if len(a.results) != stride*h {
		a.results = make([]uint32, stride*h)
	}
	if len(a.pix) != w*h*4 {
		a.pix = make([]byte, w*h*4)
		if a.frame != nil {
			a.frame.Deallocate()
		}
		a.frame = ebiten.NewImage(w, h)
	}
}

// colorize maps the packed result buffer into RGBA. Escaped pixels get a
// depth-cycled palette; interior and unsettled pixels stay black.
func (a *App) colorize(dims mandelzoom.Dimensions) {
	stride := int(dims.AlignedWidth(64))
	w, h := int(dims.Width), int(dims.Height)
	for y := range h {
		row := y * stride
		for x := range w {
			r := a.results[row+x]
			o := (y*w + x) * 4
			depth := r &^ fractal.DoneFlag
			if r&fractal.DoneFlag != 0 && depth < a.depthLimit && depth < a.colors.cutoff {
				cr, cg, cb := palette(a.colors.mapDepth(depth))
				a.pix[o+0] = cr
				a.pix[o+1] = cg
				a.pix[o+2] = cb
			} else {
				a.pix[o+0] = 0
				a.pix[o+1] = 0
				a.pix[o+2] = 0
			}
			a.pix[o+3] = 0xff
		}
	}
	a.frame.WritePixels(a.pix)
}

// palette cycles three phase-shifted sine waves over the mapped depth.
func palette(t float64) (r, g, b byte) {
	r = byte(128 + 127*math.Sin(t))
	g = byte(128 + 127*math.Sin(t+2.094))
	b = byte(128 + 127*math.Sin(t+4.188))
	return r, g, b
}

// saveSnapshot writes the current frame as a PNG at window resolution,
// upscaling the render-resolution pixels with a Catmull-Rom kernel.
func (a *App) saveSnapshot() error {
	if a.pix == nil {
		return fmt.Errorf("nothing rendered yet")
	}
	dims := a.renderDims()
	src := &image.RGBA{
		Pix:    a.pix,
		Stride: int(dims.Width) * 4,
		Rect:   image.Rect(0, 0, int(dims.Width), int(dims.Height)),
	}
	full := a.view.Dimensions()
	dst := image.NewRGBA(image.Rect(0, 0, int(full.Width), int(full.Height)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	name := time.Now().Format("mandelzoom-20060102-150405.png")
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := png.Encode(f, dst); err != nil {
		return err
	}
	mandelzoom.Logger().Info("snapshot saved", "file", name,
		"width", full.Width, "height", full.Height)
	return nil
}

func (a *App) Draw(screen *ebiten.Image) {
	if a.frame == nil {
		return
	}
	var op ebiten.DrawImageOptions
	op.Filter = ebiten.FilterLinear
	op.GeoM.Scale(a.view.ScaleFactor(), a.view.ScaleFactor())
	screen.DrawImage(a.frame, &op)
}

// Layout sizes the screen at physical resolution so cursor coordinates
// arrive in physical pixels, matching the view state's expectations.
func (a *App) Layout(outsideWidth, outsideHeight int) (int, int) {
	scale := ebiten.Monitor().DeviceScaleFactor()
	dims := mandelzoom.Dimensions{
		Width:  uint32(math.Ceil(float64(outsideWidth) * scale)),
		Height: uint32(math.Ceil(float64(outsideHeight) * scale)),
	}

	if a.view == nil {
		a.view = mandelzoom.NewViewState(dims, scale, a.precision)
		a.dirty = true
		return int(dims.Width), int(dims.Height)
	}
	if dims != a.view.Dimensions() {
		a.view.SetDimensions(dims)
		a.dirty = true
	}
	if scale != a.view.ScaleFactor() {
		a.view.SetScaleFactor(scale)
		a.dirty = true
	}
	return int(dims.Width), int(dims.Height)
}
