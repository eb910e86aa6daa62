package mandelzoom

import (
	"math"
	"time"
)

// Frame budget bounds. A presentation budget is learned per word count,
// since the cost of a wide multiply grows quadratically with width.
const (
	uncalibratedLimit   = 15
	presentationDefault = 10
)

type frameKind int

const (
	framePresentation frameKind = iota
	frameCalibration
	frameIteration
)

type frameTimer struct {
	kind  frameKind
	start time.Time
	words int
}

// FrameBalancer tunes the per-frame iteration budget toward a target
// frame time. A presentation frame redraws every pixel from scratch; an
// iteration frame only advances unfinished pixels, so it affords a
// larger budget. Budgets for presentation frames are kept per coordinate
// word count and capped by a calibrated limit for that width.
//
// FrameBalancer is not safe for concurrent use; it belongs to the render
// loop.
type FrameBalancer struct {
	presentIterations map[int]uint32
	presentLimit      map[int]uint32
	iterationBudget   uint32
	targetMs          float64

	calibrationWords int
	calibrationLimit uint32
	calibrating      bool

	timer *frameTimer
}

// NewFrameBalancer returns a balancer targeting the given frame rate.
func NewFrameBalancer(targetFPS float64) *FrameBalancer {
	return &FrameBalancer{
		presentIterations: make(map[int]uint32),
		presentLimit:      make(map[int]uint32),
		iterationBudget:   presentationDefault,
		targetMs:          1000 / targetFPS,
	}
}

// Reset discards all learned budgets and calibration state.
func (b *FrameBalancer) Reset() {
	clear(b.presentIterations)
	clear(b.presentLimit)
	b.iterationBudget = presentationDefault
	b.calibrating = false
	b.timer = nil
}

// StartPresentationFrame begins timing a full redraw at the given
// coordinate word count.
func (b *FrameBalancer) StartPresentationFrame(words int) {
	b.timer = &frameTimer{kind: framePresentation, start: time.Now(), words: words}
}

// StartCalibrationFrame begins timing a calibration pass for the given
// word count and returns the iteration budget to use for it. Calibration
// restarts whenever the width changes.
func (b *FrameBalancer) StartCalibrationFrame(words int) uint32 {
	if !b.calibrating || b.calibrationWords != words {
		b.calibrationWords = words
		b.calibrationLimit = 5
		b.calibrating = true
	}
	b.timer = &frameTimer{kind: frameCalibration, start: time.Now(), words: words}
	return b.calibrationLimit
}

// StartIterationFrame begins timing an incremental frame.
func (b *FrameBalancer) StartIterationFrame() {
	b.timer = &frameTimer{kind: frameIteration, start: time.Now()}
}

// IsCalibrated reports whether a presentation limit has been learned for
// the given word count.
func (b *FrameBalancer) IsCalibrated(words int) bool {
	_, ok := b.presentLimit[words]
	return ok
}

// EndFrame stops the running timer and folds the measured frame time
// into the corresponding budget.
func (b *FrameBalancer) EndFrame() {
	t := b.timer
	b.timer = nil
	if t == nil {
		return
	}
	actualMs := float64(time.Since(t.start)) / float64(time.Millisecond)

	switch t.kind {
	case framePresentation:
		current, ok := b.presentIterations[t.words]
		if !ok {
			current = presentationDefault
		}
		correction := iterationCorrection(b.targetMs, actualMs)
		budget := uint32(math.Round(float64(current) * correction))
		budget = min(budget, b.presentIterationLimit(t.words))
		b.presentIterations[t.words] = budget
		b.iterationBudget = b.PresentIterations(t.words)
		Logger().Debug("present budget", "iterations", b.iterationBudget, "words", t.words)

	case frameCalibration:
		if !b.calibrating || b.calibrationWords != t.words {
			return
		}
		b.calibrating = false
		correction := iterationCorrection(b.targetMs, actualMs)
		limit := uint32(math.Round(float64(b.calibrationLimit) * correction))
		if correction > 0.98 && correction < 1.02 {
			// Converged: this width can sustain `limit` iterations per
			// target frame.
			b.presentLimit[t.words] = limit
			Logger().Debug("calibrated", "limit", limit*3, "words", t.words)
		} else {
			b.calibrationWords = t.words
			b.calibrationLimit = limit
			b.calibrating = true
		}

	case frameIteration:
		correction := iterationCorrection(b.targetMs, actualMs)
		b.iterationBudget = max(uint32(math.Round(float64(b.iterationBudget)*correction)), 1)
		Logger().Debug("iteration budget", "iterations", b.iterationBudget)
	}
}

// PresentIterations returns the budget for a full redraw at the given
// word count.
func (b *FrameBalancer) PresentIterations(words int) uint32 {
	budget, ok := b.presentIterations[words]
	if !ok {
		budget = presentationDefault
	}
	return min(max(budget, 1), b.presentIterationLimit(words))
}

// IterationBudget returns the budget for the next incremental frame.
func (b *FrameBalancer) IterationBudget() uint32 { return b.iterationBudget }

func (b *FrameBalancer) presentIterationLimit(words int) uint32 {
	if limit, ok := b.presentLimit[words]; ok {
		return max(limit*3, 1)
	}
	return uncalibratedLimit
}

func iterationCorrection(targetMs, actualMs float64) float64 {
	if actualMs <= 0 {
		// Frame was faster than the timer resolution; double instead of
		// dividing by zero.
		return 2
	}
	// Move only halfway toward the target to smooth oscillation.
	return (targetMs/actualMs-1)*0.5 + 1
}
