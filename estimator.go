package main

import (
	"math"
	"time"
)

// TimeEstimator turns the block-granular ring cursor into a smooth "now"
// position by extrapolating with wall-clock time since the last write.
//
// The result is an estimate: it can lag by up to a block, and in rare cases
// read a couple of not-yet-written frames. Positions are in frames.
type TimeEstimator struct {
	// GuardOffset keeps the estimate this many frames behind the extrapolated
	// write position.
	GuardOffset float64
	// MaxExtrapolation bounds how long after the last write the estimate keeps
	// advancing. Past it (stalled device, clock jump) the advance is zero.
	MaxExtrapolation time.Duration
	// BlockFrames is the nominal callback size; a step backwards smaller than
	// two blocks is treated as jitter and held.
	BlockFrames int

	now func() time.Time

	last     float64 // last absolute (unwrapped) estimate
	haveLast bool
}

// NewTimeEstimator builds an estimator with the given guard and extrapolation
// window.
func NewTimeEstimator(guard int, maxExtrapolation time.Duration, blockFrames int) *TimeEstimator {
	return &TimeEstimator{
		GuardOffset:      float64(guard),
		MaxExtrapolation: maxExtrapolation,
		BlockFrames:      blockFrames,
		now:              time.Now,
	}
}

// Advance returns how many frames have likely been produced since the last
// ring write, at most one block. Negative or out-of-window elapsed time yields
// zero. Hosts that run several callbacks back to back leave long gaps between
// bursts; without the cap the estimate would run ahead of the writer and then
// step back when the next burst lands.
func (e *TimeEstimator) Advance(snap VisualizationSnapshot, now time.Time) float64 {
	if !snap.IsPlaying || snap.LastUpdate.IsZero() || snap.SampleRate <= 0 {
		return 0
	}
	elapsed := now.Sub(snap.LastUpdate)
	if elapsed <= 0 {
		return 0
	}
	if e.MaxExtrapolation > 0 && elapsed > e.MaxExtrapolation {
		return 0
	}
	adv := elapsed.Seconds() * snap.SampleRate
	if e.BlockFrames > 0 {
		adv = math.Min(adv, float64(e.BlockFrames))
	}
	return adv
}

// Estimate returns the smooth frame index in [0, frames) for this render tick.
func (e *TimeEstimator) Estimate(snap VisualizationSnapshot) float64 {
	return e.EstimateAt(snap, e.now())
}

// EstimateAt is Estimate with an explicit clock reading.
func (e *TimeEstimator) EstimateAt(snap VisualizationSnapshot, now time.Time) float64 {
	frames := snap.History.Frames()
	if frames == 0 {
		return 0
	}
	written := float64(snap.History.Written / uint64(snap.History.Channels))
	abs := written + e.Advance(snap, now) - e.GuardOffset
	if abs < 0 {
		abs = 0
	}

	if snap.IsPlaying && e.haveLast && abs < e.last && e.last-abs < float64(2*e.BlockFrames)+e.GuardOffset {
		abs = e.last
	}
	e.last, e.haveLast = abs, snap.IsPlaying

	return math.Mod(abs, float64(frames))
}

// Reset forgets the previous estimate, e.g. after a track load.
func (e *TimeEstimator) Reset() {
	e.haveLast = false
}
