package main

import (
	"math"
	"sync/atomic"
	"time"
)

// CaptureState is shared between the transport (writer of isPlaying and the
// sample rate), the capture tap (writer of the last update timestamp) and the
// time estimator (reader of everything). All fields are atomics.
type CaptureState struct {
	sampleRate atomic.Uint64 // math.Float64bits
	playing    atomic.Bool
	lastUpdate atomic.Int64 // unix nanoseconds of the last ring write
}

// NewCaptureState returns a state for the given sample rate, paused.
func NewCaptureState(sampleRate float64) *CaptureState {
	s := &CaptureState{}
	s.SetSampleRate(sampleRate)
	return s
}

func (s *CaptureState) SetSampleRate(sr float64) { s.sampleRate.Store(math.Float64bits(sr)) }
func (s *CaptureState) SampleRate() float64      { return math.Float64frombits(s.sampleRate.Load()) }
func (s *CaptureState) SetPlaying(v bool)        { s.playing.Store(v) }
func (s *CaptureState) IsPlaying() bool          { return s.playing.Load() }

// MarkUpdate records the time of a ring write.
func (s *CaptureState) MarkUpdate(now time.Time) { s.lastUpdate.Store(now.UnixNano()) }

// ClearUpdate forgets the last write time until the next block arrives.
func (s *CaptureState) ClearUpdate() { s.lastUpdate.Store(0) }

// LastUpdate is the time of the last ring write, zero if none happened yet.
func (s *CaptureState) LastUpdate() time.Time {
	ns := s.lastUpdate.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Tap is the side-chain between the real-time audio callback and the history
// ring. It sees the same blocks that go to the device but never alters them.
//
// Process runs on the audio thread: it must not block, allocate or panic.
type Tap struct {
	ring    *RingBuffer
	state   *CaptureState
	metrics *Metrics
	now     func() time.Time
	enabled atomic.Bool
}

// NewTap creates an enabled tap writing into ring.
func NewTap(ring *RingBuffer, state *CaptureState, m *Metrics) *Tap {
	t := &Tap{ring: ring, state: state, metrics: m, now: time.Now}
	t.enabled.Store(true)
	return t
}

// Process copies one block per channel into the ring. A nil right channel
// means the source is mono.
func (t *Tap) Process(left, right []float32) {
	defer func() {
		if r := recover(); r != nil {
			t.metrics.capturePanics.Inc()
		}
	}()
	if !t.enabled.Load() || len(left) == 0 {
		return
	}
	// Timestamp first: a reader that sees the new cursor is then guaranteed
	// to see the new timestamp too, so it can only under-estimate.
	t.state.MarkUpdate(t.now())
	t.ring.WriteStereo(left, right)
	t.metrics.captureBlocks.Inc()
	t.metrics.captureSamples.Add(len(left))
}

// SetEnabled turns the tap on or off. A disabled tap drops blocks.
func (t *Tap) SetEnabled(v bool) { t.enabled.Store(v) }

// Enabled reports whether blocks reach the ring.
func (t *Tap) Enabled() bool { return t.enabled.Load() }

// VisualizationSnapshot is what the render loop needs for one frame.
type VisualizationSnapshot struct {
	History    Snapshot
	SampleRate float64
	IsPlaying  bool
	LastUpdate time.Time
}

// Snapshot reads the ring cursor and then the state. Process stores the
// timestamp before the cursor, so the pair is either consistent or the
// timestamp is one block newer than the cursor.
func (t *Tap) Snapshot() VisualizationSnapshot {
	history := t.ring.Snapshot()
	return VisualizationSnapshot{
		History:    history,
		LastUpdate: t.state.LastUpdate(),
		SampleRate: t.state.SampleRate(),
		IsPlaying:  t.state.IsPlaying(),
	}
}
