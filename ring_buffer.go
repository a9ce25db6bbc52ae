package main

import (
	"math"
	"sync/atomic"
)

// RingBuffer is a fixed-capacity circular history of float32 PCM samples,
// interleaved when channels > 1. The N most recently written samples are the
// logical history; older samples are overwritten.
//
// Consistency contract: exactly one goroutine (the audio callback) may call
// Write. Any number of readers may call ReadAt/Snapshot concurrently without
// locking. Every slot is an atomic word, so a reader never sees a half-written
// float, but it may see a slot from the block that is being written right now,
// or a slot one block stale. Renderers accept that; a one-sample glitch is not
// visible at audio/video rates.
type RingBuffer struct {
	slots    []atomic.Uint32 // math.Float32bits of each sample
	mask     uint64
	channels int

	// written counts every sample ever written. It only moves forward and is
	// published after the slots of a block are stored.
	written atomic.Uint64
}

// NewRingBuffer creates a RingBuffer holding at least capacity samples.
// Capacity is rounded up to the next power of two so indexing is a mask.
func NewRingBuffer(capacity, channels int) *RingBuffer {
	if channels < 1 {
		channels = 1
	}
	size := nextPow2(max(capacity, channels))
	return &RingBuffer{
		slots:    make([]atomic.Uint32, size),
		mask:     uint64(size - 1),
		channels: channels,
	}
}

// Write appends samples at the write cursor. It neither allocates nor blocks.
func (rb *RingBuffer) Write(samples []float32) {
	w := rb.written.Load()
	for i, s := range samples {
		rb.slots[(w+uint64(i))&rb.mask].Store(math.Float32bits(s))
	}
	rb.written.Store(w + uint64(len(samples)))
}

// WriteStereo interleaves left and right into adjacent slots. A nil or short
// right channel is filled from left. On a mono ring only left is written.
func (rb *RingBuffer) WriteStereo(left, right []float32) {
	if rb.channels == 1 {
		rb.Write(left)
		return
	}
	w := rb.written.Load()
	for i, l := range left {
		r := l
		if i < len(right) {
			r = right[i]
		}
		base := w + uint64(i*rb.channels)
		rb.slots[base&rb.mask].Store(math.Float32bits(l))
		rb.slots[(base+1)&rb.mask].Store(math.Float32bits(r))
		// Channels beyond stereo are left silent.
		for c := 2; c < rb.channels; c++ {
			rb.slots[(base+uint64(c))&rb.mask].Store(0)
		}
	}
	rb.written.Store(w + uint64(len(left)*rb.channels))
}

// ReadAt returns the sample at logicalIndex, taken modulo the capacity.
// Negative indices wrap as well.
func (rb *RingBuffer) ReadAt(logicalIndex int) float32 {
	return math.Float32frombits(rb.slots[uint64(logicalIndex)&rb.mask].Load())
}

// WriteIndex is the slot the next sample will be written to.
func (rb *RingBuffer) WriteIndex() int {
	return int(rb.written.Load() & rb.mask)
}

// Written is the total number of samples written since construction.
func (rb *RingBuffer) Written() uint64 {
	return rb.written.Load()
}

// Capacity is the number of samples the ring holds.
func (rb *RingBuffer) Capacity() int {
	return len(rb.slots)
}

// Channels is the interleave factor.
func (rb *RingBuffer) Channels() int {
	return rb.channels
}

// Snapshot captures the cursor. The samples are not copied; reads through the
// snapshot follow the same relaxed contract as ReadAt.
func (rb *RingBuffer) Snapshot() Snapshot {
	written := rb.written.Load()
	return Snapshot{
		ring:       rb,
		WriteIndex: int(written & rb.mask),
		Written:    written,
		Capacity:   len(rb.slots),
		Channels:   rb.channels,
	}
}

// Snapshot is a read-only view of a RingBuffer at a given write cursor.
type Snapshot struct {
	ring *RingBuffer

	WriteIndex int
	Written    uint64
	Capacity   int
	Channels   int
}

// ReadAt reads a sample by logical index modulo the capacity.
func (s Snapshot) ReadAt(logicalIndex int) float32 {
	if s.ring == nil {
		return 0
	}
	return s.ring.ReadAt(logicalIndex)
}

// Frames is the number of whole frames (one sample per channel) in the ring.
func (s Snapshot) Frames() int {
	if s.Channels == 0 {
		return 0
	}
	return s.Capacity / s.Channels
}

// Frame returns left and right of frame f (modulo Frames). Mono rings return
// the same value twice.
func (s Snapshot) Frame(f int) (left, right float32) {
	frames := s.Frames()
	if frames == 0 || s.ring == nil {
		return 0, 0
	}
	f %= frames
	if f < 0 {
		f += frames
	}
	base := f * s.Channels
	left = s.ring.ReadAt(base)
	if s.Channels == 1 {
		return left, left
	}
	return left, s.ring.ReadAt(base + 1)
}

// Mid returns the mono mix of frame f.
func (s Snapshot) Mid(f int) float32 {
	l, r := s.Frame(f)
	return (l + r) / 2
}

// nextPow2 rounds n up to a power of two (minimum 1).
func nextPow2(n int) int {
	size := 1
	for size < n {
		size <<= 1
	}
	return size
}
