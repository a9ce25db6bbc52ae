package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaveformYMapping(t *testing.T) {
	wr := WaveformRenderer{Margin: 10}
	assert.Equal(t, 50.0, wr.Y(0, 100))
	assert.Equal(t, 10.0, wr.Y(1, 100))
	assert.Equal(t, 90.0, wr.Y(-1, 100))
}

func TestWaveformZeroGeometryRendersNothing(t *testing.T) {
	rb := NewRingBuffer(1024, 1)
	wr := WaveformRenderer{Margin: 10}

	for _, req := range []RenderRequest{
		{TimebaseFrames: 100, CanvasWidth: 0, CanvasHeight: 100},
		{TimebaseFrames: 100, CanvasWidth: 100, CanvasHeight: 0},
		{TimebaseFrames: 0, CanvasWidth: 100, CanvasHeight: 100},
	} {
		cols, _ := wr.Render(nil, rb.Snapshot(), 0, req)
		assert.Empty(t, cols, "%+v", req)
	}
}

func TestWaveformSilenceIsFlatLine(t *testing.T) {
	rb := NewRingBuffer(1<<12, 2)
	wr := WaveformRenderer{Margin: 10}
	req := RenderRequest{TimebaseFrames: 1000, CanvasWidth: 200, CanvasHeight: 120}

	cols, mode := wr.Render(nil, rb.Snapshot(), 0, req)
	require.Len(t, cols, 200)
	assert.Equal(t, WaveModeMinMax, mode)
	for _, c := range cols {
		assert.Equal(t, 60.0, c.YMin)
		assert.Equal(t, 60.0, c.YMax)
	}
}

func TestWaveformMinMaxNeverSkipsSpike(t *testing.T) {
	const height = 200
	wr := WaveformRenderer{Margin: 10}
	peakY := wr.Y(1, height)
	restY := wr.Y(0, height)

	tests := []struct {
		timebase, width, spikeAge int
	}{
		{timebase: 6000, width: 800, spikeAge: 1},
		{timebase: 6000, width: 800, spikeAge: 3001},
		{timebase: 6000, width: 799, spikeAge: 5999},
		{timebase: 10000, width: 3, spikeAge: 4321},
		{timebase: 1000, width: 999, spikeAge: 500},
		{timebase: 16000, width: 1280, spikeAge: 7},
	}
	for _, tt := range tests {
		rb := NewRingBuffer(1<<15, 1)
		rb.Write(make([]float32, 9000))
		signal := make([]float32, tt.timebase)
		signal[len(signal)-tt.spikeAge] = 1
		rb.Write(signal)

		snap := rb.Snapshot()
		cols, mode := wr.Render(nil, snap, float64(snap.WriteIndex), RenderRequest{
			TimebaseFrames: tt.timebase, CanvasWidth: tt.width, CanvasHeight: height,
		})
		require.Equal(t, WaveModeMinMax, mode)
		require.Len(t, cols, tt.width)

		hits := 0
		for _, c := range cols {
			if c.YMax == peakY {
				hits++
			} else {
				assert.Equal(t, restY, c.YMax)
			}
			assert.Equal(t, restY, c.YMin)
		}
		assert.Equal(t, 1, hits, "timebase=%d width=%d age=%d", tt.timebase, tt.width, tt.spikeAge)
	}
}

func TestWaveformZoomedInInterpolates(t *testing.T) {
	const height = 100
	wr := WaveformRenderer{Margin: 0}
	rb := NewRingBuffer(64, 1)
	// Ramp: frame i holds i/10 for the last 9 frames.
	ramp := []float32{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8}
	rb.Write(ramp)
	snap := rb.Snapshot()

	// 8 frames over 16 pixels: half a frame per pixel.
	req := RenderRequest{TimebaseFrames: 8, CanvasWidth: 16, CanvasHeight: height}
	cols, mode := wr.Render(nil, snap, float64(snap.WriteIndex-1), req)
	require.Equal(t, WaveModeLine, mode)
	require.Len(t, cols, 16)

	for i, c := range cols {
		want := wr.Y(float32(i)*0.05, height)
		assert.InDelta(t, want, c.YMin, 1e-4, "column %d", i)
		assert.Equal(t, c.YMin, c.YMax)
	}
}

func TestWaveformFractionalIndexShiftsWindow(t *testing.T) {
	const height = 100
	wr := WaveformRenderer{Margin: 0}
	rb := NewRingBuffer(64, 1)
	rb.Write([]float32{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9})
	snap := rb.Snapshot()
	req := RenderRequest{TimebaseFrames: 4, CanvasWidth: 4, CanvasHeight: height}

	whole, _ := wr.Render(nil, snap, 8, req)
	half, _ := wr.Render(nil, snap, 8.5, req)
	for i := range whole {
		assert.InDelta(t, wr.Y(0.05, height)-wr.Y(0, height), half[i].YMin-whole[i].YMin, 1e-4)
	}
}

func TestWaveformTimebaseLongerThanHistoryIsClamped(t *testing.T) {
	rb := NewRingBuffer(256, 1)
	wr := WaveformRenderer{Margin: 10}

	cols, mode := wr.Render(nil, rb.Snapshot(), 0, RenderRequest{TimebaseFrames: 1 << 20, CanvasWidth: 100, CanvasHeight: 100})
	assert.Len(t, cols, 100)
	assert.Equal(t, WaveModeMinMax, mode)
}

func TestWaveformAppendsToDst(t *testing.T) {
	rb := NewRingBuffer(256, 1)
	wr := WaveformRenderer{Margin: 10}
	dst := make([]WaveColumn, 0, 64)

	cols, _ := wr.Render(dst, rb.Snapshot(), 0, RenderRequest{TimebaseFrames: 128, CanvasWidth: 64, CanvasHeight: 50})
	assert.Len(t, cols, 64)
	assert.Equal(t, 64, cap(cols))
}
