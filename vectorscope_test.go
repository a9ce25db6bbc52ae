package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stereoSnapshot(left, right []float32) Snapshot {
	rb := NewRingBuffer(4096, 2)
	rb.WriteStereo(left, right)
	return rb.Snapshot()
}

func sine(n int, phase float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.8 * math.Sin(2*math.Pi*float64(i)/64+phase))
	}
	return out
}

func TestVectorscopeInPhaseIsVertical(t *testing.T) {
	sig := sine(1024, 0)
	snap := stereoSnapshot(sig, sig)
	vr := VectorscopeRenderer{Samples: 1024}
	origin := Point{X: 600, Y: 200}

	frame := vr.Render(nil, snap, float64(snap.WriteIndex/2), origin, RenderRequest{CanvasWidth: 800, CanvasHeight: 400})
	require.Len(t, frame.Points, 1024)

	moved := false
	for _, p := range frame.Points {
		assert.InDelta(t, 0, p.X-origin.X, 1e-9)
		if math.Abs(p.Y-origin.Y) > 1 {
			moved = true
		}
	}
	assert.True(t, moved, "in-phase signal should span vertically")
}

func TestVectorscopeOutOfPhaseIsHorizontal(t *testing.T) {
	left := sine(1024, 0)
	right := make([]float32, len(left))
	for i, v := range left {
		right[i] = -v
	}
	snap := stereoSnapshot(left, right)
	vr := VectorscopeRenderer{Samples: 512}
	origin := Point{X: 300, Y: 100}

	frame := vr.Render(nil, snap, float64(snap.WriteIndex/2), origin, RenderRequest{CanvasWidth: 400, CanvasHeight: 200})
	require.Len(t, frame.Points, 512)
	for _, p := range frame.Points {
		assert.InDelta(t, 0, p.Y-origin.Y, 1e-9)
	}
}

func TestVectorscopeScaleAndAxes(t *testing.T) {
	snap := stereoSnapshot([]float32{1}, []float32{0})
	vr := VectorscopeRenderer{Samples: 1}
	origin := Point{X: 150, Y: 50}

	frame := vr.Render(nil, snap, 1, origin, RenderRequest{CanvasWidth: 200, CanvasHeight: 100})
	assert.InDelta(t, 35, frame.Scale, 1e-9)
	require.Len(t, frame.Axes, 2)
	horiz, vert := frame.Axes[0], frame.Axes[1]
	assert.InDelta(t, 115, horiz.From.X, 1e-9)
	assert.InDelta(t, 185, horiz.To.X, 1e-9)
	assert.Equal(t, 50.0, horiz.From.Y)
	assert.Equal(t, 50.0, horiz.To.Y)
	assert.Equal(t, 150.0, vert.From.X)
	assert.InDelta(t, 15, vert.From.Y, 1e-9)
	assert.InDelta(t, 85, vert.To.Y, 1e-9)

	// Left only: 45° up-right.
	require.Len(t, frame.Points, 1)
	assert.InDelta(t, 150+0.707*35, frame.Points[0].X, 1e-6)
	assert.InDelta(t, 50-0.707*35, frame.Points[0].Y, 1e-6)
}

func TestVectorscopeAxesIndependentOfSignal(t *testing.T) {
	vr := VectorscopeRenderer{Samples: 64}
	req := RenderRequest{CanvasWidth: 200, CanvasHeight: 100}
	origin := Point{X: 150, Y: 50}

	silent := vr.Render(nil, NewRingBuffer(256, 2).Snapshot(), 64, origin, req)
	loud := vr.Render(nil, stereoSnapshot(sine(128, 0), sine(128, 1)), 128, origin, req)
	assert.Equal(t, silent.Axes, loud.Axes)
}

func TestVectorscopeNoOps(t *testing.T) {
	snap := stereoSnapshot(sine(16, 0), sine(16, 0))
	origin := Point{X: 10, Y: 10}

	tests := []struct {
		name    string
		samples int
		req     RenderRequest
	}{
		{name: "zero points", samples: 0, req: RenderRequest{CanvasWidth: 100, CanvasHeight: 100}},
		{name: "zero height", samples: 16, req: RenderRequest{CanvasWidth: 100, CanvasHeight: 0}},
		{name: "zero width", samples: 16, req: RenderRequest{CanvasWidth: 0, CanvasHeight: 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := VectorscopeRenderer{Samples: tt.samples}.Render(nil, snap, 16, origin, tt.req)
			assert.Empty(t, frame.Points)
			assert.Empty(t, frame.Axes)
		})
	}
}

func TestVectorscopeSamplesClampedToHistory(t *testing.T) {
	snap := NewRingBuffer(64, 2).Snapshot()
	frame := VectorscopeRenderer{Samples: 1024}.Render(nil, snap, 0, Point{}, RenderRequest{CanvasWidth: 10, CanvasHeight: 10})
	assert.Len(t, frame.Points, 32)
}
