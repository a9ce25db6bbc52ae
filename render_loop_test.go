package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	snap *VisualizationSnapshot
}

func (f *fakeSource) VisualizationSnapshot() *VisualizationSnapshot { return f.snap }

type recordingEmitter struct {
	mu     sync.Mutex
	events []string
	frames []Frame
}

func (r *recordingEmitter) Emit(event string, data ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	if len(data) == 1 {
		if f, ok := data[0].(Frame); ok {
			r.frames = append(r.frames, f)
		}
	}
}

func (r *recordingEmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func testRenderConfig(scope bool) RenderConfig {
	return RenderConfig{
		FPS:              200,
		Margin:           10,
		VectorSamples:    256,
		Vectorscope:      scope,
		GuardOffset:      2,
		BlockFrames:      128,
		MaxExtrapolation: 250 * time.Millisecond,
	}
}

func TestSettingsClampsTimebase(t *testing.T) {
	s := NewSettings(6000, 4096)
	assert.Equal(t, 4095, s.Timebase())
	assert.Equal(t, 1, s.SetTimebase(-5))
	assert.Equal(t, 300, s.SetTimebase(300))
	assert.Equal(t, 300, s.Timebase())
}

func TestRenderFrameIdleBeforeInit(t *testing.T) {
	loop := NewRenderLoop(&fakeSource{}, NewSettings(6000, 1<<20), testRenderConfig(true), NewMetrics(), zerolog.Nop())
	loop.SetCanvasSize(800, 300)

	frame, ok := loop.RenderFrame()
	require.True(t, ok)
	assert.True(t, frame.Idle)
	assert.Empty(t, frame.Wave)
	assert.Nil(t, frame.Vector)
}

func TestRenderFrameZeroCanvasIsSkipped(t *testing.T) {
	loop := NewRenderLoop(&fakeSource{}, NewSettings(6000, 1<<20), testRenderConfig(true), NewMetrics(), zerolog.Nop())

	_, ok := loop.RenderFrame()
	assert.False(t, ok)

	loop.SetCanvasSize(-1, 100)
	w, h := loop.CanvasSize()
	assert.Equal(t, 0, w)
	assert.Equal(t, 100, h)
}

func TestRenderFrameSplitsCanvasForVectorscope(t *testing.T) {
	rb := NewRingBuffer(1<<14, 2)
	rb.WriteStereo(sine(4096, 0), sine(4096, 0))
	src := &fakeSource{snap: &VisualizationSnapshot{History: rb.Snapshot(), SampleRate: testRate}}

	loop := NewRenderLoop(src, NewSettings(2000, rb.Snapshot().Frames()), testRenderConfig(true), NewMetrics(), zerolog.Nop())
	loop.SetCanvasSize(800, 300)

	frame, ok := loop.RenderFrame()
	require.True(t, ok)
	assert.False(t, frame.Idle)
	assert.Equal(t, 2000, frame.Timebase)
	assert.Equal(t, WaveModeMinMax, frame.Mode)
	assert.Len(t, frame.Wave, 400)
	assert.Equal(t, 400.0, frame.WaveTo)
	require.NotNil(t, frame.Vector)
	assert.Equal(t, Point{X: 600, Y: 150}, frame.Vector.Origin)
	assert.Len(t, frame.Vector.Points, 256)
}

func TestRenderFrameFullWidthWithoutVectorscope(t *testing.T) {
	rb := NewRingBuffer(1<<12, 2)
	src := &fakeSource{snap: &VisualizationSnapshot{History: rb.Snapshot(), SampleRate: testRate}}

	loop := NewRenderLoop(src, NewSettings(100, rb.Snapshot().Frames()), testRenderConfig(false), NewMetrics(), zerolog.Nop())
	loop.SetCanvasSize(640, 200)

	frame, ok := loop.RenderFrame()
	require.True(t, ok)
	assert.Len(t, frame.Wave, 640)
	assert.Equal(t, WaveModeLine, frame.Mode)
	assert.Nil(t, frame.Vector)
}

func TestRenderFrameReadsTimebaseEachFrame(t *testing.T) {
	rb := NewRingBuffer(1<<14, 2)
	src := &fakeSource{snap: &VisualizationSnapshot{History: rb.Snapshot(), SampleRate: testRate}}
	settings := NewSettings(6000, rb.Snapshot().Frames())
	loop := NewRenderLoop(src, settings, testRenderConfig(false), NewMetrics(), zerolog.Nop())
	loop.SetCanvasSize(100, 100)

	first, _ := loop.RenderFrame()
	settings.SetTimebase(50)
	second, _ := loop.RenderFrame()

	assert.Equal(t, 6000, first.Timebase)
	assert.Equal(t, WaveModeMinMax, first.Mode)
	assert.Equal(t, 50, second.Timebase)
	assert.Equal(t, WaveModeLine, second.Mode)
}

func TestRenderFrameReusesBuffers(t *testing.T) {
	rb := NewRingBuffer(1<<14, 2)
	rb.WriteStereo(sine(4096, 0), sine(4096, 0))
	src := &fakeSource{snap: &VisualizationSnapshot{History: rb.Snapshot(), SampleRate: testRate}}
	loop := NewRenderLoop(src, NewSettings(2000, rb.Snapshot().Frames()), testRenderConfig(true), NewMetrics(), zerolog.Nop())
	loop.SetCanvasSize(800, 300)

	first, _ := loop.RenderFrame()
	second, _ := loop.RenderFrame()

	require.Len(t, second.Wave, 400)
	require.NotNil(t, second.Vector)
	require.Len(t, second.Vector.Points, 256)
	assert.Same(t, &first.Wave[0], &second.Wave[0])
	assert.Same(t, &first.Vector.Points[0], &second.Vector.Points[0])
}

func TestRenderLoopRunEmitsUntilCancelled(t *testing.T) {
	m := NewMetrics()
	loop := NewRenderLoop(&fakeSource{}, NewSettings(6000, 1<<20), testRenderConfig(true), m, zerolog.Nop())
	rec := &recordingEmitter{}
	loop.SetEmitter(rec)
	loop.SetCanvasSize(320, 240)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return rec.count() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("render loop did not stop after cancel")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, ev := range rec.events {
		assert.Equal(t, EventFrame, ev)
	}
	assert.Equal(t, uint64(len(rec.events)), m.renderFrames.Get())
}

func TestResetClockDropsMonotonicHold(t *testing.T) {
	ahead := NewRingBuffer(1<<12, 2)
	ahead.WriteStereo(sine(1000, 0), sine(1000, 0))
	behind := NewRingBuffer(1<<12, 2)
	behind.WriteStereo(sine(900, 0), sine(900, 0))

	src := &fakeSource{snap: &VisualizationSnapshot{History: ahead.Snapshot(), SampleRate: testRate, IsPlaying: true}}
	loop := NewRenderLoop(src, NewSettings(100, 2048), testRenderConfig(false), NewMetrics(), zerolog.Nop())
	loop.SetCanvasSize(100, 100)

	_, ok := loop.RenderFrame()
	require.True(t, ok)
	assert.Equal(t, 998.0, loop.estimator.last)

	src.snap = &VisualizationSnapshot{History: behind.Snapshot(), SampleRate: testRate, IsPlaying: true}
	loop.RenderFrame()
	assert.Equal(t, 998.0, loop.estimator.last, "small backward step is held")

	loop.ResetClock()
	loop.RenderFrame()
	assert.Equal(t, 898.0, loop.estimator.last)
	assert.False(t, loop.resetClock.Load())
}
