package main

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// EventFrame is the Wails event carrying one rendered frame.
const EventFrame = "viz:frame"

// TimebaseSource is read once per frame for the look-back window in frames.
type TimebaseSource interface {
	Timebase() int
}

// Settings holds runtime-tunable visualization values shared between the
// frontend bindings (writers) and the render loop (reader).
type Settings struct {
	timebase    atomic.Int64
	maxTimebase int
}

// NewSettings creates Settings bounded by the history length in frames.
func NewSettings(timebase, historyFrames int) *Settings {
	s := &Settings{maxTimebase: historyFrames - 1}
	s.SetTimebase(timebase)
	return s
}

// Timebase implements TimebaseSource.
func (s *Settings) Timebase() int { return int(s.timebase.Load()) }

// SetTimebase clamps n to [1, history-1] and returns the stored value.
func (s *Settings) SetTimebase(n int) int {
	if n < 1 {
		n = 1
	}
	if s.maxTimebase > 0 && n > s.maxTimebase {
		n = s.maxTimebase
	}
	s.timebase.Store(int64(n))
	return n
}

// eventEmitter publishes frontend events. The Wails runtime needs its own
// context, so unit tests substitute a recorder.
type eventEmitter interface {
	Emit(event string, data ...interface{})
}

type wailsEmitter struct {
	ctx context.Context
}

func (w wailsEmitter) Emit(event string, data ...interface{}) {
	runtime.EventsEmit(w.ctx, event, data...)
}

type nopEmitter struct{}

func (nopEmitter) Emit(string, ...interface{}) {}

// snapshotSource returns nil until the capture pipeline is initialised.
type snapshotSource interface {
	VisualizationSnapshot() *VisualizationSnapshot
}

// Frame is the payload of EventFrame.
type Frame struct {
	Width    int          `json:"width"`
	Height   int          `json:"height"`
	Idle     bool         `json:"idle"`
	Playing  bool         `json:"playing"`
	Timebase int          `json:"timebase"`
	Mode     WaveMode     `json:"mode"`
	Wave     []WaveColumn `json:"wave"`
	WaveTo   float64      `json:"waveTo"` // right edge of the waveform region
	Vector   *VectorFrame `json:"vector,omitempty"`
}

// RenderLoop drives the renderers at a fixed rate on its own goroutine. It
// never waits on the audio thread; it only reads the ring.
type RenderLoop struct {
	source    snapshotSource
	timebase  TimebaseSource
	estimator *TimeEstimator
	wave      WaveformRenderer
	vector    VectorscopeRenderer
	scope     bool
	interval  time.Duration

	runMu      sync.Mutex // one Run at a time; it owns estimator, renderers and buffers
	waveBuf    []WaveColumn
	pointBuf   []Point
	emitterMu  sync.RWMutex
	emitter    eventEmitter
	resetClock atomic.Bool
	metrics    *Metrics
	log        zerolog.Logger

	width  atomic.Int32
	height atomic.Int32
}

// RenderConfig is the static part of the loop configuration.
type RenderConfig struct {
	FPS              int
	Margin           float64
	VectorSamples    int
	Vectorscope      bool
	GuardOffset      int
	BlockFrames      int
	MaxExtrapolation time.Duration
}

// NewRenderLoop wires the renderers to a snapshot source.
func NewRenderLoop(src snapshotSource, tb TimebaseSource, cfg RenderConfig, m *Metrics, log zerolog.Logger) *RenderLoop {
	fps := cfg.FPS
	if fps <= 0 {
		fps = 60
	}
	return &RenderLoop{
		source:    src,
		timebase:  tb,
		estimator: NewTimeEstimator(cfg.GuardOffset, cfg.MaxExtrapolation, cfg.BlockFrames),
		wave:      WaveformRenderer{Margin: cfg.Margin},
		vector:    VectorscopeRenderer{Samples: cfg.VectorSamples},
		scope:     cfg.Vectorscope,
		interval:  time.Second / time.Duration(fps),
		emitter:   nopEmitter{},
		metrics:   m,
		log:       log,
	}
}

// SetEmitter replaces the frame sink.
func (l *RenderLoop) SetEmitter(e eventEmitter) {
	l.emitterMu.Lock()
	l.emitter = e
	l.emitterMu.Unlock()
}

func (l *RenderLoop) currentEmitter() eventEmitter {
	l.emitterMu.RLock()
	defer l.emitterMu.RUnlock()
	return l.emitter
}

// SetCanvasSize records the current canvas geometry in device pixels.
func (l *RenderLoop) SetCanvasSize(width, height int) {
	l.width.Store(int32(max(width, 0)))
	l.height.Store(int32(max(height, 0)))
}

// CanvasSize returns the last geometry reported by the frontend.
func (l *RenderLoop) CanvasSize() (int, int) {
	return int(l.width.Load()), int(l.height.Load())
}

// ResetClock drops the estimator's monotonic hold before the next frame. Safe
// to call from any goroutine; used on track loads.
func (l *RenderLoop) ResetClock() { l.resetClock.Store(true) }

// RenderFrame renders one frame from the current snapshot. The second result
// is false when there is nothing to draw (zero-sized canvas). The frame's
// slices are reused by the next call, so emitters must be done with them when
// Emit returns.
func (l *RenderLoop) RenderFrame() (Frame, bool) {
	width, height := l.CanvasSize()
	if width == 0 || height == 0 {
		return Frame{}, false
	}
	frame := Frame{Width: width, Height: height, Timebase: l.timebase.Timebase()}

	snap := l.source.VisualizationSnapshot()
	if snap == nil {
		frame.Idle = true
		frame.WaveTo = float64(width)
		return frame, true
	}
	frame.Playing = snap.IsPlaying

	waveWidth := width
	if l.scope {
		waveWidth = width / 2
	}
	frame.WaveTo = float64(waveWidth)

	if l.resetClock.Swap(false) {
		l.estimator.Reset()
	}
	smooth := l.estimator.Estimate(*snap)
	req := RenderRequest{TimebaseFrames: frame.Timebase, CanvasWidth: waveWidth, CanvasHeight: height}
	l.waveBuf, frame.Mode = l.wave.Render(l.waveBuf[:0], snap.History, smooth, req)
	frame.Wave = l.waveBuf

	if l.scope {
		origin := Point{X: float64(width) * 3 / 4, Y: float64(height) / 2}
		vf := l.vector.Render(l.pointBuf[:0], snap.History, smooth, origin, RenderRequest{CanvasWidth: width - waveWidth, CanvasHeight: height})
		l.pointBuf = vf.Points
		frame.Vector = &vf
	}
	return frame, true
}

// Run renders and emits frames until ctx is cancelled.
func (l *RenderLoop) Run(ctx context.Context) {
	l.runMu.Lock()
	defer l.runMu.Unlock()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	l.log.Info().Dur("interval", l.interval).Msg("render loop started")
	defer l.log.Info().Msg("render loop stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, ok := l.RenderFrame()
			if !ok {
				l.metrics.renderSkipped.Inc()
				continue
			}
			l.currentEmitter().Emit(EventFrame, frame)
			l.metrics.renderFrames.Inc()
		}
	}
}
