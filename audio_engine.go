package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gopxl/beep/v2"
	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
)

// ErrAudioUnavailable is returned when no output stream could be opened.
var ErrAudioUnavailable = errors.New("audio output unavailable")

const engineChannels = 2 // stereo output; the tap interleaves L/R

// streamConfig is what the engine asks the host audio API for.
// FramesPerBuffer 0 lets the host pick the buffer size.
type streamConfig struct {
	SampleRate      float64
	FramesPerBuffer int
}

// audioBackend abstracts the real PortAudio implementation.
// Allows unit tests to drive the callback without an audio device.
type audioBackend interface {
	Open(cfg streamConfig, process func(out [][]float32)) error
	Start() error
	Stop() error
	Close() error
}

// portaudioBackend wraps gordonklaus/portaudio for production use. The
// callback runs on the host's real-time thread.
type portaudioBackend struct {
	stream      *portaudio.Stream
	initialized bool
}

func (b *portaudioBackend) Open(cfg streamConfig, process func(out [][]float32)) error {
	if !b.initialized {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("portaudio init: %w", err)
		}
		b.initialized = true
	}
	frames := cfg.FramesPerBuffer
	if frames <= 0 {
		frames = portaudio.FramesPerBufferUnspecified
	}
	stream, err := portaudio.OpenDefaultStream(0, engineChannels, cfg.SampleRate, frames, process)
	if err != nil {
		errStr := strings.ToLower(err.Error())
		if strings.Contains(errStr, "device unavailable") || strings.Contains(errStr, "no default output") {
			return fmt.Errorf("%w: %v", ErrAudioUnavailable, err)
		}
		return fmt.Errorf("portaudio open stream: %w", err)
	}
	b.stream = stream
	return nil
}

func (b *portaudioBackend) Start() error {
	if err := b.stream.Start(); err != nil {
		return fmt.Errorf("portaudio start stream: %w", err)
	}
	return nil
}

func (b *portaudioBackend) Stop() error {
	if b.stream == nil {
		return nil
	}
	if err := b.stream.Stop(); err != nil {
		return fmt.Errorf("portaudio stop stream: %w", err)
	}
	return nil
}

func (b *portaudioBackend) Close() error {
	var err error
	if b.stream != nil {
		err = b.stream.Close()
		b.stream = nil
	}
	if b.initialized {
		portaudio.Terminate() //nolint:errcheck
		b.initialized = false
	}
	return err
}

// AudioEngine plays the current track through the output stream and feeds the
// visualization tap from the same callback.
//
//	[decoder] -> [resample] -> process() -> device
//	                               '-> Tap -> RingBuffer
type AudioEngine struct {
	backend   audioBackend
	tap       *Tap
	state     *CaptureState
	blockSize int
	log       zerolog.Logger

	// srcMu guards seeking and swapping the source. The callback only
	// TryLocks it and plays silence on contention.
	srcMu   sync.Mutex
	source  atomic.Pointer[trackSource]
	scratch [][2]float64

	open  atomic.Bool
	ended chan struct{}
}

// NewAudioEngine creates an AudioEngine backed by PortAudio.
func NewAudioEngine(tap *Tap, state *CaptureState, blockSize int, log zerolog.Logger) *AudioEngine {
	return newAudioEngineWithBackend(&portaudioBackend{}, tap, state, blockSize, log)
}

// newAudioEngineWithBackend creates an AudioEngine with an injectable backend (for tests).
func newAudioEngineWithBackend(b audioBackend, tap *Tap, state *CaptureState, blockSize int, log zerolog.Logger) *AudioEngine {
	if blockSize <= 0 {
		blockSize = 128
	}
	return &AudioEngine{
		backend:   b,
		tap:       tap,
		state:     state,
		blockSize: blockSize,
		log:       log,
		scratch:   make([][2]float64, blockSize),
		ended:     make(chan struct{}, 1),
	}
}

// Open starts the output stream. With capture the stream is opened with the
// fixed low-latency block size and the tap enabled; without it the host picks
// the buffer size and the visualization stays off. Open on an open engine is
// a no-op.
func (e *AudioEngine) Open(capture bool) error {
	if e.open.Load() {
		return nil
	}
	cfg := streamConfig{SampleRate: e.state.SampleRate()}
	if capture {
		cfg.FramesPerBuffer = e.blockSize
	}
	e.tap.SetEnabled(capture)

	if err := e.backend.Open(cfg, e.process); err != nil {
		e.tap.SetEnabled(false)
		return fmt.Errorf("engine: open: %w", err)
	}
	if err := e.backend.Start(); err != nil {
		e.backend.Close() //nolint:errcheck
		e.tap.SetEnabled(false)
		return fmt.Errorf("engine: start: %w", err)
	}
	e.open.Store(true)
	e.log.Info().
		Float64("sample_rate", cfg.SampleRate).
		Int("frames_per_buffer", cfg.FramesPerBuffer).
		Bool("capture", capture).
		Msg("output stream started")
	return nil
}

// IsOpen reports whether the output stream is running.
func (e *AudioEngine) IsOpen() bool { return e.open.Load() }

// CaptureEnabled reports whether the visualization tap receives blocks.
func (e *AudioEngine) CaptureEnabled() bool { return e.open.Load() && e.tap.Enabled() }

// SampleRate is the output stream rate.
func (e *AudioEngine) SampleRate() beep.SampleRate {
	return beep.SampleRate(e.state.SampleRate())
}

// SetSource swaps the playing track and returns the previous one so the
// caller can close it outside the audio thread.
func (e *AudioEngine) SetSource(src *trackSource) *trackSource {
	e.srcMu.Lock()
	defer e.srcMu.Unlock()
	// Drain a stale end-of-track signal from the previous source.
	select {
	case <-e.ended:
	default:
	}
	return e.source.Swap(src)
}

// Source returns the current track, nil when none is loaded.
func (e *AudioEngine) Source() *trackSource { return e.source.Load() }

// WithSource runs fn with the source locked against the audio thread.
func (e *AudioEngine) WithSource(fn func(src *trackSource) error) error {
	e.srcMu.Lock()
	defer e.srcMu.Unlock()
	src := e.source.Load()
	if src == nil {
		return nil
	}
	return fn(src)
}

// Ended delivers one value each time the current source runs out.
func (e *AudioEngine) Ended() <-chan struct{} { return e.ended }

// TrackLoaded forgets the last write time. The history itself is kept.
func (e *AudioEngine) TrackLoaded() { e.state.ClearUpdate() }

// VisualizationSnapshot returns nil until the stream is open with capture.
func (e *AudioEngine) VisualizationSnapshot() *VisualizationSnapshot {
	if !e.CaptureEnabled() {
		return nil
	}
	snap := e.tap.Snapshot()
	return &snap
}

// CloseStream stops the output stream but keeps the current source, so the
// engine can be opened again with different settings.
func (e *AudioEngine) CloseStream() error {
	if !e.open.Swap(false) {
		return nil
	}
	var errs []error
	if err := e.backend.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := e.backend.Close(); err != nil {
		errs = append(errs, err)
	}
	e.tap.SetEnabled(false)
	return errors.Join(errs...)
}

// Close stops the stream and releases the current source.
func (e *AudioEngine) Close() error {
	var errs []error
	if err := e.CloseStream(); err != nil {
		errs = append(errs, err)
	}
	if old := e.SetSource(nil); old != nil {
		if err := old.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// process is the real-time callback. It must not block or allocate.
func (e *AudioEngine) process(out [][]float32) {
	if len(out) == 0 {
		return
	}
	left := out[0]
	var right []float32
	if len(out) > 1 {
		right = out[1]
	}

	if !e.state.IsPlaying() {
		silence(out, 0)
		return
	}
	src := e.source.Load()
	if src == nil || !e.srcMu.TryLock() {
		silence(out, 0)
		return
	}

	n := len(left)
	filled, ended := 0, false
	for filled < n {
		chunk := min(n-filled, len(e.scratch))
		got, ok := src.stream.Stream(e.scratch[:chunk])
		for i := 0; i < got; i++ {
			left[filled+i] = float32(e.scratch[i][0])
			if right != nil {
				right[filled+i] = float32(e.scratch[i][1])
			}
		}
		filled += got
		if !ok {
			ended = true
			break
		}
		if got == 0 {
			break
		}
	}
	src.syncPosition()
	e.srcMu.Unlock()

	silence(out, filled)
	if ended {
		select {
		case e.ended <- struct{}{}:
		default:
		}
	}
	e.tap.Process(left, right)
}

// silence zeroes every channel from offset on.
func silence(out [][]float32, from int) {
	for _, ch := range out {
		for i := from; i < len(ch); i++ {
			ch[i] = 0
		}
	}
}
