package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/rs/zerolog"
)

// PlayerState is the transport state machine.
//
//	Idle -> Loading -> Playing <-> Paused
//	        Loading -> RetryingWithoutCapability -> Playing | Failed
//	        Loading -> Failed
type PlayerState int

const (
	StateIdle PlayerState = iota
	StateLoading
	StatePlaying
	StatePaused
	StateRetryingWithoutCapability
	StateFailed
)

func (s PlayerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateRetryingWithoutCapability:
		return "retrying"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("PlayerState(%d)", int(s))
}

// MarshalText makes the state readable in frontend payloads.
func (s PlayerState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// trackResolver turns a track reference into a local file path.
type trackResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

type decodeFunc func(path string, target beep.SampleRate) (*trackSource, error)

// Player owns the transport: loading tracks into the engine, play/pause,
// seeking and advancing through the playlist.
type Player struct {
	engine   *AudioEngine
	capture  *CaptureState
	fetcher  trackResolver
	decode   decodeFunc
	playlist *Playlist
	metrics  *Metrics
	log      zerolog.Logger

	loadMu sync.Mutex // one load at a time

	mu         sync.Mutex
	loadGen    uint64
	cancelLoad context.CancelFunc
	state      PlayerState
	retryCount int
	current    Track
	lastErr    error
	onError    func(error)
	onState    func(PlayerState)
	onLoad     func()
}

// NewPlayer wires the transport to an engine and a playlist.
func NewPlayer(engine *AudioEngine, capture *CaptureState, fetcher trackResolver, playlist *Playlist, m *Metrics, log zerolog.Logger) *Player {
	return &Player{
		engine:   engine,
		capture:  capture,
		fetcher:  fetcher,
		decode:   decodeFile,
		playlist: playlist,
		metrics:  m,
		log:      log,
	}
}

// OnError registers the callback for load failures.
func (p *Player) OnError(fn func(error)) { p.mu.Lock(); p.onError = fn; p.mu.Unlock() }

// OnStateChange registers the callback for state transitions.
func (p *Player) OnStateChange(fn func(PlayerState)) { p.mu.Lock(); p.onState = fn; p.mu.Unlock() }

// OnTrackLoaded registers the callback run at the start of every load.
func (p *Player) OnTrackLoaded(fn func()) { p.mu.Lock(); p.onLoad = fn; p.mu.Unlock() }

// State returns the current transport state.
func (p *Player) State() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Player) setState(s PlayerState) {
	p.mu.Lock()
	prev := p.state
	p.state = s
	cb := p.onState
	p.mu.Unlock()

	p.capture.SetPlaying(s == StatePlaying)
	if prev == s {
		return
	}
	p.log.Debug().Stringer("from", prev).Stringer("to", s).Msg("state")
	if cb != nil {
		cb(s)
	}
}

// Load fetches, decodes and starts tr. Engine open failures get one retry
// without the visualization; fetch and decode failures do not. A newer Load
// cancels this one's download; a superseded load returns context.Canceled
// and leaves the state to its successor.
func (p *Player) Load(ctx context.Context, tr Track) error {
	ctx, cancel := context.WithCancel(ctx)
	gen := p.supersede(cancel)
	defer p.finishLoad(gen, cancel)

	p.loadMu.Lock()
	defer p.loadMu.Unlock()
	if p.superseded(gen) {
		return context.Canceled
	}

	p.mu.Lock()
	p.retryCount = 0
	p.current = tr
	p.lastErr = nil
	onLoad := p.onLoad
	p.mu.Unlock()

	p.setState(StateLoading)
	p.engine.TrackLoaded()
	if onLoad != nil {
		onLoad()
	}
	p.log.Info().Str("title", tr.Title).Str("url", tr.URL).Msg("loading track")

	path, err := p.fetcher.Resolve(ctx, tr.URL)
	if p.superseded(gen) {
		p.log.Debug().Str("url", tr.URL).Msg("load superseded")
		return context.Canceled
	}
	if err != nil {
		return p.fail(fmt.Errorf("player: fetch %q: %w", tr.Title, err))
	}
	if err := p.openEngine(); err != nil {
		return p.fail(err)
	}
	src, err := p.decode(path, p.engine.SampleRate())
	if err != nil {
		return p.fail(fmt.Errorf("player: decode %q: %w", tr.Title, err))
	}
	if p.superseded(gen) {
		src.Close() //nolint:errcheck
		return context.Canceled
	}
	if old := p.engine.SetSource(src); old != nil {
		if err := old.Close(); err != nil {
			p.log.Warn().Err(err).Msg("closing previous track")
		}
	}
	p.setState(StatePlaying)
	p.log.Info().Str("title", tr.Title).Dur("duration", src.Duration()).Msg("playing")
	return nil
}

// supersede makes the caller the newest load and cancels the one before it.
func (p *Player) supersede(cancel context.CancelFunc) uint64 {
	p.mu.Lock()
	p.loadGen++
	gen := p.loadGen
	prev := p.cancelLoad
	p.cancelLoad = cancel
	p.mu.Unlock()
	if prev != nil {
		prev()
	}
	return gen
}

func (p *Player) superseded(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loadGen != gen
}

func (p *Player) finishLoad(gen uint64, cancel context.CancelFunc) {
	p.mu.Lock()
	if p.loadGen == gen {
		p.cancelLoad = nil
	}
	p.mu.Unlock()
	cancel()
}

// openEngine makes sure a stream is running. A stream left without capture by
// an earlier fallback is reopened so every load tries for the visualization.
func (p *Player) openEngine() error {
	if p.engine.CaptureEnabled() {
		return nil
	}
	if p.engine.IsOpen() {
		if err := p.engine.CloseStream(); err != nil {
			p.log.Warn().Err(err).Msg("closing stream without capture")
		}
	}
	err := p.engine.Open(true)
	if err == nil {
		return nil
	}

	p.mu.Lock()
	p.retryCount++
	p.mu.Unlock()

	p.log.Warn().Err(err).Msg("capture stream unavailable, retrying without visualization")
	p.metrics.loadRetries.Inc()
	p.setState(StateRetryingWithoutCapability)
	if err := p.engine.Open(false); err != nil {
		return fmt.Errorf("player: %w: %v", ErrAudioUnavailable, err)
	}
	return nil
}

// fail moves to Failed and reports err. A cancelled load goes back to Idle
// silently.
func (p *Player) fail(err error) error {
	if errFetchCanceled(err) {
		p.setState(StateIdle)
		return err
	}
	p.mu.Lock()
	p.lastErr = err
	cb := p.onError
	p.mu.Unlock()

	p.metrics.loadFailures.Inc()
	p.log.Error().Err(err).Msg("load failed")
	p.setState(StateFailed)
	if cb != nil {
		cb(err)
	}
	return err
}

// Play resumes a paused track, or loads the playlist's current entry when
// nothing is loaded.
func (p *Player) Play(ctx context.Context) error {
	switch p.State() {
	case StatePlaying, StateLoading, StateRetryingWithoutCapability:
		return nil
	case StatePaused:
		if p.engine.Source() != nil {
			p.setState(StatePlaying)
			return nil
		}
	}
	tr, _, err := p.playlist.Current()
	if err != nil {
		return fmt.Errorf("player: play: %w", err)
	}
	return p.Load(ctx, tr)
}

// Pause stops output after the current block. The history is frozen.
func (p *Player) Pause() {
	if p.State() == StatePlaying {
		p.setState(StatePaused)
	}
}

// Toggle switches between Play and Pause.
func (p *Player) Toggle(ctx context.Context) error {
	if p.State() == StatePlaying {
		p.Pause()
		return nil
	}
	return p.Play(ctx)
}

// Next loads the following playlist entry, wrapping at the end.
func (p *Player) Next(ctx context.Context) error {
	tr, err := p.playlist.Next()
	if err != nil {
		return fmt.Errorf("player: next: %w", err)
	}
	return p.Load(ctx, tr)
}

// Prev loads the previous playlist entry, wrapping at the start.
func (p *Player) Prev(ctx context.Context) error {
	tr, err := p.playlist.Prev()
	if err != nil {
		return fmt.Errorf("player: prev: %w", err)
	}
	return p.Load(ctx, tr)
}

// SelectTrack loads entry i.
func (p *Player) SelectTrack(ctx context.Context, i int) error {
	tr, err := p.playlist.Select(i)
	if err != nil {
		return fmt.Errorf("player: select: %w", err)
	}
	return p.Load(ctx, tr)
}

// Seek moves to percent (0-100) of the current track.
func (p *Player) Seek(percent float64) error {
	return p.engine.WithSource(func(src *trackSource) error {
		return src.SeekFraction(percent / 100)
	})
}

// Position is the playback position of the current track.
func (p *Player) Position() time.Duration {
	if src := p.engine.Source(); src != nil {
		return src.Position()
	}
	return 0
}

// Duration is the length of the current track.
func (p *Player) Duration() time.Duration {
	if src := p.engine.Source(); src != nil {
		return src.Duration()
	}
	return 0
}

// PlayerStatus is the transport snapshot returned to the frontend.
type PlayerStatus struct {
	State         PlayerState `json:"state"`
	Track         Track       `json:"track"`
	Index         int         `json:"index"`
	Position      float64     `json:"position"` // seconds
	Duration      float64     `json:"duration"` // seconds
	Visualization bool        `json:"visualization"`
	Retries       int         `json:"retries"`
	Error         string      `json:"error,omitempty"`
}

// Status returns a snapshot of the transport.
func (p *Player) Status() PlayerStatus {
	_, idx, _ := p.playlist.Current()
	p.mu.Lock()
	st := PlayerStatus{
		State:   p.state,
		Track:   p.current,
		Index:   idx,
		Retries: p.retryCount,
	}
	if p.lastErr != nil {
		st.Error = p.lastErr.Error()
	}
	p.mu.Unlock()

	st.Position = p.Position().Seconds()
	st.Duration = p.Duration().Seconds()
	st.Visualization = p.engine.CaptureEnabled()
	return st
}

// Run advances to the next track whenever the current one ends, until ctx is
// done.
func (p *Player) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.engine.Ended():
			if p.State() != StatePlaying {
				continue
			}
			if err := p.Next(ctx); err != nil && !errors.Is(err, ErrNoTracks) {
				p.log.Warn().Err(err).Msg("auto-advance failed")
			}
		}
	}
}
