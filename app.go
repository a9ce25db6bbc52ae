package main

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// Frontend events besides EventFrame and the download events.
const (
	EventPlayerState    = "player:state"    // PlayerStatus
	EventPlayerError    = "player:error"    // string
	EventHotkeyConflict = "hotkey:conflict" // string combo
)

// hotkeyStarter is the minimal interface the App needs from HotkeyService.
// Using an interface keeps real CGo goroutines out of unit tests.
type hotkeyStarter interface {
	Start(ctx context.Context, combo string, onTrigger func()) error
	Reregister(combo string) error
	Stop()
	IsRegistered() bool
}

// trayStarter is the App's view of the tray icon.
type trayStarter interface {
	Start()
	SetPlaying(playing bool)
}

// loginItemSyncer is the App's view of LoginItemService.
type loginItemSyncer interface {
	Sync(enabled bool, execPath string) error
	IsEnabled() bool
}

// windowOps covers the Wails window calls, which need a context from wails.Run.
type windowOps interface {
	Show(ctx context.Context)
	Hide(ctx context.Context)
	Quit(ctx context.Context)
}

type wailsWindow struct{}

func (wailsWindow) Show(ctx context.Context) { runtime.WindowShow(ctx) }
func (wailsWindow) Hide(ctx context.Context) { runtime.WindowHide(ctx) }
func (wailsWindow) Quit(ctx context.Context) { runtime.Quit(ctx) }

// App is the struct bound to the frontend.
// ctx is guarded by mu. startupCh is closed once startup() fires so that
// window calls arriving before Wails is ready can wait.
type App struct {
	mu        sync.RWMutex
	ctx       context.Context
	runCtx    context.Context
	runCancel context.CancelFunc
	startupCh chan struct{}
	once      sync.Once

	cfg      Config
	config   *ConfigService
	engine   *AudioEngine
	player   *Player
	playlist *Playlist
	settings *Settings
	loop     *RenderLoop
	fetcher  *TrackFetcher
	metrics  *Metrics
	hotkeys  hotkeyStarter   // nil in unit tests
	tray     trayStarter     // nil in unit tests
	login    loginItemSyncer // nil off macOS
	window   windowOps
	emitter  eventEmitter

	newEmitter    func(ctx context.Context) eventEmitter
	windowVisible atomic.Bool
	log           zerolog.Logger
}

// NewApp builds the audio, transport and render pipeline from cfg.
func NewApp(cfg Config, cfgSvc *ConfigService, log zerolog.Logger) *App {
	return newAppWithBackend(cfg, cfgSvc, &portaudioBackend{}, log)
}

// newAppWithBackend creates an App with an injectable audio backend (for tests).
func newAppWithBackend(cfg Config, cfgSvc *ConfigService, backend audioBackend, log zerolog.Logger) *App {
	cfg = cfg.withDefaults()
	m := NewMetrics()

	ring := NewRingBuffer(cfg.HistorySize, engineChannels)
	capture := NewCaptureState(cfg.SampleRate)
	tap := NewTap(ring, capture, m)
	engine := newAudioEngineWithBackend(backend, tap, capture, cfg.BlockSize, component(log, "engine"))

	playlist := NewPlaylist(cfg.Tracks)
	fetcher := NewTrackFetcher(component(log, "fetcher"))
	player := NewPlayer(engine, capture, fetcher, playlist, m, component(log, "player"))

	settings := NewSettings(cfg.Timebase, cfg.HistoryFrames())
	loop := NewRenderLoop(engine, settings, RenderConfig{
		FPS:              cfg.FPS,
		Margin:           cfg.Margin,
		VectorSamples:    cfg.VectorSamples,
		Vectorscope:      cfg.VectorscopeEnabled(),
		GuardOffset:      cfg.GuardOffset,
		BlockFrames:      cfg.BlockSize,
		MaxExtrapolation: cfg.MaxExtrapolation(),
	}, m, component(log, "render"))

	a := &App{
		startupCh:  make(chan struct{}),
		cfg:        cfg,
		config:     cfgSvc,
		engine:     engine,
		player:     player,
		playlist:   playlist,
		settings:   settings,
		loop:       loop,
		fetcher:    fetcher,
		metrics:    m,
		window:     wailsWindow{},
		emitter:    nopEmitter{},
		newEmitter: func(ctx context.Context) eventEmitter { return wailsEmitter{ctx: ctx} },
		log:        component(log, "app"),
	}
	a.windowVisible.Store(true)

	player.OnTrackLoaded(loop.ResetClock)
	player.OnStateChange(a.onPlayerState)
	player.OnError(func(err error) { a.emit(EventPlayerError, err.Error()) })
	return a
}

// SetHotkeyService injects the hotkey service (called by main.go before wails.Run).
func (a *App) SetHotkeyService(hs hotkeyStarter) { a.hotkeys = hs }

// SetTray injects the tray icon (called by main.go before wails.Run).
func (a *App) SetTray(t trayStarter) { a.tray = t }

// SetLoginItemService injects the launch-at-login manager.
func (a *App) SetLoginItemService(l loginItemSyncer) { a.login = l }

func (a *App) emit(event string, data ...interface{}) {
	a.mu.RLock()
	e := a.emitter
	a.mu.RUnlock()
	e.Emit(event, data...)
}

func (a *App) onPlayerState(s PlayerState) {
	if a.tray != nil {
		a.tray.SetPlaying(s == StatePlaying)
	}
	a.emit(EventPlayerState, a.player.Status())
}

// startup is called by Wails when the runtime is ready.
func (a *App) startup(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	emitter := a.newEmitter(ctx)

	a.mu.Lock()
	if a.runCancel != nil {
		a.runCancel()
	}
	a.ctx = ctx
	a.runCtx = runCtx
	a.runCancel = cancel
	a.emitter = emitter
	a.mu.Unlock()
	a.once.Do(func() { close(a.startupCh) })

	a.loop.SetEmitter(emitter)
	a.fetcher.SetEmitter(emitter)
	a.metrics.Serve(runCtx, a.cfg.MetricsAddr, component(a.log, "metrics"))
	go a.loop.Run(runCtx)
	go a.player.Run(runCtx)

	if a.hotkeys != nil {
		if err := a.hotkeys.Start(runCtx, a.cfg.Hotkey, a.hotkeyPressed); err != nil {
			if errors.Is(err, ErrHotkeyConflict) {
				a.log.Warn().Str("combo", a.cfg.Hotkey).Msg("hotkey taken by another app, use the tray or window controls")
				emitter.Emit(EventHotkeyConflict, a.cfg.Hotkey)
			} else {
				a.log.Error().Err(err).Msg("hotkey registration failed")
			}
		}
	}
	if a.tray != nil {
		a.tray.Start()
	}
	if err := a.syncLoginItem(a.cfg.LaunchAtLogin); err != nil {
		a.log.Warn().Err(err).Msg("launch at login")
	}
	a.log.Info().Int("tracks", a.playlist.Len()).Msg("started")
}

// shutdown is called by Wails after the frontend has been torn down.
func (a *App) shutdown(context.Context) {
	a.mu.Lock()
	cancel := a.runCancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if a.hotkeys != nil {
		a.hotkeys.Stop()
	}
	if err := a.engine.Close(); err != nil {
		a.log.Warn().Err(err).Msg("closing audio engine")
	}
	a.log.Info().Msg("stopped")
}

func (a *App) hotkeyPressed() {
	if err := a.TogglePlay(); err != nil {
		a.log.Warn().Err(err).Msg("hotkey toggle")
	}
}

// loadCtx is cancelled on shutdown so pending downloads stop with the app.
func (a *App) loadCtx() context.Context {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.runCtx == nil {
		return context.Background()
	}
	return a.runCtx
}

// waitForStartup blocks until Wails has initialised (startup() has been called).
func (a *App) waitForStartup() context.Context {
	<-a.startupCh
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ctx
}

// Play starts or resumes playback.
func (a *App) Play() error { return a.player.Play(a.loadCtx()) }

// Pause pauses playback; the scope freezes on the last frame.
func (a *App) Pause() { a.player.Pause() }

// TogglePlay switches between play and pause.
func (a *App) TogglePlay() error { return a.player.Toggle(a.loadCtx()) }

// Next plays the next playlist entry.
func (a *App) Next() error { return a.player.Next(a.loadCtx()) }

// Prev plays the previous playlist entry.
func (a *App) Prev() error { return a.player.Prev(a.loadCtx()) }

// SelectTrack plays playlist entry i.
func (a *App) SelectTrack(i int) error { return a.player.SelectTrack(a.loadCtx(), i) }

// Seek jumps to percent (0-100) of the current track.
func (a *App) Seek(percent float64) error { return a.player.Seek(percent) }

// SetCanvasSize is called by the frontend on load and on every resize.
func (a *App) SetCanvasSize(width, height int) { a.loop.SetCanvasSize(width, height) }

// SetTimebase sets the look-back window in frames and persists it. The
// clamped value is returned.
func (a *App) SetTimebase(frames int) int {
	n := a.settings.SetTimebase(frames)
	if a.config != nil {
		if err := a.config.Update(func(c *Config) { c.Timebase = n }); err != nil {
			a.log.Warn().Err(err).Msg("saving timebase")
		}
	}
	return n
}

// PreviewTimebase applies the look-back window without saving it, for
// slider drags. The clamped value is returned.
func (a *App) PreviewTimebase(frames int) int { return a.settings.SetTimebase(frames) }

// GetTimebase returns the current look-back window in frames.
func (a *App) GetTimebase() int { return a.settings.Timebase() }

// GetTracks returns the playlist.
func (a *App) GetTracks() []Track { return a.playlist.Tracks() }

// GetStatus returns the transport state displayed in the UI.
func (a *App) GetStatus() PlayerStatus { return a.player.Status() }

// GetHotkey returns the play/pause hotkey for display.
func (a *App) GetHotkey() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return FormatHotkey(a.cfg.Hotkey)
}

// SetHotkey re-registers the play/pause hotkey and persists it. On failure the
// previous combo stays active.
func (a *App) SetHotkey(combo string) error {
	if a.hotkeys == nil {
		return nil
	}
	if err := a.hotkeys.Reregister(combo); err != nil {
		return err
	}
	a.mu.Lock()
	a.cfg.Hotkey = combo
	a.mu.Unlock()
	if a.config != nil {
		return a.config.Update(func(c *Config) { c.Hotkey = combo })
	}
	return nil
}

func (a *App) syncLoginItem(enabled bool) error {
	if a.login == nil {
		return nil
	}
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	return a.login.Sync(enabled, exe)
}

// GetLaunchAtLogin reports whether the player starts at login.
func (a *App) GetLaunchAtLogin() bool {
	if a.login == nil {
		return false
	}
	return a.login.IsEnabled()
}

// SetLaunchAtLogin installs or removes the login item and persists the choice.
func (a *App) SetLaunchAtLogin(enabled bool) error {
	if err := a.syncLoginItem(enabled); err != nil {
		return err
	}
	a.mu.Lock()
	a.cfg.LaunchAtLogin = enabled
	a.mu.Unlock()
	if a.config != nil {
		return a.config.Update(func(c *Config) { c.LaunchAtLogin = enabled })
	}
	return nil
}

// ToggleWindow shows or hides the main window.
func (a *App) ToggleWindow() {
	show := !a.windowVisible.Load()
	a.windowVisible.Store(show)
	go func() {
		ctx := a.waitForStartup()
		if show {
			a.window.Show(ctx)
		} else {
			a.window.Hide(ctx)
		}
	}()
}

// ShowWindow brings the main window up.
func (a *App) ShowWindow() {
	a.windowVisible.Store(true)
	go func() {
		ctx := a.waitForStartup()
		a.window.Show(ctx)
	}()
}

// Quit exits the application.
func (a *App) Quit() {
	go func() {
		ctx := a.waitForStartup()
		a.window.Quit(ctx)
	}()
}
