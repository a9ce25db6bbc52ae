package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.design/x/hotkey"
)

// ErrHotkeyConflict is returned when the hotkey is already registered by another app.
var ErrHotkeyConflict = errors.New("hotkey: key combination already registered by another application")

// ErrHotkeyInvalid is returned when the hotkey string cannot be parsed.
var ErrHotkeyInvalid = errors.New("hotkey: invalid key combination")

// hotkeyBackend abstracts the real hotkey implementation so tests can use a mock.
type hotkeyBackend interface {
	Register() error
	Unregister() error
	Keydown() <-chan struct{}
}

// realHotkeyBackend wraps golang.design/x/hotkey for production use.
// The hotkey.Hotkey is created in Register() so constructing a service never
// starts OS event handling.
type realHotkeyBackend struct {
	hk        *hotkey.Hotkey
	mods      []hotkey.Modifier
	key       hotkey.Key
	keyCh     chan struct{} // buffered relay; filled once in Register()
	closeOnce sync.Once
}

func newRealBackendFromCombo(combo string) (*realHotkeyBackend, error) {
	mods, key, err := parseHotkey(combo)
	if err != nil {
		return nil, err
	}
	return &realHotkeyBackend{mods: mods, key: key}, nil
}

func (r *realHotkeyBackend) Register() error {
	r.hk = hotkey.New(r.mods, r.key)
	if err := r.hk.Register(); err != nil {
		_ = r.hk.Unregister()
		r.hk = nil
		return ErrHotkeyConflict
	}
	r.keyCh = make(chan struct{}, 4)
	src := r.hk.Keydown()
	go func() {
		for range src {
			select {
			case r.keyCh <- struct{}{}:
			default: // drop presses while the transport is busy
			}
		}
		r.closeOnce.Do(func() { close(r.keyCh) })
	}()
	return nil
}

func (r *realHotkeyBackend) Unregister() error {
	if r.hk == nil {
		return nil
	}
	return r.hk.Unregister()
}

func (r *realHotkeyBackend) Keydown() <-chan struct{} {
	return r.keyCh
}

// HotkeyService owns the global play/pause hotkey.
type HotkeyService struct {
	mu             sync.Mutex
	backend        hotkeyBackend
	combo          string
	registered     atomic.Bool
	shuttingDown   atomic.Bool        // set during quit; listeners skip their own Unregister
	doneCh         chan struct{}      // closed when the active listen goroutine exits
	parentCtx      context.Context    // from Start, parent of every listener
	cancel         context.CancelFunc // cancels the active listener
	onTrigger      func()
	backendFactory func(string) (hotkeyBackend, error)
	log            zerolog.Logger
}

// NewHotkeyService creates a HotkeyService backed by the OS hotkey API.
func NewHotkeyService(log zerolog.Logger) *HotkeyService {
	return &HotkeyService{
		log: log,
		backendFactory: func(c string) (hotkeyBackend, error) {
			return newRealBackendFromCombo(c)
		},
	}
}

// newHotkeyServiceWithFactory creates a HotkeyService with a custom backend factory (for tests).
func newHotkeyServiceWithFactory(factory func(string) (hotkeyBackend, error)) *HotkeyService {
	return &HotkeyService{log: zerolog.Nop(), backendFactory: factory}
}

// Start registers combo and calls onTrigger for each press until ctx is done.
// Returns ErrHotkeyConflict if the key is taken by another app.
func (s *HotkeyService) Start(ctx context.Context, combo string, onTrigger func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.backendFactory(combo)
	if err != nil {
		return err
	}
	if err := b.Register(); err != nil {
		return err
	}
	s.backend = b
	s.combo = combo
	s.onTrigger = onTrigger
	s.parentCtx = ctx
	s.registered.Store(true)
	s.log.Info().Str("combo", combo).Msg("registered")

	s.listenLocked(b, combo)
	return nil
}

// Reregister swaps to a new combo at runtime. The new key is registered
// before the old one is released, so on any error the old hotkey stays live.
func (s *HotkeyService) Reregister(newCombo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.parentCtx == nil {
		return fmt.Errorf("hotkey: reregister before start")
	}
	newBackend, err := s.backendFactory(newCombo)
	if err != nil {
		return err
	}
	if err := newBackend.Register(); err != nil {
		return err
	}
	if s.cancel != nil {
		s.cancel()
	}
	oldCombo := s.combo
	s.backend = newBackend
	s.combo = newCombo
	s.registered.Store(true)
	s.log.Info().Str("from", oldCombo).Str("to", newCombo).Msg("re-registered")

	s.listenLocked(newBackend, newCombo)
	return nil
}

// listenLocked starts the listener for b. s.mu must be held.
func (s *HotkeyService) listenLocked(b hotkeyBackend, combo string) {
	listenCtx, cancel := context.WithCancel(s.parentCtx)
	s.cancel = cancel
	trigger := s.onTrigger
	done := make(chan struct{})
	s.doneCh = done
	keydown := b.Keydown()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error().Interface("panic", r).Msg("recovered in listener cleanup")
			}
			// During shutdown Stop has already unregistered while the OS event
			// loop was still alive.
			if !s.shuttingDown.Load() {
				b.Unregister() //nolint:errcheck
			}
			// Only the current listener may clear the flag; an old one exiting
			// after Reregister must not.
			s.mu.Lock()
			if s.doneCh == done {
				s.registered.Store(false)
			}
			s.mu.Unlock()
			s.log.Debug().Str("combo", combo).Msg("unregistered")
			close(done)
		}()
		for {
			select {
			case <-listenCtx.Done():
				return
			case _, ok := <-keydown:
				if !ok {
					return
				}
				s.log.Debug().Str("combo", combo).Msg("triggered")
				if trigger != nil {
					trigger()
				}
			}
		}
	}()
}

// Stop unregisters the hotkey and waits up to 200ms for the listener to exit.
func (s *HotkeyService) Stop() {
	s.shuttingDown.Store(true)

	s.mu.Lock()
	backend := s.backend
	doneCh := s.doneCh
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	if backend != nil {
		if err := backend.Unregister(); err != nil {
			s.log.Warn().Err(err).Msg("unregister on stop")
		}
	}
	if doneCh != nil {
		select {
		case <-doneCh:
		case <-time.After(200 * time.Millisecond):
			s.log.Warn().Msg("stop timed out waiting for listener")
		}
	}
	s.registered.Store(false)
}

// IsRegistered reports whether the hotkey is currently registered.
func (s *HotkeyService) IsRegistered() bool {
	return s.registered.Load()
}

// Combo returns the currently active hotkey combo string.
func (s *HotkeyService) Combo() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.combo
}

// Combos look like "ctrl+shift+p": one or more modifiers, then a key.
// Modifier names are per platform (see hotkey_mods_*.go).

var keyMap = map[string]hotkey.Key{
	"space":  hotkey.KeySpace,
	"tab":    hotkey.KeyTab,
	"return": hotkey.KeyReturn,
	"enter":  hotkey.KeyReturn,
	"left":   hotkey.KeyLeft,
	"right":  hotkey.KeyRight,
	"up":     hotkey.KeyUp,
	"down":   hotkey.KeyDown,
	"a":      hotkey.KeyA, "b": hotkey.KeyB, "c": hotkey.KeyC, "d": hotkey.KeyD,
	"e": hotkey.KeyE, "f": hotkey.KeyF, "g": hotkey.KeyG, "h": hotkey.KeyH,
	"i": hotkey.KeyI, "j": hotkey.KeyJ, "k": hotkey.KeyK, "l": hotkey.KeyL,
	"m": hotkey.KeyM, "n": hotkey.KeyN, "o": hotkey.KeyO, "p": hotkey.KeyP,
	"q": hotkey.KeyQ, "r": hotkey.KeyR, "s": hotkey.KeyS, "t": hotkey.KeyT,
	"u": hotkey.KeyU, "v": hotkey.KeyV, "w": hotkey.KeyW, "x": hotkey.KeyX,
	"y": hotkey.KeyY, "z": hotkey.KeyZ,
	"0": hotkey.Key0, "1": hotkey.Key1, "2": hotkey.Key2, "3": hotkey.Key3,
	"4": hotkey.Key4, "5": hotkey.Key5, "6": hotkey.Key6, "7": hotkey.Key7,
	"8": hotkey.Key8, "9": hotkey.Key9,
	"f1": hotkey.KeyF1, "f2": hotkey.KeyF2, "f3": hotkey.KeyF3, "f4": hotkey.KeyF4,
	"f5": hotkey.KeyF5, "f6": hotkey.KeyF6, "f7": hotkey.KeyF7, "f8": hotkey.KeyF8,
	"f9": hotkey.KeyF9, "f10": hotkey.KeyF10, "f11": hotkey.KeyF11, "f12": hotkey.KeyF12,
}

// parseHotkey parses a combo string into hotkey modifiers and key.
func parseHotkey(combo string) ([]hotkey.Modifier, hotkey.Key, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(combo)), "+")
	if len(parts) < 2 {
		return nil, 0, fmt.Errorf("%w: %q (need at least one modifier)", ErrHotkeyInvalid, combo)
	}
	keyPart := parts[len(parts)-1]
	modParts := parts[:len(parts)-1]

	key, ok := keyMap[keyPart]
	if !ok {
		return nil, 0, fmt.Errorf("%w: unknown key %q", ErrHotkeyInvalid, keyPart)
	}

	var mods []hotkey.Modifier
	seen := map[string]bool{}
	for _, m := range modParts {
		if seen[m] {
			continue
		}
		seen[m] = true
		mod, ok := modMap[m]
		if !ok {
			return nil, 0, fmt.Errorf("%w: unknown modifier %q", ErrHotkeyInvalid, m)
		}
		mods = append(mods, mod)
	}
	return mods, key, nil
}

// FormatHotkey converts a combo string to a display string,
// e.g. "ctrl+shift+p" → "⌃⇧P" on macOS and "Ctrl+Shift+P" elsewhere.
func FormatHotkey(combo string) string {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(combo)), "+")
	if len(parts) < 2 {
		return combo
	}
	keyDisplay := map[string]string{
		"space": "Space", "tab": "Tab", "return": "Return", "enter": "Return",
		"left": "←", "right": "→", "up": "↑", "down": "↓",
	}

	labels := make([]string, 0, len(parts))
	for _, p := range parts[:len(parts)-1] {
		if s, ok := modSymbols[p]; ok {
			labels = append(labels, s)
		}
	}
	key := parts[len(parts)-1]
	if d, ok := keyDisplay[key]; ok {
		labels = append(labels, d)
	} else {
		labels = append(labels, strings.ToUpper(key))
	}
	return strings.Join(labels, modSeparator)
}
