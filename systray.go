package main

import (
	_ "embed"
	"sync"

	"github.com/getlantern/systray"
	"github.com/rs/zerolog"
)

//go:embed assets/icon-template.png
var iconBytes []byte

// trayActions is what the tray menu drives. App implements it.
type trayActions interface {
	TogglePlay() error
	Next() error
	Prev() error
	ToggleWindow()
	Quit()
}

type trayItem int

const (
	trayPlayPause trayItem = iota
	trayNext
	trayPrev
	trayToggleWindow
	trayQuit
)

func trayPlayLabel(playing bool) string {
	if playing {
		return "Pause"
	}
	return "Play"
}

// dispatchTray runs the action behind item. It reports whether the menu loop
// should stop.
func dispatchTray(item trayItem, a trayActions, log zerolog.Logger) bool {
	var err error
	switch item {
	case trayPlayPause:
		err = a.TogglePlay()
	case trayNext:
		err = a.Next()
	case trayPrev:
		err = a.Prev()
	case trayToggleWindow:
		a.ToggleWindow()
	case trayQuit:
		systray.Quit()
		a.Quit()
		return true
	}
	if err != nil {
		log.Warn().Err(err).Int("item", int(item)).Msg("tray action failed")
	}
	return false
}

// Tray is the system-tray icon with transport controls.
type Tray struct {
	app  trayActions
	log  zerolog.Logger
	hint string // hotkey shown in the tooltip

	mu       sync.Mutex
	playItem *systray.MenuItem
	playing  bool
}

// NewTray creates a tray bound to app. Call Start after Wails startup.
func NewTray(app trayActions, hotkeyHint string, log zerolog.Logger) *Tray {
	return &Tray{app: app, hint: hotkeyHint, log: log}
}

// Start launches the tray icon in a background goroutine. It must run after
// Wails startup so the platform UI loop already exists.
func (t *Tray) Start() {
	go systray.Run(t.onReady, func() {})
}

// SetPlaying updates the Play/Pause label. Safe before the menu exists.
func (t *Tray) SetPlaying(playing bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.playing = playing
	if t.playItem != nil {
		t.playItem.SetTitle(trayPlayLabel(playing))
	}
}

func (t *Tray) onReady() {
	systray.SetTemplateIcon(iconBytes, iconBytes)
	tooltip := "Oscilloscope Player"
	if t.hint != "" {
		tooltip += " (" + t.hint + " to play/pause)"
	}
	systray.SetTooltip(tooltip)

	t.mu.Lock()
	mPlay := systray.AddMenuItem(trayPlayLabel(t.playing), "Play or pause the current track")
	t.playItem = mPlay
	t.mu.Unlock()
	mNext := systray.AddMenuItem("Next", "Skip to the next track")
	mPrev := systray.AddMenuItem("Previous", "Go back to the previous track")
	systray.AddSeparator()
	mToggle := systray.AddMenuItem("Show / Hide", "Toggle the player window")
	mQuit := systray.AddMenuItem("Quit", "Exit the player")
	t.log.Debug().Msg("tray ready")

	go func() {
		for {
			var item trayItem
			select {
			case <-mPlay.ClickedCh:
				item = trayPlayPause
			case <-mNext.ClickedCh:
				item = trayNext
			case <-mPrev.ClickedCh:
				item = trayPrev
			case <-mToggle.ClickedCh:
				item = trayToggleWindow
			case <-mQuit.ClickedCh:
				item = trayQuit
			}
			if dispatchTray(item, t.app, t.log) {
				return
			}
		}
	}()
}
