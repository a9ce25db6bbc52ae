package main

import (
	"embed"
	"fmt"
	"os"
	goruntime "runtime"

	"github.com/rs/zerolog"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/menu"
	"github.com/wailsapp/wails/v2/pkg/menu/keys"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/mac"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	os.Exit(execute(runApp, os.Args[1:]))
}

// runApp wires the services and blocks in the Wails event loop.
func runApp(cfg Config, cfgSvc *ConfigService, log zerolog.Logger) error {
	app := NewApp(cfg, cfgSvc, log)
	app.SetHotkeyService(NewHotkeyService(component(log, "hotkey")))
	app.SetTray(NewTray(app, FormatHotkey(cfg.Hotkey), component(log, "tray")))
	if goruntime.GOOS == "darwin" {
		if li, err := NewLoginItemService(cfgSvc.Path(), component(log, "login")); err == nil {
			app.SetLoginItemService(li)
		} else {
			log.Warn().Err(err).Msg("launch at login unavailable")
		}
	}

	// Application menu: keyboard shortcuts while the window is focused.
	appMenu := menu.NewMenu()
	if goruntime.GOOS == "darwin" {
		appMenu.Append(menu.AppMenu())
	}
	playback := appMenu.AddSubmenu("Playback")
	playback.AddText("Play / Pause", keys.Key("space"), func(_ *menu.CallbackData) {
		if err := app.TogglePlay(); err != nil {
			log.Warn().Err(err).Msg("menu toggle")
		}
	})
	playback.AddText("Next", keys.CmdOrCtrl("right"), func(_ *menu.CallbackData) { _ = app.Next() })
	playback.AddText("Previous", keys.CmdOrCtrl("left"), func(_ *menu.CallbackData) { _ = app.Prev() })
	playback.AddSeparator()
	playback.AddText("Show / Hide", keys.CmdOrCtrl(","), func(_ *menu.CallbackData) {
		app.ToggleWindow()
	})
	playback.AddText("Quit", keys.CmdOrCtrl("q"), func(_ *menu.CallbackData) {
		app.Quit()
	})

	err := wails.Run(&options.App{
		Title:     "Oscilloscope",
		Width:     960,
		Height:    540,
		MinWidth:  480,
		MinHeight: 300,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		BackgroundColour: &options.RGBA{R: 8, G: 10, B: 8, A: 255},
		OnStartup:        app.startup,
		OnShutdown:       app.shutdown,
		Bind:             []interface{}{app},
		Logger:           wailsLogger{log: component(log, "wails")},
		LogLevel:         wailsLevel(log.GetLevel()),
		Mac: &mac.Options{
			TitleBar:   mac.TitleBarHiddenInset(),
			Appearance: mac.NSAppearanceNameDarkAqua,
			About: &mac.AboutInfo{
				Title:   "Oscilloscope",
				Message: "An audio player that draws what it plays.",
			},
		},
		HideWindowOnClose: true, // X hides; quit from the tray or menu
		Menu:              appMenu,
	})
	if err != nil {
		return fmt.Errorf("wails: %w", err)
	}
	return nil
}
