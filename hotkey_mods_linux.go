package main

import "golang.design/x/hotkey"

// X11 maps Alt to Mod1 and Super to Mod4 on practically every keyboard layout.
var modMap = map[string]hotkey.Modifier{
	"ctrl":    hotkey.ModCtrl,
	"control": hotkey.ModCtrl,
	"alt":     hotkey.Mod1,
	"option":  hotkey.Mod1,
	"shift":   hotkey.ModShift,
	"super":   hotkey.Mod4,
	"cmd":     hotkey.Mod4,
}

var modSymbols = map[string]string{
	"ctrl":    "Ctrl",
	"control": "Ctrl",
	"alt":     "Alt",
	"option":  "Alt",
	"shift":   "Shift",
	"super":   "Super",
	"cmd":     "Super",
}

const modSeparator = "+"
