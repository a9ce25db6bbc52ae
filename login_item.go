package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/rs/zerolog"
)

const (
	plistLabel    = "com.oscilloscope-player"
	plistFilename = plistLabel + ".plist"
)

// plistTemplate is the launchd agent that starts the player at login with the
// same config file the current instance uses.
var plistTemplate = template.Must(template.New("plist").Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN"
  "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.ExecPath}}</string>{{range .Args}}
        <string>{{.}}</string>{{end}}
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <false/>
</dict>
</plist>
`))

// LoginItemService manages the launchd login item for the player.
// plistDir defaults to ~/Library/LaunchAgents and is overridable for tests.
type LoginItemService struct {
	plistDir   string
	configPath string
	log        zerolog.Logger
}

// NewLoginItemService points at the user's LaunchAgents directory. configPath
// is passed to the launched process via --config.
func NewLoginItemService(configPath string, log zerolog.Logger) (*LoginItemService, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("login item: resolve home dir: %w", err)
	}
	return newLoginItemServiceAt(filepath.Join(home, "Library", "LaunchAgents"), configPath, log), nil
}

func newLoginItemServiceAt(dir, configPath string, log zerolog.Logger) *LoginItemService {
	return &LoginItemService{plistDir: dir, configPath: configPath, log: log}
}

// Enable writes the plist for execPath.
func (s *LoginItemService) Enable(execPath string) error {
	if err := os.MkdirAll(s.plistDir, 0o755); err != nil {
		return fmt.Errorf("login item: create LaunchAgents dir: %w", err)
	}

	f, err := os.Create(s.plistPath())
	if err != nil {
		return fmt.Errorf("login item: create plist: %w", err)
	}
	defer f.Close()

	data := struct {
		Label    string
		ExecPath string
		Args     []string
	}{Label: plistLabel, ExecPath: execPath}
	if s.configPath != "" {
		data.Args = []string{"--config", s.configPath}
	}
	if err := plistTemplate.Execute(f, data); err != nil {
		return fmt.Errorf("login item: write plist: %w", err)
	}
	s.log.Info().Str("plist", s.plistPath()).Msg("launch at login enabled")
	return nil
}

// Disable removes the plist. A missing plist is not an error.
func (s *LoginItemService) Disable() error {
	err := os.Remove(s.plistPath())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("login item: remove plist: %w", err)
	}
	return nil
}

// Sync makes the plist match the launch_at_login preference.
func (s *LoginItemService) Sync(enabled bool, execPath string) error {
	if enabled == s.IsEnabled() {
		return nil
	}
	if enabled {
		return s.Enable(execPath)
	}
	return s.Disable()
}

// IsEnabled reports whether the plist exists.
func (s *LoginItemService) IsEnabled() bool {
	_, err := os.Stat(s.plistPath())
	return err == nil
}

func (s *LoginItemService) plistPath() string {
	return filepath.Join(s.plistDir, plistFilename)
}
