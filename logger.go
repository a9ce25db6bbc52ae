package main

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	wailslogger "github.com/wailsapp/wails/v2/pkg/logger"
)

// newLogger builds the root logger. console selects the human-readable
// writer for terminals; otherwise lines are JSON.
func newLogger(level string, w io.Writer, console bool) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// component returns a child logger tagged with the service name.
func component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// wailsLevel maps the zerolog level onto the Wails runtime's own filter.
func wailsLevel(l zerolog.Level) wailslogger.LogLevel {
	switch {
	case l <= zerolog.TraceLevel:
		return wailslogger.TRACE
	case l == zerolog.DebugLevel:
		return wailslogger.DEBUG
	case l == zerolog.InfoLevel:
		return wailslogger.INFO
	case l == zerolog.WarnLevel:
		return wailslogger.WARNING
	default:
		return wailslogger.ERROR
	}
}

// wailsLogger routes the Wails runtime's log lines through zerolog.
type wailsLogger struct {
	log zerolog.Logger
}

var _ wailslogger.Logger = wailsLogger{}

func (w wailsLogger) Print(message string)   { w.log.Log().Msg(message) }
func (w wailsLogger) Trace(message string)   { w.log.Trace().Msg(message) }
func (w wailsLogger) Debug(message string)   { w.log.Debug().Msg(message) }
func (w wailsLogger) Info(message string)    { w.log.Info().Msg(message) }
func (w wailsLogger) Warning(message string) { w.log.Warn().Msg(message) }
func (w wailsLogger) Error(message string)   { w.log.Error().Msg(message) }
func (w wailsLogger) Fatal(message string)   { w.log.Fatal().Msg(message) }
