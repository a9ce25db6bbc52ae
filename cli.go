package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// runFunc starts the application with the resolved configuration.
type runFunc func(cfg Config, cfgSvc *ConfigService, log zerolog.Logger) error

type cliOptions struct {
	configPath  string
	logLevel    string
	metricsAddr string
	timebase    int
	vectorscope bool
}

// newRootCmd builds the command line. stderr receives log output.
func newRootCmd(run runFunc, stderr io.Writer) *cobra.Command {
	opts := &cliOptions{}
	cmd := &cobra.Command{
		Use:   "oscilloscope-player [flags] [track ...]",
		Short: "Play audio and draw it as an oscilloscope and vectorscope",
		Long: `Plays local files or URLs and renders the recent audio history as a
min/max waveform with a stereo vectorscope beside it.

Tracks given on the command line replace the playlist from the config file
for this session.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			boot, _ := newLogger("warn", stderr, isTerminal(stderr))
			cfgSvc := NewConfigService(opts.configPath, component(boot, "config"))
			cfg := applyFlags(cmd.Flags(), opts, cfgSvc.Load(), args)

			log, err := newLogger(cfg.LogLevel, stderr, isTerminal(stderr))
			if err != nil {
				return err
			}
			log.Info().Str("config", cfgSvc.Path()).Int("tracks", len(cfg.Tracks)).Msg("configuration loaded")
			return run(cfg, cfgSvc, log)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "config file (default ~/"+appDirName+"/config.yaml)")
	f.StringVar(&opts.logLevel, "log-level", "info", "trace, debug, info, warn or error")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. 127.0.0.1:9464")
	f.IntVar(&opts.timebase, "timebase", 0, "look-back window in frames")
	f.BoolVar(&opts.vectorscope, "vectorscope", true, "draw the stereo vectorscope")
	cmd.SetErr(stderr)
	return cmd
}

// applyFlags overrides file values with the flags the user actually set.
func applyFlags(flags *pflag.FlagSet, opts *cliOptions, cfg Config, args []string) Config {
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = opts.metricsAddr
	}
	if flags.Changed("timebase") {
		cfg.Timebase = opts.timebase
	}
	if flags.Changed("vectorscope") {
		v := opts.vectorscope
		cfg.Vectorscope = &v
	}
	if len(args) > 0 {
		cfg.Tracks = make([]Track, len(args))
		for i, a := range args {
			cfg.Tracks[i] = Track{URL: a}
		}
	}
	return cfg.withDefaults()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// execute runs the root command and reports the exit code.
func execute(run runFunc, args []string) int {
	cmd := newRootCmd(run, os.Stderr)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}
