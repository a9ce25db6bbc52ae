package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/rs/zerolog"
)

// Metrics holds the counters of one player instance. Counter updates are a
// single atomic add, so they are the only bookkeeping done on the audio thread.
type Metrics struct {
	set *metrics.Set

	captureBlocks  *metrics.Counter
	captureSamples *metrics.Counter
	capturePanics  *metrics.Counter

	renderFrames  *metrics.Counter
	renderSkipped *metrics.Counter

	loadFailures *metrics.Counter
	loadRetries  *metrics.Counter
}

// NewMetrics registers a fresh counter set.
func NewMetrics() *Metrics {
	s := metrics.NewSet()
	return &Metrics{
		set:            s,
		captureBlocks:  s.NewCounter("capture_blocks_total"),
		captureSamples: s.NewCounter("capture_samples_total"),
		capturePanics:  s.NewCounter("capture_panics_total"),
		renderFrames:   s.NewCounter("render_frames_total"),
		renderSkipped:  s.NewCounter("render_skipped_frames_total"),
		loadFailures:   s.NewCounter("player_load_failures_total"),
		loadRetries:    s.NewCounter("player_retries_total"),
	}
}

// ServeHTTP writes the counters in Prometheus text format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	m.set.WritePrometheus(w)
}

// Serve exposes /metrics on addr until ctx is done. An empty addr is a no-op.
func (m *Metrics) Serve(ctx context.Context, addr string, log zerolog.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		log.Info().Str("addr", addr).Msg("metrics listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn().Err(err).Msg("metrics server stopped")
		}
	}()
}
