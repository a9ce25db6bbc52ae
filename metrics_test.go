package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsPrometheusOutput(t *testing.T) {
	m := NewMetrics()
	m.captureBlocks.Add(3)
	m.renderFrames.Inc()

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	assert.Contains(t, body, "capture_blocks_total 3")
	assert.Contains(t, body, "render_frames_total 1")
	assert.Contains(t, body, "player_retries_total 0")
}

func TestMetricsSetsAreIndependent(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.loadFailures.Inc()
	assert.Equal(t, uint64(1), a.loadFailures.Get())
	assert.Equal(t, uint64(0), b.loadFailures.Get())
}

func TestMetricsServe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	m := NewMetrics()
	m.capturePanics.Inc()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Serve(ctx, addr, zerolog.Nop())

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	assert.Contains(t, body, "capture_panics_total 1")
}

func TestMetricsServeEmptyAddrIsNoop(t *testing.T) {
	NewMetrics().Serve(context.Background(), "", zerolog.Nop())
}
