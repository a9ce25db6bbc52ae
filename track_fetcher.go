package main

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Download events sent to the frontend.
const (
	EventDownloadProgress = "track:download:progress" // {url, pct}
	EventDownloadDone     = "track:download:done"     // {url, path}
	EventDownloadError    = "track:download:error"    // {url, err}
)

// fetchClient is shared by all downloads. HTTP/2 is disabled: share-link
// hosts occasionally reset h2 streams in the middle of large bodies.
var fetchClient = &http.Client{
	Transport: &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		TLSNextProto:    make(map[string]func(string, *tls.Conn) http.RoundTripper),
	},
}

// extByContentType maps audio MIME types to the extension the decoder keys on.
var extByContentType = map[string]string{
	"audio/mpeg":   ".mp3",
	"audio/mp3":    ".mp3",
	"audio/wav":    ".wav",
	"audio/x-wav":  ".wav",
	"audio/wave":   ".wav",
	"audio/flac":   ".flac",
	"audio/x-flac": ".flac",
	"audio/ogg":    ".ogg",
	"audio/vorbis": ".ogg",
}

// audioExts are the cache extensions the decoder can open.
var audioExts = map[string]bool{
	".wav": true, ".wave": true, ".mp3": true, ".flac": true, ".ogg": true, ".oga": true,
}

// cacheExt picks the cache file extension from the final URL path, falling
// back to the Content-Type when the path has no known audio extension. It
// returns "" when neither identifies the format.
func cacheExt(urlPath, contentType string) string {
	if ext := strings.ToLower(path.Ext(urlPath)); audioExts[ext] {
		return ext
	}
	ct := strings.TrimSpace(strings.Split(contentType, ";")[0])
	return extByContentType[strings.ToLower(ct)]
}

// TrackFetcher turns a track reference into a local file the decoder can open.
type TrackFetcher struct {
	mu         sync.Mutex
	cacheDir   string
	client     *http.Client
	emitter    eventEmitter
	log        zerolog.Logger
	inProgress map[string]bool // cache key → currently downloading
}

// NewTrackFetcher caches downloads under ~/.oscilloscope-player/cache.
func NewTrackFetcher(log zerolog.Logger) *TrackFetcher {
	home, _ := os.UserHomeDir()
	return newTrackFetcherAt(filepath.Join(home, appDirName, "cache"), fetchClient, log)
}

// newTrackFetcherAt creates a TrackFetcher with a custom cache dir and client (tests only).
func newTrackFetcherAt(dir string, client *http.Client, log zerolog.Logger) *TrackFetcher {
	return &TrackFetcher{
		cacheDir:   dir,
		client:     client,
		emitter:    nopEmitter{},
		log:        log,
		inProgress: make(map[string]bool),
	}
}

// SetEmitter sets the sink for download events.
func (tf *TrackFetcher) SetEmitter(e eventEmitter) {
	tf.mu.Lock()
	tf.emitter = e
	tf.mu.Unlock()
}

// normalizeTrackURL rewrites share links to their direct-download form.
// Anything that does not parse as a URL is returned unchanged.
func normalizeTrackURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return raw
	}
	switch strings.ToLower(u.Host) {
	case "www.dropbox.com", "dropbox.com":
		u.Host = "dl.dropboxusercontent.com"
		q := u.Query()
		if q.Get("dl") == "0" {
			q.Del("dl")
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func isRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

func cacheKey(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}

// Resolve returns a local path for ref. Local paths (and file:// URLs) are
// checked and returned as they are; remote URLs are downloaded once and then
// served from the cache.
func (tf *TrackFetcher) Resolve(ctx context.Context, ref string) (string, error) {
	if !isRemote(ref) {
		p := strings.TrimPrefix(ref, "file://")
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("fetcher: %w", err)
		}
		return p, nil
	}

	direct := normalizeTrackURL(ref)
	key := cacheKey(direct)
	if cached := tf.cached(key); cached != "" {
		tf.log.Debug().Str("url", direct).Str("path", cached).Msg("cache hit")
		return cached, nil
	}

	tf.mu.Lock()
	if tf.inProgress[key] {
		tf.mu.Unlock()
		return "", fmt.Errorf("fetcher: %q download already in progress", direct)
	}
	tf.inProgress[key] = true
	emitter := tf.emitter
	tf.mu.Unlock()

	defer func() {
		tf.mu.Lock()
		delete(tf.inProgress, key)
		tf.mu.Unlock()
	}()

	p, err := tf.download(ctx, direct, key, emitter)
	if err != nil {
		tf.log.Warn().Err(err).Str("url", direct).Msg("download failed")
		emitter.Emit(EventDownloadError, map[string]string{"url": ref, "err": err.Error()})
		return "", err
	}
	emitter.Emit(EventDownloadDone, map[string]string{"url": ref, "path": p})
	return p, nil
}

// cached returns the cached file for key, or "" when there is none.
func (tf *TrackFetcher) cached(key string) string {
	matches, _ := filepath.Glob(filepath.Join(tf.cacheDir, key+".*"))
	for _, m := range matches {
		if strings.HasSuffix(m, ".download") {
			continue
		}
		return m
	}
	return ""
}

// download streams the body to a temp file while emitting progress, then
// renames it into the cache.
func (tf *TrackFetcher) download(ctx context.Context, direct, key string, emitter eventEmitter) (finalPath string, err error) {
	defer func() {
		if r := recover(); r != nil {
			tf.log.Error().Interface("panic", r).Str("url", direct).Msg("download panic recovered")
			err = fmt.Errorf("fetcher: unexpected error: %v", r)
		}
	}()

	tf.log.Info().Str("url", direct).Msg("starting download")
	if err := os.MkdirAll(tf.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("fetcher: mkdir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, direct, nil)
	if err != nil {
		return "", fmt.Errorf("fetcher: request: %w", err)
	}
	resp, err := tf.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetcher: get: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetcher: server returned %d", resp.StatusCode)
	}

	ext := cacheExt(resp.Request.URL.Path, resp.Header.Get("Content-Type"))
	if ext == "" {
		return "", fmt.Errorf("fetcher: %w: cannot tell the type of %q", ErrUnsupportedFormat, direct)
	}

	tmpPath := filepath.Join(tf.cacheDir, key+".download")
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("fetcher: create temp file: %w", err)
	}
	defer os.Remove(tmpPath) // no-op after the rename

	pw := &progressWriter{total: resp.ContentLength, lastPct: -1, report: func(pct int) {
		emitter.Emit(EventDownloadProgress, map[string]interface{}{"url": direct, "pct": pct})
	}}
	if _, err := io.Copy(io.MultiWriter(f, pw), resp.Body); err != nil {
		f.Close()
		return "", fmt.Errorf("fetcher: read body: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("fetcher: close temp file: %w", err)
	}

	finalPath = filepath.Join(tf.cacheDir, key+ext)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("fetcher: rename: %w", err)
	}
	tf.log.Info().Str("url", direct).Int64("bytes", pw.written).Msg("download complete")
	return finalPath, nil
}

// progressWriter reports integer percent changes. Unknown lengths report nothing.
type progressWriter struct {
	total   int64
	written int64
	lastPct int
	report  func(pct int)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if p.total > 0 {
		pct := int(p.written * 100 / p.total)
		if pct != p.lastPct {
			p.lastPct = pct
			p.report(pct)
		}
	}
	return len(b), nil
}

// errFetchCanceled lets callers tell a cancelled load from a failed one.
func errFetchCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
