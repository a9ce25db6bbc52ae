package main

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
)

// ErrNoTracks is returned by playlist navigation on an empty playlist.
var ErrNoTracks = errors.New("playlist is empty")

// Track is one playlist entry. URL is a local path or an http(s) URL.
type Track struct {
	Title string `json:"title" yaml:"title"`
	URL   string `json:"url" yaml:"url"`
}

// Playlist is an ordered, wrap-around list of tracks with a cursor.
type Playlist struct {
	mu      sync.RWMutex
	tracks  []Track
	current int
}

// NewPlaylist copies tracks. Entries without a title get one from the URL.
func NewPlaylist(tracks []Track) *Playlist {
	p := &Playlist{tracks: make([]Track, 0, len(tracks))}
	for _, t := range tracks {
		if strings.TrimSpace(t.URL) == "" {
			continue
		}
		if t.Title == "" {
			t.Title = titleFromURL(t.URL)
		}
		p.tracks = append(p.tracks, t)
	}
	return p
}

func titleFromURL(u string) string {
	base := path.Base(strings.SplitN(u, "?", 2)[0])
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "." || base == "/" || base == "" {
		return u
	}
	return base
}

// Tracks returns a copy of the entries.
func (p *Playlist) Tracks() []Track {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Track(nil), p.tracks...)
}

// Len is the number of entries.
func (p *Playlist) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.tracks)
}

// Current returns the entry under the cursor and its index.
func (p *Playlist) Current() (Track, int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.tracks) == 0 {
		return Track{}, -1, ErrNoTracks
	}
	return p.tracks[p.current], p.current, nil
}

// Select moves the cursor to i.
func (p *Playlist) Select(i int) (Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.tracks) == 0 {
		return Track{}, ErrNoTracks
	}
	if i < 0 || i >= len(p.tracks) {
		return Track{}, fmt.Errorf("playlist: index %d out of range [0,%d)", i, len(p.tracks))
	}
	p.current = i
	return p.tracks[i], nil
}

// Next advances the cursor, wrapping to the first entry.
func (p *Playlist) Next() (Track, error) { return p.step(1) }

// Prev moves the cursor back, wrapping to the last entry.
func (p *Playlist) Prev() (Track, error) { return p.step(-1) }

func (p *Playlist) step(d int) (Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.tracks)
	if n == 0 {
		return Track{}, ErrNoTracks
	}
	p.current = ((p.current+d)%n + n) % n
	return p.tracks[p.current], nil
}
