package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaylistWrapsAround(t *testing.T) {
	p := NewPlaylist([]Track{{URL: "a.mp3"}, {URL: "b.mp3"}, {URL: "c.mp3"}})

	tr, i, err := p.Current()
	require.NoError(t, err)
	assert.Equal(t, 0, i)
	assert.Equal(t, "a", tr.Title)

	tr, _ = p.Prev()
	assert.Equal(t, "c.mp3", tr.URL)
	tr, _ = p.Next()
	assert.Equal(t, "a.mp3", tr.URL)
	tr, _ = p.Next()
	tr, _ = p.Next()
	tr, _ = p.Next()
	assert.Equal(t, "a.mp3", tr.URL)
}

func TestPlaylistEmpty(t *testing.T) {
	p := NewPlaylist(nil)

	_, _, err := p.Current()
	assert.ErrorIs(t, err, ErrNoTracks)
	_, err = p.Next()
	assert.ErrorIs(t, err, ErrNoTracks)
	_, err = p.Prev()
	assert.ErrorIs(t, err, ErrNoTracks)
	_, err = p.Select(0)
	assert.ErrorIs(t, err, ErrNoTracks)
}

func TestPlaylistSelect(t *testing.T) {
	p := NewPlaylist([]Track{{Title: "One", URL: "1.wav"}, {Title: "Two", URL: "2.wav"}})

	tr, err := p.Select(1)
	require.NoError(t, err)
	assert.Equal(t, "Two", tr.Title)

	_, err = p.Select(2)
	require.Error(t, err)
	_, i, _ := p.Current()
	assert.Equal(t, 1, i, "failed select keeps the cursor")
}

func TestPlaylistTitles(t *testing.T) {
	tests := []struct {
		url, want string
	}{
		{"/music/Intro Theme.flac", "Intro Theme"},
		{"https://dl.example.com/x/track01.mp3?dl=1", "track01"},
		{"https://example.com/", "example"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, titleFromURL(tt.url), tt.url)
	}
}

func TestPlaylistSkipsBlankEntries(t *testing.T) {
	p := NewPlaylist([]Track{{Title: "blank"}, {URL: "ok.ogg"}})
	assert.Equal(t, 1, p.Len())
	assert.Equal(t, []Track{{Title: "ok", URL: "ok.ogg"}}, p.Tracks())
}
