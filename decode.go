package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// ErrUnsupportedFormat is returned for files no decoder handles.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// resampleQuality is beep's interpolation quality (1-64).
const resampleQuality = 4

// trackSource is a decoded track ready for the engine. stream is what the
// audio thread pulls from; it is the decoder itself or a resampler over it.
//
// The decoder is only touched with the engine's source lock held. pos mirrors
// its position so the transport can read it without taking that lock.
type trackSource struct {
	decoder beep.StreamSeekCloser
	stream  beep.Streamer
	format  beep.Format
	frames  int
	pos     atomic.Int64
	file    *os.File
}

// decodeFile opens path and picks a decoder by extension. When the file rate
// differs from target the stream is resampled.
func decodeFile(path string, target beep.SampleRate) (*trackSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("decode: open: %w", err)
	}

	var (
		dec    beep.StreamSeekCloser
		format beep.Format
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav", ".wave":
		dec, format, err = wav.Decode(f)
	case ".mp3":
		dec, format, err = mp3.Decode(f)
	case ".flac":
		dec, format, err = flac.Decode(f)
	case ".ogg", ".oga":
		dec, format, err = vorbis.Decode(f)
	default:
		f.Close()
		return nil, fmt.Errorf("decode: %w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("decode: %s: %w", filepath.Base(path), err)
	}

	src := &trackSource{decoder: dec, stream: dec, format: format, frames: dec.Len(), file: f}
	if target > 0 && format.SampleRate != target {
		src.stream = beep.Resample(resampleQuality, format.SampleRate, target, dec)
	}
	return src, nil
}

// Duration is the track length.
func (t *trackSource) Duration() time.Duration {
	return t.format.SampleRate.D(t.frames)
}

// Position is the decode position as of the last callback or seek.
func (t *trackSource) Position() time.Duration {
	return t.format.SampleRate.D(int(t.pos.Load()))
}

func (t *trackSource) syncPosition() { t.pos.Store(int64(t.decoder.Position())) }

// SeekFraction moves to f of the track length, f clamped to [0, 1]. The
// caller must hold the engine's source lock.
func (t *trackSource) SeekFraction(f float64) error {
	length := t.frames
	if length <= 0 {
		return nil
	}
	f = min(max(f, 0), 1)
	pos := int(f * float64(length))
	if pos >= length {
		pos = length - 1
	}
	if err := t.decoder.Seek(pos); err != nil {
		return fmt.Errorf("decode: seek: %w", err)
	}
	t.syncPosition()
	return nil
}

// Close releases the decoder and the file behind it.
func (t *trackSource) Close() error {
	err := t.decoder.Close()
	if t.file != nil {
		if cerr := t.file.Close(); cerr != nil && !errors.Is(cerr, os.ErrClosed) && err == nil {
			err = cerr
		}
	}
	return err
}
