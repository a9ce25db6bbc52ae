package main

import "math"

// RenderRequest describes one frame: how far to look back and the geometry
// of the region being drawn into.
type RenderRequest struct {
	TimebaseFrames int
	CanvasWidth    int
	CanvasHeight   int
}

// WaveMode tells the frontend how to stroke a trace.
type WaveMode string

const (
	// WaveModeMinMax draws one vertical segment per column.
	WaveModeMinMax WaveMode = "minmax"
	// WaveModeLine joins the points with a polyline.
	WaveModeLine WaveMode = "line"
)

// WaveColumn is one pixel column of a trace. YMin is the screen y of the
// smallest sample in the column and YMax the screen y of the largest; screen y
// grows downwards, so YMax <= YMin. In line mode both are equal.
type WaveColumn struct {
	X    float64 `json:"x"`
	YMin float64 `json:"yMin"`
	YMax float64 `json:"yMax"`
}

// WaveformRenderer reconstructs a left-to-right trace of the most recent
// TimebaseFrames frames ending at the smooth index.
type WaveformRenderer struct {
	// Margin is the vertical padding in pixels kept free at top and bottom.
	Margin float64
}

// Y maps a sample in [-1, 1] to a screen y for the given height.
func (wr WaveformRenderer) Y(sample float32, height int) float64 {
	mid := float64(height) / 2
	return mid - float64(sample)*(mid-wr.Margin)
}

// Render appends the trace columns to dst. Zooming out (more than one frame
// per pixel) aggregates each column to its min and max so no peak is skipped;
// zooming in interpolates linearly between neighbouring frames.
func (wr WaveformRenderer) Render(dst []WaveColumn, snap Snapshot, smoothIndex float64, req RenderRequest) ([]WaveColumn, WaveMode) {
	width, height, timebase := req.CanvasWidth, req.CanvasHeight, req.TimebaseFrames
	frames := snap.Frames()
	if width <= 0 || height <= 0 || timebase <= 0 || frames == 0 {
		return dst, WaveModeLine
	}
	if timebase >= frames {
		timebase = frames - 1
	}

	samplesPerPixel := float64(timebase) / float64(width)
	end := int(math.Floor(smoothIndex))
	start := ((end-timebase)%frames + frames) % frames

	if samplesPerPixel > 1 {
		for col := 0; col < width; col++ {
			lo := int(float64(col) * samplesPerPixel)
			hi := int(float64(col+1) * samplesPerPixel)
			if col == width-1 {
				hi = timebase
			}
			if hi <= lo {
				hi = lo + 1
			}
			minV, maxV := float32(math.MaxFloat32), float32(-math.MaxFloat32)
			for i := lo; i < hi; i++ {
				v := snap.Mid(start + i)
				if v < minV {
					minV = v
				}
				if v > maxV {
					maxV = v
				}
			}
			dst = append(dst, WaveColumn{
				X:    float64(col),
				YMin: wr.Y(minV, height),
				YMax: wr.Y(maxV, height),
			})
		}
		return dst, WaveModeMinMax
	}

	// The fractional part of the smooth index shifts the window by a sub-frame
	// amount so slow scrolling does not step.
	origin := float64(start) + (smoothIndex - float64(end))
	for col := 0; col < width; col++ {
		pos := origin + float64(col)*samplesPerPixel
		i0 := math.Floor(pos)
		frac := float32(pos - i0)
		a := snap.Mid(int(i0))
		b := snap.Mid(int(i0) + 1)
		y := wr.Y(a+(b-a)*frac, height)
		dst = append(dst, WaveColumn{X: float64(col), YMin: y, YMax: y})
	}
	return dst, WaveModeLine
}
