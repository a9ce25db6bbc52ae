package main

// Point is a canvas coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Line is a straight guide segment.
type Line struct {
	From Point `json:"from"`
	To   Point `json:"to"`
}

// VectorFrame is one rendered vectorscope: the static guides plus the trace.
type VectorFrame struct {
	Origin Point   `json:"origin"`
	Scale  float64 `json:"scale"`
	Axes   []Line  `json:"axes"`
	Points []Point `json:"points"`
}

const (
	vectorRotation  = 0.707 // cos 45°, constant-power rotation
	vectorScaleFrac = 0.7
)

// VectorscopeRenderer plots L/R pairs rotated by 45° so in-phase content is
// vertical and out-of-phase content horizontal.
type VectorscopeRenderer struct {
	// Samples is the number of most recent stereo frames plotted.
	Samples int
}

// Project maps one stereo frame to plot coordinates relative to the origin,
// before scaling.
func (VectorscopeRenderer) Project(left, right float32) (x, y float64) {
	l, r := float64(left), float64(right)
	return (l - r) * vectorRotation, -(l + r) * vectorRotation
}

// Render draws into the region centred on origin. A zero-sized canvas or a
// zero sample count renders nothing.
func (vr VectorscopeRenderer) Render(dst []Point, snap Snapshot, smoothIndex float64, origin Point, req RenderRequest) VectorFrame {
	frames := snap.Frames()
	if req.CanvasWidth <= 0 || req.CanvasHeight <= 0 || vr.Samples <= 0 || frames == 0 {
		return VectorFrame{Origin: origin, Points: dst}
	}

	scale := float64(req.CanvasHeight) / 2 * vectorScaleFrac
	frame := VectorFrame{
		Origin: origin,
		Scale:  scale,
		Axes: []Line{
			{From: Point{origin.X - scale, origin.Y}, To: Point{origin.X + scale, origin.Y}},
			{From: Point{origin.X, origin.Y - scale}, To: Point{origin.X, origin.Y + scale}},
		},
	}

	n := vr.Samples
	if n > frames {
		n = frames
	}
	end := int(smoothIndex)
	for i := end - n; i < end; i++ {
		l, r := snap.Frame(i)
		x, y := vr.Project(l, r)
		dst = append(dst, Point{X: origin.X + x*scale, Y: origin.Y + y*scale})
	}
	frame.Points = dst
	return frame
}
