// Package bodymap implements the body-map drawing surface: a transparent
// raster overlay on top of a static body diagram, marked and erased with
// pointer events and flattened to a single PNG when a report is submitted.
//
// A Surface is not safe for concurrent use. Each authoring session owns one.
package bodymap

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"

	"github.com/DukeRupert/safetyline/internal/domain"
)

// Mode selects what a pointer drag does.
type Mode int

const (
	ModeMark Mode = iota
	ModeErase
)

func (m Mode) String() string {
	if m == ModeErase {
		return "erase"
	}
	return "mark"
}

// ParseMode parses "mark" or "erase".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "mark":
		return ModeMark, nil
	case "erase":
		return ModeErase, nil
	}
	return ModeMark, fmt.Errorf("unknown mode %q", s)
}

const (
	// StrokeWidth is the pen width in pixels.
	StrokeWidth = 2
	// EraseSize is the side of the square cleared around the pointer.
	EraseSize = 30
	// MaxSide bounds both overlay dimensions.
	MaxSide = 2048
)

// StrokeColor is the pen colour.
var StrokeColor = color.NRGBA{R: 0xFF, A: 0xFF}

// Surface is the drawing overlay.
type Surface struct {
	overlay *image.NRGBA
	mode    Mode
	down    bool
	last    image.Point
	drawn   bool
	inPath  bool
	strokes int
}

// NewSurface creates a transparent overlay of the given size. A zero size
// leaves the surface unsized until Resize is called.
func NewSurface(width, height int) *Surface {
	s := &Surface{}
	if err := s.Resize(width, height); err != nil {
		s.overlay = nil
	}
	return s
}

// Size returns the overlay dimensions, zero while unsized.
func (s *Surface) Size() (int, int) {
	if s.overlay == nil {
		return 0, 0
	}
	b := s.overlay.Bounds()
	return b.Dx(), b.Dy()
}

// Ready reports whether the overlay has a usable size.
func (s *Surface) Ready() bool {
	w, h := s.Size()
	return w > 0 && h > 0
}

// Resize matches the overlay to the rendered size of the reference image.
// Existing marks are scaled to the new size. Sizes above MaxSide are
// rejected and leave the surface unchanged.
func (s *Surface) Resize(width, height int) error {
	if width > MaxSide || height > MaxSide {
		return fmt.Errorf("surface size %dx%d exceeds %dx%d", width, height, MaxSide, MaxSide)
	}
	if width <= 0 || height <= 0 {
		s.overlay = nil
		s.down = false
		return nil
	}
	if s.overlay != nil && s.drawn {
		s.overlay = imaging.Resize(s.overlay, width, height, imaging.NearestNeighbor)
		return nil
	}
	s.overlay = image.NewNRGBA(image.Rect(0, 0, width, height))
	return nil
}

// Clone returns an independent copy of the surface.
func (s *Surface) Clone() *Surface {
	c := *s
	if s.overlay != nil {
		c.overlay = imaging.Clone(s.overlay)
	}
	return &c
}

// SetMode switches between marking and erasing. Drawn content is untouched.
func (s *Surface) SetMode(m Mode) {
	s.mode = m
}

// Mode returns the current mode.
func (s *Surface) Mode() Mode {
	return s.mode
}

// Drawn reports whether at least one stroke segment has been drawn. Erasing
// does not reset it.
func (s *Surface) Drawn() bool {
	return s.drawn
}

// Strokes returns the number of paths begun in mark mode that drew at
// least one segment.
func (s *Surface) Strokes() int {
	return s.strokes
}

// PointerDown begins a path at (x, y).
func (s *Surface) PointerDown(x, y int) {
	if !s.Ready() {
		return
	}
	s.down = true
	s.inPath = false
	s.last = image.Pt(x, y)
}

// PointerMove extends the current path, or erases around the pointer in
// erase mode. It does nothing while the pointer is up.
func (s *Surface) PointerMove(x, y int) {
	if !s.down || !s.Ready() {
		return
	}
	p := image.Pt(x, y)
	switch s.mode {
	case ModeMark:
		if s.line(s.last, p) {
			s.drawn = true
			if !s.inPath {
				s.inPath = true
				s.strokes++
			}
		}
	case ModeErase:
		s.erase(p)
	}
	s.last = p
}

// PointerUp ends the current path.
func (s *Surface) PointerUp() {
	s.down = false
}

// PointerLeave ends the current path when the pointer leaves the surface.
func (s *Surface) PointerLeave() {
	s.down = false
}

// line draws the part of a segment that can touch the overlay, using
// Bresenham's algorithm with a square pen. It reports whether anything was
// stamped.
func (s *Surface) line(from, to image.Point) bool {
	from, to, ok := clipSegment(from, to, s.overlay.Bounds().Inset(-StrokeWidth))
	if !ok {
		return false
	}
	dx := abs(to.X - from.X)
	dy := -abs(to.Y - from.Y)
	sx, sy := 1, 1
	if from.X > to.X {
		sx = -1
	}
	if from.Y > to.Y {
		sy = -1
	}
	err := dx + dy
	x, y := from.X, from.Y
	for {
		s.stamp(x, y)
		if x == to.X && y == to.Y {
			return true
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

// clipSegment trims the segment to r (Liang-Barsky). ok is false when no
// part of it lies inside r.
func clipSegment(from, to image.Point, r image.Rectangle) (image.Point, image.Point, bool) {
	if r.Empty() {
		return from, to, false
	}
	x0, y0 := float64(from.X), float64(from.Y)
	dx, dy := float64(to.X-from.X), float64(to.Y-from.Y)
	p := [4]float64{-dx, dx, -dy, dy}
	q := [4]float64{
		x0 - float64(r.Min.X),
		float64(r.Max.X-1) - x0,
		y0 - float64(r.Min.Y),
		float64(r.Max.Y-1) - y0,
	}
	t0, t1 := 0.0, 1.0
	for i := range p {
		if p[i] == 0 {
			if q[i] < 0 {
				return from, to, false
			}
			continue
		}
		t := q[i] / p[i]
		if p[i] < 0 {
			if t > t1 {
				return from, to, false
			}
			t0 = max(t0, t)
		} else {
			if t < t0 {
				return from, to, false
			}
			t1 = min(t1, t)
		}
	}
	at := func(t float64) image.Point {
		return image.Pt(int(math.Round(x0+t*dx)), int(math.Round(y0+t*dy)))
	}
	return at(t0), at(t1), true
}

func (s *Surface) stamp(x, y int) {
	half := StrokeWidth / 2
	r := image.Rect(x-half, y-half, x-half+StrokeWidth, y-half+StrokeWidth)
	draw.Draw(s.overlay, r.Intersect(s.overlay.Bounds()), image.NewUniform(StrokeColor), image.Point{}, draw.Src)
}

func (s *Surface) erase(p image.Point) {
	half := EraseSize / 2
	r := image.Rect(p.X-half, p.Y-half, p.X-half+EraseSize, p.Y-half+EraseSize)
	draw.Draw(s.overlay, r.Intersect(s.overlay.Bounds()), image.Transparent, image.Point{}, draw.Src)
}

// Overlay returns a copy of the drawing layer, or nil while unsized.
func (s *Surface) Overlay() *image.NRGBA {
	if s.overlay == nil {
		return nil
	}
	return imaging.Clone(s.overlay)
}

// Flatten composites the overlay over reference, scaled to the surface
// size, and encodes the result as PNG. It returns nil without error when
// nothing was drawn, and also when the surface or reference has no size.
func (s *Surface) Flatten(reference image.Image) (*domain.BodyMapImage, error) {
	if !s.drawn {
		return nil, nil
	}
	if !s.Ready() || reference == nil || reference.Bounds().Empty() {
		return nil, nil
	}

	w, h := s.Size()
	background := imaging.Resize(reference, w, h, imaging.Lanczos)
	composite := imaging.Overlay(background, s.overlay, image.Pt(0, 0), 1.0)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, composite, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode body map: %w", err)
	}
	return &domain.BodyMapImage{PNG: buf.Bytes(), Width: w, Height: h}, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
