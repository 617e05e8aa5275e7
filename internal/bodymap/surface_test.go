package bodymap

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidReference(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	return img
}

func alphaAt(s *Surface, x, y int) uint8 {
	return s.Overlay().NRGBAAt(x, y).A
}

// =============================================================================
// Marking and erasing
// =============================================================================

func TestSurface_MarkDrawsOnlyWhileDown(t *testing.T) {
	s := NewSurface(100, 100)

	s.PointerMove(10, 10)
	assert.False(t, s.Drawn(), "move without down draws nothing")

	s.PointerDown(10, 10)
	s.PointerMove(50, 10)
	s.PointerUp()
	assert.True(t, s.Drawn())
	assert.Equal(t, 1, s.Strokes())
	assert.Equal(t, StrokeColor, s.Overlay().NRGBAAt(30, 10))

	s.PointerMove(50, 80)
	assert.Zero(t, alphaAt(s, 50, 60), "move after up draws nothing")
}

func TestSurface_LeaveEndsPath(t *testing.T) {
	s := NewSurface(100, 100)
	s.PointerDown(10, 10)
	s.PointerMove(20, 20)
	s.PointerLeave()
	s.PointerMove(90, 90)
	assert.Zero(t, alphaAt(s, 80, 80))
}

func TestSurface_EraseClearsSquare(t *testing.T) {
	s := NewSurface(100, 100)
	s.PointerDown(0, 50)
	s.PointerMove(99, 50)
	s.PointerUp()
	require.NotZero(t, alphaAt(s, 50, 50))

	s.SetMode(ModeErase)
	assert.NotZero(t, alphaAt(s, 50, 50), "mode switch leaves content untouched")

	s.PointerDown(50, 50)
	s.PointerMove(50, 50)
	s.PointerUp()

	assert.Zero(t, alphaAt(s, 50, 50))
	assert.Zero(t, alphaAt(s, 36, 50))
	assert.NotZero(t, alphaAt(s, 30, 50), "outside the erase square")
	assert.NotZero(t, alphaAt(s, 70, 50))
	assert.True(t, s.Drawn(), "erasing does not reset the drawn flag")
	assert.Equal(t, 1, s.Strokes())
}

// =============================================================================
// Flatten
// =============================================================================

func TestFlatten_NothingDrawn(t *testing.T) {
	s := NewSurface(120, 80)
	img, err := s.Flatten(solidReference(240, 160))
	require.NoError(t, err)
	assert.Nil(t, img)
}

func TestFlatten_OneImageAtSurfaceSize(t *testing.T) {
	s := NewSurface(120, 80)
	s.PointerDown(10, 10)
	s.PointerMove(60, 40)
	s.PointerUp()

	img, err := s.Flatten(solidReference(240, 160))
	require.NoError(t, err)
	require.NotNil(t, img)
	assert.Equal(t, 120, img.Width)
	assert.Equal(t, 80, img.Height)

	decoded, err := png.Decode(bytes.NewReader(img.PNG))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 120, 80), decoded.Bounds())

	r, g, b, _ := decoded.At(10, 10).RGBA()
	assert.Equal(t, uint32(0xFFFF), r)
	assert.Zero(t, g)
	assert.Zero(t, b)

	_, g, b, _ = decoded.At(100, 70).RGBA()
	assert.Greater(t, g, uint32(0xF000), "reference shows through")
	assert.Greater(t, b, uint32(0xF000))
}

func TestFlatten_SoftFailures(t *testing.T) {
	drawnSurface := func() *Surface {
		s := NewSurface(50, 50)
		s.PointerDown(1, 1)
		s.PointerMove(20, 20)
		return s
	}

	t.Run("unsized surface", func(t *testing.T) {
		s := drawnSurface()
		require.NoError(t, s.Resize(0, 0))
		img, err := s.Flatten(solidReference(10, 10))
		assert.NoError(t, err)
		assert.Nil(t, img)
	})

	t.Run("missing reference", func(t *testing.T) {
		img, err := drawnSurface().Flatten(nil)
		assert.NoError(t, err)
		assert.Nil(t, img)
	})

	t.Run("empty reference", func(t *testing.T) {
		img, err := drawnSurface().Flatten(image.NewNRGBA(image.Rect(0, 0, 0, 0)))
		assert.NoError(t, err)
		assert.Nil(t, img)
	})
}

func TestResize_ScalesMarks(t *testing.T) {
	s := NewSurface(100, 100)
	s.PointerDown(0, 50)
	s.PointerMove(99, 50)
	s.PointerUp()

	require.NoError(t, s.Resize(200, 200))
	w, h := s.Size()
	assert.Equal(t, 200, w)
	assert.Equal(t, 200, h)
	assert.NotZero(t, alphaAt(s, 100, 100))
	assert.True(t, s.Drawn())
}

func TestResize_RejectsOversize(t *testing.T) {
	s := NewSurface(100, 100)
	for _, size := range [][2]int{{MaxSide + 1, 10}, {10, MaxSide + 1}, {1 << 31, 1 << 31}} {
		assert.Error(t, s.Resize(size[0], size[1]), "size %v", size)
	}
	w, h := s.Size()
	assert.Equal(t, 100, w)
	assert.Equal(t, 100, h)
	assert.NoError(t, s.Resize(MaxSide, MaxSide))
}

func TestSurface_StrokeCountedOnlyWhenSegmentDrawn(t *testing.T) {
	s := NewSurface(100, 100)

	s.PointerDown(10, 10)
	s.PointerUp()
	assert.Zero(t, s.Strokes(), "down and up without a move")

	s.PointerDown(500, 500)
	s.PointerMove(600, 600)
	s.PointerUp()
	assert.Zero(t, s.Strokes(), "segment entirely off the overlay")
	assert.False(t, s.Drawn())

	s.PointerDown(10, 10)
	s.PointerMove(20, 10)
	s.PointerMove(30, 10)
	s.PointerUp()
	assert.Equal(t, 1, s.Strokes())
}

func TestSurface_FarMoveIsClipped(t *testing.T) {
	s := NewSurface(100, 100)
	s.PointerDown(0, 50)
	s.PointerMove(50_000_000, 50)
	s.PointerUp()

	assert.True(t, s.Drawn())
	assert.Equal(t, StrokeColor, s.Overlay().NRGBAAt(99, 50))
	assert.Zero(t, alphaAt(s, 50, 80))
}

func TestClipSegment(t *testing.T) {
	r := image.Rect(0, 0, 10, 10)
	tests := []struct {
		name     string
		from, to image.Point
		want     [2]image.Point
		ok       bool
	}{
		{"inside", image.Pt(1, 1), image.Pt(8, 8), [2]image.Point{image.Pt(1, 1), image.Pt(8, 8)}, true},
		{"crosses right edge", image.Pt(5, 5), image.Pt(1000, 5), [2]image.Point{image.Pt(5, 5), image.Pt(9, 5)}, true},
		{"crosses both edges", image.Pt(-100, 3), image.Pt(100, 3), [2]image.Point{image.Pt(0, 3), image.Pt(9, 3)}, true},
		{"outside", image.Pt(20, 20), image.Pt(30, 40), [2]image.Point{}, false},
		{"single point outside", image.Pt(-1, 5), image.Pt(-1, 5), [2]image.Point{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to, ok := clipSegment(tt.from, tt.to, r)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, [2]image.Point{from, to})
			}
		})
	}
}

func TestClone_IsIndependent(t *testing.T) {
	s := NewSurface(50, 50)
	c := s.Clone()
	c.PointerDown(0, 10)
	c.PointerMove(40, 10)

	assert.True(t, c.Drawn())
	assert.False(t, s.Drawn())
	assert.Zero(t, alphaAt(s, 20, 10))
}

func TestUnsizedSurfaceIgnoresPointer(t *testing.T) {
	s := NewSurface(0, 0)
	assert.False(t, s.Ready())
	s.PointerDown(1, 1)
	s.PointerMove(5, 5)
	assert.False(t, s.Drawn())
	assert.Nil(t, s.Overlay())
}

// =============================================================================
// Replay and reference
// =============================================================================

func TestReplay(t *testing.T) {
	s := NewSurface(0, 0)
	err := s.Replay([]Event{
		{Type: EventResize, Width: 80, Height: 60},
		{Type: EventDown, X: 5, Y: 5},
		{Type: EventMove, X: 40.4, Y: 5},
		{Type: EventUp},
		{Type: EventMode, Mode: "erase"},
	})
	require.NoError(t, err)
	assert.True(t, s.Drawn())
	assert.Equal(t, ModeErase, s.Mode())

	err = s.Replay([]Event{{Type: EventMode, Mode: "spray"}})
	assert.Error(t, err)
	err = s.Replay([]Event{{Type: "wiggle"}})
	assert.Error(t, err)
}

func TestReplay_Limits(t *testing.T) {
	t.Run("oversize resize", func(t *testing.T) {
		s := NewSurface(40, 40)
		err := s.Replay([]Event{{Type: EventResize, Width: 1 << 31, Height: 1 << 31}})
		require.Error(t, err)
		w, _ := s.Size()
		assert.Equal(t, 40, w)
	})

	t.Run("too many events", func(t *testing.T) {
		s := NewSurface(40, 40)
		events := make([]Event, MaxEvents+1)
		for i := range events {
			events[i] = Event{Type: EventUp}
		}
		events[0] = Event{Type: EventDown, X: 1, Y: 1}
		events[1] = Event{Type: EventMove, X: 30, Y: 1}
		require.Error(t, s.Replay(events))
		assert.False(t, s.Drawn(), "nothing from an oversize batch is applied")
	})

	t.Run("huge coordinates", func(t *testing.T) {
		s := NewSurface(40, 40)
		err := s.Replay([]Event{
			{Type: EventDown, X: 0, Y: 20},
			{Type: EventMove, X: 1e300, Y: 20},
			{Type: EventUp},
		})
		require.NoError(t, err)
		assert.Equal(t, StrokeColor, s.Overlay().NRGBAAt(39, 20))
	})
}

func TestReference(t *testing.T) {
	img, err := Reference()
	require.NoError(t, err)
	w, h := ReferenceSize()
	assert.Equal(t, img.Bounds().Dx(), w)
	assert.Equal(t, img.Bounds().Dy(), h)
	assert.NotEmpty(t, ReferencePNG())

	s := NewReferenceSurface()
	sw, sh := s.Size()
	assert.Equal(t, w, sw)
	assert.Equal(t, h, sh)
}
