package bodymap

import (
	"fmt"
	"math"
)

// Event types accepted by Replay.
const (
	EventDown   = "down"
	EventMove   = "move"
	EventUp     = "up"
	EventLeave  = "leave"
	EventMode   = "mode"
	EventResize = "resize"
)

// Event is one recorded pointer or surface event, as posted by clients.
type Event struct {
	Type   string  `json:"type"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Mode   string  `json:"mode,omitempty"`
	Width  int     `json:"width,omitempty"`
	Height int     `json:"height,omitempty"`
}

const (
	// MaxEvents bounds one Replay batch.
	MaxEvents = 5000
	// maxCoordinate bounds pointer positions before they are rounded.
	maxCoordinate = 1 << 16
)

// Replay applies events in order. It stops at the first malformed event;
// events before it stay applied. Callers that need all-or-nothing replay
// onto a Clone.
func (s *Surface) Replay(events []Event) error {
	if len(events) > MaxEvents {
		return fmt.Errorf("%d events exceeds the limit of %d", len(events), MaxEvents)
	}
	for i, ev := range events {
		x, y := coordinate(ev.X), coordinate(ev.Y)
		switch ev.Type {
		case EventDown:
			s.PointerDown(x, y)
		case EventMove:
			s.PointerMove(x, y)
		case EventUp:
			s.PointerUp()
		case EventLeave:
			s.PointerLeave()
		case EventMode:
			m, err := ParseMode(ev.Mode)
			if err != nil {
				return fmt.Errorf("event %d: %w", i, err)
			}
			s.SetMode(m)
		case EventResize:
			if err := s.Resize(ev.Width, ev.Height); err != nil {
				return fmt.Errorf("event %d: %w", i, err)
			}
		default:
			return fmt.Errorf("event %d: unknown type %q", i, ev.Type)
		}
	}
	return nil
}

func coordinate(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return int(math.Round(math.Max(-maxCoordinate, math.Min(maxCoordinate, v))))
}
