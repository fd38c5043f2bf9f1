package calibration

import (
	"fmt"

	"github.com/MeKo-Tech/fabricarea/internal/geometry"
)

// EventKind identifies a calibration input event.
type EventKind int

const (
	PointerDown EventKind = iota
	PointerMove
	PointerUp
	TouchStart
	TouchMove
	TouchEnd
	SliderChanged
	Rotated
	Snapped
)

var eventNames = [...]string{
	PointerDown:   "pointer_down",
	PointerMove:   "pointer_move",
	PointerUp:     "pointer_up",
	TouchStart:    "touch_start",
	TouchMove:     "touch_move",
	TouchEnd:      "touch_end",
	SliderChanged: "slider",
	Rotated:       "rotate",
	Snapped:       "snap",
}

// String returns the wire name of k.
func (k EventKind) String() string {
	if k >= 0 && int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// ParseEventKind converts a wire name to an EventKind.
func ParseEventKind(s string) (EventKind, error) {
	for i, name := range eventNames {
		if name == s {
			return EventKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown calibration event %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k EventKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *EventKind) UnmarshalText(b []byte) error {
	v, err := ParseEventKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Orientation is a snap target for the ruler.
type Orientation string

const (
	Horizontal Orientation = "horizontal" // 0°
	Vertical   Orientation = "vertical"   // 90°
)

// Event is one input to the ruler state machine. X and Y are display
// coordinates for pointer and touch events; Value is the slider length or
// the rotation delta in degrees; Snap is the target of a Snapped event.
type Event struct {
	Kind  EventKind   `json:"kind" yaml:"kind"`
	X     float64     `json:"x,omitempty" yaml:"x,omitempty"`
	Y     float64     `json:"y,omitempty" yaml:"y,omitempty"`
	Value float64     `json:"value,omitempty" yaml:"value,omitempty"`
	Snap  Orientation `json:"snap,omitempty" yaml:"snap,omitempty"`
}

// Viewport relates the displayed image rectangle to the backing pixel
// resolution. The zero Viewport maps coordinates unchanged.
type Viewport struct {
	Left     float64 `json:"left"`
	Top      float64 `json:"top"`
	DisplayW float64 `json:"display_w"`
	DisplayH float64 `json:"display_h"`
	BackingW float64 `json:"backing_w"`
	BackingH float64 `json:"backing_h"`
}

// ToBacking converts a display coordinate to backing pixels.
func (v Viewport) ToBacking(x, y float64) geometry.Point {
	if v.DisplayW <= 0 || v.DisplayH <= 0 || v.BackingW <= 0 || v.BackingH <= 0 {
		return geometry.Point{X: x, Y: y}
	}
	return geometry.Point{
		X: (x - v.Left) * v.BackingW / v.DisplayW,
		Y: (y - v.Top) * v.BackingH / v.DisplayH,
	}
}
