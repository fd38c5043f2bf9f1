package calibration

import (
	"log/slog"
	"math"

	"github.com/MeKo-Tech/fabricarea/internal/geometry"
)

// DragState is the state of the ruler interaction.
type DragState int

const (
	Idle DragState = iota
	Dragging
)

func (s DragState) String() string {
	if s == Dragging {
		return "dragging"
	}
	return "idle"
}

// Controller owns the virtual ruler and changes it only in response to
// events, so replaying an event list always reproduces the same ruler.
type Controller struct {
	ruler  Ruler
	state  DragState
	offset geometry.Point
	maxLen float64
	view   Viewport
	logger *slog.Logger
}

// NewController places a ruler on a w×h image.
func NewController(w, h int) *Controller {
	c := &Controller{logger: slog.Default()}
	c.Place(w, h)
	return c
}

// WithLogger sets the logger used for state transitions.
func (c *Controller) WithLogger(l *slog.Logger) *Controller {
	if l != nil {
		c.logger = l
	}
	return c
}

// Place resets the ruler for a new w×h image: right of centre near the
// top, 60% of the image height long, rotated 90°.
func (c *Controller) Place(w, h int) {
	c.maxLen = math.Max(float64(h), MinRulerLength)
	c.state = Idle
	c.offset = geometry.Point{}
	c.ruler = Ruler{
		Position: geometry.Point{X: 0.75 * float64(w), Y: 0.2 * float64(h)},
		Length:   c.clampLength(0.6 * float64(h)),
		Angle:    90,
	}
}

// SetViewport sets the display to backing mapping used for pointer and
// touch coordinates.
func (c *Controller) SetViewport(v Viewport) { c.view = v }

// Ruler returns the current ruler.
func (c *Controller) Ruler() Ruler { return c.ruler }

// State returns the drag state.
func (c *Controller) State() DragState { return c.state }

// LengthBounds returns the range of the length control.
func (c *Controller) LengthBounds() (lo, hi float64) { return MinRulerLength, c.maxLen }

// Handle applies one event and returns the resulting ruler.
func (c *Controller) Handle(ev Event) Ruler {
	switch ev.Kind {
	case PointerDown, TouchStart:
		p := c.view.ToBacking(ev.X, ev.Y)
		if c.ruler.Hit(p) {
			c.offset = geometry.Point{X: p.X - c.ruler.Position.X, Y: p.Y - c.ruler.Position.Y}
			c.transition(Dragging)
		}
	case PointerMove, TouchMove:
		if c.state == Dragging {
			p := c.view.ToBacking(ev.X, ev.Y)
			c.ruler.Position = geometry.Point{X: p.X - c.offset.X, Y: p.Y - c.offset.Y}
		}
	case PointerUp, TouchEnd:
		c.transition(Idle)
	case SliderChanged:
		c.SetLength(ev.Value)
	case Rotated:
		c.Rotate(ev.Value)
	case Snapped:
		c.Snap(ev.Snap)
	}
	return c.ruler
}

// Replay applies evs in order and returns the final ruler.
func (c *Controller) Replay(evs []Event) Ruler {
	for _, ev := range evs {
		c.Handle(ev)
	}
	return c.ruler
}

// SetLength sets the ruler length, clamped to the length bounds.
func (c *Controller) SetLength(px float64) {
	c.ruler.Length = c.clampLength(px)
}

// Rotate turns the ruler by delta degrees.
func (c *Controller) Rotate(delta float64) {
	c.ruler.Angle = NormalizeAngle(c.ruler.Angle + delta)
}

// SetAngle sets the absolute angle, normalised into [0, 360).
func (c *Controller) SetAngle(deg float64) {
	c.ruler.Angle = NormalizeAngle(deg)
}

// Snap aligns the ruler horizontally (0°) or vertically (90°).
func (c *Controller) Snap(o Orientation) {
	switch o {
	case Horizontal:
		c.ruler.Angle = 0
	case Vertical:
		c.ruler.Angle = 90
	}
}

// SetPosition moves the ruler anchor directly.
func (c *Controller) SetPosition(p geometry.Point) { c.ruler.Position = p }

// Confirm freezes the current ruler into a scale. The length is never
// below MinRulerLength, so the scale is always positive.
func (c *Controller) Confirm() Scale {
	return Scale{PixelsPerCm: c.ruler.Scale(), Method: Manual, Confidence: 1}
}

func (c *Controller) clampLength(px float64) float64 {
	if math.IsNaN(px) {
		return MinRulerLength
	}
	return math.Min(math.Max(px, MinRulerLength), c.maxLen)
}

func (c *Controller) transition(next DragState) {
	if c.state == next {
		return
	}
	c.logger.Debug("ruler state transition", "stage", "calibration", "from", c.state.String(), "to", next.String())
	c.state = next
}
