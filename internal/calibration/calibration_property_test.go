package calibration

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestRuler_ScaleLinear checks doubling the ruler length doubles the scale.
func TestRuler_ScaleLinear(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("scale is length / 30 and linear", prop.ForAll(
		func(length float64) bool {
			c := NewController(2000, 2000)
			c.SetLength(length)
			single := c.Confirm().PixelsPerCm
			c.SetLength(2 * length)
			double := c.Confirm().PixelsPerCm
			return near(single, length/RulerUnits) && near(double, 2*single)
		},
		gen.Float64Range(MinRulerLength, 1000),
	))

	properties.TestingRun(t)
}

func genEvent() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(int(PointerDown), int(Snapped)),
		gen.Float64Range(0, 1000),
		gen.Float64Range(0, 1000),
		gen.Float64Range(-400, 1400),
		gen.Bool(),
	).Map(func(v []interface{}) Event {
		snap := Horizontal
		if v[4].(bool) {
			snap = Vertical
		}
		return Event{Kind: EventKind(v[0].(int)), X: v[1].(float64), Y: v[2].(float64), Value: v[3].(float64), Snap: snap}
	})
}

// TestController_ReplayDeterministic checks the ruler depends only on the
// event sequence.
func TestController_ReplayDeterministic(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("same events give same ruler", prop.ForAll(
		func(evs []Event) bool {
			a := NewController(1000, 800)
			b := NewController(1000, 800)
			ra, rb := a.Replay(evs), b.Replay(evs)
			r := ra
			lo, hi := a.LengthBounds()
			return ra == rb && a.State() == b.State() &&
				r.Length >= lo && r.Length <= hi && r.Angle >= 0 && r.Angle < 360
		},
		gen.SliceOfN(40, genEvent()),
	))

	properties.TestingRun(t)
}

func near(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}
