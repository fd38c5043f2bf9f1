// Package segment isolates candidate pattern pixels: an HSV band threshold
// followed by mask morphology, plus the edge map used when colour
// segmentation finds no usable region.
package segment

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/MeKo-Tech/fabricarea/internal/mask"
)

// Band is an inclusive HSV range in 8-bit OpenCV scale: hue in [0,180],
// saturation and value in [0,255].
type Band struct {
	HueMin float64 `mapstructure:"hue_min" yaml:"hue_min" json:"hue_min"`
	HueMax float64 `mapstructure:"hue_max" yaml:"hue_max" json:"hue_max"`
	SatMin float64 `mapstructure:"sat_min" yaml:"sat_min" json:"sat_min"`
	SatMax float64 `mapstructure:"sat_max" yaml:"sat_max" json:"sat_max"`
	ValMin float64 `mapstructure:"val_min" yaml:"val_min" json:"val_min"`
	ValMax float64 `mapstructure:"val_max" yaml:"val_max" json:"val_max"`
}

// Band presets.
const (
	PresetGrayBeige = "gray-beige"
	PresetLight     = "light"
)

// DefaultBand targets grey or beige pattern paper.
func DefaultBand() Band {
	return Band{HueMin: 0, HueMax: 180, SatMin: 0, SatMax: 50, ValMin: 80, ValMax: 220}
}

// LightBand targets bright, low-saturation material.
func LightBand() Band {
	return Band{HueMin: 0, HueMax: 180, SatMin: 0, SatMax: 50, ValMin: 100, ValMax: 255}
}

// BandPreset resolves a preset name.
func BandPreset(name string) (Band, error) {
	switch name {
	case "", PresetGrayBeige:
		return DefaultBand(), nil
	case PresetLight:
		return LightBand(), nil
	default:
		return Band{}, fmt.Errorf("unknown band preset %q", name)
	}
}

// Validate checks the band bounds.
func (b Band) Validate() error {
	check := func(name string, lo, hi, limit float64) error {
		if lo < 0 || hi > limit || lo > hi {
			return fmt.Errorf("invalid %s range [%g,%g], must satisfy 0 <= min <= max <= %g", name, lo, hi, limit)
		}
		return nil
	}
	if err := check("hue", b.HueMin, b.HueMax, 180); err != nil {
		return err
	}
	if err := check("saturation", b.SatMin, b.SatMax, 255); err != nil {
		return err
	}
	return check("value", b.ValMin, b.ValMax, 255)
}

// Contains reports whether an OpenCV-scale HSV triple lies in the band.
func (b Band) Contains(h, s, v float64) bool {
	return h >= b.HueMin && h <= b.HueMax &&
		s >= b.SatMin && s <= b.SatMax &&
		v >= b.ValMin && v <= b.ValMax
}

// HSV converts c to OpenCV-scale hue, saturation and value.
func HSV(c color.Color) (h, s, v float64) {
	cf, _ := colorful.MakeColor(c)
	return scaleHSV(cf)
}

// scaleHSV quantises to the 8-bit values OpenCV compares in inRange.
func scaleHSV(c colorful.Color) (h, s, v float64) {
	hh, ss, vv := c.Hsv()
	h = math.Round(hh / 2)
	if h >= 180 {
		h -= 180
	}
	return h, math.Round(ss * 255), math.Round(vv * 255)
}

// Threshold marks the pixels of img that fall inside band.
func Threshold(img image.Image, band Band) *mask.Mask {
	src := imaging.Clone(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	m := mask.New(w, h)
	for y := range h {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		for x := range w {
			p := row[x*4 : x*4+4]
			c := colorful.Color{R: float64(p[0]) / 255, G: float64(p[1]) / 255, B: float64(p[2]) / 255}
			hh, ss, vv := scaleHSV(c)
			m.Pix[y*w+x] = band.Contains(hh, ss, vv)
		}
	}
	return m
}
