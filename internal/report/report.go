// Package report formats measurements and calibrations for output.
package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/fabricarea/internal/calibration"
	"github.com/MeKo-Tech/fabricarea/internal/pipeline"
)

var printer = message.NewPrinter(language.English)

// FormatArea renders an area as "1,234.50 cm² (0.1235 m²)".
func FormatArea(cm2 float64, precision int) string {
	if precision < 0 {
		precision = 2
	}
	return printer.Sprintf(fmt.Sprintf("%%.%df cm² (%%.4f m²)", precision), cm2, cm2/10000)
}

// Summary is the serialisable view of a measurement.
type Summary struct {
	AreaCm2       float64      `json:"area_cm2" yaml:"area_cm2"`
	AreaM2        float64      `json:"area_m2" yaml:"area_m2"`
	AreaPx        float64      `json:"area_px" yaml:"area_px"`
	PixelsPerCm   float64      `json:"pixels_per_cm" yaml:"pixels_per_cm"`
	Method        string       `json:"method" yaml:"method"`
	Confidence    float64      `json:"confidence" yaml:"confidence"`
	LowConfidence bool         `json:"low_confidence" yaml:"low_confidence"`
	Warning       string       `json:"warning,omitempty" yaml:"warning,omitempty"`
	VertexCount   int          `json:"vertex_count" yaml:"vertex_count"`
	Fallback      bool         `json:"fallback" yaml:"fallback"`
	UsedHull      bool         `json:"used_hull" yaml:"used_hull"`
	Candidates    int          `json:"candidates" yaml:"candidates"`
	DurationMs    int64        `json:"duration_ms" yaml:"duration_ms"`
	Polygon       [][2]float64 `json:"polygon" yaml:"polygon,flow"`
}

// Summarize converts m for serialisation.
func Summarize(m *pipeline.Measurement) Summary {
	s := Summary{
		AreaCm2:       m.AreaCm2,
		AreaM2:        m.AreaM2,
		AreaPx:        m.AreaPx,
		PixelsPerCm:   m.Scale.PixelsPerCm,
		Method:        m.Scale.Method.String(),
		Confidence:    m.Scale.Confidence,
		LowConfidence: m.Scale.LowConfidence,
		VertexCount:   m.VertexCount,
		Fallback:      m.Fallback,
		UsedHull:      m.UsedHull,
		Candidates:    m.Candidates,
		DurationMs:    m.Duration.Milliseconds(),
		Polygon:       make([][2]float64, len(m.Polygon)),
	}
	if m.Scale.Warning != nil {
		s.Warning = m.Scale.Warning.Error()
	}
	for i, p := range m.Polygon {
		s.Polygon[i] = [2]float64{p.X, p.Y}
	}
	return s
}

// ToJSON serializes a measurement to pretty JSON.
func ToJSON(m *pipeline.Measurement) (string, error) {
	if m == nil {
		return "", errors.New("nil measurement")
	}
	b, err := json.MarshalIndent(Summarize(m), "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToYAML serializes a measurement to YAML.
func ToYAML(m *pipeline.Measurement) (string, error) {
	if m == nil {
		return "", errors.New("nil measurement")
	}
	b, err := yaml.Marshal(Summarize(m))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToText renders a short human-readable report.
func ToText(m *pipeline.Measurement, precision int) (string, error) {
	if m == nil {
		return "", errors.New("nil measurement")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Area: %s\n", FormatArea(m.AreaCm2, precision))
	b.WriteString(printer.Sprintf("Scale: %.2f px/cm (%s, confidence %.2f)\n",
		m.Scale.PixelsPerCm, m.Scale.Method, m.Scale.Confidence))
	if m.Scale.LowConfidence && m.Scale.Warning != nil {
		fmt.Fprintf(&b, "Warning: %v\n", m.Scale.Warning)
	}
	fmt.Fprintf(&b, "Vertices: %d\n", m.VertexCount)
	if m.Fallback {
		b.WriteString("Outline found on the edge map\n")
	}
	return b.String(), nil
}

// ToCSV exports the polygon vertices with a header.
func ToCSV(m *pipeline.Measurement) (string, error) {
	if m == nil {
		return "", errors.New("nil measurement")
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"index", "x", "y"})
	for i, p := range m.Polygon {
		_ = w.Write([]string{
			strconv.Itoa(i),
			strconv.FormatFloat(p.X, 'f', 2, 64),
			strconv.FormatFloat(p.Y, 'f', 2, 64),
		})
	}
	w.Flush()
	return buf.String(), w.Error()
}

// Format renders m in the named format: text, json, yaml or csv.
func Format(m *pipeline.Measurement, format string, precision int) (string, error) {
	switch format {
	case "", "text":
		return ToText(m, precision)
	case "json":
		return ToJSON(m)
	case "yaml":
		return ToYAML(m)
	case "csv":
		return ToCSV(m)
	default:
		return "", fmt.Errorf("unsupported output format %q", format)
	}
}

// TicksText renders an automatic calibration result.
func TicksText(r calibration.TickResult) string {
	var b strings.Builder
	b.WriteString(printer.Sprintf("Scale: %.3f px/cm (raw %.3f)\n", r.PixelsPerCm, r.RawScale))
	b.WriteString(printer.Sprintf("Ticks: %d, median gap %.2f px, stddev %.2f px\n", len(r.Positions), r.Median, r.StdDev))
	b.WriteString(printer.Sprintf("Confidence: %.2f\n", r.Confidence))
	if r.LowConfidence {
		fmt.Fprintf(&b, "Warning: %v\n", r.Warning)
	}
	return b.String()
}
