package contour

import (
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/MeKo-Tech/fabricarea/internal/mask"
	"github.com/MeKo-Tech/fabricarea/internal/segment"
)

// Backend supplies the outer boundaries of a mask and the edge-derived
// fallback mask. The vision backends implement it.
type Backend interface {
	OuterContours(m *mask.Mask) ([]Contour, error)
	EdgeMask(img image.Image, cfg segment.EdgeConfig) (*mask.Mask, error)
}

// NativeBackend implements Backend in pure Go.
type NativeBackend struct{}

// OuterContours implements Backend.
func (NativeBackend) OuterContours(m *mask.Mask) ([]Contour, error) {
	return TraceOuter(m), nil
}

// EdgeMask implements Backend.
func (NativeBackend) EdgeMask(img image.Image, cfg segment.EdgeConfig) (*mask.Mask, error) {
	return segment.EdgeMask(img, cfg), nil
}

// Extractor picks the pattern boundary from a segmentation mask, falling
// back to an edge map of the image when no region passes the filters.
type Extractor struct {
	filter  Filter
	edges   segment.EdgeConfig
	backend Backend
	logger  *slog.Logger
}

// NewExtractor creates an Extractor. A nil backend uses NativeBackend.
func NewExtractor(f Filter, edges segment.EdgeConfig, b Backend) *Extractor {
	if b == nil {
		b = NativeBackend{}
	}
	return &Extractor{filter: f, edges: edges, backend: b, logger: slog.Default()}
}

// WithLogger sets the logger used for candidate diagnostics.
func (e *Extractor) WithLogger(l *slog.Logger) *Extractor {
	if l != nil {
		e.logger = l
	}
	return e
}

// Filter returns the candidate filter in use.
func (e *Extractor) Filter() Filter { return e.filter }

// Extract selects a contour from m. A nil m skips straight to the edge
// fallback. The mask is not released; the fallback mask is.
func (e *Extractor) Extract(img image.Image, m *mask.Mask) (Selection, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	if m != nil {
		sel, err := e.selectFrom(m, w, h, false)
		if !errors.Is(err, ErrNoCandidateContour) {
			return sel, err
		}
	}

	edge, err := e.backend.EdgeMask(img, e.edges)
	if err != nil {
		return Selection{}, fmt.Errorf("edge fallback: %w", err)
	}
	defer edge.Release()
	return e.selectFrom(edge, w, h, true)
}

func (e *Extractor) selectFrom(m *mask.Mask, w, h int, fallback bool) (Selection, error) {
	contours, err := e.backend.OuterContours(m)
	if err != nil {
		return Selection{}, fmt.Errorf("find contours: %w", err)
	}
	sel, err := e.filter.Select(contours, w, h)
	sel.Fallback = fallback
	e.logger.Debug("contour candidates", "stage", "contour",
		"fallback", fallback, "candidates", sel.Candidates, "accepted", sel.Accepted,
		"rejected", sel.Rejected)
	return sel, err
}
