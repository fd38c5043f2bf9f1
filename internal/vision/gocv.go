//go:build gocv

package vision

import (
	"context"
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/MeKo-Tech/fabricarea/internal/contour"
	"github.com/MeKo-Tech/fabricarea/internal/geometry"
	"github.com/MeKo-Tech/fabricarea/internal/lines"
	"github.com/MeKo-Tech/fabricarea/internal/mask"
	"github.com/MeKo-Tech/fabricarea/internal/segment"
)

// Hough transform parameters for tick detection.
const (
	houghRho       = 1
	houghThreshold = 20
	houghMinLength = 15
	houghMaxGap    = 3
	cannyLow       = 50
	cannyHigh      = 150
)

// GoCV opens the OpenCV backend.
func GoCV(ctx context.Context) (Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	probe := gocv.NewMatWithSize(1, 1, gocv.MatTypeCV8UC1)
	defer probe.Close()
	if probe.Empty() {
		return nil, fmt.Errorf("%w: opencv %s cannot allocate", ErrBackendUnavailable, gocv.Version())
	}
	return gocvBackend{}, nil
}

type gocvBackend struct{}

func (gocvBackend) Name() string { return NameGoCV }

func (gocvBackend) Close() error { return nil }

func (gocvBackend) Threshold(img image.Image, band segment.Band) (*mask.Mask, error) {
	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	defer src.Close()

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(src, &hsv, gocv.ColorBGRToHSV)

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.InRangeWithScalar(hsv,
		gocv.NewScalar(band.HueMin, band.SatMin, band.ValMin, 0),
		gocv.NewScalar(band.HueMax, band.SatMax, band.ValMax, 0),
		&dst)
	return matToMask(dst), nil
}

func (gocvBackend) Morph(m *mask.Mask, cfg mask.MorphConfig) (*mask.Mask, error) {
	if cfg.Operation == mask.OpNone || cfg.KernelSize <= 1 || cfg.Iterations <= 0 {
		return m.Clone(), nil
	}
	src, err := maskToMat(m)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(cfg.KernelSize, cfg.KernelSize))
	defer kernel.Close()

	cur := src.Clone()
	defer func() { cur.Close() }()
	step := func(dilate bool, n int) {
		for range n {
			next := gocv.NewMat()
			if dilate {
				gocv.Dilate(cur, &next, kernel)
			} else {
				gocv.Erode(cur, &next, kernel)
			}
			cur.Close()
			cur = next
		}
	}

	switch cfg.Operation {
	case mask.OpErode:
		step(false, cfg.Iterations)
	case mask.OpDilate:
		step(true, cfg.Iterations)
	case mask.OpOpen:
		step(false, cfg.Iterations)
		step(true, cfg.Iterations)
	case mask.OpClose:
		step(true, cfg.Iterations)
		step(false, cfg.Iterations)
	}
	return matToMask(cur), nil
}

func (b gocvBackend) EdgeMask(img image.Image, cfg segment.EdgeConfig) (*mask.Mask, error) {
	edges, err := cannyEdges(img, cfg.BlurRadius, float32(cfg.Threshold), 3*float32(cfg.Threshold))
	if err != nil {
		return nil, err
	}
	defer edges.Close()

	raw := matToMask(edges)
	defer raw.Release()
	dilated, err := b.Morph(raw, mask.MorphConfig{
		Operation: mask.OpDilate, KernelSize: cfg.DilateKernel, Iterations: cfg.DilateIterations,
	})
	if err != nil {
		return nil, err
	}
	defer dilated.Release()
	return b.Morph(dilated, mask.MorphConfig{
		Operation: mask.OpClose, KernelSize: cfg.CloseKernel, Iterations: cfg.CloseIterations,
	})
}

func (gocvBackend) OuterContours(m *mask.Mask) ([]contour.Contour, error) {
	src, err := maskToMat(m)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	found := gocv.FindContours(src, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer found.Close()

	out := make([]contour.Contour, 0, found.Size())
	for i := 0; i < found.Size(); i++ {
		raw := found.At(i).ToPoints()
		pts := make([]geometry.Point, len(raw))
		for j, p := range raw {
			pts[j] = geometry.Point{X: float64(p.X), Y: float64(p.Y)}
		}
		out = append(out, contour.FromPoints(pts))
	}
	return out, nil
}

func (gocvBackend) LineSegments(img image.Image, cfg lines.Config) ([]lines.Segment, error) {
	edges, err := cannyEdges(img, cfg.BlurRadius, cannyLow, cannyHigh)
	if err != nil {
		return nil, err
	}
	defer edges.Close()

	found := gocv.NewMat()
	defer found.Close()
	gocv.HoughLinesPWithParams(edges, &found, houghRho, math.Pi/180, houghThreshold, houghMinLength, houghMaxGap)

	out := make([]lines.Segment, 0, found.Rows())
	for i := 0; i < found.Rows(); i++ {
		v := found.GetVeciAt(i, 0)
		out = append(out, lines.Segment{
			A: geometry.Point{X: float64(v[0]), Y: float64(v[1])},
			B: geometry.Point{X: float64(v[2]), Y: float64(v[3])},
		})
	}
	return out, nil
}

// cannyEdges returns the Canny edge map of img after a Gaussian blur whose
// kernel grows with radius.
func cannyEdges(img image.Image, radius float64, low, high float32) (gocv.Mat, error) {
	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("convert image: %w", err)
	}
	defer src.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)

	blurred := gocv.NewMat()
	defer blurred.Close()
	k := 2*int(math.Round(radius)) + 1
	gocv.GaussianBlur(gray, &blurred, image.Pt(k, k), 0, 0, gocv.BorderDefault)

	edges := gocv.NewMat()
	gocv.Canny(blurred, &edges, low, high)
	return edges, nil
}

func maskToMat(m *mask.Mask) (gocv.Mat, error) {
	buf := make([]byte, len(m.Pix))
	for i, v := range m.Pix {
		if v {
			buf[i] = 255
		}
	}
	mat, err := gocv.NewMatFromBytes(m.Height, m.Width, gocv.MatTypeCV8UC1, buf)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("mask to mat: %w", err)
	}
	return mat, nil
}

func matToMask(mat gocv.Mat) *mask.Mask {
	m := mask.New(mat.Cols(), mat.Rows())
	for i, v := range mat.ToBytes() {
		if i >= len(m.Pix) {
			break
		}
		m.Pix[i] = v != 0
	}
	return m
}
