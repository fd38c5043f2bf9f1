// Package imageio loads measurement photos from disk or upload streams and
// optionally downscales them for processing.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// SupportedExtensions lists the file extensions Load accepts.
var SupportedExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff", ".webp"}

// MinSide is the smallest accepted image side in pixels.
const MinSide = 32

// ErrTooSmall is returned for images with a side below MinSide.
var ErrTooSmall = errors.New("image too small")

// ProcessingError wraps a failure with the operation that raised it.
type ProcessingError struct {
	Operation string
	Err       error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// IsSupported reports whether path has a supported image extension.
func IsSupported(path string) bool {
	return slices.Contains(SupportedExtensions, strings.ToLower(filepath.Ext(path)))
}

// Metadata describes a decoded image.
type Metadata struct {
	Path      string `json:"path,omitempty"`
	Format    string `json:"format"`
	SizeBytes int64  `json:"size_bytes"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Load opens and decodes the image at path.
func Load(path string) (image.Image, Metadata, error) {
	if path == "" {
		return nil, Metadata{}, &ProcessingError{Operation: "load", Err: errors.New("empty path")}
	}
	if !IsSupported(path) {
		return nil, Metadata{}, &ProcessingError{Operation: "load", Err: fmt.Errorf("unsupported format: %s", filepath.Ext(path))}
	}

	f, err := os.Open(path) //nolint:gosec // G304: reading a user-provided image path is expected
	if err != nil {
		return nil, Metadata{}, &ProcessingError{Operation: "load", Err: err}
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("error closing image file", "path", path, "error", err)
		}
	}()

	fi, err := f.Stat()
	if err != nil {
		return nil, Metadata{}, &ProcessingError{Operation: "load", Err: err}
	}
	img, meta, err := Decode(f)
	if err != nil {
		return nil, Metadata{}, err
	}
	meta.Path = path
	meta.SizeBytes = fi.Size()
	return img, meta, nil
}

// Decode reads an image from r, as received from an upload.
func Decode(r io.Reader) (image.Image, Metadata, error) {
	cr := &countingReader{r: r}
	img, format, err := image.Decode(cr)
	if err != nil {
		return nil, Metadata{}, &ProcessingError{Operation: "decode", Err: err}
	}
	b := img.Bounds()
	if b.Dx() < MinSide || b.Dy() < MinSide {
		return nil, Metadata{}, &ProcessingError{
			Operation: "validate",
			Err:       fmt.Errorf("%w: %dx%d below %dx%d", ErrTooSmall, b.Dx(), b.Dy(), MinSide, MinSide),
		}
	}
	return img, Metadata{Format: format, SizeBytes: cr.n, Width: b.Dx(), Height: b.Dy()}, nil
}

// DecodeBytes decodes an in-memory image.
func DecodeBytes(data []byte) (image.Image, Metadata, error) {
	return Decode(bytes.NewReader(data))
}

// Fit downscales img so its longer side is at most maxSide, preserving the
// aspect ratio. It returns the image to process and the factor that maps
// processed coordinates back to the original (1 when unchanged).
func Fit(img image.Image, maxSide int) (image.Image, float64) {
	b := img.Bounds()
	long := max(b.Dx(), b.Dy())
	if maxSide <= 0 || long <= maxSide {
		return img, 1
	}
	out := imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
	ob := out.Bounds()
	factor := float64(b.Dx()) / float64(ob.Dx())
	if b.Dy() > b.Dx() {
		factor = float64(b.Dy()) / float64(ob.Dy())
	}
	return out, factor
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
