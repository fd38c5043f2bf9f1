package segment

import (
	"image"

	"github.com/anthonynsimon/bild/blend"
	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	bildseg "github.com/anthonynsimon/bild/segment"

	"github.com/MeKo-Tech/fabricarea/internal/mask"
)

// EdgeConfig configures the edge map: blur, gradient threshold, then
// dilation and closing to join broken outlines into closed rings.
type EdgeConfig struct {
	BlurRadius       float64 `mapstructure:"blur_radius" yaml:"blur_radius" json:"blur_radius"`
	Threshold        uint8   `mapstructure:"threshold" yaml:"threshold" json:"threshold"`
	DilateKernel     int     `mapstructure:"dilate_kernel" yaml:"dilate_kernel" json:"dilate_kernel"`
	DilateIterations int     `mapstructure:"dilate_iterations" yaml:"dilate_iterations" json:"dilate_iterations"`
	CloseKernel      int     `mapstructure:"close_kernel" yaml:"close_kernel" json:"close_kernel"`
	CloseIterations  int     `mapstructure:"close_iterations" yaml:"close_iterations" json:"close_iterations"`
}

// DefaultEdgeConfig returns an aggressive gap-bridging edge configuration.
func DefaultEdgeConfig() EdgeConfig {
	return EdgeConfig{
		BlurRadius:       1,
		Threshold:        40,
		DilateKernel:     5,
		DilateIterations: 2,
		CloseKernel:      7,
		CloseIterations:  2,
	}
}

// DetectEdges returns the thresholded gradient magnitude of img after a
// Gaussian blur.
func DetectEdges(img image.Image, blurRadius float64, threshold uint8) *mask.Mask {
	var src image.Image = effect.Grayscale(img)
	if blurRadius > 0 {
		src = blur.Gaussian(src, blurRadius)
	}
	// Sobel clamps negative responses, so the inverted image supplies the
	// falling edges.
	grad := blend.Lighten(effect.Sobel(src), effect.Sobel(effect.Invert(src)))
	return mask.FromGray(bildseg.Threshold(grad, threshold), 128)
}

// EdgeMask builds the fallback foreground: edges, dilated and closed.
func EdgeMask(img image.Image, cfg EdgeConfig) *mask.Mask {
	edges := DetectEdges(img, cfg.BlurRadius, cfg.Threshold)
	dilated := mask.Apply(edges, mask.MorphConfig{
		Operation: mask.OpDilate, KernelSize: cfg.DilateKernel, Iterations: cfg.DilateIterations,
	})
	edges.Release()
	closed := mask.Apply(dilated, mask.MorphConfig{
		Operation: mask.OpClose, KernelSize: cfg.CloseKernel, Iterations: cfg.CloseIterations,
	})
	dilated.Release()
	return closed
}
