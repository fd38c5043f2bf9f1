package testutil

import (
	"image"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/fabricarea/internal/geometry"
)

func TestScene_RectsInclusive(t *testing.T) {
	img := NewScene(50, 50).Rects(image.Rect(10, 10, 20, 20))
	assert.Equal(t, Paper, img.NRGBAAt(20, 20))
	assert.Equal(t, Background, img.NRGBAAt(21, 20))
	assert.Equal(t, Background, img.NRGBAAt(9, 10))
}

func TestScene_Polygon(t *testing.T) {
	tri := []geometry.Point{{X: 10, Y: 10}, {X: 40, Y: 10}, {X: 10, Y: 40}}
	img := NewScene(50, 50).Polygon(tri)
	assert.Equal(t, Paper, img.NRGBAAt(15, 15))
	assert.Equal(t, Background, img.NRGBAAt(38, 38))
}

func TestDrawRuler(t *testing.T) {
	img := NewScene(300, 100).Blank()
	DrawRuler(img, RulerConfig{Origin: image.Pt(20, 20), Spacing: 25, Count: 5, TickLen: 30, Thickness: 2})
	assert.Equal(t, Ink, img.NRGBAAt(45, 30))
	assert.Equal(t, White, img.NRGBAAt(35, 30))
	assert.Equal(t, White, img.NRGBAAt(299, 30))
	assert.Equal(t, Background, img.NRGBAAt(150, 5))

	edged := NewScene(300, 100).Blank()
	DrawRuler(edged, RulerConfig{Origin: image.Pt(20, 20), Spacing: 25, Count: 5, TickLen: 30, Thickness: 2, EdgeLine: true})
	assert.Equal(t, Ink, edged.NRGBAAt(150, 19))
	assert.Equal(t, White, edged.NRGBAAt(150, 21))
}

func TestSaveImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "scene.png")
	SaveImage(t, NewScene(8, 8).Blank(), path)
	assert.True(t, FileExists(path))
}

func TestModuleRoot(t *testing.T) {
	root, err := ModuleRoot()
	require.NoError(t, err)
	assert.True(t, FileExists(filepath.Join(root, "go.mod")))
	assert.True(t, FileExists(filepath.Join(root, "cmd", "fabricarea")))
}
