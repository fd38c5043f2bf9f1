package imageio

import (
	"bytes"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/fabricarea/internal/testutil"
)

func TestIsSupported(t *testing.T) {
	for _, p := range []string{"a.jpg", "b.JPEG", "c.png", "d.bmp", "e.tif", "f.tiff", "g.webp"} {
		assert.True(t, IsSupported(p), p)
	}
	assert.False(t, IsSupported("scan.pdf"))
	assert.False(t, IsSupported("noext"))
}

func TestLoad_PNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pattern.png")
	testutil.SaveImage(t, testutil.NewScene(120, 80).Rects(image.Rect(20, 20, 60, 60)), path)

	img, meta, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 120, img.Bounds().Dx())
	assert.Equal(t, "png", meta.Format)
	assert.Equal(t, 80, meta.Height)
	assert.Equal(t, path, meta.Path)
	assert.Positive(t, meta.SizeBytes)
}

func TestLoad_Errors(t *testing.T) {
	var pe *ProcessingError

	_, _, err := Load("")
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "load", pe.Operation)

	_, _, err = Load("scan.pdf")
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, err.Error(), "unsupported format")

	_, _, err = Load(filepath.Join(t.TempDir(), "missing.png"))
	require.ErrorAs(t, err, &pe)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	bad := filepath.Join(t.TempDir(), "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("not an image"), 0o600))
	_, _, err = Load(bad)
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "decode", pe.Operation)
}

func TestDecode_TooSmall(t *testing.T) {
	data := testutil.EncodePNG(t, testutil.NewScene(16, 64).Blank())
	_, _, err := Decode(bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrTooSmall)
}

func TestDecodeBytes_CountsSize(t *testing.T) {
	data := testutil.EncodePNG(t, testutil.NewScene(64, 64).Blank())
	_, meta, err := DecodeBytes(data)
	require.NoError(t, err)
	assert.LessOrEqual(t, meta.SizeBytes, int64(len(data)))
	assert.Positive(t, meta.SizeBytes)
}

func TestFit(t *testing.T) {
	img := testutil.NewScene(400, 200).Blank()

	same, f := Fit(img, 0)
	assert.Same(t, img, same)
	assert.Equal(t, 1.0, f)

	same, f = Fit(img, 400)
	assert.Same(t, img, same)
	assert.Equal(t, 1.0, f)

	small, f := Fit(img, 100)
	assert.Equal(t, 100, small.Bounds().Dx())
	assert.Equal(t, 50, small.Bounds().Dy())
	assert.InDelta(t, 4, f, 1e-9)

	tall := testutil.NewScene(100, 300).Blank()
	small, f = Fit(tall, 150)
	assert.Equal(t, 150, small.Bounds().Dy())
	assert.InDelta(t, 2, f, 1e-9)
}
