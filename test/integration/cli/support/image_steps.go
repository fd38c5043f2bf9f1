package support

import (
	"fmt"
	"image"
	"os"

	"github.com/cucumber/godog"
	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/fabricarea/internal/testutil"
)

// aPhotoWithAPiece writes a w×h photo with a centred side×side piece.
func (testCtx *TestContext) aPhotoWithAPiece(name string, w, h, side int) error {
	x0, y0 := (w-side)/2, (h-side)/2
	img := testutil.NewScene(w, h).Rects(image.Rect(x0, y0, x0+side, y0+side))
	return testCtx.saveImage(name, img)
}

// anEmptyPhoto writes a photo of the background only.
func (testCtx *TestContext) anEmptyPhoto(name string, w, h int) error {
	return testCtx.saveImage(name, testutil.NewScene(w, h).Blank())
}

// aPhotoOfARuler writes a photo of a ruler with count ticks spacing px apart.
func (testCtx *TestContext) aPhotoOfARuler(name string, count, spacing int) error {
	w := 80 + spacing*(count-1)
	img := testutil.NewScene(w, 120).Blank()
	testutil.DrawRuler(img, testutil.RulerConfig{
		Origin: image.Pt(40, 40), Spacing: spacing, Count: count, TickLen: 30, Thickness: 2,
	})
	return testCtx.saveImage(name, img)
}

// aTextFile writes content to a file in the temp directory.
func (testCtx *TestContext) aTextFile(name string, content *godog.DocString) error {
	return os.WriteFile(testCtx.TempPath(name), []byte(content.Content), 0o600)
}

func (testCtx *TestContext) saveImage(name string, img image.Image) error {
	path := testCtx.TempPath(name)
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", name, err)
	}
	testCtx.Images[name] = path
	return nil
}

// RegisterImageSteps registers synthetic photo steps.
func (testCtx *TestContext) RegisterImageSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a (\d+)x(\d+) photo "([^"]*)" with a (\d+) px square piece$`,
		func(w, h int, name string, side int) error { return testCtx.aPhotoWithAPiece(name, w, h, side) })
	sc.Step(`^an empty (\d+)x(\d+) photo "([^"]*)"$`,
		func(w, h int, name string) error { return testCtx.anEmptyPhoto(name, w, h) })
	sc.Step(`^a photo "([^"]*)" of a ruler with (\d+) ticks (\d+) px apart$`, testCtx.aPhotoOfARuler)
	sc.Step(`^a file "([^"]*)" containing:$`, testCtx.aTextFile)
}
