package raster

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tileview/internal/models"
)

func writeTestImage(t *testing.T, dir string, width, height int, c color.NRGBA) string {
	t.Helper()
	path := filepath.Join(dir, "source.png")
	img := imaging.New(width, height, c)
	require.NoError(t, imaging.Save(img, path))
	return path
}

func pngOptions() OpenOptions {
	return OpenOptions{
		Format:          models.FormatPNG,
		Compression:     models.CompressionNone,
		OutputType:      PixelUnchanged,
		RangeAdjustment: models.AdjustNone,
	}
}

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := imaging.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func TestDriverOpenAndSize(t *testing.T) {
	path := writeTestImage(t, t.TempDir(), 64, 48, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	driver := NewImagingDriver()
	h, sm, err := driver.Open(path, pngOptions())
	require.NoError(t, err)
	defer h.Close()

	w, ht := h.Size()
	assert.Equal(t, 64, w)
	assert.Equal(t, 48, ht)
	require.NotNil(t, sm)

	// Without a world file pixel coordinates double as world coordinates,
	// with latitude decreasing as rows grow.
	lon, lat := sm.ImageToWorld(10, 5)
	assert.InDelta(t, 10, lon, 1e-9)
	assert.InDelta(t, -5, lat, 1e-9)

	meta := h.Metadata()
	assert.Equal(t, "source.png", meta["source_file"])
	assert.Equal(t, "64", meta["width"])
}

func TestEncodeTileFullAndScaled(t *testing.T) {
	path := writeTestImage(t, t.TempDir(), 64, 64, color.NRGBA{R: 200, G: 100, B: 50, A: 255})

	h, _, err := NewImagingDriver().Open(path, pngOptions())
	require.NoError(t, err)
	defer h.Close()

	data, err := h.EncodeTile(Window{X: 0, Y: 0, Width: 64, Height: 64}, 32, 32)
	require.NoError(t, err)
	img := decodePNG(t, data)
	assert.Equal(t, 32, img.Bounds().Dx())
	assert.Equal(t, 32, img.Bounds().Dy())
}

func TestEncodeTilePadsPartialWindows(t *testing.T) {
	path := writeTestImage(t, t.TempDir(), 40, 40, color.NRGBA{R: 255, G: 255, B: 255, A: 255})

	h, _, err := NewImagingDriver().Open(path, pngOptions())
	require.NoError(t, err)
	defer h.Close()

	// The window hangs off the right and bottom edges; the output keeps the
	// requested dimensions with the overhang filled black.
	data, err := h.EncodeTile(Window{X: 20, Y: 20, Width: 40, Height: 40}, 40, 40)
	require.NoError(t, err)
	img := decodePNG(t, data)
	require.Equal(t, 40, img.Bounds().Dx())
	require.Equal(t, 40, img.Bounds().Dy())

	r, g, b, _ := img.At(0, 0).RGBA()
	assert.True(t, r > 0xf000 && g > 0xf000 && b > 0xf000, "visible corner should stay white")
	r, g, b, _ = img.At(39, 39).RGBA()
	assert.True(t, r == 0 && g == 0 && b == 0, "overhang should be black")
}

func TestEncodeTileOutsideImage(t *testing.T) {
	path := writeTestImage(t, t.TempDir(), 32, 32, color.NRGBA{A: 255})

	h, _, err := NewImagingDriver().Open(path, pngOptions())
	require.NoError(t, err)
	defer h.Close()

	_, err = h.EncodeTile(Window{X: 100, Y: 100, Width: 32, Height: 32}, 32, 32)
	assert.ErrorIs(t, err, ErrEmptyWindow)
}

func TestStatisticsOfUniformImage(t *testing.T) {
	path := writeTestImage(t, t.TempDir(), 16, 16, color.NRGBA{R: 80, G: 160, B: 240, A: 255})

	h, _, err := NewImagingDriver().Open(path, pngOptions())
	require.NoError(t, err)
	defer h.Close()

	stats, err := h.Statistics()
	require.NoError(t, err)
	require.Len(t, stats, 3)
	for i, want := range []float64{80, 160, 240} {
		assert.InDelta(t, want, stats[i].Min, 1e-9)
		assert.InDelta(t, want, stats[i].Max, 1e-9)
		assert.InDelta(t, want, stats[i].Mean, 1e-9)
		assert.InDelta(t, 0, stats[i].StdDev, 1e-9)
	}
}

func TestCloseFlushesStatisticsForNextOpen(t *testing.T) {
	path := writeTestImage(t, t.TempDir(), 16, 16, color.NRGBA{R: 42, G: 42, B: 42, A: 255})
	driver := NewImagingDriver()

	first, _, err := driver.Open(path, pngOptions())
	require.NoError(t, err)
	_, err = first.Statistics()
	require.NoError(t, err)
	require.NoError(t, first.Close())

	_, err = os.Stat(path + models.AuxSuffix)
	require.NoError(t, err, "close should write the statistics sidecar")

	// A fresh handle picks the cached statistics up from disk instead of
	// recomputing them.
	second, _, err := driver.Open(path, pngOptions())
	require.NoError(t, err)
	defer second.Close()
	stats, err := second.Statistics()
	require.NoError(t, err)
	assert.InDelta(t, 42, stats[0].Mean, 1e-9)
}

func TestBuildOverviews(t *testing.T) {
	path := writeTestImage(t, t.TempDir(), 64, 64, color.NRGBA{R: 9, G: 9, B: 9, A: 255})

	h, _, err := NewImagingDriver().Open(path, pngOptions())
	require.NoError(t, err)
	defer h.Close()

	assert.False(t, h.HasOverviews())
	require.NoError(t, h.BuildOverviews([]int{2, 4}))
	assert.True(t, h.HasOverviews())

	_, err = os.Stat(path + models.OverviewSuffix)
	assert.NoError(t, err)
	_, err = os.Stat(path + ".1" + models.OverviewSuffix)
	assert.NoError(t, err)
}

func TestWorldFileSensorModel(t *testing.T) {
	dir := t.TempDir()
	path := writeTestImage(t, dir, 8, 8, color.NRGBA{A: 255})
	wld := "0.5\n0\n0\n-0.5\n100\n40\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "source.wld"), []byte(wld), 0o644))

	_, sm, err := NewImagingDriver().Open(path, pngOptions())
	require.NoError(t, err)

	lon, lat := sm.ImageToWorld(2, 4)
	assert.InDelta(t, 101, lon, 1e-9)
	assert.InDelta(t, 38, lat, 1e-9)

	px, py := sm.WorldToImage(101, 38)
	assert.InDelta(t, 2, px, 1e-9)
	assert.InDelta(t, 4, py, 1e-9)
}
