package raster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTileWindow(t *testing.T) {
	// Level 1 tiles read 2x tile size from the source.
	assert.Equal(t, Window{X: 0, Y: 0, Width: 512, Height: 512}, TileWindow(1, 0, 0, 256))

	// Level 0 is a 1:1 read offset by the tile indices.
	assert.Equal(t, Window{X: 512, Y: 256, Width: 256, Height: 256}, TileWindow(0, 2, 1, 256))

	assert.Equal(t, Window{X: 2048, Y: 0, Width: 2048, Height: 2048}, TileWindow(2, 1, 0, 512))
}

func TestCropWindow(t *testing.T) {
	win, outW, outH := CropWindow(10, 20, 110, 70, 0, 0)
	assert.Equal(t, Window{X: 10, Y: 20, Width: 100, Height: 50}, win)
	assert.Equal(t, 100, outW)
	assert.Equal(t, 50, outH)

	// Overrides rescale the output without moving the source region.
	win, outW, outH = CropWindow(10, 20, 110, 70, 50, 25)
	assert.Equal(t, Window{X: 10, Y: 20, Width: 100, Height: 50}, win)
	assert.Equal(t, 50, outW)
	assert.Equal(t, 25, outH)
}

func TestPreviewSize(t *testing.T) {
	w, h := PreviewSize(4096, 2048, 1024, 0, 0)
	assert.Equal(t, 1024, w)
	assert.Equal(t, 512, h)

	w, h = PreviewSize(2048, 4096, 1024, 0, 0)
	assert.Equal(t, 512, w)
	assert.Equal(t, 1024, h)

	w, h = PreviewSize(4096, 2048, 1024, 200, 100)
	assert.Equal(t, 200, w)
	assert.Equal(t, 100, h)
}

func TestStandardOverviews(t *testing.T) {
	assert.Equal(t, []int{2, 4, 8}, StandardOverviews(8192, 8192, 1024))
	assert.Equal(t, []int{2}, StandardOverviews(2000, 4000, 1024))

	// Images at or under the preview size need no overview levels.
	assert.Empty(t, StandardOverviews(1024, 1024, 1024))
	assert.Empty(t, StandardOverviews(512, 8192, 1024))
}

func TestWindowIntersect(t *testing.T) {
	full, ok := Window{X: 0, Y: 0, Width: 100, Height: 100}.Intersect(200, 200)
	assert.True(t, ok)
	assert.Equal(t, Window{X: 0, Y: 0, Width: 100, Height: 100}, full)

	clipped, ok := Window{X: 150, Y: 150, Width: 100, Height: 100}.Intersect(200, 200)
	assert.True(t, ok)
	assert.Equal(t, Window{X: 150, Y: 150, Width: 50, Height: 50}, clipped)

	_, ok = Window{X: 300, Y: 0, Width: 100, Height: 100}.Intersect(200, 200)
	assert.False(t, ok)

	_, ok = Window{X: -100, Y: -100, Width: 50, Height: 50}.Intersect(200, 200)
	assert.False(t, ok)
}

func TestOutputTypeFor(t *testing.T) {
	assert.Equal(t, PixelUnchanged, OutputTypeFor("NONE"))
	assert.Equal(t, PixelByte, OutputTypeFor("MINMAX"))
	assert.Equal(t, PixelByte, OutputTypeFor("DRA"))
}
