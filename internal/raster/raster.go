// Package raster defines the decoder capability the tile server depends on:
// open an image, report its size, produce encoded pixel windows, build
// reduced-resolution overviews and compute per-band statistics. The server
// core only talks to these interfaces; the imaging-backed driver in this
// package is the default implementation.
package raster

import (
	"errors"
	"math"

	"tileview/internal/models"
)

// ErrEmptyWindow is returned when a requested window does not intersect the
// image at all. Map-tile handlers translate it into 204 No Content.
var ErrEmptyWindow = errors.New("requested window is outside the image")

// Window is a pixel-space region of the source image.
type Window struct {
	X      int
	Y      int
	Width  int
	Height int
}

// PixelType selects the sample type of encoded output.
type PixelType string

const (
	// PixelUnchanged keeps the source sample type.
	PixelUnchanged PixelType = "SOURCE"
	// PixelByte rescales samples to 8 bits, required whenever a range
	// adjustment is applied.
	PixelByte PixelType = "BYTE"
)

// OutputTypeFor picks the encoded pixel type implied by a range adjustment.
func OutputTypeFor(adjustment models.RangeAdjustment) PixelType {
	if adjustment == models.AdjustNone {
		return PixelUnchanged
	}
	return PixelByte
}

// OpenOptions fix the rendering parameters a handle is constructed with.
// Handles opened with equal options are interchangeable.
type OpenOptions struct {
	Format          models.OutputFormat
	Compression     models.Compression
	OutputType      PixelType
	RangeAdjustment models.RangeAdjustment
}

// BandStatistics holds the per-band sample statistics of a dataset.
type BandStatistics struct {
	Band   int     `json:"band"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

// SensorModel maps between image pixel coordinates and geographic
// coordinates (longitude and latitude in degrees).
type SensorModel interface {
	ImageToWorld(px, py float64) (lon, lat float64)
	WorldToImage(lon, lat float64) (px, py float64)
}

// Handle is an open raster dataset bound to a fixed set of rendering
// options. Handles are not safe for concurrent use; the pool guarantees a
// handle is lent to one goroutine at a time.
type Handle interface {
	// Size returns the full-resolution pixel dimensions.
	Size() (width, height int)

	// Metadata returns the dataset's key/value metadata.
	Metadata() map[string]string

	// EncodeTile reads the window from the source, scales it to the output
	// dimensions and returns encoded bytes in the handle's format.
	EncodeTile(w Window, outWidth, outHeight int) ([]byte, error)

	// BuildOverviews materializes reduced-resolution levels for the given
	// scale factors, e.g. [2 4 8].
	BuildOverviews(scales []int) error

	// HasOverviews reports whether overview levels already exist on disk.
	HasOverviews() bool

	// Statistics computes per-band statistics, or returns the cached result
	// when one is available.
	Statistics() ([]BandStatistics, error)

	// Close releases the dataset. Computed statistics are flushed to the
	// auxiliary sidecar file during close, not before.
	Close() error
}

// Driver opens raster datasets.
type Driver interface {
	Open(path string, opts OpenOptions) (Handle, SensorModel, error)
}

// TileWindow computes the source window for a tile request. Resolution level
// z halves the source resolution per level, 0 being full resolution, so the
// source window side is tileSize*2^z and the output stays tileSize square.
func TileWindow(z, x, y, tileSize int) Window {
	src := tileSize << z
	return Window{X: x * src, Y: y * src, Width: src, Height: src}
}

// CropWindow computes the source window for a crop request along with the
// output dimensions. The source region is fixed by the bounds; positive width
// or height overrides only rescale the output.
func CropWindow(minX, minY, maxX, maxY, width, height int) (Window, int, int) {
	win := Window{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
	outW, outH := win.Width, win.Height
	if width > 0 {
		outW = width
	}
	if height > 0 {
		outH = height
	}
	return win, outW, outH
}

// PreviewSize scales full image dimensions proportionally so the larger side
// equals maxSize. Explicit width or height overrides win when positive.
func PreviewSize(fullWidth, fullHeight, maxSize, width, height int) (int, int) {
	outW, outH := fullWidth, fullHeight
	if fullWidth >= fullHeight {
		outW = maxSize
		outH = int(math.Round(float64(fullHeight) * float64(maxSize) / float64(fullWidth)))
	} else {
		outH = maxSize
		outW = int(math.Round(float64(fullWidth) * float64(maxSize) / float64(fullHeight)))
	}
	if width > 0 {
		outW = width
	}
	if height > 0 {
		outH = height
	}
	if outW < 1 {
		outW = 1
	}
	if outH < 1 {
		outH = 1
	}
	return outW, outH
}

// StandardOverviews computes the scale factors for a standard image pyramid
// that ends at a thumbnail no larger than previewSize on its short side.
func StandardOverviews(width, height, previewSize int) []int {
	minSide := width
	if height < minSide {
		minSide = height
	}
	if minSide <= previewSize {
		return nil
	}
	n := int(math.Ceil(math.Log2(float64(minSide) / float64(previewSize))))
	scales := make([]int, 0, n)
	for i := 1; i <= n; i++ {
		scales = append(scales, 1<<i)
	}
	return scales
}

// Intersect clips the window to the image bounds. The second return is false
// when nothing remains.
func (w Window) Intersect(width, height int) (Window, bool) {
	x0 := max(w.X, 0)
	y0 := max(w.Y, 0)
	x1 := min(w.X+w.Width, width)
	y1 := min(w.Y+w.Height, height)
	if x1 <= x0 || y1 <= y0 {
		return Window{}, false
	}
	return Window{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}, true
}
