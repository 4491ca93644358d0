package raster

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"tileview/internal/models"
)

// ImagingDriver is the default Driver. It decodes the source with
// disintegration/imaging, so it handles the formats the standard image
// ecosystem does (PNG, JPEG, TIFF, BMP, GIF).
type ImagingDriver struct{}

func NewImagingDriver() *ImagingDriver { return &ImagingDriver{} }

func (d *ImagingDriver) Open(path string, opts OpenOptions) (Handle, SensorModel, error) {
	const op = "raster.ImagingDriver.Open"

	img, err := imaging.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	sm, err := loadSensorModel(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	h := &imagingHandle{
		path: path,
		img:  imaging.Clone(img),
		opts: opts,
	}
	h.loadCachedStatistics()
	return h, sm, nil
}

type imagingHandle struct {
	path   string
	img    *image.NRGBA
	opts   OpenOptions
	stats  []BandStatistics
	closed bool
}

func (h *imagingHandle) Size() (int, int) {
	b := h.img.Bounds()
	return b.Dx(), b.Dy()
}

func (h *imagingHandle) Metadata() map[string]string {
	w, ht := h.Size()
	return map[string]string{
		"driver":      "imaging",
		"source_file": filepath.Base(h.path),
		"format":      strings.TrimPrefix(filepath.Ext(h.path), "."),
		"width":       fmt.Sprintf("%d", w),
		"height":      fmt.Sprintf("%d", ht),
	}
}

func (h *imagingHandle) EncodeTile(w Window, outWidth, outHeight int) ([]byte, error) {
	const op = "raster.imagingHandle.EncodeTile"

	if w.Width <= 0 || w.Height <= 0 || outWidth <= 0 || outHeight <= 0 {
		return nil, fmt.Errorf("%s: invalid window or output size", op)
	}
	fullW, fullH := h.Size()
	visible, ok := w.Intersect(fullW, fullH)
	if !ok {
		return nil, ErrEmptyWindow
	}

	tile := imaging.Crop(h.img, image.Rect(visible.X, visible.Y, visible.X+visible.Width, visible.Y+visible.Height))
	if visible != w {
		// Pad partial edge windows with black so the output keeps the
		// requested aspect.
		canvas := imaging.New(w.Width, w.Height, color.NRGBA{})
		tile = imaging.Paste(canvas, tile, image.Pt(visible.X-w.X, visible.Y-w.Y))
	}
	if outWidth != w.Width || outHeight != w.Height {
		tile = imaging.Resize(tile, outWidth, outHeight, imaging.Lanczos)
	}
	if h.opts.OutputType == PixelByte && h.opts.RangeAdjustment != models.AdjustNone {
		adjusted, err := h.adjustRange(tile)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		tile = adjusted
	}

	var buf bytes.Buffer
	if err := h.encode(&buf, tile); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return buf.Bytes(), nil
}

func (h *imagingHandle) encode(buf *bytes.Buffer, img *image.NRGBA) error {
	switch h.opts.Format {
	case models.FormatPNG:
		return imaging.Encode(buf, img, imaging.PNG)
	case models.FormatJPEG:
		quality := 95
		if h.opts.Compression == models.CompressionJPEG {
			quality = 75
		}
		return imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case models.FormatGTIFF:
		return imaging.Encode(buf, img, imaging.TIFF)
	case models.FormatNITF:
		return fmt.Errorf("format %s is not supported by the imaging driver", h.opts.Format)
	}
	return fmt.Errorf("unrecognized output format %q", h.opts.Format)
}

// adjustRange rescales samples to the 8-bit output range. MINMAX stretches
// the full observed sample range; DRA clips at mean +/- 2 standard
// deviations before stretching.
func (h *imagingHandle) adjustRange(img *image.NRGBA) (*image.NRGBA, error) {
	stats, err := h.Statistics()
	if err != nil {
		return nil, err
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, b := range stats {
		switch h.opts.RangeAdjustment {
		case models.AdjustDRA:
			lo = math.Min(lo, b.Mean-2*b.StdDev)
			hi = math.Max(hi, b.Mean+2*b.StdDev)
		default:
			lo = math.Min(lo, b.Min)
			hi = math.Max(hi, b.Max)
		}
	}
	if hi <= lo {
		return img, nil
	}
	scale := 255.0 / (hi - lo)
	rescale := func(v uint8) uint8 {
		scaled := (float64(v) - lo) * scale
		return uint8(math.Max(0, math.Min(255, math.Round(scaled))))
	}
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{R: rescale(c.R), G: rescale(c.G), B: rescale(c.B), A: c.A}
	}), nil
}

func (h *imagingHandle) BuildOverviews(scales []int) error {
	const op = "raster.imagingHandle.BuildOverviews"

	w, ht := h.Size()
	for i, scale := range scales {
		dst := overviewPath(h.path, i)
		reduced := imaging.Resize(h.img, max(w/scale, 1), max(ht/scale, 1), imaging.Box)
		// imaging.Save picks the encoder from the file extension, which for
		// the .ovr sidecar is not an image format; encode explicitly as PNG.
		f, err := os.Create(dst)
		if err != nil {
			return fmt.Errorf("%s: scale %d: %w", op, scale, err)
		}
		if err := imaging.Encode(f, reduced, imaging.PNG, imaging.PNGCompressionLevel(0)); err != nil {
			f.Close()
			return fmt.Errorf("%s: scale %d: %w", op, scale, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("%s: scale %d: %w", op, scale, err)
		}
	}
	return nil
}

func (h *imagingHandle) HasOverviews() bool {
	_, err := os.Stat(h.path + models.OverviewSuffix)
	return err == nil
}

// overviewPath places the first pyramid level at the canonical .ovr sidecar
// and deeper levels alongside it.
func overviewPath(path string, level int) string {
	if level == 0 {
		return path + models.OverviewSuffix
	}
	return fmt.Sprintf("%s.%d%s", path, level, models.OverviewSuffix)
}

func (h *imagingHandle) Statistics() ([]BandStatistics, error) {
	if h.stats != nil {
		return h.stats, nil
	}

	b := h.img.Bounds()
	const bands = 3
	var sum, sumSq [bands]float64
	mins := [bands]float64{255, 255, 255}
	maxs := [bands]float64{}
	n := float64(b.Dx() * b.Dy())
	if n == 0 {
		return nil, fmt.Errorf("raster.imagingHandle.Statistics: empty image")
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			px := h.img.NRGBAAt(x, y)
			for i, v := range [bands]uint8{px.R, px.G, px.B} {
				f := float64(v)
				sum[i] += f
				sumSq[i] += f * f
				mins[i] = math.Min(mins[i], f)
				maxs[i] = math.Max(maxs[i], f)
			}
		}
	}
	stats := make([]BandStatistics, bands)
	for i := 0; i < bands; i++ {
		mean := sum[i] / n
		variance := sumSq[i]/n - mean*mean
		stats[i] = BandStatistics{
			Band:   i + 1,
			Min:    mins[i],
			Max:    maxs[i],
			Mean:   mean,
			StdDev: math.Sqrt(math.Max(variance, 0)),
		}
	}
	h.stats = stats
	return stats, nil
}

// Close flushes computed statistics to the auxiliary sidecar. The flush
// happens here and nowhere else: a handle must be closed before another open
// of the same dataset can see the cached statistics.
func (h *imagingHandle) Close() error {
	const op = "raster.imagingHandle.Close"

	if h.closed {
		return nil
	}
	h.closed = true
	if h.stats == nil {
		return nil
	}
	aux := h.path + models.AuxSuffix
	if _, err := os.Stat(aux); err == nil {
		return nil
	}
	data, err := json.MarshalIndent(auxFile{Bands: h.stats}, "", "  ")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := os.WriteFile(aux, data, 0o644); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// auxFile is the on-disk format of the statistics cache sidecar.
type auxFile struct {
	Bands []BandStatistics `json:"bands"`
}

// loadCachedStatistics reads statistics flushed by a previous handle. A
// sidecar in a foreign format is ignored and statistics are recomputed on
// demand.
func (h *imagingHandle) loadCachedStatistics() {
	data, err := os.ReadFile(h.path + models.AuxSuffix)
	if err != nil {
		return
	}
	var aux auxFile
	if err := json.Unmarshal(data, &aux); err != nil || len(aux.Bands) == 0 {
		return
	}
	h.stats = aux.Bands
}
