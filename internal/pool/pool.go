// Package pool amortizes the cost of opening raster datasets across
// concurrent requests. A Pool lends handles for one combination of rendering
// options; a Cache keeps a bounded set of pools so repeated requests for the
// same image and options reuse the same pool instance.
package pool

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tileview/internal/models"
	"tileview/internal/raster"
)

// Key identifies an equivalence class of interchangeable decoder handles.
type Key struct {
	Format          models.OutputFormat
	Compression     models.Compression
	Path            string
	OutputType      raster.PixelType
	RangeAdjustment models.RangeAdjustment
}

// KeyFor derives the pool key for serving a record in the given format. The
// output pixel type follows from the record's range adjustment.
func KeyFor(format models.OutputFormat, compression models.Compression, rec *models.ViewpointRecord) Key {
	return Key{
		Format:          format,
		Compression:     compression,
		Path:            rec.LocalPath,
		OutputType:      raster.OutputTypeFor(rec.RangeAdjustment),
		RangeAdjustment: rec.RangeAdjustment,
	}
}

func (k Key) openOptions() raster.OpenOptions {
	return raster.OpenOptions{
		Format:          k.Format,
		Compression:     k.Compression,
		OutputType:      k.OutputType,
		RangeAdjustment: k.RangeAdjustment,
	}
}

// Pool lends raster handles opened with one fixed set of options. The idle
// list is guarded by the mutex; opening a new handle happens outside of it
// so a cold open never blocks checkins of existing handles.
type Pool struct {
	key    Key
	driver raster.Driver
	log    zerolog.Logger

	mu    sync.Mutex
	idle  []raster.Handle
	model raster.SensorModel
	total int
}

func New(key Key, driver raster.Driver, log zerolog.Logger) *Pool {
	return &Pool{key: key, driver: driver, log: log}
}

// Checkout returns an idle handle when one exists, otherwise it opens the
// dataset synchronously on the calling goroutine. Open failures propagate
// and leave the pool unchanged.
func (p *Pool) Checkout() (raster.Handle, raster.SensorModel, error) {
	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		h := p.idle[n-1]
		p.idle = p.idle[:n-1]
		model := p.model
		p.mu.Unlock()
		return h, model, nil
	}
	p.mu.Unlock()

	start := time.Now()
	h, model, err := p.driver.Open(p.key.Path, p.key.openOptions())
	if err != nil {
		return nil, nil, err
	}

	p.mu.Lock()
	p.model = model
	p.total++
	total := p.total
	p.mu.Unlock()

	p.log.Info().
		Str("path", p.key.Path).
		Dur("open_duration", time.Since(start)).
		Int("total_handles", total).
		Msg("opened new decoder handle")
	return h, model, nil
}

// Checkin returns a handle to the idle set for reuse. Handles are never
// closed or discarded here.
func (p *Pool) Checkin(h raster.Handle) {
	p.mu.Lock()
	p.idle = append(p.idle, h)
	p.mu.Unlock()
}

// WithHandle runs fn with a checked-out handle and guarantees the checkin,
// whatever fn returns. This is the only sanctioned way application code
// touches a handle.
func (p *Pool) WithHandle(fn func(h raster.Handle, sm raster.SensorModel) error) error {
	h, model, err := p.Checkout()
	if err != nil {
		return err
	}
	defer p.Checkin(h)
	return fn(h, model)
}
