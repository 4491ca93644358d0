package pool

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tileview/internal/models"
	"tileview/internal/raster"
)

type fakeHandle struct {
	id int
}

func (h *fakeHandle) Size() (int, int)              { return 512, 512 }
func (h *fakeHandle) Metadata() map[string]string   { return map[string]string{"driver": "fake"} }
func (h *fakeHandle) BuildOverviews(s []int) error  { return nil }
func (h *fakeHandle) HasOverviews() bool            { return true }
func (h *fakeHandle) Close() error                  { return nil }
func (h *fakeHandle) Statistics() ([]raster.BandStatistics, error) {
	return []raster.BandStatistics{{Band: 1}}, nil
}
func (h *fakeHandle) EncodeTile(w raster.Window, outW, outH int) ([]byte, error) {
	return []byte{byte(h.id)}, nil
}

type fakeDriver struct {
	opens atomic.Int32
}

func (d *fakeDriver) Open(path string, opts raster.OpenOptions) (raster.Handle, raster.SensorModel, error) {
	n := d.opens.Add(1)
	return &fakeHandle{id: int(n)}, &raster.AffineSensorModel{A: 1, E: -1}, nil
}

func testKey(path string) Key {
	return KeyFor(models.FormatPNG, models.CompressionNone, &models.ViewpointRecord{
		LocalPath:       path,
		RangeAdjustment: models.AdjustNone,
	})
}

func TestPoolReusesCheckedInHandles(t *testing.T) {
	driver := &fakeDriver{}
	p := New(testKey("/img/a.png"), driver, zerolog.Nop())

	h1, _, err := p.Checkout()
	require.NoError(t, err)
	p.Checkin(h1)

	h2, _, err := p.Checkout()
	require.NoError(t, err)
	assert.Same(t, h1, h2, "an idle handle should be lent again")
	assert.Equal(t, int32(1), driver.opens.Load())
}

func TestPoolGrowsUnderContention(t *testing.T) {
	driver := &fakeDriver{}
	p := New(testKey("/img/a.png"), driver, zerolog.Nop())

	h1, _, err := p.Checkout()
	require.NoError(t, err)
	h2, _, err := p.Checkout()
	require.NoError(t, err)
	assert.NotSame(t, h1, h2)
	assert.Equal(t, int32(2), driver.opens.Load())

	// Both come back and no further opens happen.
	p.Checkin(h1)
	p.Checkin(h2)
	for i := 0; i < 4; i++ {
		h, _, err := p.Checkout()
		require.NoError(t, err)
		p.Checkin(h)
	}
	assert.Equal(t, int32(2), driver.opens.Load())
}

func TestWithHandleChecksInOnError(t *testing.T) {
	driver := &fakeDriver{}
	p := New(testKey("/img/a.png"), driver, zerolog.Nop())

	err := p.WithHandle(func(h raster.Handle, _ raster.SensorModel) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	// The handle went back to the idle list despite the callback error.
	h, _, err := p.Checkout()
	require.NoError(t, err)
	assert.NotNil(t, h)
	assert.Equal(t, int32(1), driver.opens.Load())
}

func TestPoolConcurrentBorrowers(t *testing.T) {
	driver := &fakeDriver{}
	p := New(testKey("/img/a.png"), driver, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				err := p.WithHandle(func(h raster.Handle, _ raster.SensorModel) error {
					_, err := h.EncodeTile(raster.Window{Width: 1, Height: 1}, 1, 1)
					return err
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, driver.opens.Load(), int32(32), "never more handles than peak concurrency")
}

func TestCacheReturnsSamePoolForEqualKeys(t *testing.T) {
	driver := &fakeDriver{}
	cache, err := NewCache(4, driver, zerolog.Nop())
	require.NoError(t, err)

	a := cache.Pool(testKey("/img/a.png"))
	b := cache.Pool(testKey("/img/a.png"))
	assert.Same(t, a, b)

	c := cache.Pool(testKey("/img/b.png"))
	assert.NotSame(t, a, c)
}

func TestCacheEvictsBeyondCapacity(t *testing.T) {
	driver := &fakeDriver{}
	cache, err := NewCache(2, driver, zerolog.Nop())
	require.NoError(t, err)

	a := cache.Pool(testKey("/img/a.png"))
	cache.Pool(testKey("/img/b.png"))
	cache.Pool(testKey("/img/c.png"))

	// Key a was evicted, so the cache builds a fresh pool for it.
	assert.NotSame(t, a, cache.Pool(testKey("/img/a.png")))
}

func TestKeyForDerivesOutputType(t *testing.T) {
	rec := &models.ViewpointRecord{LocalPath: "/img/a.png", RangeAdjustment: models.AdjustDRA}
	key := KeyFor(models.FormatJPEG, models.CompressionJPEG, rec)
	assert.Equal(t, raster.PixelByte, key.OutputType)
	assert.Equal(t, models.AdjustDRA, key.RangeAdjustment)

	rec.RangeAdjustment = models.AdjustNone
	key = KeyFor(models.FormatPNG, models.CompressionNone, rec)
	assert.Equal(t, raster.PixelUnchanged, key.OutputType)
}
