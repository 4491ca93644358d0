package pool

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"tileview/internal/raster"
)

// Cache is a bounded pool-of-pools. Pools evicted beyond the capacity are
// simply dropped; their handles are reclaimed with the process, which is the
// intended lifecycle for this process-wide state.
type Cache struct {
	pools  *lru.Cache[Key, *Pool]
	driver raster.Driver
	log    zerolog.Logger
}

func NewCache(capacity int, driver raster.Driver, log zerolog.Logger) (*Cache, error) {
	pools, err := lru.New[Key, *Pool](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{pools: pools, driver: driver, log: log}, nil
}

// Pool returns the pool for key, creating it on first use.
func (c *Cache) Pool(key Key) *Pool {
	if p, ok := c.pools.Get(key); ok {
		return p
	}
	p := New(key, c.driver, c.log)
	if existing, ok, _ := c.pools.PeekOrAdd(key, p); ok {
		return existing
	}
	return p
}

// WithHandle is the scoped-acquisition entry point used by request handlers
// and the worker.
func (c *Cache) WithHandle(key Key, fn func(h raster.Handle, sm raster.SensorModel) error) error {
	return c.Pool(key).WithHandle(fn)
}
