package ogc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForID(t *testing.T) {
	quad, ok := ForID("WebMercatorQuad")
	require.True(t, ok)
	assert.Equal(t, 256, quad.TileSize)

	quad2, ok := ForID("WebMercatorQuadx2")
	require.True(t, ok)
	assert.Equal(t, 512, quad2.TileSize)

	_, ok = ForID("GoogleCRS84Quad")
	assert.False(t, ok)
}

func TestTileBoundsLevelZero(t *testing.T) {
	tms, _ := ForID("WebMercatorQuad")
	minLon, minLat, maxLon, maxLat := tms.TileBounds(0, 0, 0)
	assert.InDelta(t, -180, minLon, 1e-9)
	assert.InDelta(t, 180, maxLon, 1e-9)
	assert.InDelta(t, maxLatitude, maxLat, 1e-6)
	assert.InDelta(t, -maxLatitude, minLat, 1e-6)
}

func TestTileBoundsQuadrants(t *testing.T) {
	tms, _ := ForID("WebMercatorQuad")

	// At level 1 the north-west tile covers the west hemisphere above the
	// equator.
	minLon, minLat, maxLon, maxLat := tms.TileBounds(1, 0, 0)
	assert.InDelta(t, -180, minLon, 1e-9)
	assert.InDelta(t, 0, maxLon, 1e-9)
	assert.InDelta(t, 0, minLat, 1e-9)
	assert.InDelta(t, maxLatitude, maxLat, 1e-6)

	minLon, minLat, maxLon, maxLat = tms.TileBounds(1, 1, 1)
	assert.InDelta(t, 0, minLon, 1e-9)
	assert.InDelta(t, 180, maxLon, 1e-9)
	assert.InDelta(t, -maxLatitude, minLat, 1e-6)
	assert.InDelta(t, 0, maxLat, 1e-9)
}

func TestTileForLonLatRoundTrips(t *testing.T) {
	tms, _ := ForID("WebMercatorQuad")

	for _, matrix := range []int{0, 1, 5, 10} {
		col, row := tms.TileForLonLat(matrix, 13.4, 52.5)
		minLon, minLat, maxLon, maxLat := tms.TileBounds(matrix, col, row)
		assert.LessOrEqual(t, minLon, 13.4)
		assert.GreaterOrEqual(t, maxLon, 13.4)
		assert.LessOrEqual(t, minLat, 52.5)
		assert.GreaterOrEqual(t, maxLat, 52.5)
	}
}

func TestTileForLonLatClampsPoles(t *testing.T) {
	tms, _ := ForID("WebMercatorQuad")
	col, row := tms.TileForLonLat(3, 0, 89.9)
	assert.Equal(t, 4, col)
	assert.Equal(t, 0, row)

	_, row = tms.TileForLonLat(3, 0, -89.9)
	assert.Equal(t, 7, row)
}

func TestLimitsForArea(t *testing.T) {
	tms, _ := ForID("WebMercatorQuad")
	limits := tms.LimitsForArea(-10, 40, 10, 55, 4)
	assert.Equal(t, "4", limits.TileMatrix)
	assert.LessOrEqual(t, limits.MinTileCol, limits.MaxTileCol)
	assert.LessOrEqual(t, limits.MinTileRow, limits.MaxTileRow)

	// The whole world at level 0 is the single root tile.
	root := tms.LimitsForArea(-180, -85, 180, 85, 0)
	assert.Equal(t, 0, root.MinTileCol)
	assert.Equal(t, 0, root.MaxTileCol)
	assert.Equal(t, 0, root.MinTileRow)
	assert.Equal(t, 0, root.MaxTileRow)
}
