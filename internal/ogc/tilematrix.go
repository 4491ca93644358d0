package ogc

import (
	"math"
	"strconv"
)

// WebMercatorCRS is the coordinate reference system all supported tile
// matrix sets share.
const WebMercatorCRS = "http://www.opengis.net/def/crs/EPSG/0/3857"

// maxLatitude is the Web Mercator latitude clamp.
const maxLatitude = 85.05112878

// TileMatrixSet describes a quad-tree tiling of the Web Mercator plane.
// Matrix z splits the world into 2^z columns and rows, row 0 at the top.
type TileMatrixSet struct {
	ID       string
	TileSize int
}

var tileMatrixSets = []TileMatrixSet{
	{ID: "WebMercatorQuad", TileSize: 256},
	{ID: "WebMercatorQuadx2", TileSize: 512},
}

// ForID looks up a supported tile matrix set by identifier.
func ForID(id string) (TileMatrixSet, bool) {
	for _, t := range tileMatrixSets {
		if t.ID == id {
			return t, true
		}
	}
	return TileMatrixSet{}, false
}

// All returns the supported tile matrix sets.
func All() []TileMatrixSet {
	return tileMatrixSets
}

func (t TileMatrixSet) URI() string {
	return "http://www.opengis.net/def/tilematrixset/OGC/1.0/" + t.ID
}

// TileBounds returns the geographic bounding box of a tile in degrees.
func (t TileMatrixSet) TileBounds(matrix, col, row int) (minLon, minLat, maxLon, maxLat float64) {
	n := float64(int(1) << matrix)
	minLon = float64(col)/n*360 - 180
	maxLon = float64(col+1)/n*360 - 180
	maxLat = tileLatitude(float64(row), n)
	minLat = tileLatitude(float64(row+1), n)
	return minLon, minLat, maxLon, maxLat
}

func tileLatitude(row, n float64) float64 {
	y := math.Pi - 2*math.Pi*row/n
	return math.Atan(math.Sinh(y)) * 180 / math.Pi
}

// TileForLonLat returns the tile column and row containing a geographic
// point at the given matrix level.
func (t TileMatrixSet) TileForLonLat(matrix int, lon, lat float64) (col, row int) {
	n := float64(int(1) << matrix)
	lat = math.Max(-maxLatitude, math.Min(maxLatitude, lat))
	col = int(math.Floor((lon + 180) / 360 * n))
	latRad := lat * math.Pi / 180
	row = int(math.Floor((1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n))
	limit := int(n) - 1
	col = clamp(col, 0, limit)
	row = clamp(row, 0, limit)
	return col, row
}

// LimitsForArea computes the tile matrix limits covering a geographic box.
func (t TileMatrixSet) LimitsForArea(minLon, minLat, maxLon, maxLat float64, matrix int) TileMatrixLimits {
	minCol, minRow := t.TileForLonLat(matrix, minLon, maxLat)
	maxCol, maxRow := t.TileForLonLat(matrix, maxLon, minLat)
	return TileMatrixLimits{
		TileMatrix: strconv.Itoa(matrix),
		MinTileRow: minRow,
		MaxTileRow: maxRow,
		MinTileCol: minCol,
		MaxTileCol: maxCol,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
