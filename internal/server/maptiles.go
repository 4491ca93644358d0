package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tileview/internal/models"
	"tileview/internal/ogc"
	"tileview/internal/pool"
	"tileview/internal/raster"
)

// maxMapMatrix caps the matrix levels considered when computing tileset
// limits.
const maxMapMatrix = 24

func (s *Server) handleListTilesets(c *gin.Context) {
	rec := s.lookup(c, models.OpMapTile)
	if rec == nil {
		return
	}

	list := ogc.TileSetList{}
	for _, tms := range ogc.All() {
		list.Tilesets = append(list.Tilesets, ogc.TileSetItem{
			Title:            tms.ID,
			DataType:         ogc.DataTypeMap,
			CRS:              ogc.WebMercatorCRS,
			TileMatrixSetURI: tms.URI(),
			Links: []ogc.Link{{
				Href: c.Request.URL.Path + "/" + tms.ID,
				Rel:  "self",
				Type: "application/json",
			}},
		})
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleTilesetMetadata(c *gin.Context) {
	tms, ok := ogc.ForID(c.Param("tms"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unsupported tile matrix set, supported sets are WebMercatorQuad and WebMercatorQuadx2"})
		return
	}

	rec := s.lookup(c, models.OpMapTile)
	if rec == nil {
		return
	}

	key := pool.KeyFor(models.FormatPNG, models.CompressionNone, rec)
	err := s.pools.WithHandle(key, func(h raster.Handle, sm raster.SensorModel) error {
		w, ht := h.Size()
		minLon, minLat, maxLon, maxLat := imageGeoBounds(sm, w, ht)

		meta := ogc.TileSetMetadata{
			DataType: ogc.DataTypeMap,
			CRS:      ogc.WebMercatorCRS,
			Links: []ogc.Link{{
				Href: c.Request.URL.Path,
				Rel:  "self",
				Type: "application/json",
			}},
			BoundingBox: &ogc.BoundingBox2D{
				LowerLeft:  [2]float64{minLon, minLat},
				UpperRight: [2]float64{maxLon, maxLat},
				CRS:        ogc.WebMercatorCRS,
			},
		}

		for matrix := 0; matrix <= maxMapMatrix; matrix++ {
			limits := tms.LimitsForArea(minLon, minLat, maxLon, maxLat, matrix)
			meta.TileMatrixSetLimits = append(meta.TileMatrixSetLimits, limits)

			// Stop once a single tile spans less than the image so deeper
			// levels only repeat the same shrinking footprint.
			if limits.MaxTileCol > limits.MinTileCol || limits.MaxTileRow > limits.MinTileRow {
				span := limits.MaxTileCol - limits.MinTileCol
				if limits.MaxTileRow-limits.MinTileRow > span {
					span = limits.MaxTileRow - limits.MinTileRow
				}
				if float64(span+1)*float64(tms.TileSize) > float64(max(w, ht)) {
					break
				}
			}
		}

		last := meta.TileMatrixSetLimits[len(meta.TileMatrixSetLimits)-1]
		meta.CenterPoint = &ogc.TilePoint{
			Coordinates: [2]float64{(minLon + maxLon) / 2, (minLat + maxLat) / 2},
			TileMatrix:  last.TileMatrix,
		}

		c.JSON(http.StatusOK, meta)
		return nil
	})
	if err != nil {
		s.writeError(c, models.OpMapTile, err)
	}
}

func (s *Server) handleMapTile(c *gin.Context) {
	tms, ok := ogc.ForID(c.Param("tms"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unsupported tile matrix set, supported sets are WebMercatorQuad and WebMercatorQuadx2"})
		return
	}
	matrix, err := strconv.Atoi(c.Param("z"))
	if err != nil || matrix < 0 || matrix > maxMapMatrix {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tileMatrix must be an integer between 0 and " + strconv.Itoa(maxMapMatrix)})
		return
	}
	row, err := strconv.Atoi(c.Param("x"))
	if err != nil || row < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tileRow must be a non-negative integer"})
		return
	}
	stem, format, err := parseFormatFile(c.Param("file"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	col, err := strconv.Atoi(stem)
	if err != nil || col < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tileCol must be a non-negative integer"})
		return
	}
	compression, ok := compressionParam(c)
	if !ok {
		return
	}

	rec := s.lookup(c, models.OpMapTile)
	if rec == nil {
		return
	}

	key := pool.KeyFor(format, compression, rec)
	err = s.pools.WithHandle(key, func(h raster.Handle, sm raster.SensorModel) error {
		w, ht := h.Size()
		minLon, minLat, maxLon, maxLat := tms.TileBounds(matrix, col, row)
		window := windowForGeoBox(sm, minLon, minLat, maxLon, maxLat)
		if _, ok := window.Intersect(w, ht); !ok {
			c.Status(http.StatusNoContent)
			return nil
		}
		data, err := h.EncodeTile(window, tms.TileSize, tms.TileSize)
		if err != nil {
			if errors.Is(err, raster.ErrEmptyWindow) {
				c.Status(http.StatusNoContent)
				return nil
			}
			return err
		}
		c.Data(http.StatusOK, format.MediaType(), data)
		return nil
	})
	if err != nil {
		s.writeError(c, models.OpMapTile, err)
	}
}

// imageGeoBounds projects the image corners to geographic coordinates and
// returns their bounding box.
func imageGeoBounds(sm raster.SensorModel, width, height int) (minLon, minLat, maxLon, maxLat float64) {
	corners := [4][2]float64{
		{0, 0},
		{float64(width), 0},
		{0, float64(height)},
		{float64(width), float64(height)},
	}
	minLon, minLat = math.Inf(1), math.Inf(1)
	maxLon, maxLat = math.Inf(-1), math.Inf(-1)
	for _, p := range corners {
		lon, lat := sm.ImageToWorld(p[0], p[1])
		minLon = math.Min(minLon, lon)
		maxLon = math.Max(maxLon, lon)
		minLat = math.Min(minLat, lat)
		maxLat = math.Max(maxLat, lat)
	}
	return minLon, minLat, maxLon, maxLat
}

// windowForGeoBox maps a geographic box into an image pixel window via the
// sensor model.
func windowForGeoBox(sm raster.SensorModel, minLon, minLat, maxLon, maxLat float64) raster.Window {
	corners := [4][2]float64{
		{minLon, maxLat},
		{maxLon, maxLat},
		{minLon, minLat},
		{maxLon, minLat},
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range corners {
		px, py := sm.WorldToImage(p[0], p[1])
		minX = math.Min(minX, px)
		maxX = math.Max(maxX, px)
		minY = math.Min(minY, py)
		maxY = math.Max(maxY, py)
	}
	return raster.Window{
		X:      int(math.Floor(minX)),
		Y:      int(math.Floor(minY)),
		Width:  int(math.Ceil(maxX - minX)),
		Height: int(math.Ceil(maxY - minY)),
	}
}
