package server

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"tileview/internal/models"
	"tileview/internal/pool"
	"tileview/internal/raster"
)

// sidecarHandler serves one of the JSON documents written next to the image
// during ingestion.
func (s *Server) sidecarHandler(op models.Operation, suffix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec := s.lookup(c, op)
		if rec == nil {
			return
		}
		path := rec.LocalPath + suffix
		if _, err := os.Stat(path); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": string(op) + " is not available for this viewpoint"})
			return
		}
		c.Header("Content-Type", "application/json")
		c.File(path)
	}
}

// parseFormatFile splits a path segment like "preview.png" or "7.jpeg" into
// its stem and output format.
func parseFormatFile(file string) (stem string, format models.OutputFormat, err error) {
	dot := strings.LastIndex(file, ".")
	if dot < 1 || dot == len(file)-1 {
		return "", "", errors.New("missing image format extension")
	}
	format, ok := models.ParseOutputFormat(file[dot+1:])
	if !ok {
		return "", "", errors.New("unsupported image format " + file[dot+1:])
	}
	return file[:dot], format, nil
}

func compressionParam(c *gin.Context) (models.Compression, bool) {
	switch strings.ToUpper(c.DefaultQuery("compression", "NONE")) {
	case "NONE":
		return models.CompressionNone, true
	case "JPEG":
		return models.CompressionJPEG, true
	case "DEFLATE":
		return models.CompressionDeflate, true
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "compression must be one of NONE, JPEG, DEFLATE"})
	return "", false
}

func intQuery(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a non-negative integer"})
		return 0, false
	}
	return n, true
}

func (s *Server) handlePreview(c *gin.Context) {
	stem, format, err := parseFormatFile(c.Param("file"))
	if err != nil || stem != "preview" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "preview request must look like preview.<format>"})
		return
	}
	compression, ok := compressionParam(c)
	if !ok {
		return
	}
	maxSize, ok := intQuery(c, "max_size", 1024)
	if !ok {
		return
	}
	width, ok := intQuery(c, "width", 0)
	if !ok {
		return
	}
	height, ok := intQuery(c, "height", 0)
	if !ok {
		return
	}

	rec := s.lookup(c, models.OpPreview)
	if rec == nil {
		return
	}

	key := pool.KeyFor(format, compression, rec)
	err = s.pools.WithHandle(key, func(h raster.Handle, _ raster.SensorModel) error {
		w, h2 := h.Size()
		outW, outH := raster.PreviewSize(w, h2, maxSize, width, height)
		data, err := h.EncodeTile(raster.Window{X: 0, Y: 0, Width: w, Height: h2}, outW, outH)
		if err != nil {
			return err
		}
		c.Data(http.StatusOK, format.MediaType(), data)
		return nil
	})
	if err != nil {
		s.writeError(c, models.OpPreview, err)
	}
}

func (s *Server) handleTile(c *gin.Context) {
	z, err := strconv.Atoi(c.Param("z"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tile z must be an integer"})
		return
	}
	if z < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "resolution level for a tile request must be >= 0"})
		return
	}
	x, err := strconv.Atoi(c.Param("x"))
	if err != nil || x < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tile x must be a non-negative integer"})
		return
	}
	stem, format, err := parseFormatFile(c.Param("file"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	y, err := strconv.Atoi(stem)
	if err != nil || y < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tile y must be a non-negative integer"})
		return
	}
	compression, ok := compressionParam(c)
	if !ok {
		return
	}

	rec := s.lookup(c, models.OpTile)
	if rec == nil {
		return
	}

	key := pool.KeyFor(format, compression, rec)
	err = s.pools.WithHandle(key, func(h raster.Handle, _ raster.SensorModel) error {
		window := raster.TileWindow(z, x, y, rec.TileSize)
		data, err := h.EncodeTile(window, rec.TileSize, rec.TileSize)
		if err != nil {
			return err
		}
		c.Data(http.StatusOK, format.MediaType(), data)
		return nil
	})
	if err != nil {
		if errors.Is(err, raster.ErrEmptyWindow) {
			c.JSON(http.StatusNotFound, gin.H{"error": "requested tile is outside the image"})
			return
		}
		s.writeError(c, models.OpTile, err)
	}
}

func (s *Server) handleCrop(c *gin.Context) {
	stem, format, err := parseFormatFile(c.Param("bbox"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	coords := strings.Split(stem, ",")
	if len(coords) != 4 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "crop bounds must look like minx,miny,maxx,maxy.<format>"})
		return
	}
	var box [4]int
	for i, raw := range coords {
		box[i], err = strconv.Atoi(raw)
		if err != nil || box[i] < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "crop bounds must be non-negative integers"})
			return
		}
	}
	if box[2] <= box[0] || box[3] <= box[1] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "crop bounds must describe a non-empty region"})
		return
	}
	compression, ok := compressionParam(c)
	if !ok {
		return
	}
	width, ok := intQuery(c, "width", 0)
	if !ok {
		return
	}
	height, ok := intQuery(c, "height", 0)
	if !ok {
		return
	}

	rec := s.lookup(c, models.OpCrop)
	if rec == nil {
		return
	}

	key := pool.KeyFor(format, compression, rec)
	err = s.pools.WithHandle(key, func(h raster.Handle, _ raster.SensorModel) error {
		window, outW, outH := raster.CropWindow(box[0], box[1], box[2], box[3], width, height)
		data, err := h.EncodeTile(window, outW, outH)
		if err != nil {
			return err
		}
		c.Data(http.StatusOK, format.MediaType(), data)
		return nil
	})
	if err != nil {
		if errors.Is(err, raster.ErrEmptyWindow) {
			c.JSON(http.StatusNotFound, gin.H{"error": "requested region is outside the image"})
			return
		}
		s.writeError(c, models.OpCrop, err)
	}
}
