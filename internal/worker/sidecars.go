package worker

import (
	"encoding/json"
	"fmt"
	"os"

	"tileview/internal/models"
	"tileview/internal/raster"
)

// writeSidecars persists the derived metadata artifacts for an ingested
// image: raster metadata, pixel bounds, a GeoJSON footprint feature and
// per-band statistics.
func writeSidecars(rec *models.ViewpointRecord, h raster.Handle, sm raster.SensorModel) error {
	width, height := h.Size()

	if err := writeJSON(rec.LocalPath+models.MetadataSuffix, map[string]any{
		"metadata": h.Metadata(),
	}); err != nil {
		return err
	}

	if err := writeJSON(rec.LocalPath+models.BoundsSuffix, map[string]any{
		"bounds": []int{0, 0, width, height},
	}); err != nil {
		return err
	}

	if err := writeJSON(rec.LocalPath+models.InfoSuffix, footprint(rec, sm, width, height)); err != nil {
		return err
	}

	stats, err := h.Statistics()
	if err != nil {
		return err
	}
	return writeJSON(rec.LocalPath+models.StatisticsSuffix, map[string]any{
		"image_statistics": map[string]any{"bands": stats},
	})
}

// footprint builds a GeoJSON FeatureCollection with one polygon feature
// covering the image extent in world coordinates.
func footprint(rec *models.ViewpointRecord, sm raster.SensorModel, width, height int) map[string]any {
	corners := [][2]float64{{0, 0}, {float64(width), 0}, {float64(width), float64(height)}, {0, float64(height)}}
	ring := make([][2]float64, 0, len(corners)+1)
	for _, c := range corners {
		lon, lat := sm.ImageToWorld(c[0], c[1])
		ring = append(ring, [2]float64{lon, lat})
	}
	ring = append(ring, ring[0])

	return map[string]any{
		"type": "FeatureCollection",
		"features": []map[string]any{{
			"type": "Feature",
			"geometry": map[string]any{
				"type":        "Polygon",
				"coordinates": [][][2]float64{ring},
			},
			"properties": map[string]any{
				"viewpoint_id":   rec.ID,
				"viewpoint_name": rec.Name,
			},
		}},
	}
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
