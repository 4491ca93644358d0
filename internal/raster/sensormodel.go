package raster

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// AffineSensorModel maps pixels to geographic coordinates with the six
// coefficients of an ESRI world file:
//
//	lon = c + a*px + b*py
//	lat = f + d*px + e*py
type AffineSensorModel struct {
	A, B, C float64
	D, E, F float64
}

func (m *AffineSensorModel) ImageToWorld(px, py float64) (float64, float64) {
	return m.C + m.A*px + m.B*py, m.F + m.D*px + m.E*py
}

func (m *AffineSensorModel) WorldToImage(lon, lat float64) (float64, float64) {
	det := m.A*m.E - m.B*m.D
	if det == 0 {
		return 0, 0
	}
	dx := lon - m.C
	dy := lat - m.F
	return (m.E*dx - m.B*dy) / det, (m.A*dy - m.D*dx) / det
}

// loadSensorModel builds a sensor model for the image at path. A world file
// (path with extension replaced by .wld, or path+.wld) supplies the affine
// coefficients when present; otherwise an identity model is used so pixel
// coordinates double as world coordinates.
func loadSensorModel(path string) (SensorModel, error) {
	for _, wld := range worldFileCandidates(path) {
		m, err := parseWorldFile(wld)
		if err == nil {
			return m, nil
		}
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	return &AffineSensorModel{A: 1, E: -1}, nil
}

func worldFileCandidates(path string) []string {
	candidates := []string{path + ".wld"}
	if i := strings.LastIndex(path, "."); i > 0 {
		candidates = append(candidates, path[:i]+".wld")
	}
	return candidates
}

func parseWorldFile(path string) (*AffineSensorModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var coeffs [6]float64
	scanner := bufio.NewScanner(f)
	for i := 0; i < 6; i++ {
		if !scanner.Scan() {
			return nil, fmt.Errorf("world file %s: expected 6 lines, got %d", path, i)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(scanner.Text()), 64)
		if err != nil {
			return nil, fmt.Errorf("world file %s line %d: %w", path, i+1, err)
		}
		coeffs[i] = v
	}

	// World file line order: x scale, y rotation, x rotation, y scale,
	// x origin, y origin.
	return &AffineSensorModel{
		A: coeffs[0], D: coeffs[1], B: coeffs[2], E: coeffs[3], C: coeffs[4], F: coeffs[5],
	}, nil
}
