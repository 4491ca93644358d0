// Package ogc carries the response shapes and tile-matrix geometry for the
// OGC API - Tiles surface of the server.
package ogc

// DataType classifies a tileset's content.
type DataType string

const DataTypeMap DataType = "map"

type Link struct {
	Href string `json:"href"`
	Rel  string `json:"rel,omitempty"`
	Type string `json:"type,omitempty"`
}

type TileSetItem struct {
	Title            string   `json:"title,omitempty"`
	DataType         DataType `json:"dataType"`
	CRS              string   `json:"crs"`
	TileMatrixSetURI string   `json:"tileMatrixSetURI,omitempty"`
	Links            []Link   `json:"links"`
}

type TileSetList struct {
	Tilesets []TileSetItem `json:"tilesets"`
}

type TileMatrixLimits struct {
	TileMatrix string `json:"tileMatrix"`
	MinTileRow int    `json:"minTileRow"`
	MaxTileRow int    `json:"maxTileRow"`
	MinTileCol int    `json:"minTileCol"`
	MaxTileCol int    `json:"maxTileCol"`
}

type BoundingBox2D struct {
	LowerLeft  [2]float64 `json:"lowerLeft"`
	UpperRight [2]float64 `json:"upperRight"`
	CRS        string     `json:"crs,omitempty"`
}

type TilePoint struct {
	Coordinates [2]float64 `json:"coordinates"`
	TileMatrix  string     `json:"tileMatrix"`
}

type TileSetMetadata struct {
	DataType            DataType           `json:"dataType"`
	CRS                 string             `json:"crs"`
	Links               []Link             `json:"links"`
	TileMatrixSetLimits []TileMatrixLimits `json:"tileMatrixSetLimits,omitempty"`
	BoundingBox         *BoundingBox2D     `json:"boundingBox,omitempty"`
	CenterPoint         *TilePoint         `json:"centerPoint,omitempty"`
}
