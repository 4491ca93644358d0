package models

import (
	"net/url"
	"strings"
)

// ViewpointStatus is the lifecycle state of a viewpoint record.
type ViewpointStatus string

const (
	StatusRequested ViewpointStatus = "REQUESTED"
	StatusUpdating  ViewpointStatus = "UPDATING"
	StatusReady     ViewpointStatus = "READY"
	StatusDeleted   ViewpointStatus = "DELETED"
	StatusFailed    ViewpointStatus = "FAILED"
)

// RangeAdjustment is the pixel-value scaling policy applied when converting
// raw sample values to the output bit depth.
type RangeAdjustment string

const (
	AdjustNone   RangeAdjustment = "NONE"
	AdjustMinMax RangeAdjustment = "MINMAX"
	AdjustDRA    RangeAdjustment = "DRA"
)

func (r RangeAdjustment) Valid() bool {
	switch r {
	case AdjustNone, AdjustMinMax, AdjustDRA:
		return true
	}
	return false
}

// OutputFormat identifies the encoding for emitted pixel data.
type OutputFormat string

const (
	FormatPNG   OutputFormat = "PNG"
	FormatNITF  OutputFormat = "NITF"
	FormatJPEG  OutputFormat = "JPEG"
	FormatGTIFF OutputFormat = "GTIFF"
)

// ParseOutputFormat maps a URL file extension to an output format.
func ParseOutputFormat(ext string) (OutputFormat, bool) {
	switch strings.ToLower(ext) {
	case "png":
		return FormatPNG, true
	case "ntf", "nitf":
		return FormatNITF, true
	case "jpg", "jpeg":
		return FormatJPEG, true
	case "tif", "tiff", "gtiff":
		return FormatGTIFF, true
	}
	return "", false
}

// MediaType reports the HTTP content type for the format.
func (f OutputFormat) MediaType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatNITF:
		return "image/nitf"
	case FormatJPEG:
		return "image/jpeg"
	case FormatGTIFF:
		return "image/tiff"
	}
	return "image"
}

// Compression selects the compression applied by the encoder.
type Compression string

const (
	CompressionNone    Compression = "NONE"
	CompressionJPEG    Compression = "JPEG"
	CompressionDeflate Compression = "DEFLATE"
)

// Sidecar file suffixes. Derived artifacts share the source object's local
// filename with one of these fixed suffixes appended.
const (
	OverviewSuffix   = ".ovr"
	AuxSuffix        = ".aux.xml"
	MetadataSuffix   = ".metadata"
	BoundsSuffix     = ".bounds"
	InfoSuffix       = ".geojson"
	StatisticsSuffix = ".stats"
)

// ViewpointRecord is the central entity: one registered source image and its
// serving configuration. Zero values stand in for the store's NULL columns
// (LocalPath, ErrorMessage, ExpireTime).
type ViewpointRecord struct {
	ID              string          `json:"viewpoint_id"`
	Name            string          `json:"viewpoint_name"`
	Status          ViewpointStatus `json:"viewpoint_status"`
	BucketName      string          `json:"bucket_name"`
	ObjectKey       string          `json:"object_key"`
	TileSize        int             `json:"tile_size"`
	RangeAdjustment RangeAdjustment `json:"range_adjustment"`
	LocalPath       string          `json:"local_object_path,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	ExpireTime      int64           `json:"expire_time,omitempty"`
}

type CreateViewpointRequest struct {
	ViewpointID     string          `json:"viewpoint_id" binding:"required"`
	ViewpointName   string          `json:"viewpoint_name" binding:"required"`
	BucketName      string          `json:"bucket_name" binding:"required"`
	ObjectKey       string          `json:"object_key" binding:"required"`
	TileSize        int             `json:"tile_size" binding:"required,gt=0"`
	RangeAdjustment RangeAdjustment `json:"range_adjustment" binding:"required"`
}

type UpdateViewpointRequest struct {
	ViewpointID     string          `json:"viewpoint_id" binding:"required"`
	ViewpointName   string          `json:"viewpoint_name" binding:"required"`
	TileSize        int             `json:"tile_size" binding:"required,gt=0"`
	RangeAdjustment RangeAdjustment `json:"range_adjustment" binding:"required"`
}

type ViewpointListResponse struct {
	Items     []ViewpointRecord `json:"items"`
	NextToken string            `json:"next_token,omitempty"`
}

// ValidViewpointID reports whether a client-supplied identifier is acceptable
// as a primary key: non-empty, no whitespace, and already URL safe.
func ValidViewpointID(id string) bool {
	if id == "" || strings.Join(strings.Fields(id), "") != id {
		return false
	}
	return url.QueryEscape(id) == id
}
