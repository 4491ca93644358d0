package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidViewpointID(t *testing.T) {
	valid := []string{"a", "viewpoint-1", "A_b.C~2", "1234567890"}
	for _, id := range valid {
		assert.True(t, ValidViewpointID(id), "expected %q to be valid", id)
	}

	invalid := []string{"", " ", "has space", "tab\there", "new\nline", "slash/id", "percent%id", "q?mark"}
	for _, id := range invalid {
		assert.False(t, ValidViewpointID(id), "expected %q to be invalid", id)
	}
}

func TestParseOutputFormat(t *testing.T) {
	cases := map[string]OutputFormat{
		"png":  FormatPNG,
		"PNG":  FormatPNG,
		"jpg":  FormatJPEG,
		"jpeg": FormatJPEG,
		"tif":  FormatGTIFF,
		"tiff": FormatGTIFF,
		"ntf":  FormatNITF,
		"nitf": FormatNITF,
	}
	for ext, want := range cases {
		got, ok := ParseOutputFormat(ext)
		assert.True(t, ok, "extension %q", ext)
		assert.Equal(t, want, got)
	}

	_, ok := ParseOutputFormat("gif")
	assert.False(t, ok)
}

func TestMediaType(t *testing.T) {
	assert.Equal(t, "image/png", FormatPNG.MediaType())
	assert.Equal(t, "image/jpeg", FormatJPEG.MediaType())
	assert.Equal(t, "image/tiff", FormatGTIFF.MediaType())
	assert.Equal(t, "image/nitf", FormatNITF.MediaType())
}

func TestRangeAdjustmentValid(t *testing.T) {
	assert.True(t, AdjustNone.Valid())
	assert.True(t, AdjustMinMax.Valid())
	assert.True(t, AdjustDRA.Valid())
	assert.False(t, RangeAdjustment("GAMMA").Valid())
	assert.False(t, RangeAdjustment("").Valid())
}
