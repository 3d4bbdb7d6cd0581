package zarr

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/pkg/errors"
)

// Keys of the Zarr V2 metadata documents.
const (
	ArrayMetaKey        = ".zarray"
	AttrsMetaKey        = ".zattrs"
	GroupMetaKey        = ".zgroup"
	ConsolidatedMetaKey = ".zmetadata"
)

// ObjectDType is the numpy dtype of variable-length object arrays.
const ObjectDType = "|O"

// CodecConfig represents a numcodecs codec entry, used both for the
// compressor and for the filters of an array.
type CodecConfig struct {
	ID          string `json:"id"`
	Level       int    `json:"level,omitempty"`
	ElementSize int    `json:"elementsize,omitempty"`
	Cname       string `json:"cname,omitempty"`
	Clevel      int    `json:"clevel,omitempty"`
	Shuffle     int    `json:"shuffle,omitempty"`
	Blocksize   int    `json:"blocksize,omitempty"`
}

// MarshalJSON writes only the fields the codec understands, keeping
// level 0 for compressors.
func (c CodecConfig) MarshalJSON() ([]byte, error) {
	m := map[string]any{"id": c.ID}
	switch c.ID {
	case "zlib", "gzip", "zstd":
		m["level"] = c.Level
	case "shuffle":
		m["elementsize"] = c.ElementSize
	case "blosc":
		m["cname"] = c.Cname
		m["clevel"] = c.Clevel
		m["shuffle"] = c.Shuffle
		m["blocksize"] = c.Blocksize
	}
	return json.Marshal(m)
}

// Metadata represents the Zarr V2 .zarray metadata.
type Metadata struct {
	ZarrFormat         int           `json:"zarr_format"`
	Shape              []int         `json:"shape"`
	Chunks             []int         `json:"chunks"`
	DType              string        `json:"dtype"`
	Compressor         *CodecConfig  `json:"compressor"`
	FillValue          interface{}   `json:"fill_value"`
	Order              string        `json:"order"`
	Filters            []CodecConfig `json:"filters"`
	DimensionSeparator string        `json:"dimension_separator,omitempty"`
}

// Separator returns the chunk key separator, "." unless set.
func (m *Metadata) Separator() string {
	if m.DimensionSeparator == "" {
		return "."
	}
	return m.DimensionSeparator
}

// IsObject reports whether the array holds variable-length strings.
func (m *Metadata) IsObject() bool {
	return m.DType == ObjectDType
}

// Validate checks the fields a writer depends on.
func (m *Metadata) Validate() error {
	if m.ZarrFormat != 2 {
		return errors.Errorf("unsupported zarr_format: %d, expected 2", m.ZarrFormat)
	}
	if len(m.Shape) != len(m.Chunks) {
		return errors.Errorf("chunks %v do not match shape %v", m.Chunks, m.Shape)
	}
	for i, c := range m.Chunks {
		if c <= 0 {
			return errors.Errorf("invalid chunk size %d at dimension %d", c, i)
		}
	}
	if m.Order != "" && m.Order != "C" {
		return errors.Errorf("unsupported order: %s", m.Order)
	}
	if _, _, err := ParseDType(m.DType); err != nil {
		return err
	}
	return nil
}

// LoadMetadata reads and parses the .zarray file from the given directory path.
func LoadMetadata(reader io.Reader) (*Metadata, error) {
	var meta Metadata
	if err := json.NewDecoder(reader).Decode(&meta); err != nil {
		return nil, errors.Wrap(err, "failed to decode metadata")
	}

	if meta.ZarrFormat != 2 {
		return nil, errors.Errorf("unsupported zarr_format: %d, expected 2", meta.ZarrFormat)
	}

	return &meta, nil
}

// ParseDType takes a numpy-style string like "<f4", "|b1", "<i8",
// and returns a simplified string name (e.g., "float32", "bool", "int64"),
// the byte size (e.g., 4, 1, 8), and an error if unsupported.
// Object arrays ("|O") report size 0. Big-endian types are rejected.
func ParseDType(s string) (string, int, error) {
	if s == ObjectDType {
		return "object", 0, nil
	}
	if len(s) < 3 {
		return "", 0, errors.Errorf("invalid dtype: %s", s)
	}

	endian := s[0]
	if endian == '>' {
		return "", 0, errors.Errorf("big-endian types are unsupported: %s", s)
	}

	kind := s[1]
	sizeStr := s[2:]

	size, err := strconv.Atoi(sizeStr)
	if err != nil {
		return "", 0, errors.Errorf("invalid size in dtype: %s", s)
	}

	switch kind {
	case 'b':
		return "bool", size, nil
	case 'i':
		return fmt.Sprintf("int%d", size*8), size, nil
	case 'u':
		return fmt.Sprintf("uint%d", size*8), size, nil
	case 'f':
		return fmt.Sprintf("float%d", size*8), size, nil
	case 'c':
		return fmt.Sprintf("complex%d", size*8), size, nil
	default:
		return "", 0, errors.Errorf("unsupported dtype kind: %c in %s", kind, s)
	}
}

// FormatDType is the inverse of ParseDType for little-endian numeric kinds
// ('i', 'u', 'f', 'b').
func FormatDType(kind byte, size int) string {
	if size == 1 {
		return fmt.Sprintf("|%c1", kind)
	}
	return fmt.Sprintf("<%c%d", kind, size)
}

// EncodeFillValue converts a numeric fill value to its JSON form. Non-finite
// floats are spelled as strings.
func EncodeFillValue(v float64) interface{} {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	}
	return v
}

// decodeFillValue reads a fill value as found in .zarray.
func decodeFillValue(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		switch x {
		case "NaN":
			return math.NaN(), true
		case "Infinity":
			return math.Inf(1), true
		case "-Infinity":
			return math.Inf(-1), true
		}
	}
	return 0, false
}

// GroupMetadata is the .zgroup document.
type GroupMetadata struct {
	ZarrFormat int `json:"zarr_format"`
}

// ConsolidatedMetadata is the .zmetadata document: every metadata document of
// the store keyed by its path.
type ConsolidatedMetadata struct {
	Metadata               map[string]json.RawMessage `json:"metadata"`
	ZarrConsolidatedFormat int                        `json:"zarr_consolidated_format"`
}
