package zarr

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"go.ngs.io/hptrack/internal/domain"
)

// Metadata keys of a Zarr v2 hierarchy.
const (
	KeyGroup        = ".zgroup"
	KeyAttrs        = ".zattrs"
	KeyArray        = ".zarray"
	KeyConsolidated = ".zmetadata"

	// DimensionsAttr is the xarray attribute naming an array's dimensions.
	DimensionsAttr = "_ARRAY_DIMENSIONS"
)

// ArrayMetadata is the content of a .zarray document.
type ArrayMetadata struct {
	ZarrFormat         int         `json:"zarr_format"`
	Shape              []int       `json:"shape"`
	Chunks             []int       `json:"chunks"`
	DType              string      `json:"dtype"`
	Compressor         *Compressor `json:"compressor"`
	FillValue          FillValue   `json:"fill_value"`
	Order              string      `json:"order"`
	Filters            []any       `json:"filters"`
	DimensionSeparator string      `json:"dimension_separator,omitempty"`
}

// Separator returns the chunk key separator, "." when unset.
func (m *ArrayMetadata) Separator() string {
	if m.DimensionSeparator == "" {
		return "."
	}
	return m.DimensionSeparator
}

// Validate checks the fields this package relies on.
func (m *ArrayMetadata) Validate() error {
	if m.ZarrFormat != 2 {
		return fmt.Errorf("unsupported zarr_format %d", m.ZarrFormat)
	}
	if len(m.Shape) != len(m.Chunks) {
		return fmt.Errorf("shape %v and chunks %v differ in rank", m.Shape, m.Chunks)
	}
	for _, c := range m.Chunks {
		if c <= 0 {
			return fmt.Errorf("invalid chunk shape %v", m.Chunks)
		}
	}
	if m.Order != "" && m.Order != "C" {
		return fmt.Errorf("unsupported order %q", m.Order)
	}
	if len(m.Filters) > 0 {
		return fmt.Errorf("filters are not supported")
	}
	if _, _, err := ParseDType(m.DType); err != nil {
		return err
	}
	return nil
}

// Compressor is a numcodecs codec configuration.
type Compressor struct {
	ID        string
	Cname     string // blosc
	Clevel    int    // blosc
	Shuffle   int    // blosc
	Blocksize int    // blosc
	Level     int    // zstd, zlib, gzip
}

// MarshalJSON emits only the fields numcodecs accepts for the codec.
func (c Compressor) MarshalJSON() ([]byte, error) {
	m := map[string]any{"id": c.ID}
	switch c.ID {
	case "blosc":
		m["cname"] = c.Cname
		m["clevel"] = c.Clevel
		m["shuffle"] = c.Shuffle
		m["blocksize"] = c.Blocksize
	default:
		m["level"] = c.Level
	}
	return json.Marshal(m)
}

// UnmarshalJSON reads any codec configuration, keeping the known fields.
func (c *Compressor) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID        string `json:"id"`
		Cname     string `json:"cname"`
		Clevel    int    `json:"clevel"`
		Shuffle   *int   `json:"shuffle"`
		Blocksize int    `json:"blocksize"`
		Level     int    `json:"level"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*c = Compressor{
		ID:        raw.ID,
		Cname:     raw.Cname,
		Clevel:    raw.Clevel,
		Shuffle:   1,
		Blocksize: raw.Blocksize,
		Level:     raw.Level,
	}
	if raw.Shuffle != nil {
		c.Shuffle = *raw.Shuffle
	}
	return nil
}

// FillValue is a JSON fill value: null, a number, or one of the strings
// "NaN", "Infinity" and "-Infinity".
type FillValue struct {
	Value float64
	Null  bool
}

// NullFill is the fill value of arrays without one.
var NullFill = FillValue{Null: true}

// NaNFill is the fill value of floating point arrays.
var NaNFill = FillValue{Value: math.NaN()}

// MarshalJSON implements json.Marshaler.
func (f FillValue) MarshalJSON() ([]byte, error) {
	switch {
	case f.Null:
		return []byte("null"), nil
	case math.IsNaN(f.Value):
		return []byte(`"NaN"`), nil
	case math.IsInf(f.Value, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(f.Value, -1):
		return []byte(`"-Infinity"`), nil
	}
	return []byte(strconv.FormatFloat(f.Value, 'g', -1, 64)), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *FillValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = NullFill
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		switch s {
		case "NaN":
			*f = FillValue{Value: math.NaN()}
		case "Infinity":
			*f = FillValue{Value: math.Inf(1)}
		case "-Infinity":
			*f = FillValue{Value: math.Inf(-1)}
		default:
			return fmt.Errorf("unsupported fill value %q", s)
		}
		return nil
	}
	if bytes.Equal(b, []byte("true")) || bytes.Equal(b, []byte("false")) {
		var v bool
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*f = FillValue{}
		if v {
			f.Value = 1
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = FillValue{Value: v}
	return nil
}

// Float returns the value used for missing chunks: zero for a null fill.
func (f FillValue) Float() float64 {
	if f.Null {
		return 0
	}
	return f.Value
}

// GroupMetadata is the content of a .zgroup document.
type GroupMetadata struct {
	ZarrFormat int `json:"zarr_format"`
}

// ConsolidatedMetadata is the content of a .zmetadata document.
type ConsolidatedMetadata struct {
	Metadata map[string]json.RawMessage `json:"metadata"`
	Format   int                        `json:"zarr_consolidated_format"`
}

// DTypeString returns the NumPy type string for t, little-endian.
func DTypeString(t domain.DType) string {
	switch t {
	case domain.Float16:
		return "<f2"
	case domain.Float32:
		return "<f4"
	case domain.Float64:
		return "<f8"
	case domain.Int8:
		return "|i1"
	case domain.Int16:
		return "<i2"
	case domain.Int32:
		return "<i4"
	case domain.Int64:
		return "<i8"
	case domain.Uint8:
		return "|u1"
	case domain.Uint16:
		return "<u2"
	case domain.Uint32:
		return "<u4"
	case domain.Uint64:
		return "<u8"
	}
	return ""
}

// ParseDType parses a NumPy type string such as "<f4" or "|u1".
func ParseDType(s string) (domain.DType, binary.ByteOrder, error) {
	if len(s) < 3 {
		return "", nil, fmt.Errorf("invalid dtype %q", s)
	}
	var order binary.ByteOrder
	switch s[0] {
	case '<', '|':
		order = binary.LittleEndian
	case '>':
		order = binary.BigEndian
	default:
		return "", nil, fmt.Errorf("invalid dtype %q", s)
	}
	types := map[string]domain.DType{
		"f2": domain.Float16, "f4": domain.Float32, "f8": domain.Float64,
		"i1": domain.Int8, "i2": domain.Int16, "i4": domain.Int32, "i8": domain.Int64,
		"u1": domain.Uint8, "u2": domain.Uint16, "u4": domain.Uint32, "u8": domain.Uint64,
		"b1": domain.Uint8,
	}
	t, ok := types[s[1:]]
	if !ok {
		return "", nil, fmt.Errorf("unsupported dtype %q", s)
	}
	return t, order, nil
}
