package zarr

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/TuSKan/coverage"
)

// CompressorConfig represents the Zarr compressor metadata.
type CompressorConfig struct {
	ID      string `json:"id"`
	Cname   string `json:"cname,omitempty"`
	Clevel  int    `json:"clevel,omitempty"`
	Level   int    `json:"level,omitempty"`
	Shuffle int    `json:"shuffle,omitempty"`
}

// Metadata represents the Zarr V2 .zarray metadata.
type Metadata struct {
	ZarrFormat         int               `json:"zarr_format"`
	Shape              []int             `json:"shape"`
	Chunks             []int             `json:"chunks"`
	DType              string            `json:"dtype"`
	Compressor         *CompressorConfig `json:"compressor"`
	FillValue          any               `json:"fill_value"`
	Order              string            `json:"order"`
	DimensionSeparator string            `json:"dimension_separator,omitempty"`
}

// LoadMetadata reads and checks a .zarray document.
func LoadMetadata(reader io.Reader) (*Metadata, error) {
	var meta Metadata
	if err := json.NewDecoder(reader).Decode(&meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Validate checks the parts of the metadata the reader depends on.
func (m *Metadata) Validate() error {
	if m.ZarrFormat != 2 {
		return fmt.Errorf("unsupported zarr_format: %d, expected 2", m.ZarrFormat)
	}
	if len(m.Shape) != len(m.Chunks) {
		return fmt.Errorf("shape %v and chunks %v differ in rank", m.Shape, m.Chunks)
	}
	for i, c := range m.Chunks {
		if c < 1 || m.Shape[i] < 0 {
			return fmt.Errorf("invalid chunking %v for shape %v", m.Chunks, m.Shape)
		}
	}
	if m.Order != "" && m.Order != "C" {
		return fmt.Errorf("unsupported order %q, expected C", m.Order)
	}
	if _, _, err := ParseDType(m.DType); err != nil {
		return err
	}
	return nil
}

// Separator is the chunk key separator, "." unless the metadata says otherwise.
func (m *Metadata) Separator() string {
	if m.DimensionSeparator == "" {
		return "."
	}
	return m.DimensionSeparator
}

// Fill is the fill value as a float, NaN when the metadata has none.
func (m *Metadata) Fill() float64 {
	switch v := m.FillValue.(type) {
	case float64:
		return v
	case string:
		switch v {
		case "NaN":
			return math.NaN()
		case "Infinity":
			return math.Inf(1)
		case "-Infinity":
			return math.Inf(-1)
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	case bool:
		if v {
			return 1
		}
		return 0
	}
	return math.NaN()
}

// DataType maps the stored dtype onto the coverage data types. Integer types
// narrower than 32 bits are reported as Int32.
func (m *Metadata) DataType() coverage.DataType {
	kind, size, _ := ParseDType(m.DType)
	switch {
	case kind == 'f' && size == 8:
		return coverage.Float64
	case kind == 'f':
		return coverage.Float32
	case size == 8:
		return coverage.Int64
	}
	return coverage.Int32
}

// ParseDType takes a numpy-style string like "<f4", "|u1", "<i8" and returns
// its kind byte and size in bytes. Big-endian types are rejected.
func ParseDType(s string) (byte, int, error) {
	if len(s) < 3 {
		return 0, 0, fmt.Errorf("invalid dtype: %s", s)
	}
	if s[0] == '>' {
		return 0, 0, fmt.Errorf("big-endian types are unsupported: %s", s)
	}
	kind := s[1]
	size, err := strconv.Atoi(s[2:])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid size in dtype: %s", s)
	}
	switch {
	case kind == 'f' && (size == 4 || size == 8):
	case (kind == 'i' || kind == 'u') && (size == 1 || size == 2 || size == 4 || size == 8):
	case kind == 'b' && size == 1:
	default:
		return 0, 0, fmt.Errorf("unsupported dtype %s", s)
	}
	return kind, size, nil
}
