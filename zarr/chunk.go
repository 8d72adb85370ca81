package zarr

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"
)

// GridShape calculates the number of chunks in each dimension.
func GridShape(shape, chunks []int) []int {
	if len(shape) == 0 || len(chunks) == 0 {
		return []int{}
	}
	grid := make([]int, len(shape))
	for i := range shape {
		grid[i] = (shape[i] + chunks[i] - 1) / chunks[i]
	}
	return grid
}

// ChunkKey generates the key for a chunk given its indices and a separator.
// Example: indices=[1, 4], separator="." -> "1.4". 0-d arrays use "0".
func ChunkKey(indices []int, separator string) string {
	if len(indices) == 0 {
		return "0"
	}
	if len(indices) == 1 {
		return strconv.Itoa(indices[0])
	}
	var sb strings.Builder
	for i, idx := range indices {
		if i > 0 {
			sb.WriteString(separator)
		}
		sb.WriteString(strconv.Itoa(idx))
	}
	return sb.String()
}

// strides computes the C-order strides for a given shape.
func strides(shape []int) []int {
	s := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = stride
		stride *= shape[i]
	}
	return s
}

// decoder converts one stored element to float32.
type decoder func(b []byte) float32

func newDecoder(kind byte, size int) decoder {
	le := binary.LittleEndian
	switch {
	case kind == 'f' && size == 4:
		return func(b []byte) float32 { return math.Float32frombits(le.Uint32(b)) }
	case kind == 'f':
		return func(b []byte) float32 { return float32(math.Float64frombits(le.Uint64(b))) }
	case kind == 'i' && size == 1:
		return func(b []byte) float32 { return float32(int8(b[0])) }
	case kind == 'i' && size == 2:
		return func(b []byte) float32 { return float32(int16(le.Uint16(b))) }
	case kind == 'i' && size == 4:
		return func(b []byte) float32 { return float32(int32(le.Uint32(b))) }
	case kind == 'i':
		return func(b []byte) float32 { return float32(int64(le.Uint64(b))) }
	case size == 1:
		return func(b []byte) float32 { return float32(b[0]) }
	case size == 2:
		return func(b []byte) float32 { return float32(le.Uint16(b)) }
	case size == 4:
		return func(b []byte) float32 { return float32(le.Uint32(b)) }
	}
	return func(b []byte) float32 { return float32(le.Uint64(b)) }
}
