package zarr

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkKey(t *testing.T) {
	tests := []struct {
		indices   []int
		separator string
		expected  string
	}{
		{[]int{1, 4}, ".", "1.4"},
		{[]int{0, 0, 0}, ".", "0.0.0"},
		{[]int{10}, ".", "10"},
		{[]int{1, 2}, "/", "1/2"},
		{nil, ".", "0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, ChunkKey(tt.indices, tt.separator), "indices %v", tt.indices)
	}
}

func TestGridShape(t *testing.T) {
	assert.Equal(t, []int{2, 3}, GridShape([]int{4, 5}, []int{2, 2}))
	assert.Equal(t, []int{1}, GridShape([]int{3}, []int{10}))
	assert.Empty(t, GridShape(nil, nil))
}

func TestStrides(t *testing.T) {
	assert.Equal(t, []int{12, 4, 1}, strides([]int{2, 3, 4}))
	assert.Empty(t, strides(nil))
}

func TestIterateSubGrid(t *testing.T) {
	var got [][]int
	err := iterateSubGrid([]int{1, 0}, []int{3, 2}, func(idx []int) error {
		got = append(got, append([]int(nil), idx...))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 0}, {1, 1}, {2, 0}, {2, 1}}, got)
}

func TestDecoder(t *testing.T) {
	le := binary.LittleEndian

	b := make([]byte, 8)
	le.PutUint32(b, math.Float32bits(1.5))
	assert.Equal(t, float32(1.5), newDecoder('f', 4)(b))

	le.PutUint64(b, math.Float64bits(-2.25))
	assert.Equal(t, float32(-2.25), newDecoder('f', 8)(b))

	le.PutUint16(b, uint16(0xFFFE))
	assert.Equal(t, float32(-2), newDecoder('i', 2)(b))
	assert.Equal(t, float32(65534), newDecoder('u', 2)(b))

	assert.Equal(t, float32(1), newDecoder('b', 1)([]byte{1}))
}
