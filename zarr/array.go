package zarr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync"

	"github.com/TuSKan/coverage/metrics"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

var zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
	return zstd.NewReader(nil)
})

// Array is one zarr v2 array stored under a key prefix of a bucket.
type Array struct {
	bucket   *blob.Bucket
	prefix   string
	meta     *Metadata
	itemSize int
	decode   decoder
	fill     float32
	log      *slog.Logger
}

// OpenArray reads the .zarray document under prefix.
func OpenArray(ctx context.Context, bucket *blob.Bucket, prefix string, log *slog.Logger) (*Array, error) {
	key := path.Join(prefix, ".zarray")
	reader, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", key, err)
	}
	defer reader.Close()

	meta, err := LoadMetadata(reader)
	if err != nil {
		return nil, fmt.Errorf("array %s: %w", prefix, err)
	}
	kind, size, _ := ParseDType(meta.DType)
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Array{
		bucket:   bucket,
		prefix:   prefix,
		meta:     meta,
		itemSize: size,
		decode:   newDecoder(kind, size),
		fill:     float32(meta.Fill()),
		log:      log,
	}, nil
}

func (a *Array) Metadata() *Metadata { return a.meta }
func (a *Array) Shape() []int        { return a.meta.Shape }

// ReadChunk reads and decompresses one chunk. ok is false when the chunk is
// not stored, in which case it holds the fill value.
func (a *Array) ReadChunk(ctx context.Context, coords []int) (data []byte, ok bool, err error) {
	key := path.Join(a.prefix, ChunkKey(coords, a.meta.Separator()))
	data, err = a.bucket.ReadAll(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			metrics.ChunkReadsTotal.WithLabelValues("missing").Inc()
			a.log.Debug("chunk missing", "key", key)
			return nil, false, nil
		}
		metrics.ChunkReadsTotal.WithLabelValues("error").Inc()
		return nil, false, fmt.Errorf("failed to read chunk %s: %w", key, err)
	}

	if a.meta.Compressor != nil {
		data, err = decompress(a.meta.Compressor.ID, data)
		if err != nil {
			metrics.ChunkReadsTotal.WithLabelValues("error").Inc()
			return nil, false, fmt.Errorf("failed to decompress chunk %s: %w", key, err)
		}
	}

	want := a.itemSize
	for _, c := range a.meta.Chunks {
		want *= c
	}
	if len(data) < want {
		metrics.ChunkReadsTotal.WithLabelValues("error").Inc()
		return nil, false, fmt.Errorf("chunk %s has %d bytes, want %d", key, len(data), want)
	}
	metrics.ChunkReadsTotal.WithLabelValues("ok").Inc()
	return data, true, nil
}

func decompress(id string, data []byte) ([]byte, error) {
	switch id {
	case "zstd":
		dec, err := zstdDecoder()
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		return dec.DecodeAll(data, nil)
	case "zlib":
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case "gzip":
		gr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		return io.ReadAll(gr)
	}
	return nil, fmt.Errorf("unsupported compressor: %s", id)
}

// ReadRegion reads the box [start, start+shape) as float32 in C order.
// Missing chunks read as the fill value.
func (a *Array) ReadRegion(ctx context.Context, start, shape []int) ([]float32, error) {
	rank := len(a.meta.Shape)
	if len(start) != rank || len(shape) != rank {
		return nil, fmt.Errorf("start and shape must match array dimensionality %d", rank)
	}
	total := 1
	for i := range rank {
		if start[i] < 0 || shape[i] <= 0 || start[i]+shape[i] > a.meta.Shape[i] {
			return nil, fmt.Errorf("region out of bounds at dimension %d", i)
		}
		total *= shape[i]
	}
	out := make([]float32, total)

	if rank == 0 {
		data, ok, err := a.ReadChunk(ctx, nil)
		if err != nil {
			return nil, err
		}
		out[0] = a.fill
		if ok {
			out[0] = a.decode(data)
		}
		return out, nil
	}

	minChunk := make([]int, rank)
	endChunk := make([]int, rank)
	for i := range rank {
		minChunk[i] = start[i] / a.meta.Chunks[i]
		endChunk[i] = (start[i]+shape[i]-1)/a.meta.Chunks[i] + 1
	}
	dstStrides := strides(shape)
	chunkStrides := strides(a.meta.Chunks)

	err := iterateSubGrid(minChunk, endChunk, func(chunk []int) error {
		copyShape := make([]int, rank)
		srcOffset := make([]int, rank)
		dstOffset := make([]int, rank)
		for i := range rank {
			chunkStart := chunk[i] * a.meta.Chunks[i]
			chunkEnd := min(chunkStart+a.meta.Chunks[i], a.meta.Shape[i])
			lo := max(chunkStart, start[i])
			hi := min(chunkEnd, start[i]+shape[i])
			if lo >= hi {
				return nil
			}
			copyShape[i] = hi - lo
			srcOffset[i] = lo - chunkStart
			dstOffset[i] = lo - start[i]
		}

		data, ok, err := a.ReadChunk(ctx, chunk)
		if err != nil {
			return err
		}
		if !ok {
			data = nil
		}
		a.copyND(out, dstStrides, dstOffset, data, chunkStrides, srcOffset, copyShape)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// copyND decodes an n-dimensional box of src into dst. A nil src writes the
// fill value.
func (a *Array) copyND(dst []float32, dstStrides, dstOffset []int, src []byte, srcStrides, srcOffset, copyShape []int) {
	startSrc, startDst := 0, 0
	for i := range copyShape {
		startSrc += srcOffset[i] * srcStrides[i]
		startDst += dstOffset[i] * dstStrides[i]
	}
	last := len(copyShape) - 1

	var iterate func(dim, srcIdx, dstIdx int)
	iterate = func(dim, srcIdx, dstIdx int) {
		if dim == last {
			for i := range copyShape[dim] {
				d := dstIdx + i*dstStrides[dim]
				if src == nil {
					dst[d] = a.fill
					continue
				}
				s := (srcIdx + i*srcStrides[dim]) * a.itemSize
				dst[d] = a.decode(src[s : s+a.itemSize])
			}
			return
		}
		for i := range copyShape[dim] {
			iterate(dim+1, srcIdx+i*srcStrides[dim], dstIdx+i*dstStrides[dim])
		}
	}
	iterate(0, startSrc, startDst)
}

// iterateSubGrid visits every index from start (inclusive) to end (exclusive),
// last dimension fastest.
func iterateSubGrid(start, end []int, fn func(indices []int) error) error {
	indices := make([]int, len(start))
	copy(indices, start)
	for {
		if err := fn(indices); err != nil {
			return err
		}
		i := len(start) - 1
		for ; i >= 0; i-- {
			indices[i]++
			if indices[i] < end[i] {
				break
			}
			indices[i] = start[i]
		}
		if i < 0 {
			return nil
		}
	}
}
