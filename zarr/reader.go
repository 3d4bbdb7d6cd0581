package zarr

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// Reader reads one array of a Zarr V2 store.
type Reader struct {
	bucket     *blob.Bucket
	ownsBucket bool
	prefix     string
	meta       *Metadata
	pipe       *pipeline
}

// NewReader opens the bucket at url and reads the array stored at its root.
func NewReader(ctx context.Context, url string) (*Reader, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create bucket")
	}
	r, err := OpenArray(ctx, bucket, "")
	if err != nil {
		bucket.Close()
		return nil, err
	}
	r.ownsBucket = true
	return r, nil
}

// OpenArray reads the metadata of the array called name inside bucket. The
// bucket stays owned by the caller.
func OpenArray(ctx context.Context, bucket *blob.Bucket, name string) (*Reader, error) {
	prefix := keyPrefix(name)
	reader, err := bucket.NewReader(ctx, prefix+ArrayMetaKey, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s%s", prefix, ArrayMetaKey)
	}
	defer reader.Close()

	meta, err := LoadMetadata(reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load metadata")
	}
	pipe, err := newPipeline(meta)
	if err != nil {
		return nil, err
	}
	return &Reader{
		bucket: bucket,
		prefix: prefix,
		meta:   meta,
		pipe:   pipe,
	}, nil
}

// strides computes the C-order strides for a given shape.
func strides(shape []int) []int {
	if len(shape) == 0 {
		return []int{}
	}
	s := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = stride
		stride *= shape[i]
	}
	return s
}

func (r *Reader) itemSize() (int, error) {
	if r.meta.IsObject() {
		return 0, errors.New("object arrays must be read with ReadStrings")
	}
	_, itemSize, err := ParseDType(r.meta.DType)
	if err != nil {
		return 0, errors.Wrap(err, "invalid dtype")
	}
	return itemSize, nil
}

// ReadFull reads the entire Zarr array into a flat byte slice.
func (r *Reader) ReadFull(ctx context.Context) ([]byte, error) {
	if len(r.meta.Shape) == 0 {
		return r.ReadChunk(ctx, []int{})
	}
	if product(r.meta.Shape) == 0 {
		return []byte{}, nil
	}
	return r.ReadRegion(ctx, make([]int, len(r.meta.Shape)), r.meta.Shape)
}

// rawChunk returns the decoded bytes of a chunk, or nil when the chunk was
// never written.
func (r *Reader) rawChunk(ctx context.Context, coords []int) ([]byte, error) {
	key := r.prefix + ChunkKey(coords, r.meta.Separator())

	reader, err := r.bucket.NewReader(ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to open chunk %s", key)
	}
	defer reader.Close()

	chunkData, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read chunk %s", key)
	}

	chunkData, err = r.pipe.decode(chunkData)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode chunk %s", key)
	}
	return chunkData, nil
}

// ReadChunk reads a single chunk from the Zarr array given its coordinates.
// A missing chunk is returned filled with the fill value.
func (r *Reader) ReadChunk(ctx context.Context, coords []int) ([]byte, error) {
	itemSize, err := r.itemSize()
	if err != nil {
		return nil, err
	}
	chunkData, err := r.rawChunk(ctx, coords)
	if err != nil {
		return nil, err
	}
	expected := product(r.meta.Chunks) * itemSize
	if chunkData == nil {
		fill := fillPattern(r.meta.DType, r.meta.FillValue)
		chunkData = make([]byte, expected)
		for off := 0; off < expected; off += itemSize {
			copy(chunkData[off:off+itemSize], fill)
		}
		return chunkData, nil
	}
	if len(chunkData) != expected {
		return nil, errors.Errorf("chunk %v has %d bytes, expected %d", coords, len(chunkData), expected)
	}
	return chunkData, nil
}

// ReadStrings reads a whole object array of strings.
func (r *Reader) ReadStrings(ctx context.Context) ([]string, error) {
	if !r.meta.IsObject() {
		return nil, errors.Errorf("array of dtype %s is not an object array", r.meta.DType)
	}
	out := make([]string, product(r.meta.Shape))
	global := strides(r.meta.Shape)
	local := strides(r.meta.Chunks)

	err := ForEachChunk(r.meta.Shape, r.meta.Chunks, func(coords []int) error {
		raw, err := r.rawChunk(ctx, coords)
		if err != nil || raw == nil {
			return err
		}
		values, err := DecodeVLenUTF8(raw)
		if err != nil {
			return errors.Wrapf(err, "chunk %v", coords)
		}
		start, count := ChunkRange(r.meta.Shape, r.meta.Chunks, coords)
		return iterateGrid(make([]int, len(count)), count, func(rel []int) error {
			src, dst := 0, 0
			for d, rc := range rel {
				src += rc * local[d]
				dst += (start[d] + rc) * global[d]
			}
			if src < len(values) {
				out[dst] = values[src]
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReadRegion reads an N-dimensional region of the Zarr array.
func (r *Reader) ReadRegion(ctx context.Context, start, shape []int) ([]byte, error) {
	if len(start) != len(r.meta.Shape) || len(shape) != len(r.meta.Shape) {
		return nil, errors.New("start and shape must match array dimensionality")
	}

	// Validate bounds
	for i := range r.meta.Shape {
		if start[i] < 0 || shape[i] <= 0 || start[i]+shape[i] > r.meta.Shape[i] {
			return nil, errors.Errorf("region out of bounds at dimension %d", i)
		}
	}

	itemSize, err := r.itemSize()
	if err != nil {
		return nil, err
	}

	if len(r.meta.Shape) == 0 {
		return r.ReadChunk(ctx, []int{})
	}

	out := make([]byte, product(shape)*itemSize)

	minChunk := make([]int, len(start))
	maxChunk := make([]int, len(start))
	for i := range start {
		minChunk[i] = start[i] / r.meta.Chunks[i]
		maxChunk[i] = (start[i]+shape[i]-1)/r.meta.Chunks[i] + 1
	}

	dstStrides := strides(shape)
	chunkStrides := strides(r.meta.Chunks)

	err = iterateGrid(minChunk, maxChunk, func(chunkCoords []int) error {
		chunkData, err := r.ReadChunk(ctx, chunkCoords)
		if err != nil {
			return err
		}

		copyShape := make([]int, len(r.meta.Shape))
		srcOffset := make([]int, len(r.meta.Shape))
		dstOffset := make([]int, len(r.meta.Shape))

		for i := range r.meta.Shape {
			chunkStartGlobal := chunkCoords[i] * r.meta.Chunks[i]
			chunkEndGlobal := min(chunkStartGlobal+r.meta.Chunks[i], r.meta.Shape[i])

			intersectStart := max(chunkStartGlobal, start[i])
			intersectEnd := min(chunkEndGlobal, start[i]+shape[i])

			if intersectStart >= intersectEnd {
				return nil
			}

			copyShape[i] = intersectEnd - intersectStart
			srcOffset[i] = intersectStart - chunkStartGlobal
			dstOffset[i] = intersectStart - start[i]
		}

		copyND(out, dstStrides, dstOffset, chunkData, chunkStrides, srcOffset, copyShape, itemSize)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// copyND recursively copies n-dimensional data from src to dst.
func copyND(
	dst []byte, dstStrides, dstOffset []int,
	src []byte, srcStrides, srcOffset []int,
	copyShape []int, itemSize int,
) {
	if len(copyShape) == 0 {
		// 0D scalar array: exactly one element
		copy(dst[:itemSize], src[:itemSize])
		return
	}

	startSrcIdx := 0
	startDstIdx := 0
	for i := range copyShape {
		startSrcIdx += srcOffset[i] * srcStrides[i]
		startDstIdx += dstOffset[i] * dstStrides[i]
	}

	var iterate func(dim int, currentSrcIdx, currentDstIdx int)
	iterate = func(dim int, currentSrcIdx, currentDstIdx int) {
		// Innermost dimension is contiguous on both sides: bulk copy
		if dim == len(copyShape)-1 {
			n := copyShape[dim]
			if srcStrides[dim] == 1 && dstStrides[dim] == 1 {
				byteLen := n * itemSize
				srcStart := currentSrcIdx * itemSize
				dstStart := currentDstIdx * itemSize
				copy(dst[dstStart:dstStart+byteLen], src[srcStart:srcStart+byteLen])
				return
			}
			for i := 0; i < n; i++ {
				srcStart := (currentSrcIdx + i*srcStrides[dim]) * itemSize
				dstStart := (currentDstIdx + i*dstStrides[dim]) * itemSize
				copy(dst[dstStart:dstStart+itemSize], src[srcStart:srcStart+itemSize])
			}
			return
		}

		for i := 0; i < copyShape[dim]; i++ {
			iterate(dim+1, currentSrcIdx+i*srcStrides[dim], currentDstIdx+i*dstStrides[dim])
		}
	}
	iterate(0, startSrcIdx, startDstIdx)
}

// Metadata returns the array metadata.
func (r *Reader) Metadata() *Metadata {
	return r.meta
}

// Close closes the reader and, when it opened it, the bucket.
func (r *Reader) Close() error {
	if !r.ownsBucket {
		return nil
	}
	return r.bucket.Close()
}
