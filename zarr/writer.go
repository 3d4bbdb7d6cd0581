package zarr

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"path"
	"strings"

	"github.com/pkg/errors"
	"gocloud.dev/blob"
)

// ArrayWriter writes the metadata and the chunks of one array of a store.
type ArrayWriter struct {
	bucket   *blob.Bucket
	prefix   string
	meta     *Metadata
	pipe     *pipeline
	itemSize int
	fill     []byte
}

// CreateArray writes the .zarray document of the array called name (empty
// for a store holding a single array) and returns a writer for its chunks.
func CreateArray(ctx context.Context, bucket *blob.Bucket, name string, meta *Metadata) (*ArrayWriter, error) {
	if err := meta.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid metadata for array %q", name)
	}
	_, itemSize, err := ParseDType(meta.DType)
	if err != nil {
		return nil, err
	}
	pipe, err := newPipeline(meta)
	if err != nil {
		return nil, errors.Wrapf(err, "array %q", name)
	}

	w := &ArrayWriter{
		bucket:   bucket,
		prefix:   keyPrefix(name),
		meta:     meta,
		pipe:     pipe,
		itemSize: itemSize,
	}
	if !meta.IsObject() {
		w.fill = fillPattern(meta.DType, meta.FillValue)
	}
	if err := writeJSON(ctx, bucket, w.prefix+ArrayMetaKey, meta); err != nil {
		return nil, err
	}
	return w, nil
}

// Metadata returns the array metadata.
func (w *ArrayWriter) Metadata() *Metadata {
	return w.meta
}

// SetAttributes writes the .zattrs document of the array.
func (w *ArrayWriter) SetAttributes(ctx context.Context, attrs map[string]interface{}) error {
	return writeJSON(ctx, w.bucket, w.prefix+AttrsMetaKey, attrs)
}

// WriteChunk encodes and stores the chunk at coords. data holds the
// little-endian elements of the part of the chunk that lies inside the array,
// in C order; edge chunks are padded to the full chunk shape with the fill
// value.
func (w *ArrayWriter) WriteChunk(ctx context.Context, coords []int, data []byte) error {
	if w.meta.IsObject() {
		return errors.New("object arrays take string chunks")
	}
	_, count := ChunkRange(w.meta.Shape, w.meta.Chunks, coords)
	if n := product(count) * w.itemSize; len(data) != n {
		return errors.Errorf("chunk %v: got %d bytes, expected %d", coords, len(data), n)
	}

	raw := data
	if !equalInts(count, w.meta.Chunks) {
		raw = make([]byte, product(w.meta.Chunks)*w.itemSize)
		for off := 0; off < len(raw); off += w.itemSize {
			copy(raw[off:off+w.itemSize], w.fill)
		}
		copyND(raw, strides(w.meta.Chunks), make([]int, len(count)),
			data, strides(count), make([]int, len(count)), count, w.itemSize)
	}
	return w.put(ctx, coords, raw)
}

// WriteStringChunk stores a chunk of an object array through the vlen-utf8
// codec. Edge chunks are padded with empty strings.
func (w *ArrayWriter) WriteStringChunk(ctx context.Context, coords []int, values []string) error {
	if !w.meta.IsObject() {
		return errors.Errorf("array of dtype %s does not take string chunks", w.meta.DType)
	}
	_, count := ChunkRange(w.meta.Shape, w.meta.Chunks, coords)
	if n := product(count); len(values) != n {
		return errors.Errorf("chunk %v: got %d strings, expected %d", coords, len(values), n)
	}

	full := values
	if !equalInts(count, w.meta.Chunks) {
		full = make([]string, product(w.meta.Chunks))
		dst := strides(w.meta.Chunks)
		src := strides(count)
		for i := range values {
			j := 0
			rem := i
			for d := range count {
				j += (rem / src[d]) * dst[d]
				rem %= src[d]
			}
			full[j] = values[i]
		}
	}
	return w.put(ctx, coords, EncodeVLenUTF8(full))
}

func (w *ArrayWriter) put(ctx context.Context, coords []int, raw []byte) error {
	encoded, err := w.pipe.encode(raw)
	if err != nil {
		return errors.Wrapf(err, "failed to encode chunk %v", coords)
	}
	key := w.prefix + ChunkKey(coords, w.meta.Separator())
	if err := w.bucket.WriteAll(ctx, key, encoded, nil); err != nil {
		return errors.Wrapf(err, "failed to write chunk %s", key)
	}
	return nil
}

// WriteGroup writes the .zgroup document of the group called name, plus its
// .zattrs when attrs is not nil.
func WriteGroup(ctx context.Context, bucket *blob.Bucket, name string, attrs map[string]interface{}) error {
	prefix := keyPrefix(name)
	if err := writeJSON(ctx, bucket, prefix+GroupMetaKey, GroupMetadata{ZarrFormat: 2}); err != nil {
		return err
	}
	if attrs == nil {
		return nil
	}
	return writeJSON(ctx, bucket, prefix+AttrsMetaKey, attrs)
}

// ConsolidateMetadata collects every .zarray, .zattrs and .zgroup document of
// the store into a single .zmetadata document at its root.
func ConsolidateMetadata(ctx context.Context, bucket *blob.Bucket) error {
	consolidated := ConsolidatedMetadata{
		Metadata:               map[string]json.RawMessage{},
		ZarrConsolidatedFormat: 1,
	}

	iter := bucket.List(nil)
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "failed to list store")
		}
		switch path.Base(obj.Key) {
		case ArrayMetaKey, AttrsMetaKey, GroupMetaKey:
		default:
			continue
		}
		doc, err := bucket.ReadAll(ctx, obj.Key)
		if err != nil {
			return errors.Wrapf(err, "failed to read %s", obj.Key)
		}
		if !json.Valid(doc) {
			return errors.Errorf("invalid JSON in %s", obj.Key)
		}
		consolidated.Metadata[obj.Key] = doc
	}

	return writeJSON(ctx, bucket, ConsolidatedMetaKey, consolidated)
}

func writeJSON(ctx context.Context, bucket *blob.Bucket, key string, v interface{}) error {
	doc, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", key)
	}
	if err := bucket.WriteAll(ctx, key, doc, nil); err != nil {
		return errors.Wrapf(err, "failed to write %s", key)
	}
	return nil
}

func keyPrefix(name string) string {
	name = strings.Trim(name, "/")
	if name == "" {
		return ""
	}
	return name + "/"
}

// fillPattern returns the little-endian bytes of one element equal to the
// fill value, or zeros when there is none.
func fillPattern(dtype string, fillValue interface{}) []byte {
	kind, size, err := ParseDType(dtype)
	if err != nil || size == 0 {
		return nil
	}
	out := make([]byte, size)
	v, ok := decodeFillValue(fillValue)
	if !ok {
		return out
	}
	switch {
	case kind == "float32":
		binary.LittleEndian.PutUint32(out, math.Float32bits(float32(v)))
	case kind == "float64":
		binary.LittleEndian.PutUint64(out, math.Float64bits(v))
	case strings.HasPrefix(kind, "uint"):
		putUint(out, uint64(v))
	case strings.HasPrefix(kind, "int"):
		putUint(out, uint64(int64(v)))
	case kind == "bool":
		if v != 0 {
			out[0] = 1
		}
	}
	return out
}

func putUint(out []byte, v uint64) {
	for i := range out {
		out[i] = byte(v >> (8 * i))
	}
}

func product(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
