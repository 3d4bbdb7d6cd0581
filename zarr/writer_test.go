package zarr_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"

	"github.com/zequihg50/IPCC-Atlas-Datalab/zarr"
)

func float32Bytes(values ...float32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func bytesFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

func TestArrayWriter_PadsEdgeChunks(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	meta := &zarr.Metadata{
		ZarrFormat: 2,
		Shape:      []int{3, 3},
		Chunks:     []int{2, 2},
		DType:      "<f4",
		Compressor: &zarr.CodecConfig{ID: "zlib", Level: 9},
		Filters:    []zarr.CodecConfig{{ID: "shuffle", ElementSize: 4}},
		FillValue:  float64(-1),
		Order:      "C",
	}
	w, err := zarr.CreateArray(ctx, bucket, "tas", meta)
	require.NoError(t, err)

	// 3x3 array: 0..8
	require.NoError(t, w.WriteChunk(ctx, []int{0, 0}, float32Bytes(0, 1, 3, 4)))
	require.NoError(t, w.WriteChunk(ctx, []int{0, 1}, float32Bytes(2, 5)))
	require.NoError(t, w.WriteChunk(ctx, []int{1, 0}, float32Bytes(6, 7)))
	require.NoError(t, w.WriteChunk(ctx, []int{1, 1}, float32Bytes(8)))

	err = w.WriteChunk(ctx, []int{1, 1}, float32Bytes(8, 9))
	require.Error(t, err, "wrong chunk length must be rejected")

	r, err := zarr.OpenArray(ctx, bucket, "tas")
	require.NoError(t, err)
	defer r.Close()

	chunk, err := r.ReadChunk(ctx, []int{1, 1})
	require.NoError(t, err)
	assert.Equal(t, []float32{8, -1, -1, -1}, bytesFloat32(chunk))

	full, err := r.ReadFull(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 2, 3, 4, 5, 6, 7, 8}, bytesFloat32(full))
}

func TestArrayWriter_Strings(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	meta := &zarr.Metadata{
		ZarrFormat: 2,
		Shape:      []int{3},
		Chunks:     []int{2},
		DType:      zarr.ObjectDType,
		Compressor: &zarr.CodecConfig{ID: "zlib", Level: 9},
		Filters:    []zarr.CodecConfig{{ID: zarr.VLenUTF8ID}},
		Order:      "C",
	}
	w, err := zarr.CreateArray(ctx, bucket, "member_id", meta)
	require.NoError(t, err)

	require.NoError(t, w.WriteStringChunk(ctx, []int{0}, []string{"r1", "r2"}))
	require.NoError(t, w.WriteStringChunk(ctx, []int{1}, []string{"r3"}))
	require.Error(t, w.WriteChunk(ctx, []int{0}, []byte{1}))

	r, err := zarr.OpenArray(ctx, bucket, "member_id")
	require.NoError(t, err)
	got, err := r.ReadStrings(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2", "r3"}, got)

	_, err = r.ReadFull(ctx)
	assert.Error(t, err)
}

func TestConsolidateMetadata(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	require.NoError(t, zarr.WriteGroup(ctx, bucket, "", map[string]interface{}{"Conventions": "CF-1.8"}))
	meta := &zarr.Metadata{ZarrFormat: 2, Shape: []int{2}, Chunks: []int{2}, DType: "<f8", Order: "C"}
	w, err := zarr.CreateArray(ctx, bucket, "lat", meta)
	require.NoError(t, err)
	require.NoError(t, w.SetAttributes(ctx, map[string]interface{}{"_ARRAY_DIMENSIONS": []string{"lat"}}))

	require.NoError(t, zarr.ConsolidateMetadata(ctx, bucket))

	doc, err := bucket.ReadAll(ctx, zarr.ConsolidatedMetaKey)
	require.NoError(t, err)

	var consolidated zarr.ConsolidatedMetadata
	require.NoError(t, json.Unmarshal(doc, &consolidated))
	assert.Equal(t, 1, consolidated.ZarrConsolidatedFormat)

	keys := make([]string, 0, len(consolidated.Metadata))
	for k := range consolidated.Metadata {
		keys = append(keys, k)
	}
	assert.ElementsMatch(t, []string{".zgroup", ".zattrs", "lat/.zarray", "lat/.zattrs"}, keys)

	var attrs map[string]interface{}
	require.NoError(t, json.Unmarshal(consolidated.Metadata[".zattrs"], &attrs))
	assert.Equal(t, "CF-1.8", attrs["Conventions"])
}

func TestCreateArray_InvalidMetadata(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	_, err := zarr.CreateArray(context.Background(), bucket, "x", &zarr.Metadata{
		ZarrFormat: 2, Shape: []int{2}, Chunks: []int{}, DType: "<f4",
	})
	require.Error(t, err)
}

func TestOpenStore_LocalPath(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir() + "/out.zarr"

	bucket, err := zarr.OpenStore(ctx, dir)
	require.NoError(t, err)
	require.NoError(t, zarr.WriteGroup(ctx, bucket, "", nil))
	require.NoError(t, bucket.Close())

	bucket, err = zarr.OpenStore(ctx, "file://"+dir)
	require.NoError(t, err)
	defer bucket.Close()
	ok, err := bucket.Exists(ctx, zarr.GroupMetaKey)
	require.NoError(t, err)
	assert.True(t, ok)
}
