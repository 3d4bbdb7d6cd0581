package zarr_test

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "gocloud.dev/blob/fileblob"

	"github.com/zequihg50/IPCC-Atlas-Datalab/zarr"
)

// writeChunkFile writes an encoded chunk file inside a directory store.
func writeChunkFile(t *testing.T, dir, name string, codec zarr.Codec, data []float32) {
	t.Helper()
	raw := float32Bytes(data...)
	if codec != nil {
		var err error
		raw, err = codec.Encode(raw)
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), raw, 0644))
}

func TestReader_ReadFull(t *testing.T) {
	tempDir := t.TempDir()

	mockJSON := `{
		"zarr_format": 2,
		"shape": [4, 4],
		"chunks": [2, 2],
		"dtype": "<f4",
		"compressor": null,
		"fill_value": 0.0,
		"order": "C"
	}`

	zarrayPath := filepath.Join(tempDir, ".zarray")
	if err := os.WriteFile(zarrayPath, []byte(mockJSON), 0644); err != nil {
		t.Fatalf("failed to write mock json: %v", err)
	}

	// Only 0.0 and 1.1 exist, the other two read as fill value
	writeChunkFile(t, tempDir, "0.0", nil, []float32{1.0, 2.0, 3.0, 4.0})
	writeChunkFile(t, tempDir, "1.1", nil, []float32{5.0, 6.0, 7.0, 8.0})

	reader, err := zarr.NewReader(context.Background(), "file:///"+filepath.ToSlash(tempDir))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	dataBytes, err := reader.ReadFull(context.Background())
	if err != nil {
		t.Fatalf("ReadFull failed: %v", err)
	}

	if len(dataBytes) != 64 {
		t.Fatalf("expected exactly 64 bytes, got %d", len(dataBytes))
	}

	got := make([]float32, 16)
	for i := 0; i < 16; i++ {
		bits := binary.LittleEndian.Uint32(dataBytes[i*4 : (i+1)*4])
		got[i] = math.Float32frombits(bits)
	}

	expected := []float32{
		1.0, 2.0, 0.0, 0.0,
		3.0, 4.0, 0.0, 0.0,
		0.0, 0.0, 5.0, 6.0,
		0.0, 0.0, 7.0, 8.0,
	}

	if !reflect.DeepEqual(got, expected) {
		t.Errorf("ReadFull stitched array does not match expected layout.\nExpected: %v\nGot:      %v", expected, got)
	}
}

func TestReader_ReadRegion(t *testing.T) {
	tempDir := t.TempDir()

	mockJSON := `{
		"zarr_format": 2,
		"shape": [4, 4],
		"chunks": [2, 2],
		"dtype": "<f4",
		"compressor": {"id": "zlib", "level": 9},
		"filters": [{"id": "shuffle", "elementsize": 4}],
		"fill_value": "NaN",
		"order": "C"
	}`
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, ".zarray"), []byte(mockJSON), 0644))

	// Row 0:  0  1  2  3
	// Row 1:  4  5  6  7
	// Row 2:  8  9 10 11
	// Row 3: 12 13 14 15
	shuffle := &zarr.Shuffle{ElementSize: 4}
	compress := &zarr.Zlib{Level: 9}
	encode := func(name string, data []float32) {
		raw, err := shuffle.Encode(float32Bytes(data...))
		require.NoError(t, err)
		raw, err = compress.Encode(raw)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(tempDir, name), raw, 0644))
	}
	encode("0.0", []float32{0, 1, 4, 5})
	encode("0.1", []float32{2, 3, 6, 7})
	encode("1.0", []float32{8, 9, 12, 13})
	encode("1.1", []float32{10, 11, 14, 15})

	ctx := context.Background()
	reader, err := zarr.NewReader(ctx, "file://"+tempDir)
	require.NoError(t, err)
	defer reader.Close()

	data, err := reader.ReadRegion(ctx, []int{0, 0}, []int{4, 4})
	require.NoError(t, err)
	full := bytesFloat32(data)
	for i := range full {
		assert.Equal(t, float32(i), full[i])
	}

	data, err = reader.ReadRegion(ctx, []int{1, 1}, []int{2, 2})
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 6, 9, 10}, bytesFloat32(data))

	_, err = reader.ReadRegion(ctx, []int{3, 3}, []int{2, 2})
	assert.Error(t, err)
}

func TestReader_MissingChunkUsesFillValue(t *testing.T) {
	tempDir := t.TempDir()
	mockJSON := `{"zarr_format": 2, "shape": [2], "chunks": [2], "dtype": "<f4", "compressor": null, "fill_value": "NaN", "order": "C"}`
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, ".zarray"), []byte(mockJSON), 0644))

	ctx := context.Background()
	reader, err := zarr.NewReader(ctx, "file://"+tempDir)
	require.NoError(t, err)
	defer reader.Close()

	data, err := reader.ReadFull(ctx)
	require.NoError(t, err)
	for _, v := range bytesFloat32(data) {
		assert.True(t, math.IsNaN(float64(v)))
	}
}

func TestReader_Scalar(t *testing.T) {
	tempDir := t.TempDir()
	mockJSON := `{"zarr_format": 2, "shape": [], "chunks": [], "dtype": "<f4", "compressor": {"id": "zlib", "level": 1}, "fill_value": null, "order": "C"}`
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, ".zarray"), []byte(mockJSON), 0644))
	writeChunkFile(t, tempDir, "0", &zarr.Zlib{Level: 1}, []float32{2.5})

	ctx := context.Background()
	reader, err := zarr.NewReader(ctx, "file://"+tempDir)
	require.NoError(t, err)
	defer reader.Close()

	data, err := reader.ReadFull(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float32{2.5}, bytesFloat32(data))
	assert.Empty(t, reader.Metadata().Shape)
}
