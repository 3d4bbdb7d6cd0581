package zarrexport_test

import (
	"context"
	"encoding/json"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"

	"github.com/zequihg50/IPCC-Atlas-Datalab/internal/dataset"
	"github.com/zequihg50/IPCC-Atlas-Datalab/internal/dataset/datasettest"
	"github.com/zequihg50/IPCC-Atlas-Datalab/internal/zarrexport"
	"github.com/zequihg50/IPCC-Atlas-Datalab/zarr"
)

func attr(name string, value interface{}) dataset.Attribute {
	return dataset.Attribute{Name: name, Value: value}
}

func source() *datasettest.Memory {
	m := &datasettest.Memory{
		Name:  "tas.nc",
		Attrs: dataset.Attributes{attr("Conventions", "CF-1.8"), attr("version", []int32{3})},
		Dims: []dataset.Dimension{
			{Name: "member", Len: 2},
			{Name: "time", Len: 3},
			{Name: "lat", Len: 5},
			{Name: "lon", Len: 4},
			{Name: "bnds", Len: 2},
		},
	}
	m.AddVariable("member_id", []string{"member"}, []string{"r1i1p1", "r2i1p1"})
	m.AddVariable("time", []string{"time"}, []float64{15, 45, 75}, attr("units", "days since 2000-01-01"))
	m.AddVariable("time_bnds", []string{"time", "bnds"}, []float64{0, 30, 30, 60, 60, 90})
	m.AddVariable("lat", []string{"lat"}, []float32{-60, -30, 0, 30, 60})
	m.AddVariable("orog", []string{"lat", "lon"}, make([]int16, 20), attr("_FillValue", int16(-1)))
	m.AddVariable("height2m", nil, []float64{2})
	tas := make([]float32, 2*3*5*4)
	for i := range tas {
		tas[i] = float32(i) / 4
	}
	m.AddVariable("tas", []string{"member", "time", "lat", "lon"}, tas,
		attr("units", "K"),
		attr("_FillValue", []float32{1e20}),
		attr("valid_range", []float32{0, 400}),
	)
	return m
}

var chunkMap = map[string][]int{
	"member_id": {},
	"time":      {1},
	"time_bnds": {1, 2},
	"lat":       {10},
	"orog":      {},
	"height2m":  {},
	"tas":       {1, 1, 5, 4},
}

func TestAssemble(t *testing.T) {
	plan, err := zarrexport.Assemble(source().Variables(), chunkMap)
	require.NoError(t, err)

	got := map[string][]int{}
	for _, a := range plan {
		got[a.Variable.Name] = a.Chunks
	}
	assert.Equal(t, []string{"member_id", "time", "time_bnds", "lat", "orog", "height2m", "tas"}, plan.Names())
	assert.Equal(t, []int{1}, got["time"])
	assert.Equal(t, []int{3, 2}, got["time_bnds"], "time_bnds spans the whole time axis")
	assert.Equal(t, []int{5}, got["lat"], "chunks are clamped to the shape")
	assert.Equal(t, zarr.GuessChunks([]int{5, 4}, 2), got["orog"], "contiguous variables use the default chunking")
	assert.Equal(t, []int{}, got["height2m"])
	assert.Equal(t, []int{1, 1, 5, 4}, got["tas"])
}

func TestAssemble_LargeContiguousVariable(t *testing.T) {
	topo := dataset.Variable{Name: "topo", DType: dataset.Float64, Dims: []string{"y", "x"}, Shape: []int{2000, 2000}}
	plan, err := zarrexport.Assemble(append(source().Variables(), topo), chunkMap)
	require.NoError(t, err)

	chunks := plan[len(plan)-1].Chunks
	assert.Equal(t, zarr.GuessChunks(topo.Shape, 8), chunks)
	assert.Less(t, chunks[0]*chunks[1], 2000*2000, "split into several chunks rather than one")
}

func TestAssemble_TimeBoundsWithoutChunks(t *testing.T) {
	plan, err := zarrexport.Assemble(source().Variables(), map[string][]int{})
	require.NoError(t, err)
	for _, a := range plan {
		if a.Variable.Name == "time_bnds" {
			assert.Equal(t, 3, a.Chunks[0])
		}
	}
}

func TestAssemble_Errors(t *testing.T) {
	vars := source().Variables()
	var noBounds, noTime []dataset.Variable
	for _, v := range vars {
		if v.Name != "time_bnds" {
			noBounds = append(noBounds, v)
		}
		if v.Name != "time" {
			noTime = append(noTime, v)
		}
	}
	_, err := zarrexport.Assemble(noBounds, chunkMap)
	assert.Error(t, err)
	_, err = zarrexport.Assemble(noTime, chunkMap)
	assert.Error(t, err)
}

func TestBuildEncoding(t *testing.T) {
	plan, err := zarrexport.Assemble(source().Variables(), chunkMap)
	require.NoError(t, err)

	enc, err := zarrexport.BuildEncoding(plan, zarrexport.DefaultCompressor, true)
	require.NoError(t, err)
	require.Len(t, enc, len(plan))

	for name, e := range enc {
		require.NotNil(t, e.Compressor, name)
		assert.Equal(t, zarrexport.DefaultCompressor, *e.Compressor, name)
	}
	assert.Equal(t, []zarr.CodecConfig{{ID: "shuffle", ElementSize: 4}}, enc["tas"].Filters)
	assert.Equal(t, []zarr.CodecConfig{{ID: "shuffle", ElementSize: 2}}, enc["orog"].Filters)
	assert.Equal(t, []zarr.CodecConfig{{ID: zarr.VLenUTF8ID}}, enc["member_id"].Filters)

	enc, err = zarrexport.BuildEncoding(plan, zarr.CodecConfig{ID: "gzip", Level: 5}, false)
	require.NoError(t, err)
	assert.Empty(t, enc["tas"].Filters)

	_, err = zarrexport.BuildEncoding(plan, zarr.CodecConfig{ID: "lz4"}, true)
	assert.Error(t, err)
}

func readJSON(t *testing.T, bucket *blob.Bucket, key string) map[string]interface{} {
	t.Helper()
	doc, err := bucket.ReadAll(context.Background(), key)
	require.NoError(t, err, key)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(doc, &out), key)
	return out
}

func listKeys(t *testing.T, bucket *blob.Bucket, prefix string) []string {
	t.Helper()
	var keys []string
	iter := bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		keys = append(keys, obj.Key)
	}
	return keys
}

func export(t *testing.T, src dataset.Source) (*blob.Bucket, zarrexport.Plan) {
	t.Helper()
	ctx := context.Background()
	plan, err := zarrexport.Assemble(src.Variables(), chunkMap)
	require.NoError(t, err)
	enc, err := zarrexport.BuildEncoding(plan, zarrexport.DefaultCompressor, true)
	require.NoError(t, err)

	bucket := memblob.OpenBucket(nil)
	t.Cleanup(func() { bucket.Close() })
	log, _ := test.NewNullLogger()
	opts := zarrexport.Options{Scheduler: zarrexport.Scheduler{Workers: 3}, Consolidated: true, Log: log}
	require.NoError(t, zarrexport.Export(ctx, src, plan, enc, bucket, opts))
	return bucket, plan
}

func TestExport_Metadata(t *testing.T) {
	bucket, _ := export(t, source())

	group := readJSON(t, bucket, ".zgroup")
	assert.Equal(t, float64(2), group["zarr_format"])

	root := readJSON(t, bucket, ".zattrs")
	assert.Equal(t, "CF-1.8", root["Conventions"])
	assert.Equal(t, float64(3), root["version"], "single element arrays become scalars")

	tas := readJSON(t, bucket, "tas/.zarray")
	assert.Equal(t, "<f4", tas["dtype"])
	assert.Equal(t, []interface{}{1.0, 1.0, 5.0, 4.0}, tas["chunks"])
	assert.Equal(t, map[string]interface{}{"id": "zlib", "level": 9.0}, tas["compressor"])
	assert.Equal(t, []interface{}{map[string]interface{}{"id": "shuffle", "elementsize": 4.0}}, tas["filters"])
	assert.InDelta(t, 1e20, tas["fill_value"], 1e13)

	tasAttrs := readJSON(t, bucket, "tas/.zattrs")
	assert.Equal(t, "K", tasAttrs["units"])
	assert.Equal(t, []interface{}{0.0, 400.0}, tasAttrs["valid_range"])
	assert.Equal(t, []interface{}{"member", "time", "lat", "lon"}, tasAttrs["_ARRAY_DIMENSIONS"])
	assert.NotContains(t, tasAttrs, "_FillValue")

	orog := readJSON(t, bucket, "orog/.zarray")
	assert.Equal(t, "<i2", orog["dtype"])
	assert.Equal(t, -1.0, orog["fill_value"])

	members := readJSON(t, bucket, "member_id/.zarray")
	assert.Equal(t, "|O", members["dtype"])
	assert.Nil(t, members["fill_value"])

	height := readJSON(t, bucket, "height2m/.zarray")
	assert.Equal(t, []interface{}{}, height["shape"])
	assert.Nil(t, height["fill_value"])

	assert.Equal(t, []string{"time_bnds/.zarray", "time_bnds/.zattrs", "time_bnds/0.0"}, listKeys(t, bucket, "time_bnds/"))
	assert.Len(t, listKeys(t, bucket, "tas/"), 2+2*3)

	consolidated := readJSON(t, bucket, ".zmetadata")
	assert.Equal(t, 1.0, consolidated["zarr_consolidated_format"])
	meta := consolidated["metadata"].(map[string]interface{})
	for _, key := range []string{".zgroup", ".zattrs", "tas/.zarray", "tas/.zattrs", "member_id/.zarray", "height2m/.zarray"} {
		assert.Contains(t, meta, key)
	}
	assert.NotContains(t, meta, "tas/0.0.0.0")
}

func TestExport_Values(t *testing.T) {
	src := source()
	bucket, plan := export(t, src)
	ctx := context.Background()

	r, err := zarr.OpenArray(ctx, bucket, "tas")
	require.NoError(t, err)
	got, err := r.ReadFull(ctx)
	require.NoError(t, err)
	want, err := dataset.LittleEndian(src.Data["tas"])
	require.NoError(t, err)
	assert.Equal(t, want, got)

	r, err = zarr.OpenArray(ctx, bucket, "member_id")
	require.NoError(t, err)
	names, err := r.ReadStrings(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1i1p1", "r2i1p1"}, names)

	require.NoError(t, zarrexport.Verify(ctx, src, bucket, plan))

	src.Data["lat"].([]float32)[0] = 99
	err = zarrexport.Verify(ctx, src, bucket, plan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "array lat")
}

func TestExport_ReadError(t *testing.T) {
	src := source()
	plan, err := zarrexport.Assemble(src.Variables(), chunkMap)
	require.NoError(t, err)
	plan = append(plan, zarrexport.Array{
		Variable: dataset.Variable{Name: "ghost", DType: dataset.Float32, Dims: []string{"time"}, Shape: []int{3}},
		Chunks:   []int{3},
	})
	enc, err := zarrexport.BuildEncoding(plan, zarrexport.DefaultCompressor, true)
	require.NoError(t, err)

	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()
	log, _ := test.NewNullLogger()
	err = zarrexport.Export(context.Background(), src, plan, enc, bucket, zarrexport.Options{Log: log})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")

	_, err = bucket.ReadAll(context.Background(), ".zmetadata")
	assert.Error(t, err, "no consolidated metadata without Consolidated")
}

func TestScheduler_Run(t *testing.T) {
	var running, peak, done int32
	tasks := make([]zarrexport.Task, 20)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) error {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&running, -1)
			atomic.AddInt32(&done, 1)
			return nil
		}
	}
	require.NoError(t, zarrexport.Scheduler{Workers: 2}.Run(context.Background(), tasks))
	assert.Equal(t, int32(20), done)
	assert.LessOrEqual(t, peak, int32(2))
}

func TestScheduler_FirstError(t *testing.T) {
	boom := errors.New("boom")
	tasks := []zarrexport.Task{
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error { return boom },
	}
	err := zarrexport.Scheduler{}.Run(context.Background(), tasks)
	assert.Equal(t, boom, err)
}
