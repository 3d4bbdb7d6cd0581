package nc4

import (
	"path/filepath"
	"testing"

	"github.com/fhs/go-netcdf/netcdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zequihg50/IPCC-Atlas-Datalab/internal/dataset"
)

func newTestWriter(t *testing.T) (*Writer, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.nc")
	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.AddDimension("member", 2))
	require.NoError(t, w.AddDimension("time", 3))
	return w, path
}

func readAttrText(t *testing.T, a netcdf.Attr) string {
	t.Helper()
	n, err := a.Len()
	require.NoError(t, err)
	buf := make([]byte, n)
	require.NoError(t, a.ReadBytes(buf))
	return string(buf)
}

func TestWriter_RoundTrip(t *testing.T) {
	w, path := newTestWriter(t)

	require.NoError(t, w.PutAttribute("", "Conventions", "CF-1.8"))
	require.NoError(t, w.AddVariable("member", dataset.String, []string{"member"}, dataset.Storage{}))
	require.NoError(t, w.PutAttribute("member", "_CoordinateAxisType", "Ensemble"))
	require.NoError(t, w.Write("member", []string{"r1i1p1", "r2i1p1"}))

	require.NoError(t, w.AddVariable("tas", dataset.Float32, []string{"member", "time"}, dataset.Storage{
		Chunks:     []int{1, 3},
		Deflate:    9,
		Shuffle:    true,
		Fletcher32: true,
		Fill:       float32(1e20),
	}))
	require.NoError(t, w.PutAttribute("tas", "missing_value", float32(1e20)))
	require.NoError(t, w.PutAttribute("tas", "valid_range", []float32{0, 400}))
	require.NoError(t, w.WriteSlab("tas", 1, []float32{4, 5, 6}))
	require.NoError(t, w.WriteSlab("tas", 0, []float32{1, 2, 3}))

	require.NoError(t, w.AddVariable("height2m", dataset.Float64, nil, dataset.Storage{Chunks: []int{}, Deflate: 1, Fill: 1e20}))
	require.NoError(t, w.Write("height2m", []float64{2}))
	require.NoError(t, w.Close())

	ds, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	require.NoError(t, err)
	defer ds.Close()

	assert.Equal(t, "CF-1.8", readAttrText(t, ds.Attr("Conventions")))

	tas, err := ds.Var("tas")
	require.NoError(t, err)
	values := make([]float32, 6)
	require.NoError(t, tas.ReadFloat32s(values))
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, values)

	missing := make([]float32, 1)
	require.NoError(t, tas.Attr("missing_value").ReadFloat32s(missing))
	assert.Equal(t, float32(1e20), missing[0])

	member, err := ds.Var("member")
	require.NoError(t, err)
	assert.Equal(t, "Ensemble", readAttrText(t, member.Attr("_CoordinateAxisType")))

	shapes, err := ReadChunkShapes(path)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, shapes["tas"])
	assert.Equal(t, []int{}, shapes["member"])
	assert.Equal(t, []int{}, shapes["height2m"])
}

func TestWriter_Errors(t *testing.T) {
	w, _ := newTestWriter(t)
	defer w.Close()

	err := w.AddVariable("pr", dataset.Float32, []string{"member", "lat"}, dataset.Storage{})
	assert.Error(t, err, "undefined dimension")

	err = w.AddVariable("pr", dataset.Float32, []string{"member", "time"}, dataset.Storage{Chunks: []int{1}})
	assert.Error(t, err, "chunk rank mismatch")

	err = w.AddVariable("bad", dataset.Invalid, []string{"member"}, dataset.Storage{})
	assert.Error(t, err)

	require.NoError(t, w.AddVariable("tas", dataset.Float32, []string{"member", "time"}, dataset.Storage{}))
	assert.Error(t, w.Write("tas", []float32{1, 2}))
	assert.Error(t, w.WriteSlab("tas", 2, []float32{1, 2, 3}))
	assert.Error(t, w.WriteSlab("tas", 0, []float32{1, 2}))
	assert.Error(t, w.Write("nope", []float32{1}))
	assert.Error(t, w.PutAttribute("nope", "units", "K"))
	assert.Error(t, w.PutAttribute("tas", "units", []float32{}))
}

func TestReadChunkShapes_MissingFile(t *testing.T) {
	_, err := ReadChunkShapes(filepath.Join(t.TempDir(), "absent.nc"))
	assert.Error(t, err)
}

func TestWriter_Classic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classic.nc")
	w, err := CreateClassic(path)
	require.NoError(t, err)
	require.NoError(t, w.AddDimension("member", 2))
	require.NoError(t, w.AddDimension("time", 3))

	require.NoError(t, w.AddCharVariable("member_id", []string{"member"}, 8))
	require.NoError(t, w.PutAttribute("member_id", "long_name", "ensemble member"))
	require.NoError(t, w.Write("member_id", []string{"r1i1p1", "r10i1p1"}))

	// defining after data was written reenters define mode
	require.NoError(t, w.AddVariable("tas", dataset.Float32, []string{"member", "time"}, dataset.Storage{Fill: float32(-9999)}))
	require.NoError(t, w.PutAttribute("tas", "_CoordinateAxisType", "Ensemble"))
	require.NoError(t, w.WriteSlab("tas", 1, []float32{4, 5, 6}))
	require.NoError(t, w.PutAttribute("", "title", "classic"))
	require.NoError(t, w.Close())

	ds, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	require.NoError(t, err)
	defer ds.Close()

	assert.Equal(t, "classic", readAttrText(t, ds.Attr("title")))

	member, err := ds.Var("member_id")
	require.NoError(t, err)
	typ, err := member.Type()
	require.NoError(t, err)
	assert.Equal(t, netcdf.CHAR, typ)
	chars := make([]byte, 16)
	require.NoError(t, member.ReadBytes(chars))
	assert.Equal(t, "r1i1p1\x00\x00r10i1p1\x00", string(chars))

	tas, err := ds.Var("tas")
	require.NoError(t, err)
	values := make([]float32, 6)
	require.NoError(t, tas.ReadFloat32s(values))
	assert.Equal(t, []float32{-9999, -9999, -9999, 4, 5, 6}, values, "unwritten slab holds the fill value")
	fill := make([]float32, 1)
	require.NoError(t, tas.Attr("_FillValue").ReadFloat32s(fill))
	assert.Equal(t, float32(-9999), fill[0])
	assert.Equal(t, "Ensemble", readAttrText(t, tas.Attr("_CoordinateAxisType")))
}

func TestWriter_ClassicErrors(t *testing.T) {
	w, err := CreateClassic(filepath.Join(t.TempDir(), "classic.nc"))
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.AddDimension("member", 2))

	assert.Error(t, w.AddVariable("names", dataset.String, []string{"member"}, dataset.Storage{}))
	assert.Error(t, w.AddCharVariable("names", []string{"member"}, 0))
	assert.Error(t, w.AddCharVariable("names", []string{"realization"}, 4))

	require.NoError(t, w.AddCharVariable("names", []string{"member"}, 4))
	assert.Error(t, w.Write("names", []string{"r1", "r1i1p1"}), "longer than the string length")
	assert.Error(t, w.Write("names", []float32{1, 2}))
	assert.Error(t, w.Write("names", []string{"r1"}))
}

func TestPadStrings(t *testing.T) {
	buf, err := padStrings([]string{"ab", "", "abc"}, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("ab\x00\x00\x00\x00abc"), buf)

	_, err = padStrings([]string{"abcd"}, 3)
	assert.Error(t, err)
}
