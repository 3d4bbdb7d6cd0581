package nc4

import (
	"github.com/fhs/go-netcdf/netcdf"
	"github.com/pkg/errors"
)

// ReadChunkShapes returns the on-disk chunk shape of every variable of the
// file at path. Variables stored contiguously, and scalars, map to an empty
// shape.
func ReadChunkShapes(path string) (map[string][]int, error) {
	ds, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer ds.Close()

	names, err := varNames(ds)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: failed to list variables", path)
	}

	shapes := make(map[string][]int, len(names))
	for _, name := range names {
		v, err := ds.Var(name)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: variable %s", path, name)
		}
		dims, err := v.Dims()
		if err != nil {
			return nil, errors.Wrapf(err, "%s: variable %s", path, name)
		}
		id, err := varID(ds, name)
		if err != nil {
			return nil, errors.Wrap(err, path)
		}
		chunks, err := chunking(ds, id, len(dims))
		if err != nil {
			return nil, errors.Wrapf(err, "%s: failed to inspect chunking of %s", path, name)
		}
		if chunks == nil {
			chunks = []int{}
		}
		shapes[name] = chunks
	}
	return shapes, nil
}

// Inspector discovers chunk shapes of NetCDF4 files.
type Inspector struct{}

// ChunkShapes implements zarrexport.ChunkInspector.
func (Inspector) ChunkShapes(path string) (map[string][]int, error) {
	return ReadChunkShapes(path)
}
