package nc4

/*
#cgo pkg-config: netcdf
#include <stdlib.h>
#include <netcdf.h>
*/
import "C"

import (
	"unsafe"

	"github.com/fhs/go-netcdf/netcdf"
	"github.com/pkg/errors"

	"github.com/zequihg50/IPCC-Atlas-Datalab/internal/dataset"
)

// This file holds the netCDF-C calls go-netcdf does not wrap: storage
// layout, hyperslab writes, string data and chunk inspection.

// Error is a netCDF-C status code.
type Error C.int

func (e Error) Error() string {
	return C.GoString(C.nc_strerror(C.int(e)))
}

func check(status C.int) error {
	if status == C.NC_NOERR {
		return nil
	}
	return Error(status)
}

func ncid(ds netcdf.Dataset) C.int {
	return C.int(ds)
}

const globalID C.int = C.NC_GLOBAL

func varID(ds netcdf.Dataset, name string) (C.int, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	var id C.int
	if err := check(C.nc_inq_varid(ncid(ds), cname, &id)); err != nil {
		return 0, errors.Wrapf(err, "variable %s", name)
	}
	return id, nil
}

func redef(ds netcdf.Dataset) error {
	return check(C.nc_redef(ncid(ds)))
}

func sizes(values []int) []C.size_t {
	out := make([]C.size_t, len(values))
	for i, v := range values {
		out[i] = C.size_t(v)
	}
	return out
}

// defineStorage applies chunking, compression and checksum settings. It
// must run right after the variable is defined.
func defineStorage(ds netcdf.Dataset, id C.int, st dataset.Storage) error {
	if len(st.Chunks) > 0 {
		chunks := make([]int, len(st.Chunks))
		for i, c := range st.Chunks {
			chunks[i] = max(c, 1)
		}
		cs := sizes(chunks)
		if err := check(C.nc_def_var_chunking(ncid(ds), id, C.NC_CHUNKED, &cs[0])); err != nil {
			return errors.Wrap(err, "failed to set chunking")
		}
	}
	if st.Deflate > 0 || st.Shuffle {
		shuffle, deflate := C.int(0), C.int(0)
		if st.Shuffle {
			shuffle = 1
		}
		if st.Deflate > 0 {
			deflate = 1
		}
		if err := check(C.nc_def_var_deflate(ncid(ds), id, shuffle, deflate, C.int(st.Deflate))); err != nil {
			return errors.Wrap(err, "failed to set compression")
		}
	}
	if st.Fletcher32 {
		if err := check(C.nc_def_var_fletcher32(ncid(ds), id, C.NC_FLETCHER32)); err != nil {
			return errors.Wrap(err, "failed to set fletcher32")
		}
	}
	return nil
}

func defineFill(ds netcdf.Dataset, id C.int, fill interface{}) error {
	ptr, n, err := dataPointer(fill)
	if err != nil {
		return err
	}
	if n != 1 {
		return errors.Errorf("fill value must be a scalar, got %d values", n)
	}
	return errors.Wrap(check(C.nc_def_var_fill(ncid(ds), id, 0, ptr)), "failed to set fill value")
}

func sliceData[T any](s []T) (unsafe.Pointer, int) {
	if len(s) == 0 {
		return nil, 0
	}
	return unsafe.Pointer(unsafe.SliceData(s)), len(s)
}

// dataPointer returns the address and length of a flat numeric slice or a
// scalar (which is flattened first).
func dataPointer(values interface{}) (unsafe.Pointer, int, error) {
	switch x := values.(type) {
	case []int8:
		p, n := sliceData(x)
		return p, n, nil
	case []uint8:
		p, n := sliceData(x)
		return p, n, nil
	case []int16:
		p, n := sliceData(x)
		return p, n, nil
	case []uint16:
		p, n := sliceData(x)
		return p, n, nil
	case []int32:
		p, n := sliceData(x)
		return p, n, nil
	case []uint32:
		p, n := sliceData(x)
		return p, n, nil
	case []int64:
		p, n := sliceData(x)
		return p, n, nil
	case []uint64:
		p, n := sliceData(x)
		return p, n, nil
	case []float32:
		p, n := sliceData(x)
		return p, n, nil
	case []float64:
		p, n := sliceData(x)
		return p, n, nil
	case []string:
		return nil, 0, errors.New("strings have no fixed-size layout")
	}
	flat, err := dataset.Flatten(values)
	if err != nil {
		return nil, 0, err
	}
	dtype, err := dataset.DTypeOf(flat)
	if err != nil {
		return nil, 0, err
	}
	if !dtype.IsNumeric() {
		return nil, 0, errors.New("strings have no fixed-size layout")
	}
	return dataPointer(flat)
}

// cStrings copies values to C memory. The returned function frees it.
func cStrings(values []string) (**C.char, func()) {
	n := len(values)
	if n == 0 {
		return nil, func() {}
	}
	ptr := (**C.char)(C.malloc(C.size_t(n) * C.size_t(unsafe.Sizeof(uintptr(0)))))
	arr := unsafe.Slice(ptr, n)
	for i, s := range values {
		arr[i] = C.CString(s)
	}
	return ptr, func() {
		for _, p := range arr {
			C.free(unsafe.Pointer(p))
		}
		C.free(unsafe.Pointer(ptr))
	}
}

func putVara(ds netcdf.Dataset, id C.int, start, count []int, values interface{}) error {
	st, ct := sizes(start), sizes(count)
	var startp, countp *C.size_t
	if len(st) > 0 {
		startp, countp = &st[0], &ct[0]
	}

	if strs, ok := values.([]string); ok {
		ptr, free := cStrings(strs)
		defer free()
		return check(C.nc_put_vara_string(ncid(ds), id, startp, countp, ptr))
	}

	ptr, _, err := dataPointer(values)
	if err != nil {
		return err
	}
	return check(C.nc_put_vara(ncid(ds), id, startp, countp, ptr))
}

func putStringAttr(ds netcdf.Dataset, id C.int, name string, values []string) error {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	ptr, free := cStrings(values)
	defer free()
	return check(C.nc_put_att_string(ncid(ds), id, cname, C.size_t(len(values)), ptr))
}

func putTextAttr(ds netcdf.Dataset, id C.int, name, value string) error {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	ctext := C.CString(value)
	defer C.free(unsafe.Pointer(ctext))
	return check(C.nc_put_att_text(ncid(ds), id, cname, C.size_t(len(value)), ctext))
}

func varNames(ds netcdf.Dataset) ([]string, error) {
	var n C.int
	if err := check(C.nc_inq_nvars(ncid(ds), &n)); err != nil {
		return nil, err
	}
	buf := (*C.char)(C.malloc(C.NC_MAX_NAME + 1))
	defer C.free(unsafe.Pointer(buf))

	names := make([]string, 0, int(n))
	for id := C.int(0); id < n; id++ {
		if err := check(C.nc_inq_varname(ncid(ds), id, buf)); err != nil {
			return nil, err
		}
		names = append(names, C.GoString(buf))
	}
	return names, nil
}

// chunking returns the chunk shape of a variable, or nil when it is stored
// contiguously or compactly.
func chunking(ds netcdf.Dataset, id C.int, rank int) ([]int, error) {
	if rank == 0 {
		return nil, nil
	}
	var storage C.int
	cs := make([]C.size_t, rank)
	if err := check(C.nc_inq_var_chunking(ncid(ds), id, &storage, &cs[0])); err != nil {
		return nil, err
	}
	if storage != C.NC_CHUNKED {
		return nil, nil
	}
	out := make([]int, rank)
	for i, c := range cs {
		out[i] = int(c)
	}
	return out, nil
}
