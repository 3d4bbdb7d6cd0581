// Package nc4 writes NetCDF4 files with explicit storage settings and
// inspects the chunk layout of existing files. It also writes NetCDF classic
// files. It links against netCDF-C.
package nc4

import (
	"github.com/fhs/go-netcdf/netcdf"
	"github.com/pkg/errors"

	"github.com/zequihg50/IPCC-Atlas-Datalab/internal/dataset"
)

var ncTypes = map[dataset.DType]netcdf.Type{
	dataset.Int8:    netcdf.BYTE,
	dataset.Uint8:   netcdf.UBYTE,
	dataset.Int16:   netcdf.SHORT,
	dataset.Uint16:  netcdf.USHORT,
	dataset.Int32:   netcdf.INT,
	dataset.Uint32:  netcdf.UINT,
	dataset.Int64:   netcdf.INT64,
	dataset.Uint64:  netcdf.UINT64,
	dataset.Float32: netcdf.FLOAT,
	dataset.Float64: netcdf.DOUBLE,
	dataset.String:  netcdf.STRING,
}

type variable struct {
	v     netcdf.Var
	dtype dataset.DType
	shape []int
	// strlen is the length of the character axis of a char variable
	strlen int
}

// Writer creates a NetCDF4 or NetCDF classic file.
type Writer struct {
	ds    netcdf.Dataset
	path  string
	dims  map[string]netcdf.Dim
	sizes map[string]int
	vars  map[string]variable

	classic  bool
	defining bool
}

// Create creates path as NetCDF4, replacing any existing file.
func Create(path string) (*Writer, error) {
	return create(path, netcdf.CLOBBER|netcdf.NETCDF4)
}

// CreateClassic creates path in the NetCDF classic format, replacing any
// existing file. Classic files take no chunking or filters and store strings
// as char arrays, see AddCharVariable.
func CreateClassic(path string) (*Writer, error) {
	w, err := create(path, netcdf.CLOBBER)
	if err != nil {
		return nil, err
	}
	w.classic = true
	return w, nil
}

func create(path string, mode netcdf.FileMode) (*Writer, error) {
	ds, err := netcdf.CreateFile(path, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", path)
	}
	return &Writer{
		ds:       ds,
		path:     path,
		dims:     map[string]netcdf.Dim{},
		sizes:    map[string]int{},
		vars:     map[string]variable{},
		defining: true,
	}, nil
}

// define and data move a classic file between define and data mode.
// NetCDF4 files switch on their own.
func (w *Writer) define() error {
	if !w.classic || w.defining {
		return nil
	}
	if err := redef(w.ds); err != nil {
		return errors.Wrapf(err, "%s: failed to enter define mode", w.path)
	}
	w.defining = true
	return nil
}

func (w *Writer) data() error {
	if !w.classic || !w.defining {
		return nil
	}
	if err := w.ds.EndDef(); err != nil {
		return errors.Wrapf(err, "%s: failed to leave define mode", w.path)
	}
	w.defining = false
	return nil
}

// Path returns the file path.
func (w *Writer) Path() string {
	return w.path
}

// AddDimension defines a fixed-length dimension.
func (w *Writer) AddDimension(name string, n int) error {
	if err := w.define(); err != nil {
		return err
	}
	d, err := w.ds.AddDim(name, uint64(n))
	if err != nil {
		return errors.Wrapf(err, "%s: failed to add dimension %s", w.path, name)
	}
	w.dims[name] = d
	w.sizes[name] = n
	return nil
}

// AddVariable defines a variable over already defined dimensions and applies
// its storage settings. Scalars are stored without chunking or filters.
func (w *Writer) AddVariable(name string, dtype dataset.DType, dims []string, st dataset.Storage) error {
	ncType, ok := ncTypes[dtype]
	if !ok {
		return errors.Errorf("%s: variable %s has unsupported type %s", w.path, name, dtype)
	}
	if w.classic && dtype == dataset.String {
		return errors.Errorf("%s: variable %s: classic files store strings as char arrays", w.path, name)
	}
	ncDims, shape, err := w.resolve(name, dims)
	if err != nil {
		return err
	}
	if len(dims) > 0 && len(st.Chunks) > 0 && len(st.Chunks) != len(dims) {
		return errors.Errorf("%s: variable %s has %d dimensions but %d chunk sizes", w.path, name, len(dims), len(st.Chunks))
	}
	if err := w.define(); err != nil {
		return err
	}

	v, err := w.ds.AddVar(name, ncType, ncDims)
	if err != nil {
		return errors.Wrapf(err, "%s: failed to add variable %s", w.path, name)
	}
	w.vars[name] = variable{v: v, dtype: dtype, shape: shape}

	id, err := varID(w.ds, name)
	if err != nil {
		return err
	}
	if len(dims) > 0 {
		if err := defineStorage(w.ds, id, st); err != nil {
			return errors.Wrapf(err, "%s: variable %s", w.path, name)
		}
	}
	if st.Fill != nil {
		if err := defineFill(w.ds, id, st.Fill); err != nil {
			return errors.Wrapf(err, "%s: variable %s", w.path, name)
		}
	}
	return nil
}

// AddCharVariable defines a string variable as a char array. Its extra last
// dimension, <name>_strlen, holds strlen characters per string.
func (w *Writer) AddCharVariable(name string, dims []string, strlen int) error {
	if strlen < 1 {
		return errors.Errorf("%s: variable %s needs a positive string length, got %d", w.path, name, strlen)
	}
	ncDims, shape, err := w.resolve(name, dims)
	if err != nil {
		return err
	}
	lenDim := name + "_strlen"
	if err := w.AddDimension(lenDim, strlen); err != nil {
		return err
	}

	v, err := w.ds.AddVar(name, netcdf.CHAR, append(ncDims, w.dims[lenDim]))
	if err != nil {
		return errors.Wrapf(err, "%s: failed to add variable %s", w.path, name)
	}
	w.vars[name] = variable{v: v, dtype: dataset.String, shape: shape, strlen: strlen}
	return nil
}

func (w *Writer) resolve(name string, dims []string) ([]netcdf.Dim, []int, error) {
	ncDims := make([]netcdf.Dim, len(dims))
	shape := make([]int, len(dims))
	for i, d := range dims {
		var ok bool
		if ncDims[i], ok = w.dims[d]; !ok {
			return nil, nil, errors.Errorf("%s: variable %s uses undefined dimension %s", w.path, name, d)
		}
		shape[i] = w.sizes[d]
	}
	return ncDims, shape, nil
}

func (w *Writer) lookup(name string) (variable, error) {
	v, ok := w.vars[name]
	if !ok {
		return v, errors.Errorf("%s: no variable %s", w.path, name)
	}
	return v, nil
}

// PutAttribute sets an attribute of varName, or a global attribute when
// varName is empty. Strings are written as text, []string as NC_STRING.
func (w *Writer) PutAttribute(varName, name string, value interface{}) error {
	if err := w.define(); err != nil {
		return err
	}
	var (
		attr netcdf.Attr
		id   = globalID
	)
	if varName == "" {
		attr = w.ds.Attr(name)
	} else {
		v, err := w.lookup(varName)
		if err != nil {
			return err
		}
		attr = v.v.Attr(name)
		if id, err = varID(w.ds, varName); err != nil {
			return err
		}
	}

	var err error
	switch x := value.(type) {
	case string:
		if x == "" {
			err = putTextAttr(w.ds, id, name, x)
		} else {
			err = attr.WriteBytes([]byte(x))
		}
	case []string:
		err = putStringAttr(w.ds, id, name, x)
	default:
		err = writeNumericAttr(attr, value)
	}
	return errors.Wrapf(err, "%s: failed to write attribute %s:%s", w.path, varName, name)
}

func writeNumericAttr(attr netcdf.Attr, value interface{}) error {
	flat, err := dataset.Flatten(value)
	if err != nil {
		return err
	}
	if dataset.Len(flat) == 0 {
		return errors.New("empty attribute value")
	}
	switch x := flat.(type) {
	case []int8:
		return attr.WriteInt8s(x)
	case []uint8:
		return attr.WriteUint8s(x)
	case []int16:
		return attr.WriteInt16s(x)
	case []uint16:
		return attr.WriteUint16s(x)
	case []int32:
		return attr.WriteInt32s(x)
	case []uint32:
		return attr.WriteUint32s(x)
	case []int64:
		return attr.WriteInt64s(x)
	case []uint64:
		return attr.WriteUint64s(x)
	case []float32:
		return attr.WriteFloat32s(x)
	case []float64:
		return attr.WriteFloat64s(x)
	}
	return errors.Errorf("unsupported attribute value of type %T", value)
}

// Write stores every value of a variable.
func (w *Writer) Write(varName string, values interface{}) error {
	v, err := w.lookup(varName)
	if err != nil {
		return err
	}
	if got, want := dataset.Len(values), product(v.shape); got != want {
		return errors.Errorf("%s: variable %s takes %d values, got %d", w.path, varName, want, got)
	}
	if err := w.data(); err != nil {
		return err
	}

	switch x := values.(type) {
	case []int8:
		err = v.v.WriteInt8s(x)
	case []uint8:
		err = v.v.WriteUint8s(x)
	case []int16:
		err = v.v.WriteInt16s(x)
	case []uint16:
		err = v.v.WriteUint16s(x)
	case []int32:
		err = v.v.WriteInt32s(x)
	case []uint32:
		err = v.v.WriteUint32s(x)
	case []int64:
		err = v.v.WriteInt64s(x)
	case []uint64:
		err = v.v.WriteUint64s(x)
	case []float32:
		err = v.v.WriteFloat32s(x)
	case []float64:
		err = v.v.WriteFloat64s(x)
	default:
		start := make([]int, len(v.shape))
		err = w.WriteRegion(varName, start, v.shape, values)
	}
	return errors.Wrapf(err, "%s: failed to write %s", w.path, varName)
}

// WriteSlab stores values as variable[index, ...].
func (w *Writer) WriteSlab(varName string, index int, values interface{}) error {
	v, err := w.lookup(varName)
	if err != nil {
		return err
	}
	if len(v.shape) == 0 || index < 0 || index >= v.shape[0] {
		return errors.Errorf("%s: index %d out of range for %s%v", w.path, index, varName, v.shape)
	}
	start := make([]int, len(v.shape))
	start[0] = index
	count := append([]int{1}, v.shape[1:]...)
	return w.WriteRegion(varName, start, count, values)
}

// WriteRegion stores values in the hyperslab at start with extent count.
func (w *Writer) WriteRegion(varName string, start, count []int, values interface{}) error {
	v, err := w.lookup(varName)
	if err != nil {
		return err
	}
	if len(start) != len(v.shape) || len(count) != len(v.shape) {
		return errors.Errorf("%s: region rank does not match %s%v", w.path, varName, v.shape)
	}
	if got, want := dataset.Len(values), product(count); got != want {
		return errors.Errorf("%s: region of %s takes %d values, got %d", w.path, varName, want, got)
	}
	if v.strlen > 0 {
		strs, ok := values.([]string)
		if !ok {
			return errors.Errorf("%s: variable %s takes strings, got %T", w.path, varName, values)
		}
		if values, err = padStrings(strs, v.strlen); err != nil {
			return errors.Wrapf(err, "%s: variable %s", w.path, varName)
		}
		start = append(append([]int(nil), start...), 0)
		count = append(append([]int(nil), count...), v.strlen)
	}
	if err := w.data(); err != nil {
		return err
	}
	id, err := varID(w.ds, varName)
	if err != nil {
		return err
	}
	return errors.Wrapf(putVara(w.ds, id, start, count, values), "%s: failed to write region of %s", w.path, varName)
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	return errors.Wrapf(w.ds.Close(), "failed to close %s", w.path)
}

// padStrings lays values out as fixed-width, NUL padded char records.
func padStrings(values []string, strlen int) ([]byte, error) {
	buf := make([]byte, len(values)*strlen)
	for i, s := range values {
		if len(s) > strlen {
			return nil, errors.Errorf("%q is longer than %d characters", s, strlen)
		}
		copy(buf[i*strlen:], s)
	}
	return buf, nil
}

func product(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}
