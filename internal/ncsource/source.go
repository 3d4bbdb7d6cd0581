// Package ncsource reads NetCDF classic and NetCDF4 files in pure Go.
package ncsource

import (
	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/pkg/errors"

	"github.com/zequihg50/IPCC-Atlas-Datalab/internal/dataset"
)

// File is an open NetCDF file. It implements dataset.Source.
type File struct {
	path  string
	group api.Group
	attrs dataset.Attributes
	dims  []dataset.Dimension
	vars  []dataset.Variable
	// char variables are exposed as strings without their length axis
	chars map[string]bool
}

var _ dataset.Source = (*File)(nil)

// Open opens path read-only and loads its schema. Values are read lazily.
func Open(path string) (*File, error) {
	g, err := netcdf.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}

	f := &File{
		path:  path,
		group: g,
		attrs: convertAttributes(g.Attributes()),
		chars: map[string]bool{},
	}

	for _, name := range g.ListDimensions() {
		n, ok := g.GetDimension(name)
		if !ok {
			continue
		}
		f.dims = append(f.dims, dataset.Dimension{Name: name, Len: int(n)})
	}

	for _, name := range g.ListVariables() {
		v, err := f.describe(name)
		if err != nil {
			g.Close()
			return nil, errors.Wrapf(err, "%s: variable %s", path, name)
		}
		f.vars = append(f.vars, v)
	}
	f.resolveUnlimited()
	return f, nil
}

// resolveUnlimited sizes record dimensions, which classic files report with
// length 0, from the variables that use them.
func (f *File) resolveUnlimited() {
	for i, d := range f.dims {
		if d.Len != 0 {
			continue
		}
		for _, v := range f.vars {
			for j, name := range v.Dims {
				if name == d.Name && v.Shape[j] > f.dims[i].Len {
					f.dims[i].Len = v.Shape[j]
				}
			}
		}
	}
}

func (f *File) describe(name string) (dataset.Variable, error) {
	vg, err := f.group.GetVarGetter(name)
	if err != nil {
		return dataset.Variable{}, err
	}
	dtype, err := dataset.ParseDType(vg.GoType())
	if err != nil {
		return dataset.Variable{}, err
	}

	dims := append([]string(nil), vg.Dimensions()...)
	shape := make([]int, 0, len(vg.Shape()))
	for _, n := range vg.Shape() {
		shape = append(shape, int(n))
	}
	if vg.Type() == "char" && len(shape) > 0 {
		f.chars[name] = true
		shape = shape[:len(shape)-1]
		if len(dims) > len(shape) {
			dims = dims[:len(shape)]
		}
	}

	return dataset.Variable{
		Name:  name,
		DType: dtype,
		Dims:  dims,
		Shape: shape,
		Attrs: convertAttributes(vg.Attributes()),
	}, nil
}

func convertAttributes(am api.AttributeMap) dataset.Attributes {
	if am == nil {
		return nil
	}
	keys := am.Keys()
	attrs := make(dataset.Attributes, 0, len(keys))
	for _, k := range keys {
		v, ok := am.Get(k)
		if !ok {
			continue
		}
		attrs = append(attrs, dataset.Attribute{Name: k, Value: v})
	}
	return attrs
}

func (f *File) Path() string { return f.path }

func (f *File) Attributes() dataset.Attributes { return f.attrs }

func (f *File) Dimensions() []dataset.Dimension { return f.dims }

func (f *File) Variables() []dataset.Variable { return f.vars }

func (f *File) Variable(name string) (dataset.Variable, bool) {
	for _, v := range f.vars {
		if v.Name == name {
			return v, true
		}
	}
	return dataset.Variable{}, false
}

func (f *File) getter(name string) (api.VarGetter, dataset.Variable, error) {
	v, ok := f.Variable(name)
	if !ok {
		return nil, v, errors.Errorf("%s: no variable %s", f.path, name)
	}
	vg, err := f.group.GetVarGetter(name)
	if err != nil {
		return nil, v, errors.Wrapf(err, "%s: variable %s", f.path, name)
	}
	return vg, v, nil
}

// Read returns all values of the variable as a flat slice.
func (f *File) Read(name string) (interface{}, error) {
	vg, _, err := f.getter(name)
	if err != nil {
		return nil, err
	}
	values, err := vg.Values()
	if err != nil {
		return nil, errors.Wrapf(err, "%s: failed to read %s", f.path, name)
	}
	return dataset.Flatten(values)
}

// ReadSlab returns the values of name[index, ...].
func (f *File) ReadSlab(name string, index int) (interface{}, error) {
	vg, v, err := f.getter(name)
	if err != nil {
		return nil, err
	}
	if v.Rank() == 0 || index < 0 || index >= v.Shape[0] {
		return nil, errors.Errorf("%s: index %d out of range for %s%v", f.path, index, name, v.Shape)
	}
	values, err := vg.GetSlice(int64(index), int64(index+1))
	if err != nil {
		return nil, errors.Wrapf(err, "%s: failed to read %s[%d]", f.path, name, index)
	}
	return dataset.Flatten(values)
}

// ReadRegion returns the hyperslab of name starting at start with extent
// count.
func (f *File) ReadRegion(name string, start, count []int) (interface{}, error) {
	vg, v, err := f.getter(name)
	if err != nil {
		return nil, err
	}
	if len(start) != v.Rank() || len(count) != v.Rank() {
		return nil, errors.Errorf("%s: region rank does not match %s%v", f.path, name, v.Shape)
	}
	if v.Rank() == 0 {
		return f.Read(name)
	}

	begin := make([]int64, 0, v.Rank()+1)
	end := make([]int64, 0, v.Rank()+1)
	for i := range start {
		if start[i] < 0 || count[i] < 0 || start[i]+count[i] > v.Shape[i] {
			return nil, errors.Errorf("%s: region out of bounds for %s at dimension %d", f.path, name, i)
		}
		begin = append(begin, int64(start[i]))
		end = append(end, int64(start[i]+count[i]))
	}
	if f.chars[name] {
		strlen := vg.Shape()[v.Rank()]
		begin = append(begin, 0)
		end = append(end, strlen)
	}

	values, err := vg.GetSliceMD(begin, end)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: failed to read region of %s", f.path, name)
	}
	return dataset.Flatten(values)
}

// Close releases the file.
func (f *File) Close() error {
	f.group.Close()
	return nil
}
