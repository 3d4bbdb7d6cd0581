// Package datasettest provides an in-memory dataset.Source for tests.
package datasettest

import (
	"reflect"

	"github.com/pkg/errors"

	"github.com/zequihg50/IPCC-Atlas-Datalab/internal/dataset"
)

// Memory is a dataset.Source over flat C-order slices.
type Memory struct {
	Name  string
	Attrs dataset.Attributes
	Dims  []dataset.Dimension
	Vars  []dataset.Variable
	// Data holds the values of every variable by name.
	Data map[string]interface{}
	// FailSlab, when set, is consulted before every ReadSlab.
	FailSlab func(name string, index int) error

	Reads  int
	Closed bool
}

// AddVariable appends a variable whose shape is taken from the named
// dimensions, which must already be in Dims.
func (m *Memory) AddVariable(name string, dims []string, values interface{}, attrs ...dataset.Attribute) {
	shape := make([]int, len(dims))
	for i, d := range dims {
		for _, dim := range m.Dims {
			if dim.Name == d {
				shape[i] = dim.Len
			}
		}
	}
	dtype, err := dataset.DTypeOf(values)
	if err != nil {
		panic(err)
	}
	m.Vars = append(m.Vars, dataset.Variable{
		Name:  name,
		DType: dtype,
		Dims:  dims,
		Shape: shape,
		Attrs: dataset.Attributes(attrs),
	})
	if m.Data == nil {
		m.Data = map[string]interface{}{}
	}
	m.Data[name] = values
}

func (m *Memory) Path() string {
	return m.Name
}

func (m *Memory) Attributes() dataset.Attributes {
	return m.Attrs
}

func (m *Memory) Dimensions() []dataset.Dimension {
	return m.Dims
}

func (m *Memory) Variables() []dataset.Variable {
	return m.Vars
}

func (m *Memory) Variable(name string) (dataset.Variable, bool) {
	for _, v := range m.Vars {
		if v.Name == name {
			return v, true
		}
	}
	return dataset.Variable{}, false
}

func (m *Memory) lookup(name string) (dataset.Variable, reflect.Value, error) {
	v, ok := m.Variable(name)
	if !ok {
		return v, reflect.Value{}, errors.Errorf("no variable %s", name)
	}
	m.Reads++
	return v, reflect.ValueOf(m.Data[name]), nil
}

// Read returns a copy of the values of name.
func (m *Memory) Read(name string) (interface{}, error) {
	_, rv, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	return copySlice(rv, 0, rv.Len()), nil
}

// ReadSlab returns a copy of name[index, ...].
func (m *Memory) ReadSlab(name string, index int) (interface{}, error) {
	if m.FailSlab != nil {
		if err := m.FailSlab(name, index); err != nil {
			return nil, err
		}
	}
	v, rv, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	if v.Rank() == 0 || index < 0 || index >= v.Shape[0] {
		return nil, errors.Errorf("index %d out of range for %s%v", index, name, v.Shape)
	}
	n := v.Len() / v.Shape[0]
	return copySlice(rv, index*n, (index+1)*n), nil
}

// ReadRegion returns a copy of the hyperslab of name at start with extent
// count.
func (m *Memory) ReadRegion(name string, start, count []int) (interface{}, error) {
	v, rv, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	if len(start) != v.Rank() || len(count) != v.Rank() {
		return nil, errors.Errorf("region rank does not match %s%v", name, v.Shape)
	}
	total := 1
	for i := range start {
		if start[i] < 0 || count[i] < 0 || start[i]+count[i] > v.Shape[i] {
			return nil, errors.Errorf("region out of range for %s%v", name, v.Shape)
		}
		total *= count[i]
	}

	strides := make([]int, v.Rank())
	s := 1
	for i := v.Rank() - 1; i >= 0; i-- {
		strides[i] = s
		s *= v.Shape[i]
	}
	out := reflect.MakeSlice(rv.Type(), total, total)
	idx := make([]int, v.Rank())
	for k := 0; k < total; k++ {
		rem, src := k, 0
		for d := v.Rank() - 1; d >= 0; d-- {
			idx[d] = rem % count[d]
			rem /= count[d]
			src += (start[d] + idx[d]) * strides[d]
		}
		out.Index(k).Set(rv.Index(src))
	}
	return out.Interface(), nil
}

func (m *Memory) Close() error {
	m.Closed = true
	return nil
}

func copySlice(rv reflect.Value, from, to int) interface{} {
	out := reflect.MakeSlice(rv.Type(), to-from, to-from)
	reflect.Copy(out, rv.Slice(from, to))
	return out.Interface()
}

var _ dataset.Source = (*Memory)(nil)
