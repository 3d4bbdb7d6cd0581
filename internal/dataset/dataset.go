// Package dataset is the in-memory model shared by the converters: typed
// variables with ordered attributes, read lazily from a Source.
package dataset

// Attribute is a named attribute value: a string, a Go scalar or a typed
// slice, as found in the file.
type Attribute struct {
	Name  string
	Value interface{}
}

// Attributes is an ordered attribute list.
type Attributes []Attribute

// Get returns the value of the named attribute.
func (a Attributes) Get(name string) (interface{}, bool) {
	for _, attr := range a {
		if attr.Name == name {
			return attr.Value, true
		}
	}
	return nil, false
}

// Has reports whether the named attribute exists.
func (a Attributes) Has(name string) bool {
	_, ok := a.Get(name)
	return ok
}

// Names returns the attribute names in order.
func (a Attributes) Names() []string {
	names := make([]string, len(a))
	for i, attr := range a {
		names[i] = attr.Name
	}
	return names
}

// Set replaces the named attribute in place or appends it.
func (a *Attributes) Set(name string, value interface{}) {
	for i := range *a {
		if (*a)[i].Name == name {
			(*a)[i].Value = value
			return
		}
	}
	*a = append(*a, Attribute{Name: name, Value: value})
}

// Filter returns the attributes for which keep returns true.
func (a Attributes) Filter(keep func(name string) bool) Attributes {
	out := make(Attributes, 0, len(a))
	for _, attr := range a {
		if keep(attr.Name) {
			out = append(out, attr)
		}
	}
	return out
}

// Dimension is a named axis length.
type Dimension struct {
	Name string
	Len  int
}

// Variable describes one array of a dataset.
type Variable struct {
	Name  string
	DType DType
	Dims  []string
	Shape []int
	Attrs Attributes
}

// Rank is the number of dimensions.
func (v Variable) Rank() int {
	return len(v.Shape)
}

// Len is the number of elements.
func (v Variable) Len() int {
	n := 1
	for _, s := range v.Shape {
		n *= s
	}
	return n
}

// Source is a read-only array dataset. Reads return flat, C-ordered typed
// slices ([]float32, []int16, []string, ...).
type Source interface {
	Path() string
	Attributes() Attributes
	Dimensions() []Dimension
	Variables() []Variable
	Variable(name string) (Variable, bool)

	// Read returns every value of the variable.
	Read(name string) (interface{}, error)
	// ReadSlab returns the values of variable[index, ...].
	ReadSlab(name string, index int) (interface{}, error)
	// ReadRegion returns the hyperslab starting at start with extent count.
	ReadRegion(name string, start, count []int) (interface{}, error)

	Close() error
}

// LookupDimension finds a dimension of src by name.
func LookupDimension(src Source, name string) (Dimension, bool) {
	for _, d := range src.Dimensions() {
		if d.Name == name {
			return d, true
		}
	}
	return Dimension{}, false
}

// Storage holds the on-disk layout settings of a destination variable.
type Storage struct {
	Chunks     []int
	Deflate    int
	Shuffle    bool
	Fletcher32 bool
	// Fill is the fill value, already cast to the variable type. Nil keeps
	// the library default.
	Fill interface{}
}
