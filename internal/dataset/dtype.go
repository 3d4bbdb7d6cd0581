package dataset

import (
	"math"

	"github.com/pkg/errors"
)

// DType is the element type of a variable.
type DType int

const (
	Invalid DType = iota
	Int8
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
	String
)

var dtypeNames = map[DType]string{
	Int8:    "int8",
	Uint8:   "uint8",
	Int16:   "int16",
	Uint16:  "uint16",
	Int32:   "int32",
	Uint32:  "uint32",
	Int64:   "int64",
	Uint64:  "uint64",
	Float32: "float32",
	Float64: "float64",
	String:  "string",
}

func (d DType) String() string {
	if s, ok := dtypeNames[d]; ok {
		return s
	}
	return "invalid"
}

// ParseDType maps a Go type name ("float32", "string", ...) to a DType.
func ParseDType(name string) (DType, error) {
	for d, s := range dtypeNames {
		if s == name {
			return d, nil
		}
	}
	return Invalid, errors.Errorf("unsupported type %q", name)
}

// Size is the width of one element in bytes, 0 for strings.
func (d DType) Size() int {
	switch d {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	}
	return 0
}

// Kind is the numpy kind character: 'i', 'u', 'f' or 'O'.
func (d DType) Kind() byte {
	switch d {
	case Int8, Int16, Int32, Int64:
		return 'i'
	case Uint8, Uint16, Uint32, Uint64:
		return 'u'
	case Float32, Float64:
		return 'f'
	}
	return 'O'
}

// IsNumeric reports whether values of d can be compared as numbers.
func (d DType) IsNumeric() bool {
	return d != Invalid && d != String
}

// Cast converts v to a scalar of type d. Floats convert with the usual Go
// rounding; integers saturate at the bounds of the type.
func (d DType) Cast(v float64) (interface{}, error) {
	switch d {
	case Float32:
		return float32(v), nil
	case Float64:
		return v, nil
	case Int8:
		return int8(clamp(v, math.MinInt8, math.MaxInt8)), nil
	case Uint8:
		return uint8(clamp(v, 0, math.MaxUint8)), nil
	case Int16:
		return int16(clamp(v, math.MinInt16, math.MaxInt16)), nil
	case Uint16:
		return uint16(clamp(v, 0, math.MaxUint16)), nil
	case Int32:
		return int32(clamp(v, math.MinInt32, math.MaxInt32)), nil
	case Uint32:
		return uint32(clamp(v, 0, math.MaxUint32)), nil
	case Int64:
		if v >= math.MaxInt64 {
			return int64(math.MaxInt64), nil
		}
		if v <= math.MinInt64 {
			return int64(math.MinInt64), nil
		}
		return int64(v), nil
	case Uint64:
		if v >= math.MaxUint64 {
			return uint64(math.MaxUint64), nil
		}
		if v <= 0 {
			return uint64(0), nil
		}
		return uint64(v), nil
	}
	return nil, errors.Errorf("cannot cast a number to %s", d)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}
