package dataset

import (
	"bytes"
	"encoding/binary"
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

// Flatten turns a scalar, a string or an arbitrarily nested slice into a
// flat typed slice in C order. Strings have their trailing NUL padding
// removed.
func Flatten(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, errors.New("no values")
	}
	rv := reflect.ValueOf(v)

	if rv.Kind() != reflect.Slice {
		if rv.Kind() == reflect.String {
			return []string{trimNUL(rv.String())}, nil
		}
		out := reflect.MakeSlice(reflect.SliceOf(rv.Type()), 1, 1)
		out.Index(0).Set(rv)
		return out.Interface(), nil
	}

	elem := rv.Type().Elem()
	for elem.Kind() == reflect.Slice {
		elem = elem.Elem()
	}
	out := reflect.MakeSlice(reflect.SliceOf(elem), 0, 0)

	var walk func(reflect.Value)
	walk = func(cur reflect.Value) {
		if cur.Type().Elem().Kind() == reflect.Slice {
			for i := 0; i < cur.Len(); i++ {
				walk(cur.Index(i))
			}
			return
		}
		out = reflect.AppendSlice(out, cur)
	}
	walk(rv)

	if strs, ok := out.Interface().([]string); ok {
		for i := range strs {
			strs[i] = trimNUL(strs[i])
		}
	}
	return out.Interface(), nil
}

func trimNUL(s string) string {
	return strings.TrimRight(s, "\x00")
}

// Len returns the number of elements of a flat slice.
func Len(values interface{}) int {
	rv := reflect.ValueOf(values)
	if rv.Kind() != reflect.Slice {
		return 0
	}
	return rv.Len()
}

// DTypeOf returns the element type of a flat slice.
func DTypeOf(values interface{}) (DType, error) {
	switch values.(type) {
	case []int8:
		return Int8, nil
	case []uint8:
		return Uint8, nil
	case []int16:
		return Int16, nil
	case []uint16:
		return Uint16, nil
	case []int32:
		return Int32, nil
	case []uint32:
		return Uint32, nil
	case []int64:
		return Int64, nil
	case []uint64:
		return Uint64, nil
	case []float32:
		return Float32, nil
	case []float64:
		return Float64, nil
	case []string:
		return String, nil
	}
	return Invalid, errors.Errorf("unsupported values of type %T", values)
}

// Uniform returns a slice of n elements all equal to v cast to d.
func Uniform(d DType, n int, v float64) (interface{}, error) {
	scalar, err := d.Cast(v)
	if err != nil {
		return nil, err
	}
	rs := reflect.ValueOf(scalar)
	out := reflect.MakeSlice(reflect.SliceOf(rs.Type()), n, n)
	for i := 0; i < n; i++ {
		out.Index(i).Set(rs)
	}
	return out.Interface(), nil
}

// AsFloat64 reads a numeric attribute value. Slices yield their first element.
func AsFloat64(v interface{}) (float64, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice {
		if rv.Len() == 0 {
			return 0, errors.New("empty attribute value")
		}
		rv = rv.Index(0)
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	}
	return 0, errors.Errorf("attribute value %v (%T) is not numeric", v, v)
}

// LittleEndian encodes a flat numeric slice as little-endian bytes.
func LittleEndian(values interface{}) ([]byte, error) {
	if _, ok := values.([]string); ok {
		return nil, errors.New("strings have no fixed-size encoding")
	}
	var buf bytes.Buffer
	buf.Grow(Len(values) * 8)
	if err := binary.Write(&buf, binary.LittleEndian, values); err != nil {
		return nil, errors.Wrapf(err, "failed to encode %T", values)
	}
	return buf.Bytes(), nil
}
