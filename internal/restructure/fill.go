package restructure

import (
	"math"

	"github.com/pkg/errors"

	"github.com/zequihg50/IPCC-Atlas-Datalab/internal/dataset"
)

// SentinelValue marks missing data in every restructured variable.
const SentinelValue = 1e20

// Sentinel is SentinelValue cast to d. Integer types saturate at their
// maximum.
func Sentinel(d dataset.DType) (interface{}, error) {
	return d.Cast(SentinelValue)
}

type number interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

// replace sets every element equal to one of match to sentinel. A NaN in
// match matches NaN elements.
func replace[T number](values []T, sentinel T, match ...float64) {
	for i, v := range values {
		f := float64(v)
		for _, m := range match {
			if f == m || (math.IsNaN(m) && math.IsNaN(f)) {
				values[i] = sentinel
				break
			}
		}
	}
}

func replaceValues[T number](values []T, sentinel interface{}, match ...float64) error {
	s, ok := sentinel.(T)
	if !ok {
		return errors.Errorf("sentinel %T does not match values %T", sentinel, values)
	}
	replace(values, s, match...)
	return nil
}

// numericAttribute reads a numeric attribute of attrs.
func numericAttribute(attrs dataset.Attributes, name string) (float64, error) {
	raw, ok := attrs.Get(name)
	if !ok {
		return 0, errors.Errorf("no %s attribute", name)
	}
	v, err := dataset.AsFloat64(raw)
	return v, errors.Wrapf(err, "attribute %s", name)
}

// Remap replaces, in place, the values equal to the missing_value and then
// to the _FillValue attribute of attrs with the sentinel of their type. Both
// attributes must exist and be numeric.
func Remap(values interface{}, attrs dataset.Attributes) (interface{}, error) {
	missing, err := numericAttribute(attrs, "missing_value")
	if err != nil {
		return nil, err
	}
	fill, err := numericAttribute(attrs, "_FillValue")
	if err != nil {
		return nil, err
	}
	dtype, err := dataset.DTypeOf(values)
	if err != nil {
		return nil, err
	}
	sentinel, err := Sentinel(dtype)
	if err != nil {
		return nil, err
	}

	switch x := values.(type) {
	case []int8:
		err = replaceValues(x, sentinel, missing, fill)
	case []uint8:
		err = replaceValues(x, sentinel, missing, fill)
	case []int16:
		err = replaceValues(x, sentinel, missing, fill)
	case []uint16:
		err = replaceValues(x, sentinel, missing, fill)
	case []int32:
		err = replaceValues(x, sentinel, missing, fill)
	case []uint32:
		err = replaceValues(x, sentinel, missing, fill)
	case []int64:
		err = replaceValues(x, sentinel, missing, fill)
	case []uint64:
		err = replaceValues(x, sentinel, missing, fill)
	case []float32:
		err = replaceValues(x, sentinel, missing, fill)
	case []float64:
		err = replaceValues(x, sentinel, missing, fill)
	default:
		err = errors.Errorf("cannot remap values of type %T", values)
	}
	if err != nil {
		return nil, err
	}
	return values, nil
}
