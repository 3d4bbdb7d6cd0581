package zarrexport

import (
	"math"
	"reflect"

	"github.com/zequihg50/IPCC-Atlas-Datalab/internal/dataset"
	"github.com/zequihg50/IPCC-Atlas-Datalab/zarr"
)

const (
	fillValueAttr  = "_FillValue"
	dimensionsAttr = "_ARRAY_DIMENSIONS"
)

// jsonValue turns an attribute value into something encoding/json writes
// the way xarray does: one-element arrays collapse to scalars, byte slices
// stay numeric and non-finite floats become strings.
func jsonValue(v interface{}) interface{} {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Len() == 1 {
			return jsonValue(rv.Index(0).Interface())
		}
		out := make([]interface{}, rv.Len())
		for i := range out {
			out[i] = jsonValue(rv.Index(i).Interface())
		}
		return out
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return zarr.EncodeFillValue(f)
		}
		if rv.Kind() == reflect.Float32 {
			return float32(f)
		}
		return f
	}
	return v
}

// attributeMap converts attrs for a .zattrs document, leaving out the names
// in skip.
func attributeMap(attrs dataset.Attributes, skip ...string) map[string]interface{} {
	out := make(map[string]interface{}, len(attrs))
	for _, a := range attrs {
		if indexOf(skip, a.Name) >= 0 {
			continue
		}
		out[a.Name] = jsonValue(a.Value)
	}
	return out
}

// fillValue is the .zarray fill_value of v: its _FillValue attribute, or
// nil.
func fillValue(v dataset.Variable) interface{} {
	if v.DType == dataset.String {
		return nil
	}
	raw, ok := v.Attrs.Get(fillValueAttr)
	if !ok {
		return nil
	}
	f, err := dataset.AsFloat64(raw)
	if err != nil {
		return nil
	}
	return zarr.EncodeFillValue(f)
}
