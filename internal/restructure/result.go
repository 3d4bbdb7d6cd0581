package restructure

import (
	"github.com/zequihg50/IPCC-Atlas-Datalab/internal/dataset"
)

// SlabResult is the outcome of remapping one member of a gridded variable.
// Values is always set: the remapped slab, or a uniform sentinel slab when
// Err is not nil.
type SlabResult struct {
	Member int
	Values interface{}
	Err    error
}

// Fallback reports whether the slab was replaced by sentinels.
func (r SlabResult) Fallback() bool {
	return r.Err != nil
}

// RemapMember reads variable[member, ...] from src and normalizes its
// missing and fill values. Any failure yields a Fallback result; only a
// failure to build the sentinel slab itself is returned as an error.
func RemapMember(src dataset.Source, v dataset.Variable, member int) (SlabResult, error) {
	res := SlabResult{Member: member}
	values, err := src.ReadSlab(v.Name, member)
	if err == nil {
		values, err = Remap(values, v.Attrs)
	}
	if err == nil {
		res.Values = values
		return res, nil
	}

	res.Err = err
	n := v.Len()
	if len(v.Shape) > 0 && v.Shape[0] > 0 {
		n /= v.Shape[0]
	}
	res.Values, err = dataset.Uniform(v.DType, n, SentinelValue)
	return res, err
}
