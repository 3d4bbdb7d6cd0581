package restructure

import (
	"strings"

	"github.com/zequihg50/IPCC-Atlas-Datalab/internal/dataset"
)

// excludedGlobals are global attributes describing the source product that
// must not leak into the restructured file.
var excludedGlobals = map[string]bool{
	"contact":         true,
	"title":           true,
	"project":         true,
	"product":         true,
	"product_version": true,
	"date_created":    true,
	"tracking_id":     true,
	"time_min":        true,
	"time_max":        true,
}

func reserved(name string) bool {
	return strings.HasPrefix(name, "_")
}

// FilterGlobalAttributes drops the excluded product attributes, reserved
// names and geospatial_* attributes.
func FilterGlobalAttributes(attrs dataset.Attributes) dataset.Attributes {
	return attrs.Filter(func(name string) bool {
		return !excludedGlobals[name] && !reserved(name) && !strings.HasPrefix(name, "geospatial_")
	})
}

// FilterVariableAttributes drops reserved names such as _FillValue and
// _ChunkSizes.
func FilterVariableAttributes(attrs dataset.Attributes) dataset.Attributes {
	return attrs.Filter(func(name string) bool {
		return !reserved(name)
	})
}
