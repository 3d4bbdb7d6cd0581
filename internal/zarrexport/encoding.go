package zarrexport

import (
	"github.com/pkg/errors"

	"github.com/zequihg50/IPCC-Atlas-Datalab/internal/dataset"
	"github.com/zequihg50/IPCC-Atlas-Datalab/zarr"
)

// DefaultCompressor is zlib at its highest level.
var DefaultCompressor = zarr.CodecConfig{ID: "zlib", Level: 9}

// ArrayEncoding holds the codecs of one array.
type ArrayEncoding struct {
	Compressor *zarr.CodecConfig
	Filters    []zarr.CodecConfig
}

// Encoding maps array names to their codecs.
type Encoding map[string]ArrayEncoding

// BuildEncoding assigns compressor to every array of plan. With shuffle set,
// numeric arrays also get a byte shuffle filter sized to their element
// width. String arrays are always stored through vlen-utf8.
func BuildEncoding(plan Plan, compressor zarr.CodecConfig, shuffle bool) (Encoding, error) {
	if _, err := zarr.NewCodec(compressor); err != nil {
		return nil, errors.Wrap(err, "invalid compressor")
	}
	enc := make(Encoding, len(plan))
	for _, a := range plan {
		c := compressor
		e := ArrayEncoding{Compressor: &c}
		switch {
		case a.Variable.DType == dataset.String:
			e.Filters = []zarr.CodecConfig{{ID: zarr.VLenUTF8ID}}
		case shuffle && a.Variable.DType.Size() > 1:
			e.Filters = []zarr.CodecConfig{{ID: "shuffle", ElementSize: a.Variable.DType.Size()}}
		}
		enc[a.Variable.Name] = e
	}
	return enc, nil
}
