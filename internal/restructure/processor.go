// Package restructure rewrites an ensemble dataset into the CMIP-style
// layout: fixed dimensions, single-chunk coordinates and bounds, and
// per-member gridded fields whose missing values use a common sentinel.
package restructure

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/zequihg50/IPCC-Atlas-Datalab/internal/dataset"
)

// ErrMissing reports a dimension or variable the layout requires but the
// source lacks.
var ErrMissing = errors.New("missing from source")

// Destination receives the restructured dataset. *nc4.Writer implements it.
type Destination interface {
	AddDimension(name string, n int) error
	AddVariable(name string, dtype dataset.DType, dims []string, st dataset.Storage) error
	// PutAttribute sets a variable attribute, or a global one when varName
	// is empty.
	PutAttribute(varName, name string, value interface{}) error
	Write(varName string, values interface{}) error
	WriteSlab(varName string, index int, values interface{}) error
}

var (
	// Dimensions copied from the source, in creation order.
	Dimensions = []string{"member", "time", "lat", "lon"}
	// BaseVariables are the coordinates and bounds copied verbatim.
	BaseVariables = []string{"time", "lat", "lon", "time_bnds", "lat_bnds", "lon_bnds"}
)

const (
	memberVariable = "member"
	memberSource   = "member_id"
	boundsDim      = "bnds"
	heightVariable = "height2m"
)

// Stats counts what a Process run wrote.
type Stats struct {
	// Variables is the number of variables created in the destination.
	Variables int
	// Gridded is the number of variables copied member by member.
	Gridded int
	// Fallbacks is the number of member slabs replaced by sentinels.
	Fallbacks int
}

// Processor copies one source dataset into a destination.
type Processor struct {
	src     dataset.Source
	dst     Destination
	log     logrus.FieldLogger
	created map[string]bool
	members int
	stats   Stats
}

// NewProcessor returns a Processor reading src and writing dst.
func NewProcessor(src dataset.Source, dst Destination, log logrus.FieldLogger) *Processor {
	return &Processor{
		src:     src,
		dst:     dst,
		log:     log,
		created: map[string]bool{},
	}
}

// Stats returns the counters of the last Process run.
func (p *Processor) Stats() Stats {
	return p.stats
}

// Process runs the conversion phases in order. The first structural or I/O
// error aborts it.
func (p *Processor) Process() error {
	phases := []struct {
		name string
		run  func() error
	}{
		{"global attributes", p.copyGlobalAttributes},
		{"dimensions", p.createDimensions},
		{"base variables", p.createBaseVariables},
		{"climate variables", p.createClimateVariables},
	}
	for _, phase := range phases {
		p.log.WithField("file", p.src.Path()).Debugf("restructure: %s", phase.name)
		if err := phase.run(); err != nil {
			return errors.Wrapf(err, "%s: %s", p.src.Path(), phase.name)
		}
	}
	return nil
}

func (p *Processor) copyGlobalAttributes() error {
	for _, attr := range FilterGlobalAttributes(p.src.Attributes()) {
		if err := p.dst.PutAttribute("", attr.Name, attr.Value); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) copyAttributes(from dataset.Variable, to string) error {
	for _, attr := range FilterVariableAttributes(from.Attrs) {
		if err := p.dst.PutAttribute(to, attr.Name, attr.Value); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) createDimensions() error {
	for _, name := range Dimensions {
		d, ok := dataset.LookupDimension(p.src, name)
		if !ok {
			return errors.Wrapf(ErrMissing, "dimension %s", name)
		}
		if err := p.dst.AddDimension(name, d.Len); err != nil {
			return err
		}
		if name == memberVariable {
			p.members = d.Len
		}
	}
	return p.dst.AddDimension(boundsDim, 2)
}

func (p *Processor) variable(name string) (dataset.Variable, error) {
	v, ok := p.src.Variable(name)
	if !ok {
		return v, errors.Wrapf(ErrMissing, "variable %s", name)
	}
	return v, nil
}

func (p *Processor) define(name string, dtype dataset.DType, dims []string, st dataset.Storage) error {
	if err := p.dst.AddVariable(name, dtype, dims, st); err != nil {
		return err
	}
	p.created[name] = true
	p.stats.Variables++
	return nil
}

func (p *Processor) createBaseVariables() error {
	members, err := p.variable(memberSource)
	if err != nil {
		return err
	}
	if err := p.define(memberVariable, dataset.String, []string{memberVariable}, dataset.Storage{}); err != nil {
		return err
	}
	if err := p.copyAttributes(members, memberVariable); err != nil {
		return err
	}
	if err := p.dst.PutAttribute(memberVariable, "_CoordinateAxisType", "Ensemble"); err != nil {
		return err
	}
	if err := p.copyValues(members, memberVariable); err != nil {
		return err
	}

	for _, name := range BaseVariables {
		v, err := p.variable(name)
		if err != nil {
			return err
		}
		fill, err := Sentinel(v.DType)
		if err != nil {
			return errors.Wrapf(err, "variable %s", name)
		}
		st := dataset.Storage{
			Chunks:     v.Shape,
			Deflate:    1,
			Shuffle:    true,
			Fletcher32: true,
			Fill:       fill,
		}
		if err := p.define(name, v.DType, baseDims(name), st); err != nil {
			return err
		}
		if err := p.copyAttributes(v, name); err != nil {
			return err
		}
		if err := p.copyValues(v, name); err != nil {
			return err
		}
	}
	return nil
}

// baseDims returns the destination dimensions of a base variable: its own
// axis, plus bnds for the *_bnds variables, whatever the source calls them.
func baseDims(name string) []string {
	if axis, ok := strings.CutSuffix(name, "_bnds"); ok {
		return []string{axis, boundsDim}
	}
	return []string{name}
}

func (p *Processor) copyValues(v dataset.Variable, to string) error {
	values, err := p.src.Read(v.Name)
	if err != nil {
		return err
	}
	return p.dst.Write(to, values)
}

func (p *Processor) createClimateVariables() error {
	for _, v := range p.src.Variables() {
		var err error
		switch Classify(v, p.created) {
		case Small:
			err = p.copySmall(v)
		case Gridded:
			err = p.copyGridded(v)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) copySmall(v dataset.Variable) error {
	st := dataset.Storage{}
	if v.Rank() > 0 {
		st = dataset.Storage{Chunks: v.Shape, Deflate: 1, Shuffle: true, Fletcher32: true}
	}
	if err := p.define(v.Name, v.DType, v.Dims, st); err != nil {
		return err
	}
	if err := p.copyValues(v, v.Name); err != nil {
		return err
	}
	return p.copyAttributes(v, v.Name)
}

// griddedChunks is one chunk per leading index with the full horizontal
// grid, clamped to the extent of the two trailing axes.
func (p *Processor) griddedChunks(v dataset.Variable) []int {
	chunks := make([]int, v.Rank())
	for i := range chunks {
		chunks[i] = 1
	}
	for i, name := range []string{"lat", "lon"} {
		axis := v.Rank() - 2 + i
		d, _ := dataset.LookupDimension(p.src, name)
		chunks[axis] = max(1, min(d.Len, v.Shape[axis]))
	}
	return chunks
}

func (p *Processor) copyGridded(v dataset.Variable) error {
	sentinel, err := Sentinel(v.DType)
	if err != nil {
		return errors.Wrapf(err, "variable %s", v.Name)
	}
	st := dataset.Storage{
		Chunks:     p.griddedChunks(v),
		Deflate:    9,
		Shuffle:    true,
		Fletcher32: true,
		Fill:       sentinel,
	}
	if err := p.define(v.Name, v.DType, v.Dims, st); err != nil {
		return err
	}
	if err := p.copyAttributes(v, v.Name); err != nil {
		return err
	}
	if err := p.dst.PutAttribute(v.Name, "missing_value", sentinel); err != nil {
		return err
	}
	coordinates := "member time lat lon"
	if _, ok := p.src.Variable(heightVariable); ok {
		coordinates += " " + heightVariable
	}
	if err := p.dst.PutAttribute(v.Name, "coordinates", coordinates); err != nil {
		return err
	}

	p.stats.Gridded++
	for i := 0; i < p.members; i++ {
		res, err := RemapMember(p.src, v, i)
		if err != nil {
			return errors.Wrapf(err, "variable %s, member %d", v.Name, i)
		}
		if res.Fallback() {
			p.stats.Fallbacks++
			p.log.WithFields(logrus.Fields{
				"file":     p.src.Path(),
				"variable": v.Name,
				"member":   i,
			}).WithError(res.Err).Errorf("Error on file %s, variable %s, member %d. Filling with missing_value.", p.src.Path(), v.Name, i)
		}
		if err := p.dst.WriteSlab(v.Name, i, res.Values); err != nil {
			return err
		}
	}
	return nil
}
