package restructure

import (
	"strings"

	"github.com/zequihg50/IPCC-Atlas-Datalab/internal/dataset"
)

// Class says how a source variable is carried into the destination.
type Class int

const (
	// Skip variables are not copied.
	Skip Class = iota
	// Small variables are copied verbatim in a single chunk.
	Small
	// Gridded variables are copied member by member with fill value
	// normalization.
	Gridded
)

func (c Class) String() string {
	switch c {
	case Skip:
		return "skip"
	case Small:
		return "small"
	case Gridded:
		return "gridded"
	}
	return "unknown"
}

// griddedRank is the rank from which a variable holds per member fields.
const griddedRank = 4

// Classify decides the fate of v given the names already present in the
// destination.
func Classify(v dataset.Variable, created map[string]bool) Class {
	switch {
	case created[v.Name],
		v.Name == "member_id",
		strings.HasPrefix(v.Name, "gcm_"),
		strings.HasPrefix(v.Name, "rcm_"):
		return Skip
	case v.Rank() < griddedRank:
		return Small
	}
	return Gridded
}
