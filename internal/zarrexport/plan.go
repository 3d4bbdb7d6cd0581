// Package zarrexport copies a dataset into a Zarr v2 store, keeping the
// chunk layout of the source file where it has one.
package zarrexport

import (
	"github.com/pkg/errors"

	"github.com/zequihg50/IPCC-Atlas-Datalab/internal/dataset"
	"github.com/zequihg50/IPCC-Atlas-Datalab/zarr"
)

// ChunkInspector discovers the on-disk chunk shape of every variable of a
// file. Contiguous variables map to an empty shape.
type ChunkInspector interface {
	ChunkShapes(path string) (map[string][]int, error)
}

// Array is one variable of the export with its store chunk shape.
type Array struct {
	Variable dataset.Variable
	Chunks   []int
}

// Plan lists the arrays of an export in source order.
type Plan []Array

// Names returns the array names in order.
func (p Plan) Names() []string {
	names := make([]string, len(p))
	for i, a := range p {
		names[i] = a.Variable.Name
	}
	return names
}

const (
	timeDim    = "time"
	timeBounds = "time_bnds"
)

// Assemble decides the chunk shape of every variable: the discovered one
// when chunkMap has it, the store default otherwise. time_bnds always spans
// the whole time axis in a single chunk.
func Assemble(vars []dataset.Variable, chunkMap map[string][]int) (Plan, error) {
	timeLen := -1
	for _, v := range vars {
		if v.Name == timeDim {
			timeLen = v.Len()
		}
	}
	if timeLen < 0 {
		return nil, errors.Errorf("no %s variable", timeDim)
	}

	plan := make(Plan, 0, len(vars))
	foundBounds := false
	for _, v := range vars {
		chunks := chunkShape(v, chunkMap[v.Name])
		if v.Name == timeBounds {
			foundBounds = true
			axis := indexOf(v.Dims, timeDim)
			if axis < 0 {
				return nil, errors.Errorf("%s has no %s dimension", timeBounds, timeDim)
			}
			chunks[axis] = max(timeLen, 1)
		}
		plan = append(plan, Array{Variable: v, Chunks: chunks})
	}
	if !foundBounds {
		return nil, errors.Errorf("no %s variable", timeBounds)
	}
	return plan, nil
}

// chunkShape clamps a discovered chunk shape to the variable extent. An
// empty or mismatched shape falls back to the store default, so a large
// contiguous variable is split into several chunks where xarray's
// .chunk({}) would write a single one. Discovered
// shapes with extra trailing axes (the length axis of char variables) are
// truncated.
func chunkShape(v dataset.Variable, discovered []int) []int {
	if v.Rank() == 0 {
		return []int{}
	}
	if len(discovered) < v.Rank() {
		discovered = zarr.GuessChunks(v.Shape, v.DType.Size())
	}
	chunks := make([]int, v.Rank())
	for i := range chunks {
		chunks[i] = max(1, min(discovered[i], v.Shape[i]))
	}
	return chunks
}

func indexOf(values []string, s string) int {
	for i, v := range values {
		if v == s {
			return i
		}
	}
	return -1
}
