package zarr

import (
	"math"
	"strconv"
	"strings"
)

// Default chunk sizing bounds, in bytes. They match the ones zarr-python uses
// when an array is created without an explicit chunk shape.
const (
	chunkBase = 256 * 1024
	chunkMin  = 128 * 1024
	chunkMax  = 64 * 1024 * 1024
)

// GridShape calculates the number of chunks in each dimension.
// For each dimension i, the number of chunks is ceil(shape[i] / chunks[i]).
func GridShape(shape, chunks []int) []int {
	if len(shape) == 0 || len(chunks) == 0 {
		return []int{} // 0D scalar
	}
	grid := make([]int, len(shape))
	for i := range shape {
		if chunks[i] <= 0 {
			continue
		}
		grid[i] = (shape[i] + chunks[i] - 1) / chunks[i]
	}
	return grid
}

// ChunkKey generates the key for a chunk given its indices and a separator.
// For Zarr V2, the separator is typically ".".
// Example: indices=[1, 4], separator="." -> "1.4"
// For 0D arrays (empty indices), it returns "0" as Zarr v2 stores do.
func ChunkKey(indices []int, separator string) string {
	if len(indices) == 0 {
		return "0"
	}

	if len(indices) == 1 {
		return strconv.Itoa(indices[0])
	}

	var sb strings.Builder
	for i, idx := range indices {
		if i > 0 {
			sb.WriteString(separator)
		}
		sb.WriteString(strconv.Itoa(idx))
	}
	return sb.String()
}

// GuessChunks picks a chunk shape for an array of the given shape and item
// size when none is requested. The target chunk size grows with the array size
// and stays between 128KiB and 64MiB; axes are halved round-robin until the
// chunk fits.
func GuessChunks(shape []int, itemSize int) []int {
	ndims := len(shape)
	if ndims == 0 {
		return []int{}
	}
	if itemSize <= 0 {
		itemSize = 1
	}

	chunks := make([]float64, ndims)
	datasetSize := float64(itemSize)
	for i, n := range shape {
		chunks[i] = math.Max(float64(n), 1)
		datasetSize *= chunks[i]
	}

	target := chunkBase * math.Pow(2, math.Log10(datasetSize/(1024*1024)))
	if target > chunkMax {
		target = chunkMax
	} else if target < chunkMin {
		target = chunkMin
	}

	product := func() float64 {
		p := 1.0
		for _, c := range chunks {
			p *= c
		}
		return p
	}

	for idx := 0; ; idx++ {
		chunkBytes := product() * float64(itemSize)
		if (chunkBytes < target || math.Abs(chunkBytes-target)/target < 0.5) && chunkBytes < chunkMax {
			break
		}
		if product() == 1 {
			break
		}
		chunks[idx%ndims] = math.Ceil(chunks[idx%ndims] / 2)
	}

	out := make([]int, ndims)
	for i, c := range chunks {
		out[i] = int(c)
	}
	return out
}

// ChunkRange returns the start offset and the number of valid elements of the
// chunk at coords, clipped to the array shape.
func ChunkRange(shape, chunks, coords []int) (start, count []int) {
	start = make([]int, len(shape))
	count = make([]int, len(shape))
	for i := range shape {
		start[i] = coords[i] * chunks[i]
		end := min(start[i]+chunks[i], shape[i])
		count[i] = end - start[i]
	}
	return start, count
}

// iterateGrid iterates from start (inclusive) to end (exclusive) in each dimension.
func iterateGrid(start, end []int, fn func(indices []int) error) error {
	if len(start) == 0 {
		return fn([]int{})
	}
	for i := range start {
		if start[i] >= end[i] {
			return nil
		}
	}
	indices := make([]int, len(start))
	copy(indices, start)

	for {
		if err := fn(indices); err != nil {
			return err
		}

		i := len(start) - 1
		for ; i >= 0; i-- {
			indices[i]++
			if indices[i] < end[i] {
				break
			}
			indices[i] = start[i]
		}
		if i < 0 {
			break
		}
	}
	return nil
}

// ForEachChunk calls fn with the coordinates of every chunk of an array, in
// C order. The slice passed to fn is reused between calls.
func ForEachChunk(shape, chunks []int, fn func(coords []int) error) error {
	grid := GridShape(shape, chunks)
	return iterateGrid(make([]int, len(grid)), grid, fn)
}
