package zarrexport

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocloud.dev/blob"

	"github.com/zequihg50/IPCC-Atlas-Datalab/internal/dataset"
	"github.com/zequihg50/IPCC-Atlas-Datalab/zarr"
)

// Options tune an export run.
type Options struct {
	Scheduler Scheduler
	// Consolidated writes a .zmetadata document once every array is stored.
	Consolidated bool
	Log          logrus.FieldLogger
}

// Metadata builds the .zarray document of a planned array.
func Metadata(a Array, enc ArrayEncoding) *zarr.Metadata {
	v := a.Variable
	meta := &zarr.Metadata{
		ZarrFormat: 2,
		Shape:      append([]int{}, v.Shape...),
		Chunks:     append([]int{}, a.Chunks...),
		Compressor: enc.Compressor,
		FillValue:  fillValue(v),
		Order:      "C",
		Filters:    enc.Filters,
	}
	if v.DType == dataset.String {
		meta.DType = zarr.ObjectDType
	} else {
		meta.DType = zarr.FormatDType(v.DType.Kind(), v.DType.Size())
	}
	return meta
}

// exporter serializes source reads; the source is not safe for concurrent
// use.
type exporter struct {
	src dataset.Source
	mu  sync.Mutex
}

func (e *exporter) read(v dataset.Variable, start, count []int) (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v.Rank() == 0 {
		return e.src.Read(v.Name)
	}
	return e.src.ReadRegion(v.Name, start, count)
}

func (e *exporter) chunkTask(w *zarr.ArrayWriter, v dataset.Variable, coords []int) Task {
	return func(ctx context.Context) error {
		meta := w.Metadata()
		start, count := zarr.ChunkRange(meta.Shape, meta.Chunks, coords)
		values, err := e.read(v, start, count)
		if err != nil {
			return errors.Wrapf(err, "failed to read %s chunk %v", v.Name, coords)
		}
		if strs, ok := values.([]string); ok {
			return errors.Wrapf(w.WriteStringChunk(ctx, coords, strs), "array %s", v.Name)
		}
		data, err := dataset.LittleEndian(values)
		if err != nil {
			return errors.Wrapf(err, "array %s", v.Name)
		}
		return errors.Wrapf(w.WriteChunk(ctx, coords, data), "array %s", v.Name)
	}
}

// Export writes src to bucket as a Zarr group following plan and enc: the
// root .zgroup and .zattrs, every array with its attributes and chunks, and
// the consolidated metadata when requested. Chunks are encoded and written
// by the scheduler.
func Export(ctx context.Context, src dataset.Source, plan Plan, enc Encoding, bucket *blob.Bucket, opts Options) error {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	if err := zarr.WriteGroup(ctx, bucket, "", attributeMap(src.Attributes())); err != nil {
		return errors.Wrap(err, "failed to write root group")
	}

	e := &exporter{src: src}
	var tasks []Task
	for _, a := range plan {
		name := a.Variable.Name
		ae, ok := enc[name]
		if !ok {
			return errors.Errorf("no encoding for array %s", name)
		}
		w, err := zarr.CreateArray(ctx, bucket, name, Metadata(a, ae))
		if err != nil {
			return err
		}
		attrs := attributeMap(a.Variable.Attrs, fillValueAttr)
		attrs[dimensionsAttr] = append([]string{}, a.Variable.Dims...)
		if err := w.SetAttributes(ctx, attrs); err != nil {
			return errors.Wrapf(err, "array %s", name)
		}

		n := len(tasks)
		err = zarr.ForEachChunk(a.Variable.Shape, a.Chunks, func(coords []int) error {
			tasks = append(tasks, e.chunkTask(w, a.Variable, append([]int{}, coords...)))
			return nil
		})
		if err != nil {
			return err
		}
		log.WithFields(logrus.Fields{
			"array":  name,
			"chunks": a.Chunks,
		}).Debugf("zarr: %d chunks", len(tasks)-n)
	}

	if err := opts.Scheduler.Run(ctx, tasks); err != nil {
		return err
	}

	if opts.Consolidated {
		if err := zarr.ConsolidateMetadata(ctx, bucket); err != nil {
			return errors.Wrap(err, "failed to consolidate metadata")
		}
	}
	log.WithField("file", src.Path()).Infof("zarr: wrote %d arrays, %d chunks", len(plan), len(tasks))
	return nil
}
