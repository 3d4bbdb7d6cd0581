package zarrexport

import (
	"bytes"
	"context"

	"github.com/pkg/errors"
	"gocloud.dev/blob"

	"github.com/zequihg50/IPCC-Atlas-Datalab/internal/dataset"
	"github.com/zequihg50/IPCC-Atlas-Datalab/zarr"
)

// Verify reads back every array of plan from bucket and compares it with
// the source values.
func Verify(ctx context.Context, src dataset.Source, bucket *blob.Bucket, plan Plan) error {
	for _, a := range plan {
		if err := verifyArray(ctx, src, bucket, a.Variable); err != nil {
			return errors.Wrapf(err, "array %s", a.Variable.Name)
		}
	}
	return nil
}

func verifyArray(ctx context.Context, src dataset.Source, bucket *blob.Bucket, v dataset.Variable) error {
	r, err := zarr.OpenArray(ctx, bucket, v.Name)
	if err != nil {
		return err
	}
	defer r.Close()

	want, err := src.Read(v.Name)
	if err != nil {
		return err
	}

	if r.Metadata().IsObject() {
		got, err := r.ReadStrings(ctx)
		if err != nil {
			return err
		}
		strs, ok := want.([]string)
		if !ok || len(strs) != len(got) {
			return errors.New("string values differ from source")
		}
		for i := range strs {
			if strs[i] != got[i] {
				return errors.Errorf("element %d is %q, source has %q", i, got[i], strs[i])
			}
		}
		return nil
	}

	wantBytes, err := dataset.LittleEndian(want)
	if err != nil {
		return err
	}
	got, err := r.ReadFull(ctx)
	if err != nil {
		return err
	}
	if !bytes.Equal(got, wantBytes) {
		return errors.Errorf("stored bytes differ from source (%d vs %d bytes)", len(got), len(wantBytes))
	}
	return nil
}
