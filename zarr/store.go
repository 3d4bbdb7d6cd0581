package zarr

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
)

// OpenStore opens the bucket holding a store. target is either a bucket URL
// (file://, mem://, s3://, gs://, ...) or a local directory, which is
// created when missing. Provider packages other than fileblob and memblob
// must be linked in by the caller.
func OpenStore(ctx context.Context, target string) (*blob.Bucket, error) {
	if strings.Contains(target, "://") {
		bucket, err := blob.OpenBucket(ctx, target)
		return bucket, errors.Wrapf(err, "failed to open store %s", target)
	}

	abs, err := filepath.Abs(target)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid store path %s", target)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create store %s", abs)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: "metadata=skip"}
	bucket, err := blob.OpenBucket(ctx, u.String())
	return bucket, errors.Wrapf(err, "failed to open store %s", abs)
}
