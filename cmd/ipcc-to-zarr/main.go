// Command ipcc-to-zarr copies a NetCDF file into a Zarr v2 store, keeping
// the chunking of the file.
//
//	ipcc-to-zarr <input_path> <output_store>
//
// The store is a local directory or a bucket URL (file://, s3://, gs://).
package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/zequihg50/IPCC-Atlas-Datalab/internal/cli"
	"github.com/zequihg50/IPCC-Atlas-Datalab/internal/config"
	"github.com/zequihg50/IPCC-Atlas-Datalab/internal/nc4"
	"github.com/zequihg50/IPCC-Atlas-Datalab/internal/ncsource"
	"github.com/zequihg50/IPCC-Atlas-Datalab/internal/zarrexport"
	"github.com/zequihg50/IPCC-Atlas-Datalab/zarr"
)

type converter struct {
	inspector zarrexport.ChunkInspector
}

func (c converter) run(ctx context.Context, cfg config.Config, log *logrus.Logger, input, output string) error {
	chunks, err := c.inspector.ChunkShapes(input)
	if err != nil {
		return err
	}

	src, err := ncsource.Open(input)
	if err != nil {
		return err
	}
	defer src.Close()

	plan, err := zarrexport.Assemble(src.Variables(), chunks)
	if err != nil {
		return errors.Wrap(err, input)
	}
	enc, err := zarrexport.BuildEncoding(plan, cfg.Zarr.Codec(), cfg.Zarr.Shuffle)
	if err != nil {
		return err
	}

	bucket, err := zarr.OpenStore(ctx, output)
	if err != nil {
		return err
	}
	defer bucket.Close()

	opts := zarrexport.Options{
		Scheduler:    zarrexport.Scheduler{Workers: cfg.Zarr.Workers},
		Consolidated: cfg.Zarr.Consolidated,
		Log:          log,
	}
	if err := zarrexport.Export(ctx, src, plan, enc, bucket, opts); err != nil {
		return errors.Wrapf(err, "failed to export %s", input)
	}
	if cfg.Zarr.Verify {
		if err := zarrexport.Verify(ctx, src, bucket, plan); err != nil {
			return errors.Wrapf(err, "verification of %s failed", output)
		}
		log.Infof("Verified %d arrays", len(plan))
	}
	return nil
}

func newCommand(inspector zarrexport.ChunkInspector) *cobra.Command {
	v := config.New()
	cmd := cli.NewCommand("ipcc-to-zarr", "Export a NetCDF file to a Zarr store", v, converter{inspector: inspector}.run)

	flags := cmd.Flags()
	flags.Int("workers", 0, "concurrent chunk writers (default: one per CPU)")
	flags.Bool("verify", false, "read the store back and compare it with the source")
	flags.String("compressor", "zlib", "chunk compressor (zlib, gzip, zstd)")
	flags.Int("level", 9, "compression level")
	cli.Bind(v, flags, map[string]string{
		"zarr.workers":    "workers",
		"zarr.verify":     "verify",
		"zarr.compressor": "compressor",
		"zarr.level":      "level",
	})
	return cmd
}

func main() {
	cli.Main(newCommand(nc4.Inspector{}))
}
