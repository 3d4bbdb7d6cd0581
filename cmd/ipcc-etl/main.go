// Command ipcc-etl rewrites an ensemble NetCDF file into the CMIP-style
// NetCDF4 layout used by the IPCC Atlas.
//
//	ipcc-etl <input_path> <output_path>
package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zequihg50/IPCC-Atlas-Datalab/internal/cli"
	"github.com/zequihg50/IPCC-Atlas-Datalab/internal/config"
	"github.com/zequihg50/IPCC-Atlas-Datalab/internal/nc4"
	"github.com/zequihg50/IPCC-Atlas-Datalab/internal/ncsource"
	"github.com/zequihg50/IPCC-Atlas-Datalab/internal/restructure"
)

func restructureFile(_ context.Context, _ config.Config, log *logrus.Logger, input, output string) (err error) {
	src, err := ncsource.Open(input)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := nc4.Create(output)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := dst.Close(); err == nil {
			err = cerr
		}
	}()

	p := restructure.NewProcessor(src, dst, log)
	if err := p.Process(); err != nil {
		return errors.Wrapf(err, "failed to restructure %s", input)
	}
	stats := p.Stats()
	log.WithFields(logrus.Fields{
		"variables": stats.Variables,
		"gridded":   stats.Gridded,
		"fallbacks": stats.Fallbacks,
	}).Infof("Wrote %s", output)
	return nil
}

func newCommand() *cobra.Command {
	return cli.NewCommand("ipcc-etl", "Restructure an ensemble NetCDF file", config.New(), restructureFile)
}

func main() {
	cli.Main(newCommand())
}
