// Package cli holds the command plumbing shared by the converters: two
// positional paths, layered configuration and a logrus logger on stderr.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/zequihg50/IPCC-Atlas-Datalab/internal/config"
	"github.com/zequihg50/IPCC-Atlas-Datalab/internal/logging"
)

// Runner converts input into output.
type Runner func(ctx context.Context, cfg config.Config, log *logrus.Logger, input, output string) error

// NewCommand builds a command taking exactly an input and an output path.
// Flags of the command are bound to the config keys of v.
func NewCommand(use, short string, v *viper.Viper, run Runner) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:           use + " <input> <output>",
		Short:         short,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}
			log, err := logging.New(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			input, output := args[0], args[1]
			log.Infof("Input: %s, Output: %s", input, output)
			return run(cmd.Context(), cfg, log, input, output)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "YAML configuration file")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	Bind(v, flags, map[string]string{
		"log.level":  "log-level",
		"log.format": "log-format",
	})
	return cmd
}

// Bind binds config keys to the named flags. It panics on unknown flags.
func Bind(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		f := flags.Lookup(name)
		if f == nil {
			panic(fmt.Sprintf("no flag %s", name))
		}
		if err := v.BindPFlag(key, f); err != nil {
			panic(errors.Wrapf(err, "failed to bind %s", name))
		}
	}
}

// Main runs cmd and exits with status 1 after printing the error with its
// stack trace.
func Main(cmd *cobra.Command) {
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}
