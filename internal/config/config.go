// Package config loads the converter settings from defaults, an optional
// YAML file, IPCC_* environment variables and command line flags.
package config

import (
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/zequihg50/IPCC-Atlas-Datalab/zarr"
)

// EnvPrefix prefixes the environment variables, e.g. IPCC_ZARR_WORKERS.
const EnvPrefix = "IPCC"

// LogConfig selects the log level and format ("text" or "json").
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ZarrConfig tunes the Zarr export.
type ZarrConfig struct {
	Workers      int    `mapstructure:"workers"`
	Compressor   string `mapstructure:"compressor"`
	Level        int    `mapstructure:"level"`
	Shuffle      bool   `mapstructure:"shuffle"`
	Consolidated bool   `mapstructure:"consolidated"`
	Verify       bool   `mapstructure:"verify"`
}

// Codec returns the compressor configuration.
func (z ZarrConfig) Codec() zarr.CodecConfig {
	return zarr.CodecConfig{ID: z.Compressor, Level: z.Level}
}

type Config struct {
	Log  LogConfig  `mapstructure:"log"`
	Zarr ZarrConfig `mapstructure:"zarr"`
}

// New returns a viper instance with the defaults and the environment
// bindings set.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("zarr.workers", runtime.NumCPU())
	v.SetDefault("zarr.compressor", "zlib")
	v.SetDefault("zarr.level", 9)
	v.SetDefault("zarr.shuffle", true)
	v.SetDefault("zarr.consolidated", true)
	v.SetDefault("zarr.verify", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file into v when it is not empty and decodes the result.
func Load(v *viper.Viper, file string) (Config, error) {
	var cfg Config
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return cfg, errors.Wrapf(err, "failed to read config %s", file)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "failed to decode config")
	}
	if cfg.Zarr.Workers <= 0 {
		return cfg, errors.Errorf("zarr.workers must be positive, got %d", cfg.Zarr.Workers)
	}
	return cfg, nil
}
