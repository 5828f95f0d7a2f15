// Package config holds process-wide defaults read from the environment and
// typed accessors for the free-form argument maps found in model documents.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/luchador-ml/luchador/internal/tensor"
)

// Environment variables.
const (
	EnvDType      = "LUCHADOR_NN_DTYPE"
	EnvConvFormat = "LUCHADOR_NN_CONV_FORMAT"
	EnvDebugCache = "LUCHADOR_DEBUG_CACHE"
)

// Convolution data formats.
const (
	NCHW = "NCHW"
	NHWC = "NHWC"
)

// Config holds framework defaults.
type Config struct {
	// DType is the default element type of inputs and variables.
	DType tensor.DataType
	// ConvFormat is the data layout image layers expect.
	ConvFormat string
	// DebugCache makes sessions reject cache hits whose request differs
	// from the one the cached function was compiled for.
	DebugCache bool
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{DType: tensor.Float32, ConvFormat: NCHW}
}

// FromEnv returns Default overridden by the environment.
func FromEnv() (Config, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if v, ok := lookup(EnvDType); ok && v != "" {
		dt, err := tensor.ParseDataType(strings.ToLower(v))
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvDType, err)
		}
		cfg.DType = dt
	}
	if v, ok := lookup(EnvConvFormat); ok && v != "" {
		cfg.ConvFormat = strings.ToUpper(v)
	}
	if v, ok := lookup(EnvDebugCache); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvDebugCache, err)
		}
		cfg.DebugCache = b
	}
	return cfg, cfg.Validate()
}

// Validate checks field values.
func (c Config) Validate() error {
	if !c.DType.IsFloat() {
		return fmt.Errorf("default dtype must be a float type, got %s", c.DType)
	}
	if c.ConvFormat != NCHW && c.ConvFormat != NHWC {
		return fmt.Errorf("conv format must be %s or %s, got %q", NCHW, NHWC, c.ConvFormat)
	}
	return nil
}

// Version is the framework version recorded in checkpoints and printed by
// the CLI.
const Version = "0.1.0"
