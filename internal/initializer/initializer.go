// Package initializer samples the starting values of variables.
package initializer

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/luchador-ml/luchador/internal/config"
	"github.com/luchador-ml/luchador/internal/graph"
	"github.com/luchador-ml/luchador/internal/tensor"
)

// Initializer samples an array of the requested shape and can describe
// itself as a Config.
type Initializer interface {
	Sample(shape tensor.Shape, dtype tensor.DataType) (*tensor.Array, error)
	Config() Config
}

// Config is the serialized form of an Initializer.
type Config struct {
	Typename string      `yaml:"typename" json:"typename"`
	Args     config.Args `yaml:"args,omitempty" json:"args,omitempty"`
}

var (
	globalMu   sync.Mutex
	globalRand = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // weight initialization is not security-critical
)

// SetRandomSeed reseeds the generator used by initializers without a seed.
func SetRandomSeed(seed int64) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalRand = rand.New(rand.NewSource(seed)) //nolint:gosec // weight initialization is not security-critical
}

// newRand returns a generator for seed, or one drawn from the global
// generator when seed is 0.
func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		globalMu.Lock()
		seed = globalRand.Int63()
		globalMu.Unlock()
	}
	return rand.New(rand.NewSource(seed)) //nolint:gosec // weight initialization is not security-critical
}

func fill(shape tensor.Shape, dtype tensor.DataType, next func() float64) (*tensor.Array, error) {
	data := make([]float64, shape.NumElements())
	for i := range data {
		data[i] = next()
	}
	return tensor.FromSliceAs(data, shape, dtype)
}

// Constant fills every element with Value.
type Constant struct {
	Value float64
}

// Sample implements Initializer.
func (c Constant) Sample(shape tensor.Shape, dtype tensor.DataType) (*tensor.Array, error) {
	return tensor.Full(shape, dtype, c.Value)
}

// Config implements Initializer.
func (c Constant) Config() Config {
	return Config{Typename: "Constant", Args: config.Args{"value": c.Value}}
}

// Uniform samples from U(Min, Max).
type Uniform struct {
	Min, Max float64
	Seed     int64
}

// Sample implements Initializer.
func (u Uniform) Sample(shape tensor.Shape, dtype tensor.DataType) (*tensor.Array, error) {
	if u.Min > u.Max {
		return nil, fmt.Errorf("uniform: min %v is greater than max %v", u.Min, u.Max)
	}
	rng := newRand(u.Seed)
	return fill(shape, dtype, func() float64 { return u.Min + rng.Float64()*(u.Max-u.Min) })
}

// Config implements Initializer.
func (u Uniform) Config() Config {
	return Config{Typename: "Uniform", Args: config.Args{"min_value": u.Min, "max_value": u.Max, "seed": u.Seed}}
}

// Normal samples from N(Mean, Stddev²).
type Normal struct {
	Mean, Stddev float64
	Seed         int64
}

// Sample implements Initializer.
func (n Normal) Sample(shape tensor.Shape, dtype tensor.DataType) (*tensor.Array, error) {
	if n.Stddev < 0 {
		return nil, fmt.Errorf("normal: negative stddev %v", n.Stddev)
	}
	rng := newRand(n.Seed)
	return fill(shape, dtype, func() float64 { return n.Mean + rng.NormFloat64()*n.Stddev })
}

// Config implements Initializer.
func (n Normal) Config() Config {
	return Config{Typename: "Normal", Args: config.Args{"mean": n.Mean, "stddev": n.Stddev, "seed": n.Seed}}
}

// Xavier scales by the average fan of a 2D or 4D weight.
type Xavier struct {
	Uniform bool
	Seed    int64
}

// Sample implements Initializer.
func (x Xavier) Sample(shape tensor.Shape, dtype tensor.DataType) (*tensor.Array, error) {
	if len(shape) != 2 && len(shape) != 4 {
		return nil, fmt.Errorf("xavier: expected a 2D or 4D shape, got %v", shape)
	}
	fanAve := 0.5 * float64(shape[0]+shape[1]) * float64(receptive(shape))
	return scaled(shape, dtype, 1/math.Sqrt(fanAve), x.Uniform, x.Seed)
}

// Config implements Initializer.
func (x Xavier) Config() Config {
	return Config{Typename: "Xavier", Args: config.Args{"uniform": x.Uniform, "seed": x.Seed}}
}

// Kaiming scales by the fan-in of a 2D or 4D weight.
type Kaiming struct {
	Uniform bool
	Seed    int64
}

// Sample implements Initializer.
func (k Kaiming) Sample(shape tensor.Shape, dtype tensor.DataType) (*tensor.Array, error) {
	var fanIn int
	switch len(shape) {
	case 2:
		fanIn = shape[0]
	case 4:
		fanIn = shape[1] * shape[2] * shape[3]
	default:
		return nil, fmt.Errorf("kaiming: expected a 2D or 4D shape, got %v", shape)
	}
	return scaled(shape, dtype, 1/math.Sqrt(float64(fanIn)), k.Uniform, k.Seed)
}

// Config implements Initializer.
func (k Kaiming) Config() Config {
	return Config{Typename: "Kaiming", Args: config.Args{"uniform": k.Uniform, "seed": k.Seed}}
}

func receptive(shape tensor.Shape) int {
	if len(shape) == 4 {
		return shape[2] * shape[3]
	}
	return 1
}

// scaled samples values with the given standard deviation, either from a
// uniform distribution or from a normal truncated at two deviations.
func scaled(shape tensor.Shape, dtype tensor.DataType, stddev float64, uniform bool, seed int64) (*tensor.Array, error) {
	rng := newRand(seed)
	if uniform {
		bound := math.Sqrt(3) * stddev
		return fill(shape, dtype, func() float64 { return (rng.Float64()*2 - 1) * bound })
	}
	scale := math.Sqrt(1.3) * stddev
	return fill(shape, dtype, func() float64 {
		for {
			v := rng.NormFloat64()
			if v >= -2 && v <= 2 {
				return v * scale
			}
		}
	})
}

// Make builds an Initializer from its Config.
func Make(cfg Config) (Initializer, error) {
	args := cfg.Args
	var (
		init Initializer
		err  error
	)
	switch cfg.Typename {
	case "Constant":
		var c Constant
		c.Value, err = args.Float("value", 0)
		init = c
	case "Uniform":
		var u Uniform
		if u.Min, err = args.Float("min_value", 0); err == nil {
			if u.Max, err = args.Float("max_value", 1); err == nil {
				u.Seed, err = seedArg(args)
			}
		}
		init = u
	case "Normal":
		var n Normal
		if n.Mean, err = args.Float("mean", 0); err == nil {
			if n.Stddev, err = args.Float("stddev", 1); err == nil {
				n.Seed, err = seedArg(args)
			}
		}
		init = n
	case "Xavier":
		var x Xavier
		if x.Uniform, err = args.Bool("uniform", true); err == nil {
			x.Seed, err = seedArg(args)
		}
		init = x
	case "Kaiming":
		var k Kaiming
		if k.Uniform, err = args.Bool("uniform", true); err == nil {
			k.Seed, err = seedArg(args)
		}
		init = k
	case "":
		return nil, errors.Wrap(graph.ErrConfiguration, "initializer typename is missing")
	default:
		return nil, errors.Wrapf(graph.ErrConfiguration, "unknown initializer %q", cfg.Typename)
	}
	if err != nil {
		return nil, errors.Wrapf(graph.ErrConfiguration, "initializer %s: %v", cfg.Typename, err)
	}
	return init, nil
}

// FromArgs builds an Initializer from a decoded {typename, args} mapping.
func FromArgs(m config.Args) (Initializer, error) {
	typename, err := m.String("typename", "")
	if err != nil {
		return nil, errors.Wrapf(graph.ErrConfiguration, "initializer: %v", err)
	}
	args, err := m.Map("args")
	if err != nil {
		return nil, errors.Wrapf(graph.ErrConfiguration, "initializer %s: %v", typename, err)
	}
	return Make(Config{Typename: typename, Args: args})
}

func seedArg(args config.Args) (int64, error) {
	seed, err := args.Int("seed", 0)
	return int64(seed), err
}
