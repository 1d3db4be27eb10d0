package tdigest

import (
	"fmt"
	"math"
	"math/rand/v2"
)

const (
	DefaultAccuracy            = 0.02
	DefaultCompressionConstant = 25.0
	MinCompressionConstant     = 15.0
)

type config struct {
	accuracy            float64
	compressionConstant float64
	randomizer          *rand.Rand
}

var defaultConfig = config{
	accuracy:            DefaultAccuracy,
	compressionConstant: DefaultCompressionConstant,
}

// Option configures a TDigest.
type Option func(*config)

// Accuracy sets the cluster size bound. Smaller values keep more centroids
// and give more precise quantiles.
func Accuracy(accuracy float64) Option {
	return func(c *config) {
		c.accuracy = accuracy
	}
}

// CompressionConstant together with the accuracy sets the number of
// centroids, compressionConstant/accuracy, tolerated before the digest
// recompacts itself.
func CompressionConstant(compressionConstant float64) Option {
	return func(c *config) {
		c.compressionConstant = compressionConstant
	}
}

// Randomizer sets the random source used for tie breaking and shuffling.
// A digest owns its randomizer, so it must not be shared between digests
// living on different goroutines.
func Randomizer(randomizer *rand.Rand) Option {
	return func(c *config) {
		c.randomizer = randomizer
	}
}

func newConfig(opts []Option) (config, error) {
	cfg := defaultConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	if cfg.randomizer == nil {
		cfg.randomizer = newRandomizer()
	}
	return cfg, nil
}

func newRandomizer() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

func (c config) validate() error {
	if math.IsNaN(c.accuracy) || math.IsInf(c.accuracy, 0) || c.accuracy <= 0 {
		return fmt.Errorf("%w: accuracy must be positive, got %v", ErrInvalidArgument, c.accuracy)
	}
	if math.IsNaN(c.compressionConstant) || math.IsInf(c.compressionConstant, 0) ||
		c.compressionConstant < MinCompressionConstant {
		return fmt.Errorf("%w: compression constant must be at least %v, got %v",
			ErrInvalidArgument, MinCompressionConstant, c.compressionConstant)
	}
	return nil
}
