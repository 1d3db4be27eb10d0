package ingestions

import (
	"errors"
	"fmt"
	"math"
	"quantiles/concurrency"
)

var ErrInvalidObservation = errors.New("invalid observation")

// Observation is a single measured value of a series. Source groups
// observations that should land on the same shard, like a trace id.
type Observation struct {
	Series string
	Source string
	Value  float64
	Weight float64
}

// GetShardingKey falls back to the series, a nil key would broadcast.
func (o Observation) GetShardingKey() concurrency.ShardingKey {
	if len(o.Source) == 0 {
		return concurrency.ShardingKey(o.Series)
	}
	return concurrency.ShardingKey(o.Source)
}

// weight defaults to one when unset
func (o Observation) weight() float64 {
	if o.Weight == 0 {
		return 1
	}
	return o.Weight
}

func (o Observation) Validate() error {
	if len(o.Series) == 0 {
		return fmt.Errorf("%w: series is empty", ErrInvalidObservation)
	}
	if math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
		return fmt.Errorf("%w: value of %s must be finite, got %v", ErrInvalidObservation, o.Series, o.Value)
	}
	if math.IsNaN(o.Weight) || math.IsInf(o.Weight, 0) || o.Weight < 0 {
		return fmt.Errorf("%w: weight of %s must be positive, got %v", ErrInvalidObservation, o.Series, o.Weight)
	}
	return nil
}
