package tdigest

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	headerSize   = 6 * 8
	centroidSize = 2 * 8
)

// MarshalBinary writes the digest as little endian float64 fields: running
// mean, previous running mean, accuracy, compression constant, min, max and
// then a (mean, count) pair per centroid in ascending order.
func (d *TDigest) MarshalBinary() ([]byte, error) {
	data := make([]byte, 0, headerSize+d.centroids.Size()*centroidSize)
	data = appendFloat(data, d.average)
	data = appendFloat(data, d.previousAverage)
	data = appendFloat(data, d.accuracy)
	data = appendFloat(data, d.compressionConstant)
	data = appendFloat(data, d.min)
	data = appendFloat(data, d.max)
	for centroid := range d.centroids.All() {
		data = appendFloat(data, centroid.Mean)
		data = appendFloat(data, centroid.Count)
	}
	return data, nil
}

func appendFloat(data []byte, value float64) []byte {
	return binary.LittleEndian.AppendUint64(data, math.Float64bits(value))
}

// UnmarshalBinary replaces the digest state. The digest is left untouched
// when data is rejected.
func (d *TDigest) UnmarshalBinary(data []byte) error {
	decoded, err := decode(data)
	if err != nil {
		return err
	}
	decoded.randomizer = d.randomizer
	if decoded.randomizer == nil {
		decoded.randomizer = newRandomizer()
	}
	*d = *decoded
	return nil
}

// FromBytes decodes a digest written by MarshalBinary. Only the Randomizer
// option is honoured, accuracy and compression come from data.
func FromBytes(data []byte, opts ...Option) (*TDigest, error) {
	decoded, err := decode(data)
	if err != nil {
		return nil, err
	}

	cfg := config{
		accuracy:            decoded.accuracy,
		compressionConstant: decoded.compressionConstant,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.randomizer == nil {
		cfg.randomizer = newRandomizer()
	}
	decoded.randomizer = cfg.randomizer
	return decoded, nil
}

func decode(data []byte) (*TDigest, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: serialized digest is nil", ErrInvalidArgument)
	}
	if len(data) < headerSize || (len(data)-headerSize)%centroidSize != 0 {
		return nil, fmt.Errorf("%w: serialized digest has invalid length %d", ErrDataCorruption, len(data))
	}

	reader := floatReader{data: data}
	average := reader.next()
	previousAverage := reader.next()
	cfg := config{
		accuracy:            reader.next(),
		compressionConstant: reader.next(),
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataCorruption, err)
	}
	minimum := reader.next()
	maximum := reader.next()

	d := newDigest(cfg)
	d.average = average
	d.previousAverage = previousAverage
	d.min = minimum
	d.max = maximum

	previousMean := math.Inf(-1)
	for reader.remaining() > 0 {
		mean := reader.next()
		count := reader.next()
		if math.IsNaN(mean) || math.IsInf(mean, 0) || mean <= previousMean {
			return nil, fmt.Errorf("%w: centroid means are not strictly ascending at %v", ErrDataCorruption, mean)
		}
		if math.IsNaN(count) || math.IsInf(count, 0) || count <= 0 {
			return nil, fmt.Errorf("%w: centroid count must be positive, got %v", ErrDataCorruption, count)
		}
		d.centroids.Insert(mean, count)
		previousMean = mean
	}
	d.count = d.centroids.TotalWeight()
	return d, nil
}

type floatReader struct {
	data   []byte
	offset int
}

func (r *floatReader) next() float64 {
	value := math.Float64frombits(binary.LittleEndian.Uint64(r.data[r.offset:]))
	r.offset += 8
	return value
}

func (r *floatReader) remaining() int {
	return len(r.data) - r.offset
}
