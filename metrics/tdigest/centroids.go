package tdigest

import (
	"iter"
	"sort"
)

// Centroid is the mean of near values together with the weight it absorbed.
type Centroid struct {
	Mean  float64
	Count float64
}

type CentroidList []Centroid

func (l CentroidList) Swap(i, j int) {
	l[i], l[j] = l[j], l[i]
}

// Centroids holds centroids in stable slots and keeps a separate index of
// slots sorted by mean. A centroid whose mean changes is removed from the
// index and inserted again under its new mean.
type Centroids struct {
	slots       []Centroid
	freeSlots   []int
	index       []indexEntry
	totalWeight float64
}

type indexEntry struct {
	mean float64
	slot int
}

func NewCentroids(capacity int) *Centroids {
	return &Centroids{
		slots: make([]Centroid, 0, capacity),
		index: make([]indexEntry, 0, capacity),
	}
}

func (c *Centroids) Size() int {
	return len(c.index)
}

func (c *Centroids) TotalWeight() float64 {
	return c.totalWeight
}

// position returns the index position of the first mean >= mean.
func (c *Centroids) position(mean float64) int {
	return sort.Search(len(c.index), func(i int) bool {
		return c.index[i].mean >= mean
	})
}

func (c *Centroids) at(position int) Centroid {
	return c.slots[c.index[position].slot]
}

// Insert stores a new centroid. It refuses a mean that is already present.
func (c *Centroids) Insert(mean float64, count float64) bool {
	position := c.position(mean)
	if position < len(c.index) && c.index[position].mean == mean {
		return false
	}

	slot := c.allocate(Centroid{Mean: mean, Count: count})
	c.index = append(c.index, indexEntry{})
	copy(c.index[position+1:], c.index[position:])
	c.index[position] = indexEntry{mean: mean, slot: slot}
	c.totalWeight += count
	return true
}

func (c *Centroids) allocate(centroid Centroid) int {
	if n := len(c.freeSlots); n > 0 {
		slot := c.freeSlots[n-1]
		c.freeSlots = c.freeSlots[:n-1]
		c.slots[slot] = centroid
		return slot
	}
	c.slots = append(c.slots, centroid)
	return len(c.slots) - 1
}

func (c *Centroids) Remove(mean float64) (Centroid, bool) {
	position := c.position(mean)
	if position >= len(c.index) || c.index[position].mean != mean {
		return Centroid{}, false
	}

	slot := c.index[position].slot
	removed := c.slots[slot]
	c.slots[slot] = Centroid{}
	c.freeSlots = append(c.freeSlots, slot)
	c.index = append(c.index[:position], c.index[position+1:]...)
	c.totalWeight -= removed.Count
	return removed, true
}

func (c *Centroids) Get(mean float64) (Centroid, bool) {
	position := c.position(mean)
	if position >= len(c.index) || c.index[position].mean != mean {
		return Centroid{}, false
	}
	return c.at(position), true
}

// Ceiling finds the centroid with the smallest mean >= mean.
func (c *Centroids) Ceiling(mean float64) (Centroid, bool) {
	position := c.position(mean)
	if position >= len(c.index) {
		return Centroid{}, false
	}
	return c.at(position), true
}

// Higher finds the centroid with the smallest mean > mean.
func (c *Centroids) Higher(mean float64) (Centroid, bool) {
	position := sort.Search(len(c.index), func(i int) bool {
		return c.index[i].mean > mean
	})
	if position >= len(c.index) {
		return Centroid{}, false
	}
	return c.at(position), true
}

// Floor finds the centroid with the largest mean <= mean.
func (c *Centroids) Floor(mean float64) (Centroid, bool) {
	position := sort.Search(len(c.index), func(i int) bool {
		return c.index[i].mean > mean
	})
	if position == 0 {
		return Centroid{}, false
	}
	return c.at(position - 1), true
}

// Lower finds the centroid with the largest mean < mean.
func (c *Centroids) Lower(mean float64) (Centroid, bool) {
	position := c.position(mean)
	if position == 0 {
		return Centroid{}, false
	}
	return c.at(position - 1), true
}

func (c *Centroids) First() (Centroid, bool) {
	if len(c.index) == 0 {
		return Centroid{}, false
	}
	return c.at(0), true
}

func (c *Centroids) Last() (Centroid, bool) {
	if len(c.index) == 0 {
		return Centroid{}, false
	}
	return c.at(len(c.index) - 1), true
}

// WeightBelow sums the weight of all centroids with mean strictly below mean.
func (c *Centroids) WeightBelow(mean float64) float64 {
	weight := 0.0
	for _, entry := range c.index {
		if entry.mean >= mean {
			break
		}
		weight += c.slots[entry.slot].Count
	}
	return weight
}

// Absorb moves delta weight of value into the centroid stored under mean and
// re-indexes it under its new mean. When the new mean collides with another
// centroid both are folded into one.
func (c *Centroids) Absorb(mean float64, value float64, delta float64) (Centroid, bool) {
	centroid, found := c.Remove(mean)
	if !found {
		return Centroid{}, false
	}

	centroid.Mean += delta * (value - centroid.Mean) / (centroid.Count + delta)
	centroid.Count += delta
	return c.put(centroid), true
}

// AddOrMerge inserts a centroid, or adds its weight to an existing centroid
// with exactly the same mean.
func (c *Centroids) AddOrMerge(mean float64, count float64) Centroid {
	return c.put(Centroid{Mean: mean, Count: count})
}

func (c *Centroids) put(centroid Centroid) Centroid {
	position := c.position(centroid.Mean)
	if position < len(c.index) && c.index[position].mean == centroid.Mean {
		slot := c.index[position].slot
		c.slots[slot].Count += centroid.Count
		c.totalWeight += centroid.Count
		return c.slots[slot]
	}
	c.Insert(centroid.Mean, centroid.Count)
	return centroid
}

// All iterates centroids in ascending order of mean.
func (c *Centroids) All() iter.Seq[Centroid] {
	return func(yield func(Centroid) bool) {
		for _, entry := range c.index {
			if !yield(c.slots[entry.slot]) {
				return
			}
		}
	}
}

func (c *Centroids) ToList() []Centroid {
	list := make([]Centroid, 0, c.Size())
	for centroid := range c.All() {
		list = append(list, centroid)
	}
	return list
}
