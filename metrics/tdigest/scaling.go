package tdigest

// SizeBound limits how much weight a centroid may hold depending on where it
// sits in the distribution. The bound vanishes at the tails and peaks at the
// median, which keeps extreme quantiles sharp.
type SizeBound struct {
	accuracy float64
}

func NewSizeBound(accuracy float64) *SizeBound {
	return &SizeBound{
		accuracy: accuracy,
	}
}

func (s *SizeBound) MaxWeight(quantile float64, totalWeight float64) float64 {
	return 4 * totalWeight * s.accuracy * quantile * (1 - quantile)
}
