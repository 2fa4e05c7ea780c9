package stats

import "math"

// Welford tracks the running mean and variance of a multiset of values that
// supports removal as well as insertion.
type Welford struct {
	count int64
	mean  float64
	m2    float64
}

func NewWelford() *Welford {
	return &Welford{}
}

func (welford *Welford) Update(value float64) {
	welford.count++
	delta := value - welford.mean
	welford.mean += delta / float64(welford.count)
	welford.m2 += delta * (value - welford.mean)
}

// Remove reverses a prior Update of value.
func (welford *Welford) Remove(value float64) {
	if welford.count <= 1 {
		welford.count, welford.mean, welford.m2 = 0, 0, 0
		return
	}
	welford.count--
	delta := value - welford.mean
	welford.mean -= delta / float64(welford.count)
	welford.m2 -= delta * (value - welford.mean)
	if welford.m2 < 0 {
		welford.m2 = 0
	}
}

func (welford *Welford) Count() int64 {
	return welford.count
}

func (welford *Welford) GetMean() float64 {
	return welford.mean
}

func (welford *Welford) GetVariance() float64 {
	if welford.count < 2 {
		return 0
	}
	return welford.m2 / float64(welford.count)
}

func (welford *Welford) GetSampleVariance() float64 {
	if welford.count < 2 {
		return 0
	}
	return welford.m2 / float64(welford.count-1)
}

func (welford *Welford) GetSD() float64 {
	return math.Sqrt(welford.GetSampleVariance())
}
