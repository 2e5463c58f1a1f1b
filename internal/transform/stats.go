// Package transform computes the shared statistics, percentile, and
// value-range logic used by every source's raw-to-TimeSeries pipeline
// (§4.3): one uniform Stats/Compress pass regardless of which delta
// rule produced the series values.
package transform

import (
	"math"
	"sort"

	"github.com/dmitriimaksimovdevelop/aperf/internal/model"
)

// Stats computes min/max/avg/p50/p90/p99 over values. When skipFirst
// is set (cumulative-delta metrics whose first sample is forced to
// zero) index 0 is excluded from the computation.
func Stats(values []float64, skipFirst bool) model.Statistics {
	sample := values
	if skipFirst && len(values) > 0 {
		sample = values[1:]
	}
	if len(sample) == 0 {
		return model.Statistics{}
	}

	sorted := make([]float64, len(sample))
	copy(sorted, sample)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	return model.Statistics{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: Percentile(sorted, 0.50),
		P90: Percentile(sorted, 0.90),
		P99: Percentile(sorted, 0.99),
	}
}

// Percentile returns the p-th percentile (0..1) of an already-sorted
// slice using linear interpolation between the two nearest ranks.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ValueRange derives (floor(min), ceil(max)) from observed values, or
// returns override unchanged when the source knows its range
// precisely (e.g. 0..100 for CPU percentages).
func ValueRange(values []float64, override *model.ValueRange) model.ValueRange {
	if override != nil {
		return *override
	}
	if len(values) == 0 {
		return model.ValueRange{}
	}
	min, max := values[0], values[0]
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return model.ValueRange{Min: math.Floor(min), Max: math.Ceil(max)}
}

// Compress applies the flat-metric compression rule: when a metric's
// computed stats show both min==0 and max==0, every series is reduced
// to its first and last points only.
func Compress(m *model.Metric) {
	if m.Stats.Min != 0 || m.Stats.Max != 0 {
		return
	}
	for i := range m.Series {
		s := &m.Series[i]
		if len(s.Values) <= 2 {
			continue
		}
		last := len(s.Values) - 1
		s.TimeDiff = []uint64{s.TimeDiff[0], s.TimeDiff[last]}
		s.Values = []float64{s.Values[0], s.Values[last]}
	}
}
