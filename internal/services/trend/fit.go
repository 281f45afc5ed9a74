package trend

import "math"

// Fit is an ordinary least-squares line over a value series indexed 0..n-1.
type Fit struct {
	Slope     float64
	Intercept float64
	R2        float64
	N         int
}

// LinearFit fits y = intercept + slope*x over equally spaced points.
// Returns a zero Fit when fewer than 2 points are given.
func LinearFit(values []float64) Fit {
	n := len(values)
	if n < 2 {
		return Fit{N: n}
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return Fit{N: n}
	}
	slope := (fn*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / fn

	// R^2 = 1 - SSres/SStot
	meanY := sumY / fn
	var ssRes, ssTot float64
	for i, y := range values {
		pred := intercept + slope*float64(i)
		ssRes += (y - pred) * (y - pred)
		ssTot += (y - meanY) * (y - meanY)
	}
	r2 := 0.0
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
		if r2 < 0 {
			r2 = 0
		}
	}
	return Fit{Slope: slope, Intercept: intercept, R2: r2, N: n}
}

// RelativeSlope returns the per-step slope normalized by the series mean, so
// drift is comparable across items of very different price levels.
func RelativeSlope(values []float64, f Fit) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	if mean == 0 {
		return 0
	}
	return f.Slope / mean
}

// Strength maps fit quality into [0,1], moderated by sample count so a
// perfect fit over 3 points does not read as full strength.
func Strength(f Fit) float64 {
	if f.N < 2 {
		return 0
	}
	moderation := math.Min(1, float64(f.N)/10)
	s := f.R2 * moderation
	if s > 1 {
		return 1
	}
	if s < 0 {
		return 0
	}
	return s
}

// WeightedMean computes sum(v*w)/sum(w); returns 0 when weights sum to zero.
func WeightedMean(values, weights []float64) float64 {
	var num, den float64
	for i, v := range values {
		num += v * weights[i]
		den += weights[i]
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// WeightedStdDev computes the weighted standard deviation around the weighted mean.
func WeightedStdDev(values, weights []float64) float64 {
	mean := WeightedMean(values, weights)
	var num, den float64
	for i, v := range values {
		d := v - mean
		num += weights[i] * d * d
		den += weights[i]
	}
	if den == 0 {
		return 0
	}
	return math.Sqrt(num / den)
}

// WeightedPercentile returns the value at percentile p (0..1) of the weighted
// distribution: the smallest value whose cumulative weight reaches p of the
// total. Values must be sorted ascending with weights in the same order.
func WeightedPercentile(sortedValues, weights []float64, p float64) float64 {
	if len(sortedValues) == 0 {
		return 0
	}
	var total float64
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		return sortedValues[len(sortedValues)/2]
	}
	target := p * total
	var cum float64
	for i, v := range sortedValues {
		cum += weights[i]
		if cum >= target {
			return v
		}
	}
	return sortedValues[len(sortedValues)-1]
}
