package trend

import (
	"math"
	"testing"
)

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestLinearFitExactLine(t *testing.T) {
	// y = 5 + 2x
	values := []float64{5, 7, 9, 11, 13}
	f := LinearFit(values)
	if !almostEqual(f.Slope, 2, 1e-9) {
		t.Fatalf("slope = %v, want 2", f.Slope)
	}
	if !almostEqual(f.Intercept, 5, 1e-9) {
		t.Fatalf("intercept = %v, want 5", f.Intercept)
	}
	if !almostEqual(f.R2, 1, 1e-9) {
		t.Fatalf("r2 = %v, want 1", f.R2)
	}
}

func TestLinearFitTooFewPoints(t *testing.T) {
	f := LinearFit([]float64{42})
	if f.Slope != 0 || f.Intercept != 0 || f.N != 1 {
		t.Fatalf("unexpected fit for single point: %+v", f)
	}
}

func TestLinearFitFlatSeries(t *testing.T) {
	f := LinearFit([]float64{10, 10, 10, 10})
	if !almostEqual(f.Slope, 0, 1e-9) {
		t.Fatalf("slope = %v, want 0", f.Slope)
	}
	// SStot is zero for a constant series; R2 must not blow up
	if f.R2 != 0 {
		t.Fatalf("r2 = %v, want 0", f.R2)
	}
}

func TestRelativeSlope(t *testing.T) {
	values := []float64{100, 102, 104, 106}
	f := LinearFit(values)
	rel := RelativeSlope(values, f)
	// slope 2 over mean 103
	if !almostEqual(rel, 2.0/103.0, 1e-9) {
		t.Fatalf("relative slope = %v", rel)
	}
	if RelativeSlope(nil, f) != 0 {
		t.Fatalf("empty series must yield 0")
	}
}

func TestStrengthModeratedBySampleCount(t *testing.T) {
	short := LinearFit([]float64{1, 2, 3})
	long := LinearFit([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	sShort := Strength(short)
	sLong := Strength(long)
	if sShort >= sLong {
		t.Fatalf("3-point strength %v should be below 10-point strength %v", sShort, sLong)
	}
	if !almostEqual(sShort, 0.3, 1e-9) {
		t.Fatalf("3-point perfect fit strength = %v, want 0.3", sShort)
	}
	if !almostEqual(sLong, 1, 1e-9) {
		t.Fatalf("10-point perfect fit strength = %v, want 1", sLong)
	}
}

func TestWeightedMean(t *testing.T) {
	got := WeightedMean([]float64{10, 20}, []float64{1, 3})
	if !almostEqual(got, 17.5, 1e-9) {
		t.Fatalf("weighted mean = %v, want 17.5", got)
	}
	if WeightedMean([]float64{10, 20}, []float64{0, 0}) != 0 {
		t.Fatalf("zero weights must yield 0")
	}
}

func TestWeightedStdDev(t *testing.T) {
	// equal weights degenerate to the population std dev
	got := WeightedStdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}, []float64{1, 1, 1, 1, 1, 1, 1, 1})
	if !almostEqual(got, 2, 1e-9) {
		t.Fatalf("std dev = %v, want 2", got)
	}
}

func TestWeightedPercentile(t *testing.T) {
	values := []float64{10, 20, 30, 40}
	weights := []float64{1, 1, 1, 1}
	if got := WeightedPercentile(values, weights, 0.10); got != 10 {
		t.Fatalf("p10 = %v, want 10", got)
	}
	if got := WeightedPercentile(values, weights, 0.90); got != 40 {
		t.Fatalf("p90 = %v, want 40", got)
	}
	// a heavy middle value absorbs both tails
	heavy := []float64{0.1, 10, 0.1}
	vals := []float64{10, 20, 30}
	if got := WeightedPercentile(vals, heavy, 0.10); got != 20 {
		t.Fatalf("weighted p10 = %v, want 20", got)
	}
	if got := WeightedPercentile(vals, heavy, 0.90); got != 20 {
		t.Fatalf("weighted p90 = %v, want 20", got)
	}
}
