package featurestore

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/wonny/globallink/internal/contracts"
)

// Round3 rounds half away from zero to three decimals
func Round3(v float64) float64 {
	if !contracts.IsFinite(v) {
		return v
	}
	return decimal.NewFromFloat(v).Round(3).InexactFloat64()
}

// tail returns the last n values (all of them when shorter)
func tail(values []float64, n int) []float64 {
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}

// Percentile ranks the latest value inside the trailing window:
// count(x <= current) / len(window) * 100. An empty series is neutral.
func Percentile(values []float64, window int) float64 {
	if len(values) == 0 {
		return 50
	}

	lookback := tail(values, window)
	current := values[len(values)-1]

	count := 0
	for _, x := range lookback {
		if x <= current {
			count++
		}
	}

	return Round3(float64(count) / float64(len(lookback)) * 100)
}

// ZScore is (current - mean) / population stdev over the trailing window.
// Fewer than two points or a flat window give 0.
func ZScore(values []float64, window int) float64 {
	lookback := tail(values, window)
	n := len(lookback)
	if n < 2 {
		return 0
	}

	mean := 0.0
	for _, x := range lookback {
		mean += x
	}
	mean /= float64(n)

	variance := 0.0
	for _, x := range lookback {
		variance += (x - mean) * (x - mean)
	}
	std := math.Sqrt(variance / float64(n))
	if std < 1e-12 {
		return 0
	}

	return Round3((lookback[n-1] - mean) / std)
}

// Slope is the least-squares coefficient of the trailing window against
// its index 0..n-1. Fewer than two points give 0.
func Slope(values []float64, window int) float64 {
	lookback := tail(values, window)
	n := len(lookback)
	if n < 2 {
		return 0
	}

	xMean := float64(n-1) / 2
	yMean := 0.0
	for _, y := range lookback {
		yMean += y
	}
	yMean /= float64(n)

	num, den := 0.0, 0.0
	for i, y := range lookback {
		dx := float64(i) - xMean
		num += dx * (y - yMean)
		den += dx * dx
	}

	return Round3(num / den)
}

// Features computes the full vector for a non-empty series
func Features(points []contracts.Point) contracts.FeatureVector {
	if len(points) == 0 {
		return contracts.NeutralFeatures()
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}

	latest := Round3(values[len(values)-1])
	return contracts.FeatureVector{
		Value:          &latest,
		Percentile20:   Percentile(values, contracts.WindowShort),
		Percentile250:  Percentile(values, contracts.WindowMedium),
		Percentile1250: Percentile(values, contracts.WindowLong),
		ZScore:         ZScore(values, contracts.ZScoreWindow),
		Slope:          Slope(values, contracts.SlopeWindow),
		Samples:        len(values),
	}
}
