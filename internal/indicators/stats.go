// Package indicators derives StructuredSignals from the stored rate series.
package indicators

import "math"

// Mean of the last period values; ok is false when there are fewer.
func Mean(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	var sum float64
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period), true
}

// StdDev is the sample standard deviation of the last period values.
func StdDev(values []float64, period int) (float64, bool) {
	mean, ok := Mean(values, period)
	if !ok || period < 2 {
		return 0, false
	}
	var ss float64
	for _, v := range values[len(values)-period:] {
		ss += (v - mean) * (v - mean)
	}
	return math.Sqrt(ss / float64(period-1)), true
}

// Bands returns the Bollinger bands over the last period values.
func Bands(values []float64, period int, k float64) (upper, middle, lower float64, ok bool) {
	middle, ok = Mean(values, period)
	if !ok {
		return 0, 0, 0, false
	}
	sd, ok := StdDev(values, period)
	if !ok {
		return 0, 0, 0, false
	}
	return middle + k*sd, middle, middle - k*sd, true
}

// ATR approximates the average true range from closes only: the mean
// absolute change over the last period steps. Zero when there is not enough data.
func ATR(closes []float64, period int) float64 {
	n := len(closes)
	if period <= 0 || n < period+1 {
		return 0
	}
	var sum float64
	for i := n - period; i < n; i++ {
		sum += math.Abs(closes[i] - closes[i-1])
	}
	return sum / float64(period)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
