package util

import "math"

// Round rounds f to the given number of decimal places, half away from zero.
func Round(f float64, places int) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}
