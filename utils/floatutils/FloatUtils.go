// Package floatutils provides utilities for working with floats
package floatutils

import (
	"math"

	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/spatial/r1"
)

// Clip clips a floating point to within a minimum and maximum value.
// If the floating point exceeds max, then the function returns the max
// If min exceeds the floating point, then the function returns the min
func Clip(value, min, max float64) float64 {
	clipped := math.Min(value, max)
	return math.Max(clipped, min)
}

// ClipInterval is a wrapper to use Clip with an r1.Interval instead of
// a separate max and min value
func ClipInterval(value float64, interval r1.Interval) float64 {
	return Clip(value, interval.Min, interval.Max)
}

// Min calculates and returns the minimum float64 in a list
func Min(floats ...float64) float64 {
	min := floats[0]
	for _, val := range floats {
		if val < min {
			min = val
		}
	}
	return min
}

// Max calculates and returns the maximum float64 in a list
func Max(floats ...float64) float64 {
	max := floats[0]
	for _, val := range floats {
		if val > max {
			max = val
		}
	}
	return max
}

// Clip32 clips a float32 to within a minimum and maximum value
func Clip32(value, min, max float32) float32 {
	clipped := math32.Min(value, max)
	return math32.Max(clipped, min)
}

// Min32 calculates and returns the minimum float32 in a list
func Min32(floats ...float32) float32 {
	min := floats[0]
	for _, val := range floats {
		if val < min {
			min = val
		}
	}
	return min
}

// Exp32 returns e**x in float32 precision
func Exp32(x float32) float32 {
	return math32.Exp(x)
}

// LogSumExp32 returns the log of the sum of exponentials of the values
// in x, computed stably by shifting by the maximum value before
// exponentiating. LogSumExp32 panics if x has length 0.
func LogSumExp32(x []float32) float32 {
	max := x[0]
	for _, val := range x {
		if val > max {
			max = val
		}
	}
	if math32.IsInf(max, 0) {
		return max
	}

	var sum float32
	for _, val := range x {
		sum += math32.Exp(val - max)
	}
	return max + math32.Log(sum)
}
