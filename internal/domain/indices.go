package domain

import "math"

// APIDecay is the daily decay constant k of the antecedent precipitation index.
const APIDecay = 0.85

// FFDI model coefficients.
const (
	ffdiScale    = 1.275
	ffdiAPIPower = 0.987
	ffdiTempDiv  = 29.5858
	ffdiHumidDiv = 28.9855
	ffdiWindDiv  = 42.735
)

// Rating band upper bounds (exclusive).
const (
	lowUpper      = 5
	moderateUpper = 12
	highUpper     = 24
	veryHighUpper = 50
)

// Scan is a left fold that keeps every intermediate accumulator: out[i] is
// f applied over xs[0..i] starting from init.
func Scan[T, A any](xs []T, init A, f func(acc A, x T) A) []A {
	out := make([]A, len(xs))
	acc := init
	for i, x := range xs {
		acc = f(acc, x)
		out[i] = acc
	}
	return out
}

// AntecedentPrecipitation returns the API series for a date-ordered rainfall
// series: api[0] = r[0], api[i] = r[i] + k*api[i-1].
func AntecedentPrecipitation(rainfall []float64) []float64 {
	return Scan(rainfall, 0.0, func(prev, r float64) float64 {
		return r + APIDecay*prev
	})
}

// FireDangerIndex computes FFDI for one station-day. api must be non-negative.
func FireDangerIndex(api, maxTemp, humidity, windSpeed float64) float64 {
	weather := maxTemp/ffdiTempDiv - humidity/ffdiHumidDiv + windSpeed/ffdiWindDiv
	return ffdiScale * math.Pow(api, ffdiAPIPower) * math.Exp(weather)
}

// RateFFDI maps an FFDI value to its band. Each band owns its lower boundary,
// e.g. exactly 12 is High.
func RateFFDI(ffdi float64) Rating {
	switch {
	case ffdi < lowUpper:
		return RatingLow
	case ffdi < moderateUpper:
		return RatingModerate
	case ffdi < highUpper:
		return RatingHigh
	case ffdi < veryHighUpper:
		return RatingVeryHigh
	default:
		return RatingExtreme
	}
}

// Severity returns a numeric severity for sorting (higher = more dangerous).
func (r Rating) Severity() int {
	for i, b := range Ratings {
		if b == r {
			return i
		}
	}
	return -1
}
