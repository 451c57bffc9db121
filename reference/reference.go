// Package reference implements the scalar, layout-exact dedispersion
// algorithms that the generated accelerator kernels must match
// bit-for-bit, modulo a relative floating-point tolerance. They are the
// ground truth used by tests. The autotuner does not check candidate
// outputs against them.
package reference

import (
	"math"
)

// Numeric is the set of element types the reference implementations and the
// kernel generator can be instantiated over, standing in for the original
// implementation's I/L/O template parameters.
type Numeric interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~float32 | ~float64
}

// Convert performs the truncate-toward-zero / standard-widening element
// conversion: float-to-integer truncates, integer-to-float widens.
func Convert[To, From Numeric](v From) To {
	switch any(v).(type) {
	case float32, float64:
		f := toFloat64(v)
		switch any(*new(To)).(type) {
		case float32, float64:
			return fromFloat64[To](f)
		default:
			return fromFloat64[To](math.Trunc(f))
		}
	default:
		return fromFloat64[To](toFloat64(v))
	}
}

func toFloat64[T Numeric](v T) float64 {
	return float64(v)
}

func fromFloat64[T Numeric](f float64) T {
	var zero T
	switch any(zero).(type) {
	case float32:
		return any(float32(f)).(T)
	case float64:
		return any(f).(T)
	case int8:
		return any(int8(f)).(T)
	case uint8:
		return any(uint8(f)).(T)
	case int16:
		return any(int16(f)).(T)
	case uint16:
		return any(uint16(f)).(T)
	case int32:
		return any(int32(f)).(T)
	case uint32:
		return any(uint32(f)).(T)
	default:
		return zero
	}
}

// Shift truncates D*s toward zero and returns it as the unsigned sample
// delay index.
func Shift(dm float64, s float32) int {
	return int(math.Trunc(dm * float64(s)))
}

// Tolerance is the default relative-tolerance epsilon of the comparison
// predicate |a-b| <= eps*max(|a|,|b|,1).
const Tolerance = 1e-5

// WithinTolerance implements the floating-point comparison predicate.
func WithinTolerance(a, b, eps float64) bool {
	m := math.Max(math.Abs(a), math.Abs(b))
	if m < 1 {
		m = 1
	}
	return math.Abs(a-b) <= eps*m
}

// Comparison is the outcome of comparing two dedispersed output buffers
// sample by sample.
type Comparison struct {
	WrongSamples int
	TotalSamples int
}

// Percentage returns the wrong-sample rate as a percentage.
func (c Comparison) Percentage() float64 {
	if c.TotalSamples == 0 {
		return 0
	}
	return 100 * float64(c.WrongSamples) / float64(c.TotalSamples)
}

// Passed reports the "TEST PASSED" condition: zero wrong samples.
func (c Comparison) Passed() bool {
	return c.WrongSamples == 0
}

// Compare counts samples in got that fail the tolerance predicate against
// want, using eps as the relative tolerance.
func Compare[T Numeric](want, got []T, eps float64) Comparison {
	n := len(want)
	if len(got) < n {
		n = len(got)
	}
	c := Comparison{TotalSamples: n}
	for i := 0; i < n; i++ {
		if !WithinTolerance(float64(want[i]), float64(got[i]), eps) {
			c.WrongSamples++
		}
	}
	return c
}
