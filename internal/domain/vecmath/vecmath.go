// Package vecmath holds the small amount of linear algebra the engine needs.
// Accumulation is done in float64 so scores are stable across platforms.
package vecmath

import (
	"errors"
	"math"
)

// NormEpsilon bounds how far a normalized vector's length may drift from 1.
const NormEpsilon = 1e-5

// ErrZeroVector is returned when a vector cannot be normalized.
var ErrZeroVector = errors.New("zero-length vector")

// Dot returns the inner product of a and b. Vectors of different
// length yield 0.
func Dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Norm returns the L2 length of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize returns a unit-length copy of v. The input is not modified.
func Normalize(v []float32) ([]float32, error) {
	n := Norm(v)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, ErrZeroVector
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out, nil
}

// IsUnit reports whether v has length 1 within NormEpsilon.
func IsUnit(v []float32) bool {
	return math.Abs(Norm(v)-1) <= NormEpsilon
}
