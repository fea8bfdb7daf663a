package utils

import "math"

// NormalizeL2 scales the vector in place to unit L2 norm, so that inner
// products between normalized vectors are cosine similarities. A zero
// vector is left as-is.
func NormalizeL2(v []float32) {
	n := math.Sqrt(Dot(v, v))
	if n == 0 {
		return
	}
	inv := float32(1 / n)
	for i := range v {
		v[i] *= inv
	}
}

// Dot returns the inner product of a and b, accumulated in float64.
// The shorter length wins if the lengths disagree.
func Dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
