// Package vector provides the in-memory chunk index and similarity helpers.
package vector

import "math"

// InnerProduct returns the inner product of two vectors, or 0 when their lengths differ.
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// CosineSimilarity returns dot(a,b) / (|a|*|b|) clamped to [-1, 1].
// A zero-norm vector has no direction, so its similarity to anything is 0,
// as is any pair whose similarity is not a finite number.
func CosineSimilarity(a, b []float32) float64 {
	return cosine(a, b, L2Norm(a), L2Norm(b))
}

// cosine is CosineSimilarity with precomputed norms.
func cosine(a, b []float32, normA, normB float64) float64 {
	if normA == 0 || normB == 0 || len(a) != len(b) {
		return 0
	}
	sim := InnerProduct(a, b) / (normA * normB)
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0
	}
	return math.Max(-1, math.Min(1, sim))
}

// Finite reports whether every component of v is a real number.
func Finite(v []float32) bool {
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
