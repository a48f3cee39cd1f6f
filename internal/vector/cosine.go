package vector

import "math"

// Cosine returns the cosine similarity of a and b. Vectors of different
// length, empty vectors and zero-magnitude vectors all score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na2, nb2 float64
	for i := range a {
		va := float64(a[i])
		vb := float64(b[i])
		dot += va * vb
		na2 += va * va
		nb2 += vb * vb
	}
	if na2 == 0 || nb2 == 0 {
		return 0
	}
	return dot / (math.Sqrt(na2) * math.Sqrt(nb2))
}
