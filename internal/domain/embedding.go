package domain

import (
	"context"
	"math"
)

// Embedder is the shared vectorization contract between layers. One vector is
// returned per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string, dim int) ([][]float32, error)
}

// Captioner describes one figure image given surrounding manual text.
type Captioner interface {
	Caption(ctx context.Context, imageBytes []byte, contextText string) (string, error)
}

// HealthChecker verifies provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// L2Normalize scales the vector to unit length in place so inner-product
// search over the index equals cosine similarity. Zero vectors are left as is.
func L2Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := 1.0 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}

// Dot computes the inner product of two same-length vectors.
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
