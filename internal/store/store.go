package store

import (
	"context"
	"math"

	"github.com/katakuxiko/docchat/internal/model"
)

// MetricCosine is the similarity used by every backend, at build and at
// query time. Higher scores are closer.
const MetricCosine = "cosine"

// Entry pairs a chunk with its embedding.
type Entry struct {
	Chunk  model.Chunk
	Vector []float32
}

// Searcher is a built similarity index. It is never modified after Build.
type Searcher interface {
	Len() int
	// Search returns at most k chunks ordered by descending score, ties
	// broken by ascending chunk position.
	Search(ctx context.Context, query []float32, k int) ([]model.ScoredChunk, error)
	Close(ctx context.Context) error
}

// Backend builds a Searcher from all entries at once. A failed Build leaves
// nothing behind.
type Backend interface {
	Name() string
	Build(ctx context.Context, dimension int, entries []Entry) (Searcher, error)
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		na += av * av
		nb += bv * bv
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
