package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/katakuxiko/docchat/internal/model"
)

// MemoryBackend keeps the index in process memory and searches it exactly.
type MemoryBackend struct{}

func NewMemoryBackend() *MemoryBackend { return &MemoryBackend{} }

func (MemoryBackend) Name() string { return "memory" }

func (MemoryBackend) Build(_ context.Context, dimension int, entries []Entry) (Searcher, error) {
	idx := &MemoryIndex{
		dimension: dimension,
		entries:   make([]Entry, len(entries)),
	}
	for i, e := range entries {
		if len(e.Vector) != dimension {
			return nil, &model.EmbeddingDimensionError{Position: e.Chunk.Position, Want: dimension, Got: len(e.Vector)}
		}
		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		idx.entries[i] = Entry{Chunk: e.Chunk, Vector: vec}
	}
	return idx, nil
}

// MemoryIndex is a brute-force cosine index.
type MemoryIndex struct {
	dimension int
	entries   []Entry
}

func (m *MemoryIndex) Len() int { return len(m.entries) }

func (m *MemoryIndex) Search(_ context.Context, query []float32, k int) ([]model.ScoredChunk, error) {
	if len(query) != m.dimension {
		return nil, fmt.Errorf("query dimension %d, index dimension %d", len(query), m.dimension)
	}
	hits := make([]model.ScoredChunk, len(m.entries))
	for i, e := range m.entries {
		hits[i] = model.ScoredChunk{Chunk: e.Chunk, Score: cosine(query, e.Vector)}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Position < hits[j].Position
	})
	if k < 0 {
		k = 0
	}
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *MemoryIndex) Close(context.Context) error { return nil }
