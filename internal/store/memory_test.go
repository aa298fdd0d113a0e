package store

import (
	"context"
	"testing"

	"github.com/katakuxiko/docchat/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(pos int, vec ...float32) Entry {
	return Entry{Chunk: model.Chunk{Position: pos, Content: string(rune('a' + pos))}, Vector: vec}
}

func TestMemoryIndexRanksByCosine(t *testing.T) {
	ctx := context.Background()
	idx, err := NewMemoryBackend().Build(ctx, 2, []Entry{
		entry(0, 1, 0),
		entry(1, 0, 1),
		entry(2, 1, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())

	hits, err := idx.Search(ctx, []float32{0, 2}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 1, hits[0].Position)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	assert.Equal(t, 2, hits[1].Position)
}

func TestMemoryIndexBreaksTiesByPosition(t *testing.T) {
	ctx := context.Background()
	idx, err := NewMemoryBackend().Build(ctx, 2, []Entry{
		entry(0, 0, 1),
		entry(1, 1, 0),
		entry(2, 2, 0),
		entry(3, 3, 0),
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		hits, err := idx.Search(ctx, []float32{1, 0}, 3)
		require.NoError(t, err)
		require.Len(t, hits, 3)
		assert.Equal(t, []int{1, 2, 3}, []int{hits[0].Position, hits[1].Position, hits[2].Position})
	}
}

func TestMemoryIndexKLargerThanIndex(t *testing.T) {
	ctx := context.Background()
	idx, err := NewMemoryBackend().Build(ctx, 1, []Entry{entry(0, 1)})
	require.NoError(t, err)

	hits, err := idx.Search(ctx, []float32{1}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestMemoryBuildRejectsDimensionMismatch(t *testing.T) {
	_, err := NewMemoryBackend().Build(context.Background(), 2, []Entry{entry(0, 1, 0), entry(1, 1)})

	var dimErr *model.EmbeddingDimensionError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 1, dimErr.Position)
	assert.Equal(t, 2, dimErr.Want)
	assert.Equal(t, 1, dimErr.Got)
}

func TestMemoryBuildCopiesVectors(t *testing.T) {
	ctx := context.Background()
	vec := []float32{1, 0}
	idx, err := NewMemoryBackend().Build(ctx, 2, []Entry{entry(0, vec...)})
	require.NoError(t, err)

	vec[0], vec[1] = 0, 1
	hits, err := idx.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
}

func TestCosineZeroVector(t *testing.T) {
	assert.Equal(t, 0.0, cosine([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, 0.0, cosine([]float32{1}, []float32{1, 0}))
}
