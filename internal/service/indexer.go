package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/katakuxiko/docchat/internal/model"
	"github.com/katakuxiko/docchat/internal/store"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type IndexerOptions struct {
	BatchSize   int
	Concurrency int
	// RateLimit caps embedding requests per second; zero means unlimited.
	RateLimit float64
	Timeout   time.Duration
}

// Indexer embeds chunks and builds an Index on a store backend.
type Indexer struct {
	backend store.Backend
	opts    IndexerOptions
	limiter *rate.Limiter
	metrics *Metrics
	log     *slog.Logger
}

func NewIndexer(backend store.Backend, opts IndexerOptions, metrics *Metrics, log *slog.Logger) *Indexer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), opts.Concurrency)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{backend: backend, opts: opts, limiter: limiter, metrics: metrics, log: log}
}

// Build embeds every chunk with emb and builds an index over the results.
// Either every chunk is indexed or an error is returned and nothing is kept.
func (ix *Indexer) Build(ctx context.Context, chunks []model.Chunk, emb model.Embedder) (*Index, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	if p, ok := emb.(model.Preparer); ok && len(texts) > 0 {
		if err := p.Prepare(texts); err != nil {
			return nil, &model.EmbeddingServiceError{Op: "prepare", Err: err}
		}
	}

	started := time.Now()
	vectors, err := ix.embedAll(ctx, emb, texts)
	if err != nil {
		return nil, err
	}

	dim := emb.Dimension()
	if dim == 0 && len(vectors) > 0 {
		dim = len(vectors[0])
	}

	entries := make([]store.Entry, len(chunks))
	for i, c := range chunks {
		if len(vectors[i]) != dim {
			return nil, &model.EmbeddingDimensionError{Position: c.Position, Want: dim, Got: len(vectors[i])}
		}
		entries[i] = store.Entry{Chunk: c, Vector: vectors[i]}
	}

	searcher, err := ix.backend.Build(ctx, dim, entries)
	if err != nil {
		var dimErr *model.EmbeddingDimensionError
		if errors.As(err, &dimErr) {
			return nil, err
		}
		return nil, fmt.Errorf("build %s index: %w", ix.backend.Name(), err)
	}

	ix.log.Info("index built",
		"backend", ix.backend.Name(),
		"embedder", emb.Name(),
		"chunks", len(entries),
		"dimension", dim,
		"took", time.Since(started),
	)
	return &Index{searcher: searcher, embedder: emb, dimension: dim}, nil
}

// embedAll embeds texts in batches. Batches may run concurrently; each
// result is written back at its batch offset so order is preserved.
func (ix *Indexer) embedAll(ctx context.Context, emb model.Embedder, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.opts.Concurrency)

	for start := 0; start < len(texts); start += ix.opts.BatchSize {
		start := start
		end := min(start+ix.opts.BatchSize, len(texts))
		g.Go(func() error {
			if err := ix.limiter.Wait(gctx); err != nil {
				return &model.EmbeddingServiceError{Op: "rate limit", Err: err}
			}
			op := fmt.Sprintf("embed chunks %d-%d", start, end-1)
			vecs, err := embedWithTimeout(gctx, emb, texts[start:end], ix.opts.Timeout, ix.metrics)
			if err != nil {
				return &model.EmbeddingServiceError{Op: op, Err: err}
			}
			if len(vecs) != end-start {
				return &model.EmbeddingServiceError{Op: op, Err: fmt.Errorf("got %d vectors for %d inputs", len(vecs), end-start)}
			}
			copy(out[start:end], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func embedWithTimeout(ctx context.Context, emb model.Embedder, texts []string, timeout time.Duration, m *Metrics) ([][]float32, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	started := time.Now()
	vecs, err := emb.Embed(ctx, texts)
	m.recordEmbed(time.Since(started), err)
	return vecs, err
}

// Index is an immutable set of embedded chunks together with the embedder
// that produced them. Queries must be embedded with the same embedder.
type Index struct {
	searcher  store.Searcher
	embedder  model.Embedder
	dimension int
}

func (i *Index) Len() int { return i.searcher.Len() }

func (i *Index) Dimension() int { return i.dimension }

func (i *Index) Metric() string { return store.MetricCosine }

func (i *Index) Embedder() model.Embedder { return i.embedder }

// Search returns the k chunks closest to vec, ties broken by position.
func (i *Index) Search(ctx context.Context, vec []float32, k int) ([]model.ScoredChunk, error) {
	if len(vec) != i.dimension {
		return nil, &model.EmbeddingDimensionError{Position: -1, Want: i.dimension, Got: len(vec)}
	}
	return i.searcher.Search(ctx, vec, k)
}

func (i *Index) Close(ctx context.Context) error { return i.searcher.Close(ctx) }
