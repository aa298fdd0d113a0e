package service

import (
	"context"
	"errors"
	"sync"

	"github.com/katakuxiko/docchat/internal/model"
	"github.com/katakuxiko/docchat/internal/store"
)

// fakeEmbedder returns the vector registered for a text, or a fixed default.
type fakeEmbedder struct {
	dim     int
	vectors map[string][]float32
	failOn  string

	mu    sync.Mutex
	calls int
}

func newFakeEmbedder(dim int) *fakeEmbedder {
	return &fakeEmbedder{dim: dim, vectors: make(map[string][]float32)}
}

func (f *fakeEmbedder) Name() string   { return "fake" }
func (f *fakeEmbedder) Dimension() int { return f.dim }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, t := range texts {
		if f.failOn != "" && t == f.failOn {
			return nil, errors.New("upstream unavailable")
		}
		if v, ok := f.vectors[t]; ok {
			out[i] = v
			continue
		}
		v := make([]float32, f.dim)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type preparingEmbedder struct {
	*fakeEmbedder
	corpus []string
}

func (p *preparingEmbedder) Prepare(corpus []string) error {
	p.corpus = append([]string(nil), corpus...)
	return nil
}

type fakeLLM struct {
	reply string
	err   error
	got   [][]model.Turn
}

func (f *fakeLLM) Name() string { return "fake-llm" }

func (f *fakeLLM) Generate(_ context.Context, turns []model.Turn) (string, error) {
	f.got = append(f.got, append([]model.Turn(nil), turns...))
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

// countingBackend counts builds and index closes.
type countingBackend struct {
	store.Backend

	mu     sync.Mutex
	builds int
	closes int
}

func (c *countingBackend) Build(ctx context.Context, dim int, entries []store.Entry) (store.Searcher, error) {
	c.mu.Lock()
	c.builds++
	c.mu.Unlock()
	s, err := c.Backend.Build(ctx, dim, entries)
	if err != nil {
		return nil, err
	}
	return &countingSearcher{Searcher: s, backend: c}, nil
}

func (c *countingBackend) counts() (builds, closes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.builds, c.closes
}

type countingSearcher struct {
	store.Searcher
	backend *countingBackend
}

func (s *countingSearcher) Close(ctx context.Context) error {
	s.backend.mu.Lock()
	s.backend.closes++
	s.backend.mu.Unlock()
	return s.Searcher.Close(ctx)
}

func oneHot(dim, i int) []float32 {
	v := make([]float32, dim)
	v[i] = 1
	return v
}
