package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/katakuxiko/docchat/internal/chunker"
	"github.com/katakuxiko/docchat/internal/model"
	"github.com/katakuxiko/docchat/internal/pdf"
	"github.com/katakuxiko/docchat/internal/pdf/pdftest"
	"github.com/katakuxiko/docchat/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ragFixture struct {
	svc       *RAGService
	backend   *countingBackend
	llm       *fakeLLM
	embedders []*fakeEmbedder
	embedFail string
}

func newRAGFixture(t *testing.T) *ragFixture {
	t.Helper()
	splitter, err := chunker.New(1000, 200, "\n")
	require.NoError(t, err)

	f := &ragFixture{
		llm:     &fakeLLM{reply: "answer"},
		backend: &countingBackend{Backend: store.NewMemoryBackend()},
	}
	metrics := NewMetrics()
	f.svc = NewRAGService(RAGDeps{
		Extractor: pdf.NewExtractor(""),
		Splitter:  splitter,
		Indexer:   NewIndexer(f.backend, IndexerOptions{BatchSize: 2}, metrics, nil),
		Retriever: NewRetriever(RetrieverOptions{TopK: 2}, metrics, nil),
		NewEmbedder: func() (model.Embedder, error) {
			emb := newFakeEmbedder(3)
			emb.failOn = f.embedFail
			f.embedders = append(f.embedders, emb)
			return emb, nil
		},
		LLM:     f.llm,
		Metrics: metrics,
	})
	return f
}

// twoDocs holds 2400 characters with no newline across two documents.
func twoDocs() []model.Document {
	page := strings.Repeat("abcdefghij", 60)
	return []model.Document{
		{Name: "one.pdf", Data: pdftest.Build(page, page)},
		{Name: "two.pdf", Data: pdftest.Build(page, page)},
	}
}

func TestProcessTwoDocumentsYieldsThreeChunks(t *testing.T) {
	f := newRAGFixture(t)
	sess := f.svc.Sessions().Create()

	res, err := f.svc.Process(context.Background(), sess, twoDocs())
	require.NoError(t, err)

	assert.Equal(t, model.ProcessResult{Documents: 2, Chars: 2400, Chunks: 3, Dimension: 3}, res)
	assert.True(t, sess.Processed())
}

func TestAskAccumulatesHistory(t *testing.T) {
	f := newRAGFixture(t)
	ctx := context.Background()
	sess := f.svc.Sessions().Create()
	_, err := f.svc.Process(ctx, sess, twoDocs())
	require.NoError(t, err)

	first, err := f.svc.Ask(ctx, sess, "what is this?")
	require.NoError(t, err)
	assert.Len(t, first.History, 2)
	assert.Len(t, first.Sources, 2)

	second, err := f.svc.Ask(ctx, sess, "and then?")
	require.NoError(t, err)
	require.Len(t, second.History, 4)

	roles := []model.Role{}
	for _, turn := range sess.History() {
		roles = append(roles, turn.Role)
	}
	assert.Equal(t, []model.Role{model.RoleUser, model.RoleAssistant, model.RoleUser, model.RoleAssistant}, roles)
	assert.Equal(t, "and then?", sess.History()[2].Content)

	snap := f.svc.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.Processed)
	assert.Equal(t, int64(2), snap.Asked)
	assert.Equal(t, int64(2), snap.LLMCalls)
}

func TestAskBeforeProcess(t *testing.T) {
	f := newRAGFixture(t)
	sess := f.svc.Sessions().Create()

	_, err := f.svc.Ask(context.Background(), sess, "hello?")
	assert.ErrorIs(t, err, model.ErrNotProcessed)
}

func TestAskGenerationFailureKeepsHistory(t *testing.T) {
	f := newRAGFixture(t)
	ctx := context.Background()
	sess := f.svc.Sessions().Create()
	_, err := f.svc.Process(ctx, sess, twoDocs())
	require.NoError(t, err)
	_, err = f.svc.Ask(ctx, sess, "first")
	require.NoError(t, err)

	f.llm.err = errors.New("timeout")
	_, err = f.svc.Ask(ctx, sess, "second")

	var genErr *model.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Len(t, sess.History(), 2)
}

func TestProcessFailureKeepsPreviousState(t *testing.T) {
	f := newRAGFixture(t)
	ctx := context.Background()
	sess := f.svc.Sessions().Create()
	_, err := f.svc.Process(ctx, sess, twoDocs())
	require.NoError(t, err)
	_, err = f.svc.Ask(ctx, sess, "first")
	require.NoError(t, err)

	bad := []model.Document{{Name: "broken.pdf", Data: []byte("garbage")}}
	_, err = f.svc.Process(ctx, sess, bad)
	var parseErr *model.DocumentParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "broken.pdf", parseErr.Name)

	f.embedFail = strings.Repeat("abcdefghij", 100)
	_, err = f.svc.Process(ctx, sess, twoDocs())
	var svcErr *model.EmbeddingServiceError
	require.ErrorAs(t, err, &svcErr)

	assert.True(t, sess.Processed())
	assert.Len(t, sess.History(), 2)

	f.embedFail = ""
	res, err := f.svc.Ask(ctx, sess, "still there?")
	require.NoError(t, err)
	assert.Len(t, res.History, 4)
}

func TestProcessResetsHistoryAndUsesFreshEmbedder(t *testing.T) {
	f := newRAGFixture(t)
	ctx := context.Background()
	sess := f.svc.Sessions().Create()

	_, err := f.svc.Process(ctx, sess, twoDocs())
	require.NoError(t, err)
	_, err = f.svc.Ask(ctx, sess, "first")
	require.NoError(t, err)

	_, err = f.svc.Process(ctx, sess, twoDocs())
	require.NoError(t, err)

	assert.Empty(t, sess.History())
	assert.Len(t, f.embedders, 2)
}

func TestProcessEmptyText(t *testing.T) {
	f := newRAGFixture(t)
	sess := f.svc.Sessions().Create()

	_, err := f.svc.Process(context.Background(), sess, []model.Document{{Name: "blank.pdf", Data: pdftest.Build("")}})
	assert.ErrorIs(t, err, model.ErrNoText)
	assert.False(t, sess.Processed())
}

func TestListModelsUnsupported(t *testing.T) {
	f := newRAGFixture(t)
	ids, ok, err := f.svc.ListModels(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, ids)
}

func TestProcessOnDeletedSessionBuildsNothing(t *testing.T) {
	f := newRAGFixture(t)
	ctx := context.Background()
	sess := f.svc.Sessions().Create()
	require.NoError(t, f.svc.Sessions().Delete(ctx, sess.ID))

	_, err := f.svc.Process(ctx, sess, twoDocs())
	assert.ErrorIs(t, err, model.ErrSessionNotFound)

	_, err = f.svc.Ask(ctx, sess, "anyone?")
	assert.ErrorIs(t, err, model.ErrSessionNotFound)

	builds, _ := f.backend.counts()
	assert.Zero(t, builds)
	assert.Empty(t, f.embedders)
	assert.False(t, sess.Processed())
}

func TestEvictedSessionsReleaseTheirIndex(t *testing.T) {
	f := newRAGFixture(t)
	ctx := context.Background()

	deleted := f.svc.Sessions().Create()
	_, err := f.svc.Process(ctx, deleted, twoDocs())
	require.NoError(t, err)
	require.NoError(t, f.svc.Sessions().Delete(ctx, deleted.ID))

	kept := f.svc.Sessions().Create()
	_, err = f.svc.Process(ctx, kept, twoDocs())
	require.NoError(t, err)
	f.svc.Sessions().CloseAll(ctx)

	builds, closes := f.backend.counts()
	assert.Equal(t, 2, builds)
	assert.Equal(t, 2, closes)

	_, err = f.svc.Process(ctx, kept, twoDocs())
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
	builds, _ = f.backend.counts()
	assert.Equal(t, 2, builds)
}

// slowLister never answers until its context ends.
type slowLister struct{ *fakeLLM }

func (slowLister) ListModels(ctx context.Context) ([]string, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestListModelsIsBoundedByLLMTimeout(t *testing.T) {
	svc := NewRAGService(RAGDeps{
		Retriever: NewRetriever(RetrieverOptions{LLMTimeout: 20 * time.Millisecond}, nil, nil),
		LLM:       slowLister{&fakeLLM{}},
	})

	done := make(chan error, 1)
	go func() {
		_, ok, err := svc.ListModels(context.Background())
		assert.True(t, ok)
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(5 * time.Second):
		t.Fatal("ListModels did not honour the timeout")
	}
}
