package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/katakuxiko/docchat/internal/chunker"
	"github.com/katakuxiko/docchat/internal/model"
	"github.com/katakuxiko/docchat/internal/pdf"
)

// EmbedderFactory returns a fresh embedder for each index.
type EmbedderFactory func() (model.Embedder, error)

// RAGService runs the document pipeline and the question answering for
// sessions.
type RAGService struct {
	extractor   *pdf.Extractor
	splitter    *chunker.Splitter
	indexer     *Indexer
	retriever   *Retriever
	newEmbedder EmbedderFactory
	llm         model.LanguageModel
	sessions    *SessionStore
	metrics     *Metrics
	log         *slog.Logger
}

type RAGDeps struct {
	Extractor   *pdf.Extractor
	Splitter    *chunker.Splitter
	Indexer     *Indexer
	Retriever   *Retriever
	NewEmbedder EmbedderFactory
	LLM         model.LanguageModel
	Sessions    *SessionStore
	Metrics     *Metrics
	Log         *slog.Logger
}

func NewRAGService(d RAGDeps) *RAGService {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Sessions == nil {
		d.Sessions = NewSessionStore(d.Log)
	}
	return &RAGService{
		extractor:   d.Extractor,
		splitter:    d.Splitter,
		indexer:     d.Indexer,
		retriever:   d.Retriever,
		newEmbedder: d.NewEmbedder,
		llm:         d.LLM,
		sessions:    d.Sessions,
		metrics:     d.Metrics,
		log:         d.Log,
	}
}

func (s *RAGService) Sessions() *SessionStore { return s.sessions }

func (s *RAGService) Metrics() *Metrics { return s.metrics }

// Process extracts, chunks and indexes docs for the session. On success the
// new index replaces the old one and the history starts over; on failure the
// session is left as it was.
func (s *RAGService) Process(ctx context.Context, sess *Session, docs []model.Document) (model.ProcessResult, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return model.ProcessResult{}, model.ErrSessionNotFound
	}
	sess.lastUsed = s.sessions.now()

	text, err := s.extractor.Extract(docs)
	if err != nil {
		return model.ProcessResult{}, err
	}

	chunks := s.splitter.Split(text)
	if len(chunks) == 0 {
		return model.ProcessResult{}, model.ErrNoText
	}

	emb, err := s.newEmbedder()
	if err != nil {
		return model.ProcessResult{}, fmt.Errorf("create embedder: %w", err)
	}

	idx, err := s.indexer.Build(ctx, chunks, emb)
	if err != nil {
		return model.ProcessResult{}, fmt.Errorf("index: %w", err)
	}

	if err := sess.closeIndex(ctx); err != nil {
		s.log.Warn("close previous index", "session", sess.ID, "error", err)
	}
	sess.index = idx
	sess.history = nil
	s.metrics.recordProcess()

	res := model.ProcessResult{
		Documents: len(docs),
		Chars:     utf8.RuneCountInString(text),
		Chunks:    idx.Len(),
		Dimension: idx.Dimension(),
	}
	s.log.Info("documents processed",
		"session", sess.ID,
		"documents", res.Documents,
		"chars", res.Chars,
		"chunks", res.Chunks,
	)
	return res, nil
}

// Ask answers query against the session's index and records the exchange.
func (s *RAGService) Ask(ctx context.Context, sess *Session, query string) (model.AskResponse, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return model.AskResponse{}, model.ErrSessionNotFound
	}
	sess.lastUsed = s.sessions.now()

	if sess.index == nil {
		return model.AskResponse{}, model.ErrNotProcessed
	}

	answer, history, hits, err := s.retriever.Answer(ctx, sess.index, query, sess.history, s.llm)
	if err != nil {
		if !errors.Is(err, model.ErrEmptyQuery) {
			s.log.Warn("ask failed", "session", sess.ID, "error", err)
		}
		return model.AskResponse{}, err
	}
	sess.history = history
	s.metrics.recordAsk()

	return model.AskResponse{Answer: answer, History: history, Sources: hits}, nil
}

// ListModels reports the models the language model provider offers, or
// false when it cannot list them. The call is bounded by the LLM timeout.
func (s *RAGService) ListModels(ctx context.Context) ([]string, bool, error) {
	lister, ok := s.llm.(model.ModelLister)
	if !ok {
		return nil, false, nil
	}
	if timeout := s.retriever.opts.LLMTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	ids, err := lister.ListModels(ctx)
	if err != nil {
		return nil, true, fmt.Errorf("list models: %w", err)
	}
	return ids, true, nil
}
