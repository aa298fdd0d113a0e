package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/katakuxiko/docchat/internal/model"
)

const DefaultSystemPrompt = "You are a helpful assistant answering questions about the user's documents. " +
	"Answer strictly from the context below and the conversation so far. " +
	"If the context is not enough to answer, say so honestly."

type RetrieverOptions struct {
	TopK         int
	SystemPrompt string
	EmbedTimeout time.Duration
	LLMTimeout   time.Duration
}

// Retriever answers a query against an Index. It keeps no conversation
// state: History comes in with each call and a new one goes out.
type Retriever struct {
	opts    RetrieverOptions
	metrics *Metrics
	log     *slog.Logger
}

func NewRetriever(opts RetrieverOptions, metrics *Metrics, log *slog.Logger) *Retriever {
	if opts.TopK <= 0 {
		opts.TopK = 4
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if log == nil {
		log = slog.Default()
	}
	return &Retriever{opts: opts, metrics: metrics, log: log}
}

// Answer retrieves the top chunks for query, asks llm with the prior history
// and returns the reply and history extended by the user and assistant
// turns. On any error the returned history is the one passed in.
func (r *Retriever) Answer(ctx context.Context, idx *Index, query string, history model.History, llm model.LanguageModel) (string, model.History, []model.ScoredChunk, error) {
	if strings.TrimSpace(query) == "" {
		return "", history, nil, model.ErrEmptyQuery
	}

	vecs, err := embedWithTimeout(ctx, idx.Embedder(), []string{query}, r.opts.EmbedTimeout, r.metrics)
	if err != nil {
		return "", history, nil, &model.EmbeddingServiceError{Op: "embed query", Err: err}
	}
	if len(vecs) != 1 {
		return "", history, nil, &model.EmbeddingServiceError{Op: "embed query", Err: fmt.Errorf("got %d vectors for 1 input", len(vecs))}
	}

	hits, err := idx.Search(ctx, vecs[0], r.opts.TopK)
	if err != nil {
		return "", history, nil, fmt.Errorf("search: %w", err)
	}

	turns := BuildPrompt(r.opts.SystemPrompt, hits, history, query)

	genCtx := ctx
	if r.opts.LLMTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, r.opts.LLMTimeout)
		defer cancel()
	}
	started := time.Now()
	answer, err := llm.Generate(genCtx, turns)
	r.metrics.recordLLM(time.Since(started), err)
	if err != nil {
		return "", history, hits, &model.GenerationError{Model: llm.Name(), Err: err}
	}

	r.log.Debug("answered",
		"hits", len(hits),
		"history_turns", len(history),
		"took", time.Since(started),
	)

	next := history.Append(
		model.Turn{Role: model.RoleUser, Content: query},
		model.Turn{Role: model.RoleAssistant, Content: answer},
	)
	return answer, next, hits, nil
}

// BuildPrompt lays out the turns sent to the language model: one system turn
// with the instructions and the retrieved chunks in rank order, then the
// prior history, then the query.
func BuildPrompt(system string, hits []model.ScoredChunk, history model.History, query string) []model.Turn {
	var b strings.Builder
	b.WriteString(system)
	b.WriteString("\n\nContext:\n")
	if len(hits) == 0 {
		b.WriteString("(no matching passages)\n")
	}
	for _, h := range hits {
		fmt.Fprintf(&b, "[%d]\n%s\n\n", h.Position, h.Content)
	}

	turns := make([]model.Turn, 0, len(history)+2)
	turns = append(turns, model.Turn{Role: model.RoleSystem, Content: strings.TrimRight(b.String(), "\n")})
	turns = append(turns, history...)
	turns = append(turns, model.Turn{Role: model.RoleUser, Content: query})
	return turns
}
