package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/katakuxiko/docchat/internal/model"
	"github.com/sashabaranov/go-openai"
)

// newOpenAIClient создаёт клиент для LM Studio / OpenAI совместимых серверов
func newOpenAIClient(baseURL, apiKey string) *openai.Client {
	if apiKey == "" {
		apiKey = "not-needed"
	}
	oaiCfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		oaiCfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(oaiCfg)
}

// OpenAIEmbedder получает эмбеддинги через /embeddings
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	requested int
	dimension atomic.Int64
}

// NewOpenAIEmbedder создаёт эмбеддер. Положительная размерность передаётся
// серверу и проверяется локально; при нуле размерность задаёт первый ответ.
func NewOpenAIEmbedder(baseURL, apiKey, modelName string, dimension int) *OpenAIEmbedder {
	e := &OpenAIEmbedder{
		client:    newOpenAIClient(baseURL, apiKey),
		model:     modelName,
		requested: dimension,
	}
	e.dimension.Store(int64(dimension))
	return e
}

func (e *OpenAIEmbedder) Name() string { return e.model }

func (e *OpenAIEmbedder) Dimension() int { return int(e.dimension.Load()) }

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	}
	if e.requested > 0 {
		req.Dimensions = e.requested
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) || out[d.Index] != nil {
			return nil, fmt.Errorf("embeddings: bad result index %d", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	if e.dimension.Load() == 0 && len(out[0]) > 0 {
		e.dimension.CompareAndSwap(0, int64(len(out[0])))
	}
	return out, nil
}

func (e *OpenAIEmbedder) ListModels(ctx context.Context) ([]string, error) {
	return listOpenAIModels(ctx, e.client)
}

// OpenAIChat отправляет запросы в /chat/completions
type OpenAIChat struct {
	client      *openai.Client
	model       string
	temperature float32
}

func NewOpenAIChat(baseURL, apiKey, modelName string, temperature float32) *OpenAIChat {
	return &OpenAIChat{
		client:      newOpenAIClient(baseURL, apiKey),
		model:       modelName,
		temperature: temperature,
	}
}

func (c *OpenAIChat) Name() string { return c.model }

func (c *OpenAIChat) Generate(ctx context.Context, turns []model.Turn) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: string(t.Role), Content: t.Content})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *OpenAIChat) ListModels(ctx context.Context) ([]string, error) {
	return listOpenAIModels(ctx, c.client)
}

func listOpenAIModels(ctx context.Context, client *openai.Client) ([]string, error) {
	resp, err := client.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}
