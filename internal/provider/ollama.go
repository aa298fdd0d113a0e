package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/katakuxiko/docchat/internal/model"
)

// ollamaEndpoint is one Ollama server. Token is sent as a bearer token for
// hosted instances; empty means no auth.
type ollamaEndpoint struct {
	baseURL    string
	model      string
	token      string
	httpClient *http.Client
}

func newOllamaEndpoint(baseURL, modelName, token string) ollamaEndpoint {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return ollamaEndpoint{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      modelName,
		token:      token,
		httpClient: &http.Client{},
	}
}

func (o ollamaEndpoint) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, o.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if o.token != "" {
		req.Header.Set("Authorization", "Bearer "+o.token)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API error (%d): %s", resp.StatusCode, string(b))
	}
	return io.ReadAll(resp.Body)
}

func (o ollamaEndpoint) listModels(ctx context.Context) ([]string, error) {
	body, err := o.do(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("ollama tags: %w", err)
	}
	var resp struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("ollama tags decode: %w", err)
	}
	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// OllamaEmbedder uses the /api/embed endpoint, which accepts a batch of
// inputs in one call.
type OllamaEmbedder struct {
	ep        ollamaEndpoint
	dimension atomic.Int64
}

func NewOllamaEmbedder(baseURL, modelName, token string, dimension int) *OllamaEmbedder {
	e := &OllamaEmbedder{ep: newOllamaEndpoint(baseURL, modelName, token)}
	e.dimension.Store(int64(dimension))
	return e
}

func (e *OllamaEmbedder) Name() string { return e.ep.model }

func (e *OllamaEmbedder) Dimension() int { return int(e.dimension.Load()) }

func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := e.ep.do(ctx, http.MethodPost, "/api/embed", map[string]any{
		"model": e.ep.model,
		"input": texts,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}

	var resp struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("ollama embed decode: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d vectors for %d inputs", len(resp.Embeddings), len(texts))
	}
	if e.dimension.Load() == 0 && len(resp.Embeddings[0]) > 0 {
		e.dimension.CompareAndSwap(0, int64(len(resp.Embeddings[0])))
	}
	return resp.Embeddings, nil
}

func (e *OllamaEmbedder) ListModels(ctx context.Context) ([]string, error) {
	return e.ep.listModels(ctx)
}

// OllamaChat uses the non-streaming /api/chat endpoint.
type OllamaChat struct {
	ep          ollamaEndpoint
	temperature float32
}

func NewOllamaChat(baseURL, modelName, token string, temperature float32) *OllamaChat {
	return &OllamaChat{ep: newOllamaEndpoint(baseURL, modelName, token), temperature: temperature}
}

func (c *OllamaChat) Name() string { return c.ep.model }

func (c *OllamaChat) Generate(ctx context.Context, turns []model.Turn) (string, error) {
	messages := make([]map[string]string, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, map[string]string{"role": string(t.Role), "content": t.Content})
	}

	body, err := c.ep.do(ctx, http.MethodPost, "/api/chat", map[string]any{
		"model":    c.ep.model,
		"messages": messages,
		"stream":   false,
		"options":  map[string]any{"temperature": c.temperature},
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}

	var resp struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("ollama chat decode: %w", err)
	}
	return strings.TrimSpace(resp.Message.Content), nil
}

func (c *OllamaChat) ListModels(ctx context.Context) ([]string, error) {
	return c.ep.listModels(ctx)
}
