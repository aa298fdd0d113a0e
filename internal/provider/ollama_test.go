package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/katakuxiko/docchat/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaEmbedder(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "bge-m3", req.Model)

		embs := make([][]float32, len(req.Input))
		for i := range req.Input {
			embs[i] = []float32{float32(i), 1}
		}
		json.NewEncoder(w).Encode(map[string]any{"embeddings": embs})
	}))
	defer srv.Close()

	emb := NewOllamaEmbedder(srv.URL, "bge-m3", "secret", 0)
	vecs, err := emb.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 1}}, vecs)
	assert.Equal(t, 2, emb.Dimension())
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestOllamaEmbedderCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{{1}}})
	}))
	defer srv.Close()

	_, err := NewOllamaEmbedder(srv.URL, "m", "", 0).Embed(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "got 1 vectors for 2 inputs")
}

func TestOllamaChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var req struct {
			Messages []map[string]string `json:"messages"`
			Stream   bool                `json:"stream"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		require.Len(t, req.Messages, 3)
		assert.Equal(t, "assistant", req.Messages[1]["role"])

		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": " fine \n"},
			"done":    true,
		})
	}))
	defer srv.Close()

	out, err := NewOllamaChat(srv.URL, "qwen3", "", 0).Generate(context.Background(), []model.Turn{
		{Role: model.RoleUser, Content: "hi"},
		{Role: model.RoleAssistant, Content: "hello"},
		{Role: model.RoleUser, Content: "how are you"},
	})
	require.NoError(t, err)
	assert.Equal(t, "fine", out)
}

func TestOllamaErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaChat(srv.URL, "missing", "", 0).Generate(context.Background(), []model.Turn{{Role: model.RoleUser, Content: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ollama API error (404)")
}

func TestOllamaListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"models": []map[string]string{{"name": "qwen3:latest"}}})
	}))
	defer srv.Close()

	names, err := NewOllamaChat(srv.URL, "qwen3", "", 0).ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"qwen3:latest"}, names)
}
