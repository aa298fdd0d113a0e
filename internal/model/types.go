package model

import "context"

// Document is one uploaded file. Data holds the raw PDF bytes.
type Document struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Data []byte `json:"-"`
}

// Chunk is a window of the extracted text. Start and End are rune offsets
// into the text the chunk was cut from; Position is its reading-order index.
type Chunk struct {
	Position int    `json:"position"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Content  string `json:"content"`
}

// Len returns the chunk length in characters.
func (c Chunk) Len() int { return c.End - c.Start }

// ScoredChunk is a retrieval hit.
type ScoredChunk struct {
	Chunk
	Score float64 `json:"score"`
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged message of a conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// History is the ordered log of user/assistant turns of a session.
type History []Turn

// Append returns a new History with turns added after h. The backing array
// of h is never written.
func (h History) Append(turns ...Turn) History {
	out := make(History, 0, len(h)+len(turns))
	out = append(out, h...)
	return append(out, turns...)
}

// Embedder turns text into fixed-length vectors.
type Embedder interface {
	Name() string
	// Dimension returns the declared vector length, or 0 when it is only
	// known after the first call.
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Preparer is implemented by embedders that need corpus statistics before
// they can embed (TF-IDF).
type Preparer interface {
	Prepare(corpus []string) error
}

// LanguageModel produces a reply for an ordered list of role-tagged turns.
type LanguageModel interface {
	Name() string
	Generate(ctx context.Context, turns []Turn) (string, error)
}

// ModelLister is implemented by providers that can enumerate their models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

type AskRequest struct {
	Query string `json:"query"`
}

type AskResponse struct {
	Answer  string        `json:"answer"`
	History History       `json:"history"`
	Sources []ScoredChunk `json:"sources"`
}

type ProcessResult struct {
	Documents int `json:"documents"`
	Chars     int `json:"chars"`
	Chunks    int `json:"chunks"`
	Dimension int `json:"dimension"`
}
