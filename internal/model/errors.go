package model

import (
	"errors"
	"fmt"
)

var (
	ErrNoDocuments     = errors.New("no documents supplied")
	ErrNoText          = errors.New("documents contain no extractable text")
	ErrNotProcessed    = errors.New("no documents processed for this session")
	ErrEmptyQuery      = errors.New("query is empty")
	ErrSessionNotFound = errors.New("session not found")
)

// DocumentParseError reports the document that could not be read. Extraction
// stops at the first such document.
type DocumentParseError struct {
	Index int
	Name  string
	Err   error
}

func (e *DocumentParseError) Error() string {
	return fmt.Sprintf("parse document %d (%s): %v", e.Index, e.Name, e.Err)
}

func (e *DocumentParseError) Unwrap() error { return e.Err }

// ConfigError reports an invalid option.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Msg)
}

// EmbeddingDimensionError reports a vector whose length differs from the
// index dimension. Position is the chunk position, or -1 for a query vector.
type EmbeddingDimensionError struct {
	Position int
	Want     int
	Got      int
}

func (e *EmbeddingDimensionError) Error() string {
	if e.Position < 0 {
		return fmt.Sprintf("query embedding has dimension %d, index has %d", e.Got, e.Want)
	}
	return fmt.Sprintf("embedding for chunk %d has dimension %d, want %d", e.Position, e.Got, e.Want)
}

// EmbeddingServiceError wraps a failure of the embedding backend.
type EmbeddingServiceError struct {
	Op  string
	Err error
}

func (e *EmbeddingServiceError) Error() string {
	return fmt.Sprintf("embedding service (%s): %v", e.Op, e.Err)
}

func (e *EmbeddingServiceError) Unwrap() error { return e.Err }

// GenerationError wraps a failure of the language model.
type GenerationError struct {
	Model string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation (%s): %v", e.Model, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
