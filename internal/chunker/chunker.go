package chunker

import (
	"slices"

	"github.com/katakuxiko/docchat/internal/model"
)

const (
	DefaultSize      = 1000
	DefaultOverlap   = 200
	DefaultSeparator = "\n"
)

// Splitter cuts text into overlapping windows of at most size characters.
//
// A window normally spans exactly size characters. If the separator occurs
// inside the window after its first overlap characters, the window is cut
// just after the last occurrence so that it ends on a segment boundary. The
// next window always starts overlap characters before the previous end.
type Splitter struct {
	size      int
	overlap   int
	separator []rune
}

// New validates the window parameters. An empty separator gives plain
// fixed-size windows.
func New(size, overlap int, separator string) (*Splitter, error) {
	if size <= 0 {
		return nil, &model.ConfigError{Field: "chunk_size", Msg: "must be greater than zero"}
	}
	if overlap < 0 || overlap >= size {
		return nil, &model.ConfigError{Field: "chunk_overlap", Msg: "must satisfy 0 <= overlap < chunk_size"}
	}
	return &Splitter{size: size, overlap: overlap, separator: []rune(separator)}, nil
}

func (s *Splitter) Size() int    { return s.size }
func (s *Splitter) Overlap() int { return s.overlap }

// Split returns the chunks of text in reading order. Empty text yields nil.
func (s *Splitter) Split(text string) []model.Chunk {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	var chunks []model.Chunk
	start := 0
	for {
		end := start + s.size
		if end >= n {
			end = n
		} else {
			end = s.snap(runes, start, end)
		}
		chunks = append(chunks, model.Chunk{
			Position: len(chunks),
			Start:    start,
			End:      end,
			Content:  string(runes[start:end]),
		})
		if end == n {
			return chunks
		}
		start = end - s.overlap
	}
}

// snap moves end back to just after the last separator in (start+overlap, end].
// The result is always greater than start+overlap so windows keep advancing.
func (s *Splitter) snap(runes []rune, start, end int) int {
	k := len(s.separator)
	if k == 0 {
		return end
	}
	for cut := end; cut-k >= start && cut > start+s.overlap; cut-- {
		if slices.Equal(runes[cut-k:cut], s.separator) {
			return cut
		}
	}
	return end
}

// Join rebuilds the source text from chunks produced by Split.
func Join(chunks []model.Chunk) string {
	var out []rune
	prevEnd := 0
	for _, c := range chunks {
		r := []rune(c.Content)
		skip := prevEnd - c.Start
		if skip < 0 {
			skip = 0
		}
		if skip < len(r) {
			out = append(out, r[skip:]...)
		}
		prevEnd = c.End
	}
	return string(out)
}
