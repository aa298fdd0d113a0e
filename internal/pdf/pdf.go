package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/katakuxiko/docchat/internal/model"
	"rsc.io/pdf"
)

// Extractor concatenates the text of every page of every document in order.
// PageSeparator is written after each page; it is empty by default, so page
// and document boundaries leave no trace in the output.
type Extractor struct {
	PageSeparator string
}

func NewExtractor(pageSeparator string) *Extractor {
	return &Extractor{PageSeparator: pageSeparator}
}

// Extract returns the text of docs. The first document that cannot be read
// aborts the whole extraction with a *model.DocumentParseError.
func (e *Extractor) Extract(docs []model.Document) (string, error) {
	if len(docs) == 0 {
		return "", model.ErrNoDocuments
	}
	var sb strings.Builder
	for i, d := range docs {
		text, err := e.extractOne(d)
		if err != nil {
			return "", &model.DocumentParseError{Index: i, Name: docName(d), Err: err}
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

func (e *Extractor) extractOne(d model.Document) (text string, err error) {
	// rsc.io/pdf panics on malformed objects instead of returning errors.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(d.Data), int64(len(d.Data)))
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		for _, t := range p.Content().Text {
			sb.WriteString(strings.ReplaceAll(t.S, "\x00", ""))
		}
		sb.WriteString(e.PageSeparator)
	}
	return sb.String(), nil
}

func docName(d model.Document) string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}
