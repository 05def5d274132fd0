// Package extract turns uploaded files into plain text for chunking.
//
// The set of formats is closed: PDF, the Word family and generic text.
// Registry.For selects the variant from a declared MIME type; anything else is
// model.ErrUnsupportedFormat.
package extract

import (
	"context"
	"fmt"
	"io"
	"mime"
	"strings"

	"kbapi/internal/model"
)

// MaxFileBytes bounds how much of a file is read into memory for extraction.
const MaxFileBytes = 64 << 20

// Kind identifies an extractor variant.
type Kind string

const (
	KindPDF     Kind = "pdf"
	KindWord    Kind = "word"
	KindText    Kind = "text"
	KindUnknown Kind = ""
)

// Extractor produces the text of one file.
type Extractor interface {
	Kind() Kind
	// Extract reads the whole file from r. Failures wrap model.ErrExtractionFailed.
	Extract(ctx context.Context, r io.Reader) (string, error)
}

// Classify maps a declared MIME type to an extractor kind. Parameters such as
// charset are ignored and matching is case-insensitive.
func Classify(mimeType string) Kind {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(mimeType))
	}
	switch mt {
	case "application/pdf":
		return KindPDF
	case "application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.template",
		"application/vnd.ms-word.document.macroenabled.12",
		"application/vnd.ms-word.template.macroenabled.12":
		return KindWord
	case "application/json",
		"application/xml",
		"application/yaml",
		"application/x-yaml",
		"application/csv",
		"application/markdown",
		"application/x-markdown":
		return KindText
	}
	if strings.HasPrefix(mt, "text/") || strings.HasSuffix(mt, "+json") || strings.HasSuffix(mt, "+xml") {
		return KindText
	}
	return KindUnknown
}

// Registry holds one extractor per kind.
type Registry struct {
	byKind map[Kind]Extractor
}

// NewRegistry returns a registry with the PDF, Word and text extractors.
func NewRegistry() *Registry {
	return NewRegistryWith(NewPDF(), NewWord(), NewPlainText())
}

// NewRegistryWith builds a registry from explicit extractors.
func NewRegistryWith(extractors ...Extractor) *Registry {
	r := &Registry{byKind: make(map[Kind]Extractor, len(extractors))}
	for _, e := range extractors {
		r.byKind[e.Kind()] = e
	}
	return r
}

// For returns the extractor for mimeType.
func (r *Registry) For(mimeType string) (Extractor, error) {
	kind := Classify(mimeType)
	e, ok := r.byKind[kind]
	if kind == KindUnknown || !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrUnsupportedFormat, mimeType)
	}
	return e, nil
}

// readAll reads at most MaxFileBytes from r.
func readAll(ctx context.Context, r io.Reader) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(r, MaxFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read file: %v", model.ErrExtractionFailed, err)
	}
	if len(data) > MaxFileBytes {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", model.ErrExtractionFailed, MaxFileBytes)
	}
	return data, nil
}
