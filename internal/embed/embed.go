// Package embed splits extracted text into retrieval spans and embeds them.
package embed

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"kbapi/internal/model"
)

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Span is one embedded piece of a document.
type Span struct {
	Ordinal   int
	Content   string
	Embedding []float32
}

// Pipeline chunks text with a recursive character splitter and embeds the
// chunks in batches.
type Pipeline struct {
	splitter  textsplitter.TextSplitter
	embedder  Embedder
	batchSize int
}

// NewPipeline builds a pipeline producing chunks of at most chunkSize
// characters overlapping by chunkOverlap.
func NewPipeline(embedder Embedder, chunkSize, chunkOverlap, batchSize int) *Pipeline {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 5
	}
	if batchSize <= 0 {
		batchSize = 64
	}
	return &Pipeline{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
		embedder:  embedder,
		batchSize: batchSize,
	}
}

// ChunkAndEmbed returns the embedded spans of text. Blank text is
// model.ErrEmptyContent; splitter and embedder failures wrap
// model.ErrEmbeddingFailed.
func (p *Pipeline) ChunkAndEmbed(ctx context.Context, text string) ([]Span, error) {
	if strings.TrimSpace(text) == "" {
		return nil, model.ErrEmptyContent
	}

	parts, err := p.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("%w: split: %v", model.ErrEmbeddingFailed, err)
	}
	chunks := parts[:0]
	for _, c := range parts {
		if strings.TrimSpace(c) != "" {
			chunks = append(chunks, c)
		}
	}
	if len(chunks) == 0 {
		return nil, model.ErrEmptyContent
	}

	spans := make([]Span, 0, len(chunks))
	for start := 0; start < len(chunks); start += p.batchSize {
		end := min(start+p.batchSize, len(chunks))
		batch := chunks[start:end]

		vectors, err := p.embedder.EmbedTexts(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", model.ErrEmbeddingFailed, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("%w: got %d vectors for %d chunks", model.ErrEmbeddingFailed, len(vectors), len(batch))
		}
		for i, v := range vectors {
			if len(v) == 0 {
				return nil, fmt.Errorf("%w: empty vector for chunk %d", model.ErrEmbeddingFailed, start+i)
			}
			spans = append(spans, Span{Ordinal: start + i, Content: batch[i], Embedding: v})
		}
	}
	return spans, nil
}
