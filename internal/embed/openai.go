package embed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/phuslu/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"kbapi/internal/config"
)

// OpenAI embeds through any OpenAI-compatible embeddings endpoint.
// Calls are rate limited to cfg.RequestsPerS.
type OpenAI struct {
	embedder embeddings.Embedder
	limiter  *rate.Limiter
	logger   *log.Logger
}

// NewOpenAI creates the remote embedder. Use "none" as token for local
// services that do not authenticate.
func NewOpenAI(cfg config.EmbeddingConfig, logger *log.Logger) (*OpenAI, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("embedding host is required")
	}
	client, err := openai.New(
		openai.WithBaseURL(cfg.Host),
		openai.WithToken(cfg.Token),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithHTTPClient(&http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   60 * time.Second,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 64
	}
	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(batch),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	rps := cfg.RequestsPerS
	if rps <= 0 {
		rps = 5
	}
	return &OpenAI{
		embedder: embedder,
		limiter:  rate.NewLimiter(rate.Limit(rps), rps),
		logger:   logger,
	}, nil
}

func (e *OpenAI) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error().
			Str("component", "embedder").
			Str("event", "embed_failed").
			Int("count", len(texts)).
			Err(err).
			Msg("")
		return nil, err
	}
	e.logger.Debug().
		Str("component", "embedder").
		Str("event", "embed").
		Int("count", len(texts)).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("")
	return vectors, nil
}

// New returns the remote embedder when a host is configured and the local
// hash embedder otherwise.
func New(cfg config.EmbeddingConfig, logger *log.Logger) (Embedder, error) {
	if cfg.Host == "" {
		logger.Warn().
			Str("component", "embedder").
			Str("event", "embedder_fallback").
			Msg("EMBEDDING_HOST not set, using hash embedder")
		return NewHash(HashDimensions), nil
	}
	return NewOpenAI(cfg, logger)
}
