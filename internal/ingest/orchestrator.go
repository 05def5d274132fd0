// Package ingest drives extraction, chunking and embedding of a PENDING
// document version and lets the document store approve it only after its
// chunks are durably stored.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/phuslu/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"kbapi/internal/embed"
	"kbapi/internal/extract"
	"kbapi/internal/logging"
	"kbapi/internal/model"
	"kbapi/internal/repository"
	"kbapi/internal/storage"
)

// VersionStore is the part of the document store the orchestrator drives.
// Approve is only ever called here, after chunk persistence succeeded.
type VersionStore interface {
	RequireAdmin(ctx context.Context, tenantID, userID string) error
	Get(ctx context.Context, tenantID, documentID string) (*model.Document, error)
	GetVersion(ctx context.Context, tenantID, documentID, versionID string) (*model.DocumentVersion, error)
	Approve(ctx context.Context, tenantID, documentID, versionID, adminUserID string) (*model.DocumentVersion, error)
	LockPending(ctx context.Context, tenantID, documentID, versionID string) error
}

// Extractors selects the extractor for a declared MIME type.
type Extractors interface {
	For(mimeType string) (extract.Extractor, error)
}

// ChunkEmbedder splits text and embeds the pieces.
type ChunkEmbedder interface {
	ChunkAndEmbed(ctx context.Context, text string) ([]embed.Span, error)
}

// Result is the outcome of a successful approval.
type Result struct {
	Version *model.DocumentVersion `json:"version"`
	Chunks  int                    `json:"chunks"`
}

// Orchestrator runs ingestions. Attempts on the same version never overlap
// inside one process. Across processes, chunks are written only in a
// transaction that first locks the document row and re-checks PENDING.
type Orchestrator struct {
	store      VersionStore
	chunks     repository.ChunkRepository
	tx         repository.TxManager
	files      storage.Storage
	extractors Extractors
	embedder   ChunkEmbedder
	pool       *ants.Pool
	timeout    time.Duration
	logger     *log.Logger
	metrics    *Metrics
	tracer     trace.Tracer
	inflight   *inflight
	jobs       *jobTable
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithExtractors replaces the default extractor registry.
func WithExtractors(e Extractors) Option {
	return func(o *Orchestrator) error {
		o.extractors = e
		return nil
	}
}

// WithTxManager makes the version lock, chunk writes and approval share one
// transaction. Without it each repository call commits on its own.
func WithTxManager(tx repository.TxManager) Option {
	return func(o *Orchestrator) error {
		if tx != nil {
			o.tx = tx
		}
		return nil
	}
}

// WithLogger sets the logger. Default discards.
func WithLogger(logger *log.Logger) Option {
	return func(o *Orchestrator) error {
		if logger != nil {
			o.logger = logger
		}
		return nil
	}
}

// WithTimeout bounds each ingestion attempt. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) error {
		o.timeout = d
		return nil
	}
}

// WithPoolSize sets the number of concurrent asynchronous approvals.
func WithPoolSize(size int) Option {
	return func(o *Orchestrator) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size, ants.WithNonblocking(true))
		if err != nil {
			return err
		}
		if o.pool != nil {
			o.pool.Release()
		}
		o.pool = pool
		return nil
	}
}

// WithMetrics enables prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) error {
		o.metrics = m
		return nil
	}
}

// New creates an Orchestrator.
func New(store VersionStore, chunks repository.ChunkRepository, files storage.Storage, embedder ChunkEmbedder, opts ...Option) (*Orchestrator, error) {
	if store == nil || chunks == nil || files == nil || embedder == nil {
		return nil, errors.New("ingest: store, chunks, files and embedder are required")
	}
	o := &Orchestrator{
		store:      store,
		chunks:     chunks,
		tx:         noTx{},
		files:      files,
		extractors: extract.NewRegistry(),
		embedder:   embedder,
		timeout:    2 * time.Minute,
		logger:     logging.Nop(),
		tracer:     otel.Tracer("kbapi/ingest"),
		inflight:   newInflight(),
		jobs:       newJobTable(),
	}
	if err := WithPoolSize(4)(o); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			o.Release()
			return nil, err
		}
	}
	return o, nil
}

// Release stops the async pool, waiting for running jobs up to timeout.
func (o *Orchestrator) Release() {
	if o.pool != nil {
		_ = o.pool.ReleaseTimeout(o.timeout + 5*time.Second)
	}
}

// Ingest runs the pipeline for a PENDING version and stores its chunks
// without approving it. A concurrent attempt on the same version yields
// model.ErrAlreadyInProgress.
func (o *Orchestrator) Ingest(ctx context.Context, tenantID, documentID, versionID string) (int, error) {
	release, ok := o.inflight.tryAcquire(versionID)
	if !ok {
		return 0, fmt.Errorf("%w: version %s", model.ErrAlreadyInProgress, versionID)
	}
	defer release()

	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	n, err := o.ingestLocked(ctx, tenantID, documentID, versionID, func(ctx context.Context, chunks []model.Chunk) error {
		return o.tx.RunInTx(ctx, func(ctx context.Context) error {
			if err := o.store.LockPending(ctx, tenantID, documentID, versionID); err != nil {
				return storeError{err}
			}
			return o.chunks.Replace(ctx, documentID, versionID, chunks)
		})
	})
	if err != nil {
		o.metrics.observe(outcomeFor(err), time.Since(start).Seconds())
		return 0, err
	}
	o.metrics.observe(outcomeIngested, time.Since(start).Seconds())
	return n, nil
}

// Approve ingests the version and then approves it. Concurrent calls on the
// same version wait for each other; the later call then finds the version no
// longer PENDING and fails with model.ErrInvalidState.
func (o *Orchestrator) Approve(ctx context.Context, tenantID, documentID, versionID, adminUserID string) (*Result, error) {
	if err := o.store.RequireAdmin(ctx, tenantID, adminUserID); err != nil {
		return nil, err
	}
	release, err := o.inflight.acquire(ctx, versionID)
	if err != nil {
		return nil, err
	}
	defer release()
	return o.approveLocked(ctx, tenantID, documentID, versionID, adminUserID)
}

// approveLocked writes the chunks and approves the version in one
// transaction, so either both are committed or neither is.
func (o *Orchestrator) approveLocked(ctx context.Context, tenantID, documentID, versionID, adminUserID string) (*Result, error) {
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	var approved *model.DocumentVersion
	n, err := o.ingestLocked(ctx, tenantID, documentID, versionID, func(ctx context.Context, chunks []model.Chunk) error {
		return o.tx.RunInTx(ctx, func(ctx context.Context) error {
			if err := o.store.LockPending(ctx, tenantID, documentID, versionID); err != nil {
				return storeError{err}
			}
			if err := o.chunks.Replace(ctx, documentID, versionID, chunks); err != nil {
				return err
			}
			v, err := o.store.Approve(ctx, tenantID, documentID, versionID, adminUserID)
			if err != nil {
				return storeError{err}
			}
			approved = v
			return nil
		})
	})
	if err != nil {
		o.metrics.observe(outcomeFor(err), time.Since(start).Seconds())
		return nil, err
	}

	o.metrics.observe(outcomeApproved, time.Since(start).Seconds())
	o.logger.Info().
		Str("component", "ingest").
		Str("event", "version_approved").
		Str("tenant_id", tenantID).
		Str("document_id", documentID).
		Str("version_id", versionID).
		Int("chunks", n).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("")
	return &Result{Version: approved, Chunks: n}, nil
}

// storeError marks a failure returned by the document store so it is
// surfaced unchanged instead of as a persistence failure.
type storeError struct{ err error }

func (e storeError) Error() string { return e.err.Error() }
func (e storeError) Unwrap() error { return e.err }

// ingestLocked resolves the version, builds its chunks and hands them to
// persist. The caller holds the version's slot. On any failure the
// version's unapproved chunks are removed.
func (o *Orchestrator) ingestLocked(ctx context.Context, tenantID, documentID, versionID string, persist func(ctx context.Context, chunks []model.Chunk) error) (n int, err error) {
	ctx, span := o.tracer.Start(ctx, "ingest.pipeline", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("document.id", documentID),
		attribute.String("version.id", versionID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("chunks", n))
		}
		span.End()
	}()

	doc, err := o.store.Get(ctx, tenantID, documentID)
	if err != nil {
		return 0, err
	}
	v, err := o.store.GetVersion(ctx, tenantID, documentID, versionID)
	if err != nil {
		return 0, err
	}
	if v.Status != model.StatusPending {
		return 0, model.ErrVersionNotPending
	}

	chunks, err := o.build(ctx, span, doc, v)
	if err == nil {
		err = persist(ctx, chunks)
		var se storeError
		if errors.As(err, &se) {
			err = se.err
		} else if err != nil {
			err = o.stageError(ctx, StagePersist, doc, v, err)
		}
		if err == nil {
			span.AddEvent("persisted")
		}
	}
	if err != nil {
		o.cleanup(documentID, versionID, err)
		return 0, err
	}
	return len(chunks), nil
}

func (o *Orchestrator) stageError(ctx context.Context, stage Stage, doc *model.Document, v *model.DocumentVersion, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = fmt.Errorf("%w: %v", ctxErr, err)
	}
	return &IngestionError{Stage: stage, DocumentID: doc.ID, VersionID: v.ID, Err: err}
}

// build extracts, prefixes and embeds the version's content.
func (o *Orchestrator) build(ctx context.Context, span trace.Span, doc *model.Document, v *model.DocumentVersion) ([]model.Chunk, error) {
	extractor, err := o.extractors.For(v.MimeType)
	if err != nil {
		return nil, o.stageError(ctx, StageResolve, doc, v, err)
	}

	rc, _, err := o.files.Get(ctx, v.FileURL)
	if err != nil {
		return nil, o.stageError(ctx, StageFetch, doc, v, fmt.Errorf("%w: fetch %s: %v", model.ErrExtractionFailed, v.FileURL, err))
	}
	text, err := extractor.Extract(ctx, rc)
	rc.Close()
	if err != nil {
		if !errors.Is(err, model.ErrExtractionFailed) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %v", model.ErrExtractionFailed, err)
		}
		return nil, o.stageError(ctx, StageExtract, doc, v, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, o.stageError(ctx, StageExtract, doc, v, model.ErrEmptyContent)
	}
	span.AddEvent("extracted", trace.WithAttributes(
		attribute.String("extractor", string(extractor.Kind())),
		attribute.Int("chars", len(text)),
	))

	spans, err := o.embedder.ChunkAndEmbed(ctx, MetadataHeader(doc.Name, doc.Description)+text)
	if err != nil {
		return nil, o.stageError(ctx, StageEmbed, doc, v, err)
	}
	span.AddEvent("embedded", trace.WithAttributes(attribute.Int("spans", len(spans))))

	chunks := make([]model.Chunk, len(spans))
	for i, s := range spans {
		chunks[i] = model.Chunk{
			DocumentVersionID: v.ID,
			DocumentID:        doc.ID,
			Ordinal:           s.Ordinal,
			Content:           s.Content,
			Embedding:         s.Embedding,
		}
	}
	return chunks, nil
}

type noTx struct{}

func (noTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (o *Orchestrator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}

// cleanup removes chunks left by a failed attempt. It runs detached from the
// request context so cancellation cannot skip it.
func (o *Orchestrator) cleanup(documentID, versionID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	n, err := o.chunks.DeleteUnapproved(ctx, versionID)
	entry := o.logger.Warn()
	if err != nil {
		entry = o.logger.Error().Str("cleanup_error", err.Error())
	}
	entry.
		Str("component", "ingest").
		Str("event", "ingestion_failed").
		Str("document_id", documentID).
		Str("version_id", versionID).
		Int64("chunks_removed", n).
		Str("error_message", cause.Error()).
		Msg("")
}

// MetadataHeader is prepended to extracted text so every document's first
// chunk carries its title and description.
func MetadataHeader(name, description string) string {
	var b strings.Builder
	b.WriteString("Title: ")
	b.WriteString(strings.TrimSpace(name))
	b.WriteString("\n")
	if d := strings.TrimSpace(description); d != "" {
		b.WriteString("Description: ")
		b.WriteString(d)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

func outcomeFor(err error) string {
	if errors.Is(err, model.ErrInvalidState) || errors.Is(err, model.ErrUnauthorized) || errors.Is(err, model.ErrNotFound) {
		return outcomeRejected
	}
	return outcomeFailed
}
