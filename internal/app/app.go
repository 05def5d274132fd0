// Package app assembles the document lifecycle components shared by the API
// server and the operator CLI.
package app

import (
	"database/sql"
	"errors"
	"time"

	"github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus"

	"kbapi/internal/access"
	"kbapi/internal/config"
	"kbapi/internal/database"
	"kbapi/internal/embed"
	"kbapi/internal/events"
	"kbapi/internal/extract"
	"kbapi/internal/ingest"
	"kbapi/internal/repository/postgres"
	"kbapi/internal/service"
	"kbapi/internal/storage"
)

// Components are the wired lifecycle services.
type Components struct {
	Documents    service.VersionApprover
	Orchestrator *ingest.Orchestrator
	Access       *access.Resolver
	Tenants      *postgres.TenantPostgres
	Events       events.Publisher
}

// New wires repositories, the document store, the orchestrator and the
// access resolver on db. Metrics are registered on reg when it is not nil.
func New(cfg *config.AppConfig, db *sql.DB, files storage.Storage, reg prometheus.Registerer, logger *log.Logger) (*Components, error) {
	tx := database.NewTxManager(db)
	docs := postgres.NewDocumentPostgres(db)
	tenants := postgres.NewTenantPostgres(db)
	tags := postgres.NewAccessTagPostgres(db)
	chunks := postgres.NewChunkPostgres(db, tx)
	publisher := events.New(cfg.Kafka, logger)

	docSvc := service.NewDocumentService(service.Deps{
		Tx:       tx,
		Docs:     docs,
		Versions: postgres.NewVersionPostgres(db),
		Chunks:   chunks,
		Members:  tenants,
		Tags:     tags,
		Storage:  files,
		Events:   publisher,
		Logger:   logger,
	})

	embedder, err := embed.New(cfg.Embedding, logger)
	if err != nil {
		publisher.Close()
		return nil, err
	}
	pipeline := embed.NewPipeline(embedder, cfg.Embedding.ChunkSize, cfg.Embedding.ChunkOverlap, cfg.Embedding.BatchSize)

	opts := []ingest.Option{
		ingest.WithTxManager(tx),
		ingest.WithExtractors(extract.NewRegistry()),
		ingest.WithLogger(logger),
		ingest.WithTimeout(time.Duration(cfg.Ingest.TimeoutSec) * time.Second),
		ingest.WithPoolSize(cfg.Ingest.PoolSize),
	}
	if reg != nil {
		metrics, err := ingest.NewMetrics(reg)
		if err != nil {
			publisher.Close()
			return nil, err
		}
		opts = append(opts, ingest.WithMetrics(metrics))
	}
	orch, err := ingest.New(docSvc, chunks, files, pipeline, opts...)
	if err != nil {
		publisher.Close()
		return nil, err
	}

	return &Components{
		Documents:    docSvc,
		Orchestrator: orch,
		Access:       access.NewResolver(tenants, docs, tags),
		Tenants:      tenants,
		Events:       publisher,
	}, nil
}

// Close drains queued approvals and flushes pending events.
func (c *Components) Close() error {
	c.Orchestrator.Release()
	return c.Events.Close()
}

// OpenStorage returns the MinIO store, or an in-memory one when no endpoint
// is configured. Files in the memory store do not survive a restart.
func OpenStorage(cfg config.MinIOConfig, logger *log.Logger) (storage.Storage, error) {
	if cfg.Endpoint == "" {
		logger.Warn().
			Str("component", "storage").
			Str("event", "storage_fallback").
			Msg("MINIO_ENDPOINT not set, using in-memory storage")
		return storage.NewMemory(), nil
	}
	s, err := storage.NewMinIO(cfg)
	if err != nil {
		return nil, errors.Join(errors.New("initialize object storage"), err)
	}
	return s, nil
}
