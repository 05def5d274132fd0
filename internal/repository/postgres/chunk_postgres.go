package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"kbapi/internal/database"
	"kbapi/internal/model"
	"kbapi/internal/repository"
)

// ChunkPostgres stores chunks with their embeddings in a pgvector column.
type ChunkPostgres struct {
	db *sql.DB
	tx repository.TxManager
}

// NewChunkPostgres creates a new ChunkPostgres repository.
func NewChunkPostgres(db *sql.DB, tx repository.TxManager) *ChunkPostgres {
	return &ChunkPostgres{db: db, tx: tx}
}

var _ repository.ChunkRepository = (*ChunkPostgres)(nil)

// Replace swaps the chunk set of a version in one transaction, so a retried
// ingestion never leaves duplicates behind.
func (r *ChunkPostgres) Replace(ctx context.Context, documentID, versionID string, chunks []model.Chunk) error {
	const qDelete = `DELETE FROM chunks WHERE document_version_id = $1`
	const qInsert = `
		INSERT INTO chunks (id, document_version_id, document_id, ordinal, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)`

	return r.tx.RunInTx(ctx, func(ctx context.Context) error {
		conn := database.Conn(ctx, r.db)
		if _, err := conn.ExecContext(ctx, qDelete, versionID); err != nil {
			return fmt.Errorf("delete previous chunks: %w", err)
		}
		for _, c := range chunks {
			id := c.ID
			if id == "" {
				id = uuid.NewString()
			}
			if _, err := conn.ExecContext(ctx, qInsert,
				id,
				versionID,
				documentID,
				c.Ordinal,
				c.Content,
				pgvector.NewVector(c.Embedding),
			); err != nil {
				return fmt.Errorf("insert chunk %d: %w", c.Ordinal, err)
			}
		}
		return nil
	})
}

// DeleteByVersion removes all chunks of a version.
func (r *ChunkPostgres) DeleteByVersion(ctx context.Context, versionID string) (int64, error) {
	const q = `DELETE FROM chunks WHERE document_version_id = $1`
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, q, versionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteUnapproved removes the chunks of a version that is not APPROVED.
func (r *ChunkPostgres) DeleteUnapproved(ctx context.Context, versionID string) (int64, error) {
	const q = `
		DELETE FROM chunks c
		USING document_versions v
		WHERE c.document_version_id = v.id AND v.id = $1 AND v.status <> 'APPROVED'`
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, q, versionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountByVersion counts the chunks of a version.
func (r *ChunkPostgres) CountByVersion(ctx context.Context, versionID string) (int, error) {
	const q = `SELECT COUNT(*) FROM chunks WHERE document_version_id = $1`
	var n int
	err := database.Conn(ctx, r.db).QueryRowContext(ctx, q, versionID).Scan(&n)
	return n, err
}
