package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbapi/internal/database"
	"kbapi/internal/model"
)

func TestChunkPostgres_Replace(t *testing.T) {
	ctx := context.Background()
	chunks := []model.Chunk{
		{Ordinal: 0, Content: "first", Embedding: []float32{0.1, 0.2}},
		{ID: "chunk-2", Ordinal: 1, Content: "second", Embedding: []float32{0.3, 0.4}},
	}

	t.Run("deletes then inserts in one transaction", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM chunks WHERE document_version_id = \\$1").
			WithArgs("ver-1").
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec("INSERT INTO chunks").
			WithArgs(sqlmock.AnyArg(), "ver-1", "doc-1", 0, "first", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO chunks").
			WithArgs("chunk-2", "ver-1", "doc-1", 1, "second", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		repo := NewChunkPostgres(db, database.NewTxManager(db))
		err = repo.Replace(ctx, "doc-1", "ver-1", chunks)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert failure rolls back", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM chunks").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO chunks").WillReturnError(errors.New("dimension mismatch"))
		mock.ExpectRollback()

		repo := NewChunkPostgres(db, database.NewTxManager(db))
		err = repo.Replace(ctx, "doc-1", "ver-1", chunks)

		assert.ErrorContains(t, err, "insert chunk 0")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestChunkPostgres_DeleteAndCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewChunkPostgres(db, database.NewTxManager(db))
	ctx := context.Background()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM chunks").WithArgs("ver-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectExec("DELETE FROM chunks WHERE document_version_id = \\$1").WithArgs("ver-1").
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.CountByVersion(ctx, "ver-1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	deleted, err := repo.DeleteByVersion(ctx, "ver-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChunkPostgres_DeleteUnapproved(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM chunks c USING document_versions v (.+) v.status <> 'APPROVED'").
		WithArgs("ver-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := NewChunkPostgres(db, database.NewTxManager(db)).DeleteUnapproved(context.Background(), "ver-1")

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
