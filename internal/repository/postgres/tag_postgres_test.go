package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTagPostgres_Ensure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cols := []string{"id", "tenant_id", "name"}
	mock.ExpectQuery("INSERT INTO access_tags").WithArgs("tenant-1", "finance").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("tag-1", "tenant-1", "finance"))
	mock.ExpectQuery("INSERT INTO access_tags").WithArgs("tenant-1", "legal").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("tag-2", "tenant-1", "legal"))

	tags, err := NewAccessTagPostgres(db).Ensure(context.Background(), "tenant-1", []string{"finance", "legal"})

	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "tag-1", tags[0].ID)
	assert.Equal(t, "legal", tags[1].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessTagPostgres_SetDocumentTags(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM document_access_tags WHERE document_id = \\$1").WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO document_access_tags").WithArgs("doc-1", "tag-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewAccessTagPostgres(db).SetDocumentTags(context.Background(), "doc-1", []string{"tag-1"})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessTagPostgres_DocumentTagsBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewAccessTagPostgres(db)
	ctx := context.Background()

	t.Run("empty input skips the query", func(t *testing.T) {
		got, err := repo.DocumentTagsBatch(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("groups by document", func(t *testing.T) {
		mock.ExpectQuery("WHERE dt.document_id IN \\(\\$1, \\$2\\)").
			WithArgs("doc-1", "doc-2").
			WillReturnRows(sqlmock.NewRows([]string{"document_id", "id", "tenant_id", "name"}).
				AddRow("doc-1", "tag-1", "tenant-1", "finance").
				AddRow("doc-1", "tag-2", "tenant-1", "legal"))

		got, err := repo.DocumentTagsBatch(ctx, []string{"doc-1", "doc-2"})

		require.NoError(t, err)
		assert.Len(t, got["doc-1"], 2)
		assert.Empty(t, got["doc-2"])
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessTagPostgres_GrantRevoke(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewAccessTagPostgres(db)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO member_access_tags").WithArgs("tenant-1", "user-1", "tag-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM member_access_tags").WithArgs("tenant-1", "user-1", "tag-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM member_access_tags mt").WithArgs("tenant-1", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "name"}))

	require.NoError(t, repo.Grant(ctx, "tenant-1", "user-1", []string{"tag-1"}))
	require.NoError(t, repo.Revoke(ctx, "tenant-1", "user-1", []string{"tag-1"}))

	tags, err := repo.MemberTags(ctx, "tenant-1", "user-1")
	require.NoError(t, err)
	assert.Empty(t, tags)

	assert.NoError(t, mock.ExpectationsWereMet())
}
