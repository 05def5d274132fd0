package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/phuslu/log"

	"kbapi/internal/database"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_extension_uuid_ossp",
		SQL:  `CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	},
	{
		Name: "create_extension_vector",
		SQL:  `CREATE EXTENSION IF NOT EXISTS vector;`,
	},
	{
		Name: "create_table_tenants",
		SQL: `CREATE TABLE IF NOT EXISTS tenants (
  id         UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  name       TEXT        NOT NULL,
  subdomain  TEXT        NOT NULL UNIQUE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_table_users",
		SQL: `CREATE TABLE IF NOT EXISTS users (
  id         UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  email      TEXT        NOT NULL UNIQUE,
  name       TEXT        NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_table_tenant_members",
		SQL: `CREATE TABLE IF NOT EXISTS tenant_members (
  user_id    UUID        NOT NULL REFERENCES users (id) ON DELETE CASCADE,
  tenant_id  UUID        NOT NULL REFERENCES tenants (id) ON DELETE CASCADE,
  role       TEXT        NOT NULL CHECK (role IN ('ADMIN', 'MEMBER')),
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (user_id, tenant_id)
);`,
	},
	{
		Name: "create_table_access_tags",
		SQL: `CREATE TABLE IF NOT EXISTS access_tags (
  id        UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
  tenant_id UUID NOT NULL REFERENCES tenants (id) ON DELETE CASCADE,
  name      TEXT NOT NULL,
  UNIQUE (tenant_id, name)
);`,
	},
	{
		Name: "create_table_documents",
		SQL: `CREATE TABLE IF NOT EXISTS documents (
  id                UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  tenant_id         UUID        NOT NULL REFERENCES tenants (id) ON DELETE CASCADE,
  name              TEXT        NOT NULL,
  description       TEXT        NOT NULL DEFAULT '',
  mime_type         TEXT        NOT NULL,
  status            TEXT        NOT NULL CHECK (status IN ('PENDING', 'APPROVED', 'REJECTED')),
  active_version_id UUID        NULL,
  submitted_by      UUID        NOT NULL REFERENCES users (id),
  created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_table_document_versions",
		SQL: `CREATE TABLE IF NOT EXISTS document_versions (
  id               UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  document_id      UUID        NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
  version_number   INT         NOT NULL CHECK (version_number >= 1),
  status           TEXT        NOT NULL CHECK (status IN ('PENDING', 'APPROVED', 'REJECTED')),
  file_url         TEXT        NOT NULL,
  original_name    TEXT        NOT NULL,
  file_size        BIGINT      NOT NULL CHECK (file_size >= 0),
  mime_type        TEXT        NOT NULL,
  approved_by      UUID        NULL REFERENCES users (id),
  approved_at      TIMESTAMPTZ NULL,
  rejected_by      UUID        NULL REFERENCES users (id),
  rejection_reason TEXT        NULL,
  rejected_at      TIMESTAMPTZ NULL,
  created_by       UUID        NOT NULL REFERENCES users (id),
  created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (document_id, version_number),
  CHECK ((status = 'APPROVED') = (approved_at IS NOT NULL)),
  CHECK ((status = 'REJECTED') = (rejected_at IS NOT NULL))
);`,
	},
	{
		Name: "create_index_document_versions_single_pending",
		SQL: `CREATE UNIQUE INDEX IF NOT EXISTS uq_document_versions_pending
  ON document_versions (document_id) WHERE status = 'PENDING';`,
	},
	{
		Name: "create_fk_documents_active_version",
		SQL: `DO $$ BEGIN
  ALTER TABLE documents ADD CONSTRAINT fk_documents_active_version
    FOREIGN KEY (active_version_id) REFERENCES document_versions (id)
    ON DELETE SET NULL DEFERRABLE INITIALLY DEFERRED;
EXCEPTION WHEN duplicate_object THEN NULL;
END $$;`,
	},
	{
		Name: "create_index_documents_tenant_status",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_tenant_status ON documents (tenant_id, status);`,
	},
	{
		Name: "create_table_document_access_tags",
		SQL: `CREATE TABLE IF NOT EXISTS document_access_tags (
  document_id UUID NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
  tag_id      UUID NOT NULL REFERENCES access_tags (id) ON DELETE CASCADE,
  PRIMARY KEY (document_id, tag_id)
);`,
	},
	{
		Name: "create_table_member_access_tags",
		SQL: `CREATE TABLE IF NOT EXISTS member_access_tags (
  tenant_id UUID NOT NULL,
  user_id   UUID NOT NULL,
  tag_id    UUID NOT NULL REFERENCES access_tags (id) ON DELETE CASCADE,
  PRIMARY KEY (tenant_id, user_id, tag_id),
  FOREIGN KEY (user_id, tenant_id) REFERENCES tenant_members (user_id, tenant_id) ON DELETE CASCADE
);`,
	},
	{
		Name: "create_table_chunks",
		SQL: `CREATE TABLE IF NOT EXISTS chunks (
  id                  UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  document_version_id UUID        NOT NULL REFERENCES document_versions (id) ON DELETE CASCADE,
  document_id         UUID        NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
  ordinal             INT         NOT NULL CHECK (ordinal >= 0),
  content             TEXT        NOT NULL,
  embedding           vector      NOT NULL,
  created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (document_version_id, ordinal)
);`,
	},
	{
		Name: "create_index_chunks_document_id",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks (document_id);`,
	},
}

// sentinelQuery checks for the last table created by the steps above.
const sentinelQuery = "SELECT to_regclass('public.chunks') IS NOT NULL"

// EnsureMigrated checks if the schema exists and runs migrations if it doesn't.
func EnsureMigrated(ctx context.Context, db database.DBTX, logger *log.Logger, dbHost string) error {
	start := time.Now()

	logger.Info().
		Str("component", "database").
		Str("event", "db_migration_check").
		Str("status", "starting").
		Str("db_host", dbHost).
		Msg("")

	var exists bool
	if err := db.QueryRowContext(ctx, sentinelQuery).Scan(&exists); err != nil {
		logger.Error().
			Str("component", "database").
			Str("event", "db_migration_failed").
			Str("status", "error").
			Str("error_message", fmt.Sprintf("failed to check sentinel table: %v", err)).
			Str("db_host", dbHost).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("")
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		logger.Info().
			Str("component", "database").
			Str("event", "db_migration_skip").
			Str("status", "success").
			Str("db_host", dbHost).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("schema already exists, skipping migration")
		return nil
	}

	logger.Info().
		Str("component", "database").
		Str("event", "db_migration_start").
		Str("status", "in_progress").
		Str("db_host", dbHost).
		Msg("")

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			logger.Error().
				Str("component", "database").
				Str("event", "db_migration_failed").
				Str("status", "error").
				Str("migration_step", step.Name).
				Str("error_message", err.Error()).
				Str("db_host", dbHost).
				Int64("duration_ms", time.Since(start).Milliseconds()).
				Int64("step_duration_ms", time.Since(stepStart).Milliseconds()).
				Msg("")
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		logger.Info().
			Str("component", "database").
			Str("event", "db_migration_step").
			Str("status", "success").
			Str("migration_step", step.Name).
			Str("db_host", dbHost).
			Int64("step_duration_ms", time.Since(stepStart).Milliseconds()).
			Msg("")
	}

	logger.Info().
		Str("component", "database").
		Str("event", "db_migration_success").
		Str("status", "success").
		Str("db_host", dbHost).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("")

	return nil
}
