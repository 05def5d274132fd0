package ingest

import "fmt"

// Stage names the pipeline step an ingestion failed in.
type Stage string

const (
	StageResolve Stage = "resolve"
	StageFetch   Stage = "fetch"
	StageExtract Stage = "extract"
	StageEmbed   Stage = "embed"
	StagePersist Stage = "persist"
)

// IngestionError reports a failed ingestion attempt. Err wraps one of the
// model error classes; the version is left PENDING without chunks.
type IngestionError struct {
	Stage      Stage
	DocumentID string
	VersionID  string
	Err        error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingest document %s version %s: %s: %v", e.DocumentID, e.VersionID, e.Stage, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }
