package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kbapi/internal/model"
)

// JobState is the lifecycle of an asynchronous approval.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// Job reports an asynchronous approval.
type Job struct {
	TenantID   string    `json:"tenant_id"`
	DocumentID string    `json:"document_id"`
	VersionID  string    `json:"version_id"`
	State      JobState  `json:"state"`
	Chunks     int       `json:"chunks"`
	Error      string    `json:"error,omitempty"`
	Err        error     `json:"-"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type jobTable struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

func newJobTable() *jobTable {
	return &jobTable{jobs: make(map[string]Job)}
}

func (t *jobTable) put(j Job) {
	j.UpdatedAt = time.Now().UTC()
	t.mu.Lock()
	t.jobs[j.VersionID] = j
	t.mu.Unlock()
}

func (t *jobTable) get(versionID string) (Job, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	j, ok := t.jobs[versionID]
	return j, ok
}

func (t *jobTable) remove(versionID string) {
	t.mu.Lock()
	delete(t.jobs, versionID)
	t.mu.Unlock()
}

// ApproveAsync queues the approval of a version and returns immediately.
// Permission and state are checked before queueing. While an attempt on the
// version is queued or running, further requests fail with
// model.ErrAlreadyInProgress.
func (o *Orchestrator) ApproveAsync(ctx context.Context, tenantID, documentID, versionID, adminUserID string) (Job, error) {
	if err := o.store.RequireAdmin(ctx, tenantID, adminUserID); err != nil {
		return Job{}, err
	}
	release, ok := o.inflight.tryAcquire(versionID)
	if !ok {
		return Job{}, fmt.Errorf("%w: version %s", model.ErrAlreadyInProgress, versionID)
	}

	v, err := o.store.GetVersion(ctx, tenantID, documentID, versionID)
	if err != nil {
		release()
		return Job{}, err
	}
	if v.Status != model.StatusPending {
		release()
		return Job{}, model.ErrVersionNotPending
	}

	job := Job{TenantID: tenantID, DocumentID: documentID, VersionID: versionID, State: JobQueued}
	o.jobs.put(job)

	err = o.pool.Submit(func() {
		running := job
		running.State = JobRunning
		o.jobs.put(running)

		// The slot is released only after the final state is stored, so a
		// retry's queued entry is never overwritten by this attempt.
		defer release()
		res, err := o.approveLocked(context.Background(), tenantID, documentID, versionID, adminUserID)
		done := running
		if err != nil {
			done.State = JobFailed
			done.Err = err
			done.Error = err.Error()
		} else {
			done.State = JobSucceeded
			done.Chunks = res.Chunks
		}
		o.jobs.put(done)
	})
	if err != nil {
		release()
		o.jobs.remove(versionID)
		return Job{}, fmt.Errorf("queue approval: %w", err)
	}
	return job, nil
}

// Job returns the last known state of the asynchronous approval of versionID.
func (o *Orchestrator) Job(versionID string) (Job, bool) {
	return o.jobs.get(versionID)
}
