package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbapi/internal/embed"
	"kbapi/internal/model"
)

func TestMetadataHeader(t *testing.T) {
	assert.Equal(t, "Title: Handbook\nDescription: HR rules\n\n", MetadataHeader("Handbook", "HR rules"))
	assert.Equal(t, "Title: Handbook\n\n", MetadataHeader(" Handbook ", "  "))
}

func TestOrchestrator_Approve_Success(t *testing.T) {
	f := newFixture(t, "text/plain", "Hello world")
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)
	o := f.orchestrator(t, nil, WithMetrics(metrics))

	res, err := o.Approve(context.Background(), tenantID, docID, verID, adminID)

	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, res.Version.Status)
	assert.GreaterOrEqual(t, res.Chunks, 1)
	assert.Equal(t, res.Chunks, f.chunks.count(verID))

	first := f.chunks.byVersion[verID][0]
	assert.True(t, strings.HasPrefix(first.Content, "Title: Handbook\nDescription: Company handbook\n\nHello world"))
	assert.Equal(t, docID, first.DocumentID)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ingestions.WithLabelValues(outcomeApproved)))
}

func TestOrchestrator_Approve_EmptyContent(t *testing.T) {
	f := newFixture(t, "text/plain", "  \n\t \r\n")
	o := f.orchestrator(t, nil)

	res, err := o.Approve(context.Background(), tenantID, docID, verID, adminID)

	assert.Nil(t, res)
	assert.ErrorIs(t, err, model.ErrEmptyContent)
	var ie *IngestionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, StageExtract, ie.Stage)
	assert.Equal(t, model.StatusPending, f.store.status(verID))
	assert.Zero(t, f.chunks.count(verID))
	assert.Zero(t, f.store.approveCalls)
}

func TestOrchestrator_Approve_UnsupportedFormat(t *testing.T) {
	f := newFixture(t, "image/png", "\x89PNG")
	o := f.orchestrator(t, nil)

	_, err := o.Approve(context.Background(), tenantID, docID, verID, adminID)

	assert.ErrorIs(t, err, model.ErrUnsupportedFormat)
	assert.Equal(t, model.StatusPending, f.store.status(verID))
}

func TestOrchestrator_Approve_NotAdmin(t *testing.T) {
	f := newFixture(t, "text/plain", "Hello world")
	o := f.orchestrator(t, nil)

	_, err := o.Approve(context.Background(), tenantID, docID, verID, "member")

	assert.ErrorIs(t, err, model.ErrUnauthorized)
	assert.Zero(t, f.chunks.replaces)
}

func TestOrchestrator_Approve_OtherTenant(t *testing.T) {
	f := newFixture(t, "text/plain", "Hello world")
	o := f.orchestrator(t, nil)

	_, err := o.Approve(context.Background(), "t2", docID, verID, adminID)

	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Equal(t, model.StatusPending, f.store.status(verID))
}

func TestOrchestrator_Approve_Concurrent(t *testing.T) {
	f := newFixture(t, "text/plain", "Hello world")
	slow := funcEmbedder(func(ctx context.Context, text string) ([]embed.Span, error) {
		time.Sleep(20 * time.Millisecond)
		return embed.NewPipeline(embed.NewHash(8), 200, 20, 16).ChunkAndEmbed(ctx, text)
	})
	o := f.orchestrator(t, slow)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = o.Approve(context.Background(), tenantID, docID, verID, adminID)
		}(i)
	}
	wg.Wait()

	var ok, invalid int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, model.ErrInvalidState):
			invalid++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, invalid)
	assert.Equal(t, 1, f.chunks.replaces)
	assert.Equal(t, model.StatusApproved, f.store.status(verID))
}

func TestOrchestrator_RetryAfterFailureIsIdempotent(t *testing.T) {
	f := newFixture(t, "text/plain", strings.Repeat("policy text ", 100))
	fail := true
	flaky := funcEmbedder(func(ctx context.Context, text string) ([]embed.Span, error) {
		if fail {
			return nil, model.ErrEmbeddingFailed
		}
		return embed.NewPipeline(embed.NewHash(8), 200, 20, 16).ChunkAndEmbed(ctx, text)
	})
	o := f.orchestrator(t, flaky)
	ctx := context.Background()

	_, err := o.Approve(ctx, tenantID, docID, verID, adminID)
	require.ErrorIs(t, err, model.ErrEmbeddingFailed)
	assert.Zero(t, f.chunks.count(verID))
	assert.Equal(t, model.StatusPending, f.store.status(verID))

	fail = false
	first, err := o.Ingest(ctx, tenantID, docID, verID)
	require.NoError(t, err)
	second, err := o.Ingest(ctx, tenantID, docID, verID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, first, f.chunks.count(verID))

	res, err := o.Approve(ctx, tenantID, docID, verID, adminID)
	require.NoError(t, err)
	assert.Equal(t, first, res.Chunks)
	assert.Equal(t, first, f.chunks.count(verID))
}

func TestOrchestrator_ApproveFailureRemovesChunks(t *testing.T) {
	f := newFixture(t, "text/plain", "Hello world")
	f.store.approveErr = context.Canceled
	o := f.orchestrator(t, nil)

	_, err := o.Approve(context.Background(), tenantID, docID, verID, adminID)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, f.chunks.replaces)
	assert.Zero(t, f.chunks.count(verID))
	assert.Equal(t, model.StatusPending, f.store.status(verID))
}

func TestOrchestrator_PersistFailure(t *testing.T) {
	f := newFixture(t, "text/plain", "Hello world")
	f.chunks.replaceErr = errors.New("connection reset")
	o := f.orchestrator(t, nil)

	_, err := o.Approve(context.Background(), tenantID, docID, verID, adminID)

	var ie *IngestionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, StagePersist, ie.Stage)
	assert.Zero(t, f.store.approveCalls)
}

func TestOrchestrator_Timeout(t *testing.T) {
	f := newFixture(t, "text/plain", "Hello world")
	blocking := funcEmbedder(func(ctx context.Context, text string) ([]embed.Span, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	o := f.orchestrator(t, blocking, WithTimeout(30*time.Millisecond))

	_, err := o.Approve(context.Background(), tenantID, docID, verID, adminID)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, f.chunks.count(verID))
	assert.Equal(t, model.StatusPending, f.store.status(verID))
}

func TestOrchestrator_Ingest_AlreadyInProgress(t *testing.T) {
	f := newFixture(t, "text/plain", "Hello world")
	o := f.orchestrator(t, nil)

	release, ok := o.inflight.tryAcquire(verID)
	require.True(t, ok)
	defer release()

	_, err := o.Ingest(context.Background(), tenantID, docID, verID)

	assert.ErrorIs(t, err, model.ErrAlreadyInProgress)
}

func TestOrchestrator_Approve_WaitHonoursContext(t *testing.T) {
	f := newFixture(t, "text/plain", "Hello world")
	o := f.orchestrator(t, nil)

	release, ok := o.inflight.tryAcquire(verID)
	require.True(t, ok)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := o.Approve(ctx, tenantID, docID, verID, adminID)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, o.inflight.busy(verID))
}

func TestOrchestrator_ApproveAsync(t *testing.T) {
	f := newFixture(t, "text/plain", "Hello world")
	gate := make(chan struct{})
	gated := funcEmbedder(func(ctx context.Context, text string) ([]embed.Span, error) {
		<-gate
		return embed.NewPipeline(embed.NewHash(8), 200, 20, 16).ChunkAndEmbed(ctx, text)
	})
	o := f.orchestrator(t, gated, WithPoolSize(2))
	ctx := context.Background()

	job, err := o.ApproveAsync(ctx, tenantID, docID, verID, adminID)
	require.NoError(t, err)
	assert.Equal(t, JobQueued, job.State)

	_, err = o.ApproveAsync(ctx, tenantID, docID, verID, adminID)
	assert.ErrorIs(t, err, model.ErrAlreadyInProgress)

	close(gate)
	require.Eventually(t, func() bool {
		j, ok := o.Job(verID)
		return ok && j.State == JobSucceeded
	}, 2*time.Second, 5*time.Millisecond)

	j, _ := o.Job(verID)
	assert.GreaterOrEqual(t, j.Chunks, 1)
	assert.Equal(t, model.StatusApproved, f.store.status(verID))

	_, err = o.ApproveAsync(ctx, tenantID, docID, verID, adminID)
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

func TestOrchestrator_ApproveAsync_Failure(t *testing.T) {
	f := newFixture(t, "text/plain", " ")
	o := f.orchestrator(t, nil)

	_, err := o.ApproveAsync(context.Background(), tenantID, docID, verID, adminID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		j, ok := o.Job(verID)
		return ok && j.State == JobFailed
	}, 2*time.Second, 5*time.Millisecond)

	j, _ := o.Job(verID)
	assert.ErrorIs(t, j.Err, model.ErrEmptyContent)
	assert.Equal(t, model.StatusPending, f.store.status(verID))
}

func TestOrchestrator_ApproveAsync_FinalStateBeforeSlotFreed(t *testing.T) {
	f := newFixture(t, "text/plain", " ")
	o := f.orchestrator(t, nil)
	ctx := context.Background()

	_, err := o.ApproveAsync(ctx, tenantID, docID, verID, adminID)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return !o.inflight.busy(verID) }, 2*time.Second, time.Millisecond)
	j, ok := o.Job(verID)
	require.True(t, ok)
	assert.Equal(t, JobFailed, j.State)

	retry, err := o.ApproveAsync(ctx, tenantID, docID, verID, adminID)
	require.NoError(t, err)
	assert.Equal(t, JobQueued, retry.State)
	require.Eventually(t, func() bool { return !o.inflight.busy(verID) }, 2*time.Second, time.Millisecond)
	j, _ = o.Job(verID)
	assert.Equal(t, JobFailed, j.State)
}

type countingTx struct {
	mu sync.Mutex
	n  int
}

func (c *countingTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
	return fn(ctx)
}

func TestOrchestrator_Approve_SharesTransaction(t *testing.T) {
	f := newFixture(t, "text/plain", "Hello world")
	tx := &countingTx{}
	o := f.orchestrator(t, nil, WithTxManager(tx))

	_, err := o.Ingest(context.Background(), tenantID, docID, verID)
	require.NoError(t, err)
	assert.Equal(t, 1, tx.n)

	_, err = o.Approve(context.Background(), tenantID, docID, verID, adminID)
	require.NoError(t, err)
	assert.Equal(t, 2, tx.n)
	assert.Equal(t, 2, f.chunks.replaces)
	assert.Equal(t, []string{"lock", "replace", "lock", "replace", "approve"}, f.store.steps())
}

func TestOrchestrator_VersionLeftPendingElsewhere(t *testing.T) {
	tests := []struct {
		name   string
		status model.Status
		run    func(o *Orchestrator) error
	}{
		{
			name:   "approve after another process approved",
			status: model.StatusApproved,
			run: func(o *Orchestrator) error {
				_, err := o.Approve(context.Background(), tenantID, docID, verID, adminID)
				return err
			},
		},
		{
			name:   "ingest after another process rejected",
			status: model.StatusRejected,
			run: func(o *Orchestrator) error {
				_, err := o.Ingest(context.Background(), tenantID, docID, verID)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "text/plain", "Hello world")
			pipeline := embed.NewPipeline(embed.NewHash(8), 200, 20, 16)
			// The status changes after the PENDING pre-check, while embedding runs.
			racing := funcEmbedder(func(ctx context.Context, text string) ([]embed.Span, error) {
				f.store.setStatus(verID, tt.status)
				return pipeline.ChunkAndEmbed(ctx, text)
			})
			o := f.orchestrator(t, racing)

			err := tt.run(o)

			assert.ErrorIs(t, err, model.ErrInvalidState)
			var ie *IngestionError
			assert.False(t, errors.As(err, &ie))
			assert.Zero(t, f.chunks.replaces)
			assert.Zero(t, f.store.approveCalls)
			assert.Equal(t, []string{"lock"}, f.store.steps())
		})
	}
}
