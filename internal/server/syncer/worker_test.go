package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpetrovs/attachsync/internal/common"
	"github.com/mpetrovs/attachsync/internal/server/models"
)

func TestWorker_PushMarksRecordSynced(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	rec, err := e.orch.Upload(ctx, []byte("push me"), "push.txt", 42)
	require.NoError(t, err)

	processed, err := e.worker.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	synced, err := e.repos.Attachments(nil).GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSynced, synced.SyncStatus)
	require.NotNil(t, synced.RemoteGUID)

	// the push uploaded and linked exactly once
	assert.Equal(t, 1, e.remote.uploadCalls)
	assert.Equal(t, 1, e.remote.linkCalls)

	remoteList, err := e.remote.List(ctx, 42)
	require.NoError(t, err)
	require.Len(t, remoteList, 1)
	assert.Equal(t, *synced.RemoteGUID, remoteList[0].GUID)

	jobs, _ := e.repos.Jobs(nil).RecentByWorkItem(ctx, 42, 10)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobDone, jobs[0].Status)
}

func TestWorker_EmptyQueue(t *testing.T) {
	e := newEnv(t)

	processed, err := e.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestWorker_RetryCeiling(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.remote.fail(common.NewTransientUpstream("upload", errors.New("tracker down")))

	rec, err := e.orch.Upload(ctx, []byte("never arrives"), "stuck.txt", 42)
	require.NoError(t, err)

	// the job fails transiently on every attempt; with MaxRetries=3 it runs
	// exactly 3 times and then stops
	var runs int
	for {
		processed, err := e.worker.RunOnce(ctx)
		require.NoError(t, err)
		if !processed {
			break
		}
		runs++
		require.LessOrEqual(t, runs, 3, "job retried past the ceiling")
	}
	assert.Equal(t, 3, runs)
	assert.Equal(t, 3, e.remote.uploadCalls)

	jobs, _ := e.repos.Jobs(nil).RecentByWorkItem(ctx, 42, 10)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobFailed, jobs[0].Status)
	assert.Equal(t, 3, jobs[0].Attempts)
	assert.Contains(t, jobs[0].LastError, "tracker down")

	failed, err := e.repos.Attachments(nil).GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, failed.SyncStatus)

	// content and metadata stay intact for manual retry
	_, err = e.store.Get(ctx, rec.ContentHash)
	assert.NoError(t, err)
}

func TestWorker_PermanentFailureDoesNotRetry(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.remote.fail(common.UpstreamFromStatus("upload", 404))

	_, err := e.orch.Upload(ctx, []byte("gone target"), "gone.txt", 42)
	require.NoError(t, err)

	processed, err := e.worker.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	jobs, _ := e.repos.Jobs(nil).RecentByWorkItem(ctx, 42, 10)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobFailed, jobs[0].Status)
	assert.Equal(t, 1, jobs[0].Attempts)
	assert.Equal(t, 1, e.remote.uploadCalls)
}

func TestWorker_TransientFailureThenRecovery(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.remote.fail(common.NewTransientUpstream("upload", errors.New("blip")))

	rec, err := e.orch.Upload(ctx, []byte("eventually"), "late.txt", 42)
	require.NoError(t, err)

	processed, err := e.worker.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	e.remote.fail(nil)
	e.drain(t)

	synced, err := e.repos.Attachments(nil).GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSynced, synced.SyncStatus)
}

func TestWorker_PullJobFetchesRemoteAttachments(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.remote.seed(42, "existing.png", []byte("remote only bytes"))
	require.NoError(t, e.repos.Jobs(nil).Enqueue(ctx, &models.SyncJob{
		ID:         "pull-1",
		Type:       models.JobPull,
		WorkItemID: 42,
		Status:     models.JobQueued,
	}))

	e.drain(t)

	local, err := e.orch.ListLocal(ctx, 42)
	require.NoError(t, err)
	require.Len(t, local, 1)
	assert.Equal(t, models.OriginRemotePull, local[0].Origin)
	assert.Equal(t, models.StatusSynced, local[0].SyncStatus)

	// a second pull of the same work item finds nothing new
	require.NoError(t, e.repos.Jobs(nil).Enqueue(ctx, &models.SyncJob{
		ID:         "pull-2",
		Type:       models.JobPull,
		WorkItemID: 42,
		Status:     models.JobQueued,
	}))
	e.drain(t)

	local, _ = e.orch.ListLocal(ctx, 42)
	assert.Len(t, local, 1)
}

func TestBackoffDelay(t *testing.T) {
	base := time.Second
	ceiling := 10 * time.Second

	assert.Equal(t, time.Second, backoffDelay(base, ceiling, 1))
	assert.Equal(t, 2*time.Second, backoffDelay(base, ceiling, 2))
	assert.Equal(t, 4*time.Second, backoffDelay(base, ceiling, 3))
	assert.Equal(t, 8*time.Second, backoffDelay(base, ceiling, 4))
	assert.Equal(t, ceiling, backoffDelay(base, ceiling, 5), "delay is capped")
	assert.Equal(t, ceiling, backoffDelay(base, ceiling, 12))
}
