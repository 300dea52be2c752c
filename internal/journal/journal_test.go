package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wmlbridge/internal/job"
)

var _ job.Recorder = (*Journal)(nil)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")

	j, err := Open(path)
	require.NoError(t, err)
	defer j.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	ctx := context.Background()

	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.RecordSubmitted(ctx, "job-1", "dep"))
	require.NoError(t, j.Close())

	for i := 0; i < 3; i++ {
		j, err := Open(path)
		require.NoError(t, err, "iteration %d", i)
		entries, err := j.List(ctx)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
		require.NoError(t, j.Close())
	}
}

func TestOpen_Pragmas(t *testing.T) {
	j := createTestJournal(t)

	assert.NoError(t, j.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, j.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, j.verifyPragma("user_version", "1"))
}

func TestLifecycle(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.RecordSubmitted(ctx, "job-1", "dep-a"))
	require.NoError(t, j.RecordState(ctx, "job-1", "completed"))
	require.NoError(t, j.RecordDeleted(ctx, "job-1"))

	e, err := j.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "dep-a", e.DeploymentID)
	assert.Equal(t, "deleted", e.State)
	assert.Equal(t, int64(1), e.Seq)
	assert.Equal(t, epoch, e.SubmittedAt)
	require.True(t, e.Deleted())
	assert.Equal(t, epoch.Add(2*time.Second), *e.DeletedAt)
}

func TestRecordSubmitted_DuplicateIgnored(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.RecordSubmitted(ctx, "job-1", "dep-a"))
	require.NoError(t, j.RecordSubmitted(ctx, "job-1", "dep-b"))

	e, err := j.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "dep-a", e.DeploymentID)
}

func TestRecordDeleted_FirstTimeWins(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.RecordSubmitted(ctx, "job-1", "dep"))
	require.NoError(t, j.RecordDeleted(ctx, "job-1"))
	require.NoError(t, j.RecordDeleted(ctx, "job-1"))

	e, err := j.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, epoch.Add(time.Second), *e.DeletedAt)
	assert.Equal(t, epoch.Add(2*time.Second), e.UpdatedAt)
}

func TestUnknownJob(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	assert.ErrorIs(t, j.RecordState(ctx, "ghost", "running"), ErrNotFound)
	assert.ErrorIs(t, j.RecordDeleted(ctx, "ghost"), ErrNotFound)
	_, err := j.Get(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOrphans(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	for _, id := range []string{"job-b", "job-a", "job-c"} {
		require.NoError(t, j.RecordSubmitted(ctx, id, "dep"))
	}
	require.NoError(t, j.RecordDeleted(ctx, "job-a"))

	all, err := j.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"job-b", "job-a", "job-c"}, ids(all))

	orphans, err := j.Orphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"job-b", "job-c"}, ids(orphans))
}

func TestPrune_KeepsOrphans(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.RecordSubmitted(ctx, "old", "dep"))
	require.NoError(t, j.RecordDeleted(ctx, "old"))
	require.NoError(t, j.RecordSubmitted(ctx, "leaked", "dep"))

	n, err := j.Prune(ctx, epoch.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	all, err := j.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"leaked"}, ids(all))
}

func ids(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}
