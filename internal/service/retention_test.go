package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/genc-murat/tactilesql-scheduler/internal/errs"
	"github.com/genc-murat/tactilesql-scheduler/internal/event"
	"github.com/genc-murat/tactilesql-scheduler/internal/model"
	"github.com/genc-murat/tactilesql-scheduler/pkg/logger"
	"github.com/genc-murat/tactilesql-scheduler/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRetention(store *memStore, sink event.Sink) RetentionService {
	return NewRetentionService(testConfig(), logger.NewNop(), newTestRepository(store), sink)
}

func seedTerminalRun(t *testing.T, store *memStore, taskID string, finishedAt time.Time) string {
	t.Helper()
	runRepo := &stubRunRepo{store: store}
	run := &model.TaskRun{
		TaskID:     taskID,
		Status:     model.RunStatusSuccess,
		StartedAt:  finishedAt.Add(-time.Minute),
		FinishedAt: sql.NullTime{Time: finishedAt, Valid: true},
	}
	require.NoError(t, runRepo.CreateTaskRun(context.Background(), run))
	require.NoError(t, runRepo.AppendRunLog(context.Background(), run.ID, taskID, "info", "done", nil))
	return run.ID
}

func TestSetRetentionDays(t *testing.T) {
	store := newMemStore()
	sink := &recordingSink{}
	svc := newTestRetention(store, sink)

	err := svc.SetRetentionDays(context.Background(), 0, "ops")
	var validation *errs.ValidationError
	require.ErrorAs(t, err, &validation)

	require.NoError(t, svc.SetRetentionDays(context.Background(), 14, "ops"))

	days, err := svc.GetRetentionDays(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 14, days)

	audits := store.auditByType("retention_policy_changed")
	require.Len(t, audits, 1)
	assert.Equal(t, "ops", audits[0].Actor)
	assert.Len(t, sink.byType(event.TypeRetentionChange), 1)
}

func TestForcePurge_CutoffBoundary(t *testing.T) {
	store := newMemStore()
	task := store.addTask(&model.TaskDefinition{Name: "sync", TaskType: "noop"})
	svc := newTestRetention(store, &recordingSink{})

	now := utils.TimeNowUTC()
	oldRun := seedTerminalRun(t, store, task.ID, now.AddDate(0, 0, -31))
	boundaryRun := seedTerminalRun(t, store, task.ID, now.AddDate(0, 0, -30).Add(time.Minute))
	freshRun := seedTerminalRun(t, store, task.ID, now.Add(-time.Hour))

	// An unfinished run is never purged regardless of age.
	runRepo := &stubRunRepo{store: store}
	active := &model.TaskRun{
		TaskID:    task.ID,
		Status:    model.RunStatusRunning,
		StartedAt: now.AddDate(0, 0, -40),
	}
	require.NoError(t, runRepo.CreateTaskRun(context.Background(), active))

	result, err := svc.ForcePurge(context.Background(), nil, "ops")
	require.NoError(t, err)
	assert.Equal(t, 30, result.RetentionDays)
	assert.Equal(t, int64(1), result.DeletedRuns)
	assert.Equal(t, int64(1), result.DeletedRunLogs)

	remaining := store.runsForTask(task.ID)
	ids := make([]string, 0, len(remaining))
	for _, r := range remaining {
		ids = append(ids, r.ID)
	}
	assert.NotContains(t, ids, oldRun)
	// A run finished just inside the retention window stays.
	assert.Contains(t, ids, boundaryRun)
	assert.Contains(t, ids, freshRun)
	assert.Contains(t, ids, active.ID)
}

func TestForcePurge_Override(t *testing.T) {
	store := newMemStore()
	task := store.addTask(&model.TaskDefinition{Name: "sync", TaskType: "noop"})
	svc := newTestRetention(store, &recordingSink{})

	bad := -1
	_, err := svc.ForcePurge(context.Background(), &bad, "ops")
	var validation *errs.ValidationError
	require.ErrorAs(t, err, &validation)

	now := utils.TimeNowUTC()
	seedTerminalRun(t, store, task.ID, now.AddDate(0, 0, -10))

	override := 7
	result, err := svc.ForcePurge(context.Background(), &override, "ops")
	require.NoError(t, err)
	assert.Equal(t, 7, result.RetentionDays)
	assert.Equal(t, int64(1), result.DeletedRuns)
	assert.Empty(t, store.runsForTask(task.ID))
}
