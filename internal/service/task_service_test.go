package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/genc-murat/tactilesql-scheduler/internal/errs"
	"github.com/genc-murat/tactilesql-scheduler/internal/model"
	"github.com/genc-murat/tactilesql-scheduler/pkg/logger"
	"github.com/genc-murat/tactilesql-scheduler/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTaskService(store *memStore) TaskService {
	return NewTaskService(testConfig(), logger.NewNop(), newTestRepository(store))
}

func TestCreateTask(t *testing.T) {
	store := newMemStore()
	svc := newTestTaskService(store)

	_, err := svc.CreateTask(context.Background(), &model.TaskDefinition{TaskType: "noop"}, "alice")
	var validation *errs.ValidationError
	require.ErrorAs(t, err, &validation)

	_, err = svc.CreateTask(context.Background(), &model.TaskDefinition{Name: "report"}, "alice")
	require.ErrorAs(t, err, &validation)

	task, err := svc.CreateTask(context.Background(), &model.TaskDefinition{Name: "report", TaskType: "noop"}, "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, model.TaskStatusActive, task.Status)

	audits := store.auditByType("task_created")
	require.Len(t, audits, 1)
	assert.Equal(t, "alice", audits[0].Actor)
}

func TestCreateTrigger_Validation(t *testing.T) {
	store := newMemStore()
	task := store.addTask(&model.TaskDefinition{Name: "report", TaskType: "noop"})
	svc := newTestTaskService(store)

	tests := []struct {
		name    string
		trigger *model.TaskTrigger
		wantErr bool
	}{
		{
			name:    "missing task id",
			trigger: &model.TaskTrigger{TriggerType: model.TriggerTypeCron, CronExpression: "* * * * *"},
			wantErr: true,
		},
		{
			name:    "cron without expression",
			trigger: &model.TaskTrigger{TaskID: task.ID, TriggerType: model.TriggerTypeCron},
			wantErr: true,
		},
		{
			name:    "interval without seconds",
			trigger: &model.TaskTrigger{TaskID: task.ID, TriggerType: model.TriggerTypeInterval},
			wantErr: true,
		},
		{
			name:    "run_at without timestamp",
			trigger: &model.TaskTrigger{TaskID: task.ID, TriggerType: model.TriggerTypeRunAt},
			wantErr: true,
		},
		{
			name:    "unknown trigger type",
			trigger: &model.TaskTrigger{TaskID: task.ID, TriggerType: "lunar"},
			wantErr: true,
		},
		{
			name: "unknown misfire policy",
			trigger: &model.TaskTrigger{
				TaskID: task.ID, TriggerType: model.TriggerTypeInterval,
				IntervalSeconds: 60, MisfirePolicy: "panic",
			},
			wantErr: true,
		},
		{
			name: "negative max attempts",
			trigger: &model.TaskTrigger{
				TaskID: task.ID, TriggerType: model.TriggerTypeInterval,
				IntervalSeconds: 60, MaxAttempts: -1,
			},
			wantErr: true,
		},
		{
			name: "valid cron trigger",
			trigger: &model.TaskTrigger{
				TaskID: task.ID, TriggerType: model.TriggerTypeCron,
				CronExpression: "*/5 * * * *",
			},
		},
		{
			name: "valid run_at trigger",
			trigger: &model.TaskTrigger{
				TaskID: task.ID, TriggerType: model.TriggerTypeRunAt,
				RunAt: sql.NullTime{Time: utils.TimeNowUTC().Add(time.Hour), Valid: true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			created, err := svc.CreateTrigger(context.Background(), tt.trigger, "alice")
			if tt.wantErr {
				var validation *errs.ValidationError
				assert.ErrorAs(t, err, &validation)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, created.ID)
			// An omitted misfire policy falls back to fire_now.
			assert.Equal(t, model.MisfireFireNow, created.MisfirePolicy)
		})
	}
}

func TestCreateTrigger_UnknownTask(t *testing.T) {
	store := newMemStore()
	svc := newTestTaskService(store)

	_, err := svc.CreateTrigger(context.Background(), &model.TaskTrigger{
		TaskID: "tsk_missing", TriggerType: model.TriggerTypeInterval, IntervalSeconds: 60,
	}, "alice")
	var notFound *errs.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestDeleteTrigger(t *testing.T) {
	store := newMemStore()
	task := store.addTask(&model.TaskDefinition{Name: "report", TaskType: "noop"})
	trg := store.addTrigger(&model.TaskTrigger{
		TaskID: task.ID, TriggerType: model.TriggerTypeInterval, IntervalSeconds: 60, Enabled: true,
	})
	svc := newTestTaskService(store)

	require.NoError(t, svc.DeleteTrigger(context.Background(), trg.ID, "alice"))

	_, err := svc.GetTrigger(context.Background(), trg.ID)
	var notFound *errs.NotFoundError
	assert.ErrorAs(t, err, &notFound)

	require.Len(t, store.auditByType("trigger_deleted"), 1)
}

func TestDeleteTask_RemovesTriggers(t *testing.T) {
	store := newMemStore()
	task := store.addTask(&model.TaskDefinition{Name: "report", TaskType: "noop"})
	trg := store.addTrigger(&model.TaskTrigger{
		TaskID: task.ID, TriggerType: model.TriggerTypeInterval, IntervalSeconds: 60, Enabled: true,
	})
	svc := newTestTaskService(store)

	require.NoError(t, svc.DeleteTask(context.Background(), task.ID, "alice"))

	var notFound *errs.NotFoundError
	_, err := svc.GetTask(context.Background(), task.ID)
	assert.ErrorAs(t, err, &notFound)
	_, err = svc.GetTrigger(context.Background(), trg.ID)
	assert.ErrorAs(t, err, &notFound)
}

func TestListRuns_RequiresTaskID(t *testing.T) {
	store := newMemStore()
	svc := newTestTaskService(store)

	_, err := svc.ListRuns(context.Background(), "", 10)
	var validation *errs.ValidationError
	assert.ErrorAs(t, err, &validation)

	_, err = svc.GetRunLogs(context.Background(), "", 10)
	assert.ErrorAs(t, err, &validation)
}
