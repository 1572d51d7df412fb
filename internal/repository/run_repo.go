package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/genc-murat/tactilesql-scheduler/internal/errs"
	"github.com/genc-murat/tactilesql-scheduler/internal/model"
	"github.com/genc-murat/tactilesql-scheduler/pkg/utils"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PurgeResult reports exactly what a retention purge removed.
type PurgeResult struct {
	RetentionDays    int       `json:"retention_days"`
	CutoffAt         time.Time `json:"cutoff_at"`
	DeletedRunLogs   int64     `json:"deleted_run_logs"`
	DeletedRuns      int64     `json:"deleted_runs"`
	DeletedAuditLogs int64     `json:"deleted_audit_logs"`
}

// RunRepository is the run ledger: run records, per-run log lines and
// the append-only audit trail, plus the retention purge.
type RunRepository interface {
	CreateTaskRun(ctx context.Context, run *model.TaskRun, opts ...utils.DBOption) error
	GetRunByID(ctx context.Context, id string) (*model.TaskRun, error)
	UpdateTaskRunStatus(ctx context.Context, runID string, status model.TaskRunStatus, errorMessage *string, metadataPatch datatypes.JSON) (*model.TaskRun, error)
	ListRunsByTask(ctx context.Context, taskID string, limit int) ([]model.TaskRun, error)

	AppendRunLog(ctx context.Context, runID, taskID, level, message string, logContext datatypes.JSON) error
	GetRunLogs(ctx context.Context, runID string, limit int) ([]model.TaskRunLog, error)

	AppendAuditLog(ctx context.Context, eventType string, taskID *string, actor, message string, details datatypes.JSON) error
	ListAuditLogs(ctx context.Context, param *model.GetAuditLogParam) ([]model.TaskAuditLog, error)

	PurgeOldTaskHistory(ctx context.Context, retentionDays int, now time.Time) (*PurgeResult, error)
}

type runRepository struct {
	db       *gorm.DB
	taskRepo TaskRepository
}

func NewRunRepository(db *gorm.DB, taskRepo TaskRepository) RunRepository {
	return &runRepository{db: db, taskRepo: taskRepo}
}

func (r *runRepository) CreateTaskRun(ctx context.Context, run *model.TaskRun, opts ...utils.DBOption) error {
	exists, err := r.taskRepo.Exists(ctx, run.TaskID)
	if err != nil {
		return err
	}
	if !exists {
		return errs.NewNotFound("task", run.TaskID)
	}

	if run.ID == "" {
		run.ID = "run_" + uuid.NewString()
	}
	if run.Attempt <= 0 {
		run.Attempt = 1
	}
	if run.Status == "" {
		run.Status = model.RunStatusQueued
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = utils.TimeNowUTC()
	}
	if err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).Create(run).Error; err != nil {
		return errs.NewStore("create_task_run", err)
	}
	return nil
}

func (r *runRepository) GetRunByID(ctx context.Context, id string) (*model.TaskRun, error) {
	var run model.TaskRun
	err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NewNotFound("run", id)
		}
		return nil, errs.NewStore("get_run", err)
	}
	return &run, nil
}

// UpdateTaskRunStatus transitions a run. Transitioning an already
// terminal run is an idempotent no-op returning the stored record. The
// terminal guard lives in the UPDATE's WHERE clause, the same
// conditional-write shape the trigger claim uses, so two racing
// finalize paths cannot both win and overwrite the outcome.
func (r *runRepository) UpdateTaskRunStatus(ctx context.Context, runID string, status model.TaskRunStatus, errorMessage *string, metadataPatch datatypes.JSON) (*model.TaskRun, error) {
	run, err := r.GetRunByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	if run.Status.IsTerminal() {
		return run, nil
	}

	run.Status = status
	if errorMessage != nil {
		run.ErrorMessage = sql.NullString{String: *errorMessage, Valid: true}
	}
	if metadataPatch != nil {
		run.Metadata = metadataPatch
	}
	if status.IsTerminal() && !run.FinishedAt.Valid {
		run.FinishedAt = sql.NullTime{Time: utils.TimeNowUTC(), Valid: true}
	}

	terminal := []model.TaskRunStatus{model.RunStatusSuccess, model.RunStatusFailed, model.RunStatusCancelled}
	res := r.db.WithContext(ctx).Model(&model.TaskRun{}).
		Where("id = ? AND status NOT IN ?", runID, terminal).
		Updates(map[string]interface{}{
			"status":        run.Status,
			"error_message": run.ErrorMessage,
			"metadata":      run.Metadata,
			"finished_at":   run.FinishedAt,
		})
	if res.Error != nil {
		return nil, errs.NewStore("update_task_run_status", res.Error)
	}
	if res.RowsAffected == 0 {
		// A concurrent writer reached a terminal state first. Report
		// what the ledger actually holds.
		return r.GetRunByID(ctx, runID)
	}
	return run, nil
}

func (r *runRepository) ListRunsByTask(ctx context.Context, taskID string, limit int) ([]model.TaskRun, error) {
	var runs []model.TaskRun
	db := r.db.WithContext(ctx).Where("task_id = ?", taskID).Order("created_at DESC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	if err := db.Find(&runs).Error; err != nil {
		return nil, errs.NewStore("list_runs", err)
	}
	return runs, nil
}

func (r *runRepository) AppendRunLog(ctx context.Context, runID, taskID, level, message string, logContext datatypes.JSON) error {
	entry := &model.TaskRunLog{
		RunID:   runID,
		TaskID:  taskID,
		Level:   level,
		Message: message,
		Context: logContext,
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return errs.NewStore("append_run_log", err)
	}
	return nil
}

func (r *runRepository) GetRunLogs(ctx context.Context, runID string, limit int) ([]model.TaskRunLog, error) {
	var logs []model.TaskRunLog
	db := r.db.WithContext(ctx).Where("run_id = ?", runID).Order("created_at ASC, id ASC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	if err := db.Find(&logs).Error; err != nil {
		return nil, errs.NewStore("get_run_logs", err)
	}
	return logs, nil
}

func (r *runRepository) AppendAuditLog(ctx context.Context, eventType string, taskID *string, actor, message string, details datatypes.JSON) error {
	entry := &model.TaskAuditLog{
		EventType: eventType,
		Actor:     actor,
		Message:   message,
		Details:   details,
	}
	if taskID != nil {
		entry.TaskID = sql.NullString{String: *taskID, Valid: true}
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return errs.NewStore("append_audit_log", err)
	}
	return nil
}

func (r *runRepository) ListAuditLogs(ctx context.Context, param *model.GetAuditLogParam) ([]model.TaskAuditLog, error) {
	var logs []model.TaskAuditLog
	db := r.db.WithContext(ctx).Model(&model.TaskAuditLog{})
	if param.EventType != nil {
		db = db.Where("event_type = ?", *param.EventType)
	}
	if param.TaskID != nil {
		db = db.Where("task_id = ?", *param.TaskID)
	}
	if param.Limit != nil {
		db = db.Limit(*param.Limit)
	}
	if err := db.Order("created_at DESC").Find(&logs).Error; err != nil {
		return nil, errs.NewStore("list_audit_logs", err)
	}
	return logs, nil
}

// PurgeOldTaskHistory deletes runs that reached a terminal state strictly
// before the cutoff, their log lines, and audit entries older than the
// same cutoff. A run finished exactly at the cutoff is retained. Only
// already-terminal rows are touched, so the purge is safe to run
// concurrently with new-run creation.
func (r *runRepository) PurgeOldTaskHistory(ctx context.Context, retentionDays int, now time.Time) (*PurgeResult, error) {
	cutoff := now.AddDate(0, 0, -retentionDays)
	result := &PurgeResult{
		RetentionDays: retentionDays,
		CutoffAt:      cutoff,
	}

	terminal := []model.TaskRunStatus{model.RunStatusSuccess, model.RunStatusFailed, model.RunStatusCancelled}

	var runIDs []string
	if err := r.db.WithContext(ctx).Model(&model.TaskRun{}).
		Where("status IN ? AND finished_at IS NOT NULL AND finished_at < ?", terminal, cutoff).
		Pluck("id", &runIDs).Error; err != nil {
		return nil, errs.NewStore("purge_select_runs", err)
	}

	if len(runIDs) > 0 {
		res := r.db.WithContext(ctx).Where("run_id IN ?", runIDs).Delete(&model.TaskRunLog{})
		if res.Error != nil {
			return nil, errs.NewStore("purge_run_logs", res.Error)
		}
		result.DeletedRunLogs = res.RowsAffected

		res = r.db.WithContext(ctx).Where("id IN ?", runIDs).Delete(&model.TaskRun{})
		if res.Error != nil {
			return nil, errs.NewStore("purge_runs", res.Error)
		}
		result.DeletedRuns = res.RowsAffected
	}

	res := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&model.TaskAuditLog{})
	if res.Error != nil {
		return nil, errs.NewStore("purge_audit_logs", res.Error)
	}
	result.DeletedAuditLogs = res.RowsAffected

	return result, nil
}
