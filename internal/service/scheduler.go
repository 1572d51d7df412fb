package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/genc-murat/tactilesql-scheduler/config"
	"github.com/genc-murat/tactilesql-scheduler/internal/errs"
	"github.com/genc-murat/tactilesql-scheduler/internal/event"
	"github.com/genc-murat/tactilesql-scheduler/internal/model"
	"github.com/genc-murat/tactilesql-scheduler/internal/repository"
	"github.com/genc-murat/tactilesql-scheduler/internal/schedule"
	"github.com/genc-murat/tactilesql-scheduler/pkg/logger"
	"github.com/genc-murat/tactilesql-scheduler/pkg/redact"
	"github.com/genc-murat/tactilesql-scheduler/pkg/utils"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// SchedulerState is the process-wide run state of the tick loop.
type SchedulerState string

const (
	StateRunning  SchedulerState = "running"
	StatePaused   SchedulerState = "paused"
	StateDisabled SchedulerState = "disabled"
)

func (s SchedulerState) Valid() bool {
	switch s {
	case StateRunning, StatePaused, StateDisabled:
		return true
	}
	return false
}

type SchedulerService interface {
	// Run drives the tick loop until the context is cancelled.
	Run(ctx context.Context)
	// Tick performs one scheduling pass: state check, optional purge,
	// claim, dispatch.
	Tick(ctx context.Context) error

	State() SchedulerState
	SetState(ctx context.Context, state SchedulerState, actor string) error
	SchedulerID() string

	RunTaskNow(ctx context.Context, taskID, actor string) (*model.TaskRun, error)
	CancelRun(ctx context.Context, runID, actor string) (*model.TaskRun, error)
	RetryRun(ctx context.Context, runID, actor string) (*model.TaskRun, error)
}

type schedulerService struct {
	cfg          *config.Config
	log          *logger.Logger
	taskRepo     repository.TaskRepository
	triggerRepo  repository.TriggerRepository
	runRepo      repository.RunRepository
	sysParamRepo repository.SystemParamRepository
	taskExecutor TaskExecutor
	sink         event.Sink

	schedulerID string
	semaphore   chan struct{}

	mu    sync.RWMutex
	state SchedulerState

	lastPurge time.Time
}

func NewSchedulerService(
	cfg *config.Config,
	log *logger.Logger,
	repo *repository.Repository,
	taskExecutor TaskExecutor,
	sink event.Sink,
) *schedulerService {
	return &schedulerService{
		cfg:          cfg,
		log:          log,
		taskRepo:     repo.TaskRepo,
		triggerRepo:  repo.TriggerRepo,
		runRepo:      repo.RunRepo,
		sysParamRepo: repo.SystemParamRepo,
		taskExecutor: taskExecutor,
		sink:         sink,
		schedulerID:  "sched_" + uuid.NewString(),
		semaphore:    make(chan struct{}, cfg.Scheduler.MaxConcurrency),
		state:        StateRunning,
	}
}

func (s *schedulerService) SchedulerID() string {
	return s.schedulerID
}

func (s *schedulerService) State() SchedulerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *schedulerService) SetState(ctx context.Context, state SchedulerState, actor string) error {
	if !state.Valid() {
		return errs.NewValidation("invalid scheduler state %q", state)
	}

	s.mu.Lock()
	previous := s.state
	s.state = state
	s.mu.Unlock()

	if err := s.runRepo.AppendAuditLog(ctx, "scheduler_state_changed", nil, actor,
		fmt.Sprintf("Scheduler state changed from %s to %s", previous, state),
		mustJSON(map[string]interface{}{"from": previous, "to": state})); err != nil {
		s.log.ErrorContext(ctx, "Failed to audit scheduler state change", logger.ErrorField(err))
	}

	s.sink.Publish(event.Event{
		Type:        event.TypeSchedulerState,
		SchedulerID: s.schedulerID,
		Payload:     map[string]interface{}{"from": string(previous), "to": string(state)},
		At:          utils.TimeNowUTC(),
	})
	return nil
}

func (s *schedulerService) Run(ctx context.Context) {
	s.log.Info("Scheduler loop starting",
		logger.StringField("scheduler_id", s.schedulerID),
		logger.DurationField("tick_interval", s.cfg.Scheduler.TickInterval),
		logger.IntField("claim_batch_size", s.cfg.Scheduler.ClaimBatchSize),
	)

	ticker := time.NewTicker(s.cfg.Scheduler.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Scheduler loop stopped", logger.StringField("scheduler_id", s.schedulerID))
			return
		case <-ticker.C:
			// Tick errors are already logged and recorded; the loop
			// must never stop ticking because of them.
			if err := s.Tick(ctx); err != nil {
				s.log.ErrorContext(ctx, "Tick finished with error", logger.ErrorField(err))
			}
		}
	}
}

func (s *schedulerService) Tick(ctx context.Context) error {
	now := utils.TimeNowUTC()
	state := s.State()

	if state != StateRunning {
		s.publishTick(state, 0, now)
		return nil
	}

	s.maybePurge(ctx, now)

	claimed, err := s.triggerRepo.ClaimDueTriggers(ctx, s.schedulerID, now, s.cfg.Scheduler.ClaimBatchSize, s.cfg.Scheduler.ClaimTTL)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to claim due triggers", logger.ErrorField(err))
		s.publishTick(state, 0, now)
		return fmt.Errorf("failed to claim due triggers: %w", err)
	}

	s.publishTick(state, len(claimed), now)

	if len(claimed) == 0 {
		return nil
	}

	s.log.InfoContext(ctx, "Dispatching claimed triggers",
		logger.StringField("scheduler_id", s.schedulerID),
		logger.IntField("claimed", len(claimed)),
		logger.IntField("max_concurrency", cap(s.semaphore)),
	)

	for _, trg := range claimed {
		if !utils.ShouldContinue(ctx, s.log) {
			return nil
		}
		trg := trg
		s.semaphore <- struct{}{}
		utils.GoSafe(func() {
			defer func() { <-s.semaphore }()
			s.dispatchTrigger(ctx, trg, now)
		})
	}

	return nil
}

func (s *schedulerService) publishTick(state SchedulerState, claimed int, now time.Time) {
	s.sink.Publish(event.Event{
		Type:        event.TypeSchedulerTick,
		SchedulerID: s.schedulerID,
		Payload: map[string]interface{}{
			"state":            string(state),
			"claimed_triggers": claimed,
			"ticked_at":        now,
		},
		At: now,
	})
}

// maybePurge runs the retention purge on a coarse interval. Purge
// failures are logged and never abort the tick.
func (s *schedulerService) maybePurge(ctx context.Context, now time.Time) {
	if now.Sub(s.lastPurge) < s.cfg.Scheduler.PurgeEvery {
		return
	}
	s.lastPurge = now

	days, err := s.sysParamRepo.GetRetentionDays(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to read retention policy", logger.ErrorField(err))
		return
	}

	result, err := s.runRepo.PurgeOldTaskHistory(ctx, days, now)
	if err != nil {
		s.log.ErrorContext(ctx, "Retention purge failed", logger.ErrorField(err))
		return
	}

	s.log.InfoContext(ctx, "Retention purge completed",
		logger.IntField("retention_days", result.RetentionDays),
		logger.IntField("deleted_runs", int(result.DeletedRuns)),
		logger.IntField("deleted_run_logs", int(result.DeletedRunLogs)),
		logger.IntField("deleted_audit_logs", int(result.DeletedAuditLogs)),
	)

	if err := s.runRepo.AppendAuditLog(ctx, "history_purged", nil, s.schedulerID,
		fmt.Sprintf("Purged task history older than %d days", result.RetentionDays),
		mustJSON(result)); err != nil {
		s.log.ErrorContext(ctx, "Failed to audit history purge", logger.ErrorField(err))
	}

	s.sink.Publish(event.Event{
		Type:        event.TypeHistoryPurged,
		SchedulerID: s.schedulerID,
		Payload: map[string]interface{}{
			"retention_days":     result.RetentionDays,
			"cutoff_at":          result.CutoffAt,
			"deleted_runs":       result.DeletedRuns,
			"deleted_run_logs":   result.DeletedRunLogs,
			"deleted_audit_logs": result.DeletedAuditLogs,
		},
		At: now,
	})
}

// dispatchTrigger runs the per-trigger state machine: misfire check,
// then sequential attempts with linear backoff until success or
// exhaustion. Store-level failures release the claim so another tick can
// reclaim the trigger.
func (s *schedulerService) dispatchTrigger(ctx context.Context, trg model.TaskTrigger, dispatchTime time.Time) {
	scheduledAt := dispatchTime
	if trg.NextRunAt.Valid {
		scheduledAt = trg.NextRunAt.Time
	}

	decision := schedule.MisfireDecision(scheduledAt, dispatchTime, trg.MisfirePolicy, s.cfg.Scheduler.MisfireGrace)
	if decision == schedule.DecisionSkipToFuture {
		updated, err := s.triggerRepo.HandleMisfire(ctx, trg.ID, dispatchTime)
		if err != nil {
			s.releaseAfterFailure(ctx, trg.ID, "handle misfire", err)
			return
		}
		s.log.WarnContext(ctx, "Trigger misfire handled",
			logger.StringField("trigger_id", trg.ID),
			logger.StringField("task_id", trg.TaskID),
			logger.DurationField("lateness", dispatchTime.Sub(scheduledAt)),
		)
		s.sink.Publish(event.Event{
			Type:        event.TypeMisfireHandled,
			SchedulerID: s.schedulerID,
			TaskID:      trg.TaskID,
			TriggerID:   trg.ID,
			Payload: map[string]interface{}{
				"policy":      string(trg.MisfirePolicy),
				"lateness_ms": dispatchTime.Sub(scheduledAt).Milliseconds(),
				"next_run_at": nullableTime(updated.NextRunAt),
			},
			At: utils.TimeNowUTC(),
		})
		return
	}

	task, err := s.taskRepo.GetByID(ctx, trg.TaskID)
	if err != nil {
		s.releaseAfterFailure(ctx, trg.ID, "load task", err)
		return
	}

	s.sink.Publish(event.Event{
		Type:        event.TypeTaskDispatched,
		SchedulerID: s.schedulerID,
		TaskID:      task.ID,
		TriggerID:   trg.ID,
		Payload:     map[string]interface{}{"scheduled_at": scheduledAt},
		At:          utils.TimeNowUTC(),
	})

	var lastErr string
	for attempt := 1; ; attempt++ {
		run, execErr := s.runAttempt(ctx, task, &trg, attempt)
		if execErr == nil && run != nil && run.Status == model.RunStatusSuccess {
			if _, err := s.triggerRepo.FinalizeAfterDispatch(ctx, trg.ID, dispatchTime); err != nil {
				s.log.ErrorContext(ctx, "Failed to finalize trigger after dispatch",
					logger.ErrorField(err), logger.StringField("trigger_id", trg.ID))
			}
			return
		}
		if run == nil {
			// Store-level failure before the attempt could be recorded.
			s.releaseAfterFailure(ctx, trg.ID, "run attempt", execErr)
			return
		}
		if run.Status == model.RunStatusCancelled {
			// Operator cancelled the run between attempts; stop retrying.
			lastErr = "run cancelled"
			break
		}

		lastErr = run.ErrorMessage.String
		if !schedule.CanRetry(attempt, trg.MaxAttempts) {
			break
		}

		delay := schedule.RetryDelay(trg.BackoffMs, attempt)
		s.log.InfoContext(ctx, "Retrying task after backoff",
			logger.StringField("task_id", task.ID),
			logger.StringField("trigger_id", trg.ID),
			logger.IntField("attempt", attempt),
			logger.DurationField("backoff", delay),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			s.releaseAfterFailure(ctx, trg.ID, "context cancelled", ctx.Err())
			return
		}
	}

	// All attempts exhausted (or cancelled): advance the schedule anyway.
	if _, err := s.triggerRepo.FinalizeAfterDispatch(ctx, trg.ID, dispatchTime); err != nil {
		s.log.ErrorContext(ctx, "Failed to finalize trigger after exhausted attempts",
			logger.ErrorField(err), logger.StringField("trigger_id", trg.ID))
	}
	s.log.WarnContext(ctx, "Trigger dispatch exhausted all attempts",
		logger.StringField("task_id", trg.TaskID),
		logger.StringField("trigger_id", trg.ID),
		logger.IntField("max_attempts", trg.MaxAttempts),
		logger.StringField("last_error", lastErr),
	)
}

// runAttempt records and executes a single attempt. A nil run in the
// return signals a store-level failure; an execution failure comes back
// as a run in failed state.
func (s *schedulerService) runAttempt(ctx context.Context, task *model.TaskDefinition, trg *model.TaskTrigger, attempt int) (*model.TaskRun, error) {
	startedAt := utils.TimeNowUTC()
	run := &model.TaskRun{
		TaskID:    task.ID,
		TriggerID: sql.NullString{String: trg.ID, Valid: true},
		Attempt:   attempt,
		Status:    model.RunStatusQueued,
		StartedAt: startedAt,
		Metadata: mustJSON(map[string]interface{}{
			"origin":       "scheduler",
			"scheduler_id": s.schedulerID,
			"trigger_id":   trg.ID,
			"attempt":      attempt,
		}),
	}

	if err := s.runRepo.CreateTaskRun(ctx, run); err != nil {
		s.log.ErrorContext(ctx, "Failed to create task run", logger.ErrorField(err),
			logger.StringField("task_id", task.ID), logger.StringField("trigger_id", trg.ID))
		return nil, err
	}

	if err := s.runRepo.AppendRunLog(ctx, run.ID, task.ID, "info",
		fmt.Sprintf("Task dispatched by scheduler (attempt %d)", attempt), nil); err != nil {
		s.log.ErrorContext(ctx, "Failed to append run log", logger.ErrorField(err))
	}

	started, err := s.runRepo.UpdateTaskRunStatus(ctx, run.ID, model.RunStatusRunning, nil, nil)
	if err != nil {
		return nil, err
	}
	if started.Status != model.RunStatusRunning {
		// Cancelled in the window between creation and start. The
		// ledger kept the terminal record, so do not execute.
		return started, nil
	}
	run.Status = model.RunStatusRunning

	s.sink.Publish(event.Event{
		Type:        event.TypeRunStarted,
		SchedulerID: s.schedulerID,
		TaskID:      task.ID,
		TriggerID:   trg.ID,
		RunID:       run.ID,
		Payload:     map[string]interface{}{"attempt": attempt},
		At:          startedAt,
	})

	meta, execErr := s.taskExecutor.Execute(ctx, task, run.ID)
	duration := utils.TimeNowUTC().Sub(startedAt)

	if execErr == nil {
		updated, err := s.runRepo.UpdateTaskRunStatus(ctx, run.ID, model.RunStatusSuccess, nil, mustJSON(meta))
		if err != nil {
			return nil, err
		}
		if err := s.runRepo.AppendRunLog(ctx, run.ID, task.ID, "info", "Task completed successfully", nil); err != nil {
			s.log.ErrorContext(ctx, "Failed to append run log", logger.ErrorField(err))
		}
		s.publishRunFinished(updated, trg.ID, duration, "")
		return updated, nil
	}

	msg := redact.Error(execErr)
	updated, err := s.runRepo.UpdateTaskRunStatus(ctx, run.ID, model.RunStatusFailed, &msg, mustJSON(meta))
	if err != nil {
		return nil, err
	}
	if err := s.runRepo.AppendRunLog(ctx, run.ID, task.ID, "error", "Task failed: "+msg, nil); err != nil {
		s.log.ErrorContext(ctx, "Failed to append run log", logger.ErrorField(err))
	}
	s.publishRunFinished(updated, trg.ID, duration, msg)
	return updated, nil
}

func (s *schedulerService) publishRunFinished(run *model.TaskRun, triggerID string, duration time.Duration, errMsg string) {
	payload := map[string]interface{}{
		"status":      string(run.Status),
		"attempt":     run.Attempt,
		"duration_ms": duration.Milliseconds(),
	}
	if errMsg != "" {
		payload["error"] = errMsg
	}
	s.sink.Publish(event.Event{
		Type:        event.TypeRunFinished,
		SchedulerID: s.schedulerID,
		TaskID:      run.TaskID,
		TriggerID:   triggerID,
		RunID:       run.ID,
		Payload:     payload,
		At:          utils.TimeNowUTC(),
	})
}

// releaseAfterFailure gives a trigger back after an infrastructure
// failure so another tick can retry it.
func (s *schedulerService) releaseAfterFailure(ctx context.Context, triggerID, during string, cause error) {
	s.log.ErrorContext(ctx, "Releasing trigger claim after store failure",
		logger.StringField("trigger_id", triggerID),
		logger.StringField("during", during),
		logger.ErrorField(cause),
	)
	if err := s.triggerRepo.ReleaseClaim(ctx, triggerID, s.schedulerID); err != nil {
		s.log.ErrorContext(ctx, "Failed to release trigger claim", logger.ErrorField(err),
			logger.StringField("trigger_id", triggerID))
	}
}

func (s *schedulerService) RunTaskNow(ctx context.Context, taskID, actor string) (*model.TaskRun, error) {
	task, err := s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	run := &model.TaskRun{
		TaskID:    task.ID,
		Attempt:   1,
		Status:    model.RunStatusQueued,
		StartedAt: utils.TimeNowUTC(),
		Metadata: mustJSON(map[string]interface{}{
			"origin": "manual",
			"actor":  actor,
		}),
	}
	if err := s.runRepo.CreateTaskRun(ctx, run); err != nil {
		return nil, err
	}

	if err := s.runRepo.AppendRunLog(ctx, run.ID, task.ID, "info", "Manual run requested", nil); err != nil {
		s.log.ErrorContext(ctx, "Failed to append run log", logger.ErrorField(err))
	}
	if err := s.runRepo.AppendAuditLog(ctx, "task_run_manual", &task.ID, actor,
		fmt.Sprintf("Manual run of task %s requested", task.Name),
		mustJSON(map[string]interface{}{"run_id": run.ID})); err != nil {
		s.log.ErrorContext(ctx, "Failed to audit manual run", logger.ErrorField(err))
	}

	s.executeDetached(task, run)
	return run, nil
}

func (s *schedulerService) CancelRun(ctx context.Context, runID, actor string) (*model.TaskRun, error) {
	run, err := s.runRepo.GetRunByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.IsTerminal() {
		return nil, errs.NewValidation("run %s is already in terminal state %s", runID, run.Status)
	}

	updated, err := s.runRepo.UpdateTaskRunStatus(ctx, runID, model.RunStatusCancelled, nil, nil)
	if err != nil {
		return nil, err
	}

	if err := s.runRepo.AppendRunLog(ctx, runID, run.TaskID, "warn", "Run cancelled by operator", nil); err != nil {
		s.log.ErrorContext(ctx, "Failed to append run log", logger.ErrorField(err))
	}
	if err := s.runRepo.AppendAuditLog(ctx, "task_run_cancelled", &run.TaskID, actor,
		fmt.Sprintf("Run %s cancelled", runID), nil); err != nil {
		s.log.ErrorContext(ctx, "Failed to audit run cancellation", logger.ErrorField(err))
	}

	s.publishRunFinished(updated, run.TriggerID.String, 0, "")
	return updated, nil
}

func (s *schedulerService) RetryRun(ctx context.Context, runID, actor string) (*model.TaskRun, error) {
	previous, err := s.runRepo.GetRunByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !previous.Status.IsTerminal() {
		return nil, errs.NewValidation("Only completed runs can be retried (run %s is %s)", runID, previous.Status)
	}

	task, err := s.taskRepo.GetByID(ctx, previous.TaskID)
	if err != nil {
		return nil, err
	}

	run := &model.TaskRun{
		TaskID:    task.ID,
		TriggerID: previous.TriggerID,
		Attempt:   previous.Attempt + 1,
		Status:    model.RunStatusRunning,
		StartedAt: utils.TimeNowUTC(),
		Metadata: mustJSON(map[string]interface{}{
			"origin":          "manual_retry",
			"actor":           actor,
			"previous_run_id": previous.ID,
		}),
	}
	if err := s.runRepo.CreateTaskRun(ctx, run); err != nil {
		return nil, err
	}

	if err := s.runRepo.AppendRunLog(ctx, run.ID, task.ID, "info",
		fmt.Sprintf("Manual retry of run %s requested (attempt %d)", previous.ID, run.Attempt), nil); err != nil {
		s.log.ErrorContext(ctx, "Failed to append run log", logger.ErrorField(err))
	}
	if err := s.runRepo.AppendAuditLog(ctx, "task_run_retried", &task.ID, actor,
		fmt.Sprintf("Run %s retried as %s", previous.ID, run.ID),
		mustJSON(map[string]interface{}{"previous_run_id": previous.ID, "run_id": run.ID, "attempt": run.Attempt})); err != nil {
		s.log.ErrorContext(ctx, "Failed to audit run retry", logger.ErrorField(err))
	}

	s.executeDetached(task, run)
	return run, nil
}

// executeDetached runs a manual (trigger-less) run on its own bounded
// goroutine. Manual runs get a single attempt; further retries go back
// through RetryRun.
func (s *schedulerService) executeDetached(task *model.TaskDefinition, run *model.TaskRun) {
	s.semaphore <- struct{}{}
	utils.GoSafe(func() {
		defer func() { <-s.semaphore }()

		ctx := context.Background()
		startedAt := utils.TimeNowUTC()

		if run.Status == model.RunStatusQueued {
			started, err := s.runRepo.UpdateTaskRunStatus(ctx, run.ID, model.RunStatusRunning, nil, nil)
			if err != nil {
				s.log.ErrorContext(ctx, "Failed to mark run as running", logger.ErrorField(err),
					logger.StringField("run_id", run.ID))
				return
			}
			if started.Status != model.RunStatusRunning {
				// Cancelled before the run could start; leave the
				// terminal record as-is and never invoke the executor.
				s.log.InfoContext(ctx, "Run finalized before start, skipping execution",
					logger.StringField("run_id", run.ID),
					logger.StringField("status", string(started.Status)))
				return
			}
		}

		s.sink.Publish(event.Event{
			Type:        event.TypeRunStarted,
			SchedulerID: s.schedulerID,
			TaskID:      task.ID,
			RunID:       run.ID,
			Payload:     map[string]interface{}{"attempt": run.Attempt},
			At:          startedAt,
		})

		meta, execErr := s.taskExecutor.Execute(ctx, task, run.ID)
		duration := utils.TimeNowUTC().Sub(startedAt)

		if execErr == nil {
			updated, err := s.runRepo.UpdateTaskRunStatus(ctx, run.ID, model.RunStatusSuccess, nil, mustJSON(meta))
			if err != nil {
				s.log.ErrorContext(ctx, "Failed to finalize manual run", logger.ErrorField(err))
				return
			}
			if err := s.runRepo.AppendRunLog(ctx, run.ID, task.ID, "info", "Task completed successfully", nil); err != nil {
				s.log.ErrorContext(ctx, "Failed to append run log", logger.ErrorField(err))
			}
			s.publishRunFinished(updated, run.TriggerID.String, duration, "")
			return
		}

		msg := redact.Error(execErr)
		updated, err := s.runRepo.UpdateTaskRunStatus(ctx, run.ID, model.RunStatusFailed, &msg, mustJSON(meta))
		if err != nil {
			s.log.ErrorContext(ctx, "Failed to finalize manual run", logger.ErrorField(err))
			return
		}
		if err := s.runRepo.AppendRunLog(ctx, run.ID, task.ID, "error", "Task failed: "+msg, nil); err != nil {
			s.log.ErrorContext(ctx, "Failed to append run log", logger.ErrorField(err))
		}
		s.publishRunFinished(updated, run.TriggerID.String, duration, msg)
	})
}

func mustJSON(v interface{}) datatypes.JSON {
	raw, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON([]byte(`{}`))
	}
	return datatypes.JSON(raw)
}

func nullableTime(t sql.NullTime) interface{} {
	if !t.Valid {
		return nil
	}
	return t.Time
}
