package service

import (
	"context"
	"fmt"

	"github.com/genc-murat/tactilesql-scheduler/config"
	"github.com/genc-murat/tactilesql-scheduler/internal/errs"
	"github.com/genc-murat/tactilesql-scheduler/internal/model"
	"github.com/genc-murat/tactilesql-scheduler/internal/repository"
	"github.com/genc-murat/tactilesql-scheduler/pkg/logger"
	"github.com/genc-murat/tactilesql-scheduler/pkg/utils"
)

// TaskService is the CRUD and inspection surface for task definitions,
// triggers, runs and audit logs.
type TaskService interface {
	CreateTask(ctx context.Context, task *model.TaskDefinition, actor string) (*model.TaskDefinition, error)
	GetTask(ctx context.Context, id string) (*model.TaskDefinition, error)
	ListTasks(ctx context.Context, param *model.GetTaskParam) ([]model.TaskDefinition, error)
	UpdateTask(ctx context.Context, task *model.TaskDefinition, actor string) (*model.TaskDefinition, error)
	DeleteTask(ctx context.Context, id, actor string) error

	CreateTrigger(ctx context.Context, trigger *model.TaskTrigger, actor string) (*model.TaskTrigger, error)
	GetTrigger(ctx context.Context, id string) (*model.TaskTrigger, error)
	ListTriggers(ctx context.Context, param *model.GetTriggerParam) ([]model.TaskTrigger, error)
	UpdateTrigger(ctx context.Context, trigger *model.TaskTrigger, actor string) (*model.TaskTrigger, error)
	DeleteTrigger(ctx context.Context, id, actor string) error

	ListRuns(ctx context.Context, taskID string, limit int) ([]model.TaskRun, error)
	GetRunLogs(ctx context.Context, runID string, limit int) ([]model.TaskRunLog, error)
	ListAuditLogs(ctx context.Context, param *model.GetAuditLogParam) ([]model.TaskAuditLog, error)
}

type taskService struct {
	cfg         *config.Config
	log         *logger.Logger
	taskRepo    repository.TaskRepository
	triggerRepo repository.TriggerRepository
	runRepo     repository.RunRepository
	uow         repository.UnitOfWork
}

func NewTaskService(cfg *config.Config, log *logger.Logger, repo *repository.Repository) TaskService {
	return &taskService{
		cfg:         cfg,
		log:         log,
		taskRepo:    repo.TaskRepo,
		triggerRepo: repo.TriggerRepo,
		runRepo:     repo.RunRepo,
		uow:         repo.UnitOfWork,
	}
}

func (s *taskService) CreateTask(ctx context.Context, task *model.TaskDefinition, actor string) (*model.TaskDefinition, error) {
	if task.Name == "" {
		return nil, errs.NewValidation("task name must not be empty")
	}
	if task.TaskType == "" {
		return nil, errs.NewValidation("task type must not be empty")
	}

	if err := s.taskRepo.Create(ctx, task); err != nil {
		return nil, err
	}

	s.audit(ctx, "task_created", &task.ID, actor, fmt.Sprintf("Task %s created", task.Name))
	return task, nil
}

func (s *taskService) GetTask(ctx context.Context, id string) (*model.TaskDefinition, error) {
	if id == "" {
		return nil, errs.NewValidation("task id must not be empty")
	}
	return s.taskRepo.GetByID(ctx, id)
}

func (s *taskService) ListTasks(ctx context.Context, param *model.GetTaskParam) ([]model.TaskDefinition, error) {
	return s.taskRepo.Get(ctx, param)
}

func (s *taskService) UpdateTask(ctx context.Context, task *model.TaskDefinition, actor string) (*model.TaskDefinition, error) {
	if task.ID == "" {
		return nil, errs.NewValidation("task id must not be empty")
	}
	if err := s.taskRepo.Update(ctx, task); err != nil {
		return nil, err
	}
	s.audit(ctx, "task_updated", &task.ID, actor, fmt.Sprintf("Task %s updated", task.ID))
	return s.taskRepo.GetByID(ctx, task.ID)
}

func (s *taskService) DeleteTask(ctx context.Context, id, actor string) error {
	if id == "" {
		return errs.NewValidation("task id must not be empty")
	}
	// The task and its triggers go together in one transaction.
	err := s.uow.Run(func(opts ...utils.DBOption) error {
		if err := s.triggerRepo.DeleteByTask(ctx, id, opts...); err != nil {
			return err
		}
		return s.taskRepo.Delete(ctx, id, opts...)
	})
	if err != nil {
		return err
	}
	s.audit(ctx, "task_deleted", &id, actor, fmt.Sprintf("Task %s deleted", id))
	return nil
}

func (s *taskService) CreateTrigger(ctx context.Context, trigger *model.TaskTrigger, actor string) (*model.TaskTrigger, error) {
	if err := validateTrigger(trigger); err != nil {
		return nil, err
	}
	if _, err := s.taskRepo.GetByID(ctx, trigger.TaskID); err != nil {
		return nil, err
	}

	if err := s.triggerRepo.Create(ctx, trigger); err != nil {
		return nil, err
	}

	s.audit(ctx, "trigger_created", &trigger.TaskID, actor,
		fmt.Sprintf("Trigger %s (%s) created for task %s", trigger.ID, trigger.TriggerType, trigger.TaskID))
	return trigger, nil
}

func (s *taskService) GetTrigger(ctx context.Context, id string) (*model.TaskTrigger, error) {
	if id == "" {
		return nil, errs.NewValidation("trigger id must not be empty")
	}
	return s.triggerRepo.GetByID(ctx, id)
}

func (s *taskService) ListTriggers(ctx context.Context, param *model.GetTriggerParam) ([]model.TaskTrigger, error) {
	return s.triggerRepo.Get(ctx, param)
}

func (s *taskService) UpdateTrigger(ctx context.Context, trigger *model.TaskTrigger, actor string) (*model.TaskTrigger, error) {
	if trigger.ID == "" {
		return nil, errs.NewValidation("trigger id must not be empty")
	}
	if err := validateTrigger(trigger); err != nil {
		return nil, err
	}
	if err := s.triggerRepo.Update(ctx, trigger); err != nil {
		return nil, err
	}
	s.audit(ctx, "trigger_updated", &trigger.TaskID, actor, fmt.Sprintf("Trigger %s updated", trigger.ID))
	return s.triggerRepo.GetByID(ctx, trigger.ID)
}

func (s *taskService) DeleteTrigger(ctx context.Context, id, actor string) error {
	if id == "" {
		return errs.NewValidation("trigger id must not be empty")
	}
	trigger, err := s.triggerRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.triggerRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.audit(ctx, "trigger_deleted", &trigger.TaskID, actor, fmt.Sprintf("Trigger %s deleted", id))
	return nil
}

func (s *taskService) ListRuns(ctx context.Context, taskID string, limit int) ([]model.TaskRun, error) {
	if taskID == "" {
		return nil, errs.NewValidation("task id must not be empty")
	}
	return s.runRepo.ListRunsByTask(ctx, taskID, limit)
}

func (s *taskService) GetRunLogs(ctx context.Context, runID string, limit int) ([]model.TaskRunLog, error) {
	if runID == "" {
		return nil, errs.NewValidation("run id must not be empty")
	}
	return s.runRepo.GetRunLogs(ctx, runID, limit)
}

func (s *taskService) ListAuditLogs(ctx context.Context, param *model.GetAuditLogParam) ([]model.TaskAuditLog, error) {
	return s.runRepo.ListAuditLogs(ctx, param)
}

func (s *taskService) audit(ctx context.Context, eventType string, taskID *string, actor, message string) {
	if err := s.runRepo.AppendAuditLog(ctx, eventType, taskID, actor, message, nil); err != nil {
		s.log.ErrorContext(ctx, "Failed to append audit log",
			logger.ErrorField(err), logger.StringField("event_type", eventType))
	}
}

func validateTrigger(trigger *model.TaskTrigger) error {
	if trigger.TaskID == "" {
		return errs.NewValidation("trigger task_id must not be empty")
	}
	switch trigger.TriggerType {
	case model.TriggerTypeCron:
		if trigger.CronExpression == "" {
			return errs.NewValidation("cron trigger requires a cron expression")
		}
	case model.TriggerTypeInterval:
		if trigger.IntervalSeconds <= 0 {
			return errs.NewValidation("interval trigger requires a positive interval_seconds")
		}
	case model.TriggerTypeRunAt:
		if !trigger.RunAt.Valid {
			return errs.NewValidation("run_at trigger requires a run_at timestamp")
		}
	default:
		return errs.NewValidation("unknown trigger type %q", trigger.TriggerType)
	}

	switch trigger.MisfirePolicy {
	case model.MisfireFireNow, model.MisfireSkip, model.MisfireReschedule:
	case "":
		trigger.MisfirePolicy = model.MisfireFireNow
	default:
		return errs.NewValidation("unknown misfire policy %q", trigger.MisfirePolicy)
	}

	if trigger.MaxAttempts < 0 {
		return errs.NewValidation("max_attempts must not be negative")
	}
	if trigger.BackoffMs < 0 {
		return errs.NewValidation("backoff_ms must not be negative")
	}
	return nil
}
