package service

import (
	"context"

	"github.com/genc-murat/tactilesql-scheduler/config"
	"github.com/genc-murat/tactilesql-scheduler/internal/errs"
	"github.com/genc-murat/tactilesql-scheduler/internal/model"
	"github.com/genc-murat/tactilesql-scheduler/internal/strategy"
	"github.com/genc-murat/tactilesql-scheduler/pkg/logger"
)

// TaskExecutor is the boundary the dispatcher uses to run a task. The
// scheduler treats it as opaque: it routes by task type and interprets
// nothing else about the payload.
type TaskExecutor interface {
	Execute(ctx context.Context, task *model.TaskDefinition, runID string) (strategy.ExecutionMetadata, error)
}

type taskExecutor struct {
	cfg                *config.Config
	log                *logger.Logger
	executorStrategies map[strategy.TaskType]strategy.TaskExecutionStrategy
}

func NewTaskExecutor(cfg *config.Config, log *logger.Logger, executorStrategies map[strategy.TaskType]strategy.TaskExecutionStrategy) TaskExecutor {
	return &taskExecutor{
		cfg:                cfg,
		log:                log,
		executorStrategies: executorStrategies,
	}
}

func (t *taskExecutor) Execute(ctx context.Context, task *model.TaskDefinition, runID string) (strategy.ExecutionMetadata, error) {
	t.log.DebugContext(ctx, "Executing task",
		logger.StringField("task_id", task.ID),
		logger.StringField("task_type", task.TaskType),
		logger.StringField("run_id", runID),
	)

	strat := t.executorStrategies[strategy.TaskType(task.TaskType)]
	if strat == nil {
		return strategy.ExecutionMetadata{ExitCode: strategy.TASK_EXIT_CODE_FAILED},
			errs.NewExecution("no executor registered for task type " + task.TaskType)
	}

	if t.cfg.Executor.DefaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Executor.DefaultTimeout)
		defer cancel()
	}

	return strat.Execute(ctx, task)
}
