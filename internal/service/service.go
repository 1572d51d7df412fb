package service

import (
	"github.com/genc-murat/tactilesql-scheduler/config"
	"github.com/genc-murat/tactilesql-scheduler/internal/event"
	"github.com/genc-murat/tactilesql-scheduler/internal/repository"
	"github.com/genc-murat/tactilesql-scheduler/internal/strategy"
	"github.com/genc-murat/tactilesql-scheduler/pkg/httpclient"
	"github.com/genc-murat/tactilesql-scheduler/pkg/logger"

	"gorm.io/gorm"
)

type Service struct {
	SchedulerService SchedulerService
	TaskService      TaskService
	RetentionService RetentionService
	TaskExecutor     TaskExecutor
}

func NewService(
	cfg *config.Config,
	log *logger.Logger,
	repo *repository.Repository,
	db *gorm.DB,
	sink event.Sink,
) *Service {
	httpClient := httpclient.New("", cfg.Executor.HTTPTimeout, "")

	executorStrategies := make(map[strategy.TaskType]strategy.TaskExecutionStrategy)
	executorStrategies[strategy.TaskTypeSQLScript] = strategy.NewSQLScriptStrategy(cfg, log, db)
	executorStrategies[strategy.TaskTypeHTTPRequest] = strategy.NewHTTPRequestStrategy(cfg, log, httpClient)
	executorStrategies[strategy.TaskTypeNoop] = strategy.NewNoopStrategy()

	taskExecutor := NewTaskExecutor(cfg, log, executorStrategies)
	schedulerService := NewSchedulerService(cfg, log, repo, taskExecutor, sink)
	taskService := NewTaskService(cfg, log, repo)
	retentionService := NewRetentionService(cfg, log, repo, sink)

	return &Service{
		SchedulerService: schedulerService,
		TaskService:      taskService,
		RetentionService: retentionService,
		TaskExecutor:     taskExecutor,
	}
}
