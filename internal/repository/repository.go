package repository

import (
	"github.com/genc-murat/tactilesql-scheduler/config"
	"github.com/genc-murat/tactilesql-scheduler/pkg/cache"
	"github.com/genc-murat/tactilesql-scheduler/pkg/logger"

	"gorm.io/gorm"
)

type Repository struct {
	TaskRepo        TaskRepository
	TriggerRepo     TriggerRepository
	RunRepo         RunRepository
	SystemParamRepo SystemParamRepository
	UnitOfWork      UnitOfWork
}

func NewRepository(cfg *config.Config, inmemoryCache cache.Cache, db *gorm.DB, log *logger.Logger) (*Repository, error) {
	taskRepo := NewTaskRepository(db)

	return &Repository{
		TaskRepo:        taskRepo,
		TriggerRepo:     NewTriggerRepository(db),
		RunRepo:         NewRunRepository(db, taskRepo),
		SystemParamRepo: NewSystemParamRepository(cfg, inmemoryCache, db),
		UnitOfWork:      NewUnitOfWork(db),
	}, nil
}
