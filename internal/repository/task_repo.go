package repository

import (
	"context"
	"errors"

	"github.com/genc-murat/tactilesql-scheduler/internal/errs"
	"github.com/genc-murat/tactilesql-scheduler/internal/model"
	"github.com/genc-murat/tactilesql-scheduler/pkg/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TaskRepository interface {
	Create(ctx context.Context, task *model.TaskDefinition, opts ...utils.DBOption) error
	GetByID(ctx context.Context, id string, opts ...utils.DBOption) (*model.TaskDefinition, error)
	Get(ctx context.Context, param *model.GetTaskParam, opts ...utils.DBOption) ([]model.TaskDefinition, error)
	Update(ctx context.Context, task *model.TaskDefinition, opts ...utils.DBOption) error
	Delete(ctx context.Context, id string, opts ...utils.DBOption) error
	Exists(ctx context.Context, id string) (bool, error)
}

type taskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{db: db}
}

func (r *taskRepository) Create(ctx context.Context, task *model.TaskDefinition, opts ...utils.DBOption) error {
	if task.ID == "" {
		task.ID = "tsk_" + uuid.NewString()
	}
	if task.Status == "" {
		task.Status = model.TaskStatusActive
	}
	if err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).Create(task).Error; err != nil {
		return errs.NewStore("create_task", err)
	}
	return nil
}

func (r *taskRepository) GetByID(ctx context.Context, id string, opts ...utils.DBOption) (*model.TaskDefinition, error) {
	var task model.TaskDefinition
	err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).First(&task, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NewNotFound("task", id)
		}
		return nil, errs.NewStore("get_task", err)
	}
	return &task, nil
}

func (r *taskRepository) Get(ctx context.Context, param *model.GetTaskParam, opts ...utils.DBOption) ([]model.TaskDefinition, error) {
	var tasks []model.TaskDefinition
	db := utils.ApplyOptions(r.db.WithContext(ctx), opts...).Model(&model.TaskDefinition{})
	if len(param.IDs) > 0 {
		db = db.Where("id IN ?", param.IDs)
	}
	if param.Status != nil {
		db = db.Where("status = ?", *param.Status)
	}
	if param.TaskType != nil {
		db = db.Where("task_type = ?", *param.TaskType)
	}
	if param.Limit != nil {
		db = db.Limit(*param.Limit)
	}
	if err := db.Order("created_at DESC").Find(&tasks).Error; err != nil {
		return nil, errs.NewStore("list_tasks", err)
	}
	return tasks, nil
}

func (r *taskRepository) Update(ctx context.Context, task *model.TaskDefinition, opts ...utils.DBOption) error {
	res := utils.ApplyOptions(r.db.WithContext(ctx), opts...).Model(task).Updates(task)
	if res.Error != nil {
		return errs.NewStore("update_task", res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.NewNotFound("task", task.ID)
	}
	return nil
}

func (r *taskRepository) Delete(ctx context.Context, id string, opts ...utils.DBOption) error {
	res := utils.ApplyOptions(r.db.WithContext(ctx), opts...).Delete(&model.TaskDefinition{}, "id = ?", id)
	if res.Error != nil {
		return errs.NewStore("delete_task", res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.NewNotFound("task", id)
	}
	return nil
}

func (r *taskRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.TaskDefinition{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, errs.NewStore("task_exists", err)
	}
	return count > 0, nil
}
