package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/genc-murat/tactilesql-scheduler/config"
	"github.com/genc-murat/tactilesql-scheduler/internal/errs"
	"github.com/genc-murat/tactilesql-scheduler/internal/model"
	"github.com/genc-murat/tactilesql-scheduler/pkg/cache"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SystemParamRepository interface {
	Get(ctx context.Context, name string, destValue interface{}) error
	Set(ctx context.Context, name string, value interface{}) error
	GetRetentionDays(ctx context.Context) (int, error)
}

type systemParamRepository struct {
	cfg           *config.Config
	inmemoryCache cache.Cache
	db            *gorm.DB
}

func NewSystemParamRepository(cfg *config.Config, inmemoryCache cache.Cache, db *gorm.DB) SystemParamRepository {
	return &systemParamRepository{cfg: cfg, inmemoryCache: inmemoryCache, db: db}
}

func (s *systemParamRepository) Get(ctx context.Context, name string, destValue interface{}) error {
	var param model.SystemParameter

	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&param).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errs.NewNotFound("system_parameter", name)
		}
		return errs.NewStore("get_system_param", err)
	}
	return json.Unmarshal(param.Value, destValue)
}

func (s *systemParamRepository) Set(ctx context.Context, name string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errs.NewStore("marshal_system_param", err)
	}

	var param model.SystemParameter
	err = s.db.WithContext(ctx).Where("name = ?", name).First(&param).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		param = model.SystemParameter{Name: name, Value: datatypes.JSON(raw)}
		if err := s.db.WithContext(ctx).Create(&param).Error; err != nil {
			return errs.NewStore("create_system_param", err)
		}
	case err != nil:
		return errs.NewStore("get_system_param", err)
	default:
		if err := s.db.WithContext(ctx).Model(&param).Update("value", datatypes.JSON(raw)).Error; err != nil {
			return errs.NewStore("update_system_param", err)
		}
	}

	s.inmemoryCache.Delete(name)
	return nil
}

// GetRetentionDays reads the retention policy, falling back to the
// configured default when the parameter is absent. Cached briefly so the
// hourly purge and the HTTP surface do not hammer the store.
func (s *systemParamRepository) GetRetentionDays(ctx context.Context) (int, error) {
	if val, found := cache.GetFromCache[int](model.SysParamHistoryRetentionDays); found {
		return val, nil
	}

	var days int
	if err := s.Get(ctx, model.SysParamHistoryRetentionDays, &days); err != nil {
		var notFound *errs.NotFoundError
		if errors.As(err, &notFound) {
			return s.cfg.Retention.DefaultDays, nil
		}
		return 0, err
	}

	s.inmemoryCache.Set(model.SysParamHistoryRetentionDays, days, s.cfg.Cache.SysParamExpDuration)
	return days, nil
}
