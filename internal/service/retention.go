package service

import (
	"context"
	"fmt"

	"github.com/genc-murat/tactilesql-scheduler/config"
	"github.com/genc-murat/tactilesql-scheduler/internal/errs"
	"github.com/genc-murat/tactilesql-scheduler/internal/event"
	"github.com/genc-murat/tactilesql-scheduler/internal/model"
	"github.com/genc-murat/tactilesql-scheduler/internal/repository"
	"github.com/genc-murat/tactilesql-scheduler/pkg/logger"
	"github.com/genc-murat/tactilesql-scheduler/pkg/utils"
)

// RetentionService owns the retention-days policy and manual purges.
type RetentionService interface {
	GetRetentionDays(ctx context.Context) (int, error)
	SetRetentionDays(ctx context.Context, days int, actor string) error
	ForcePurge(ctx context.Context, daysOverride *int, actor string) (*repository.PurgeResult, error)
}

type retentionService struct {
	cfg          *config.Config
	log          *logger.Logger
	runRepo      repository.RunRepository
	sysParamRepo repository.SystemParamRepository
	sink         event.Sink
}

func NewRetentionService(cfg *config.Config, log *logger.Logger, repo *repository.Repository, sink event.Sink) RetentionService {
	return &retentionService{
		cfg:          cfg,
		log:          log,
		runRepo:      repo.RunRepo,
		sysParamRepo: repo.SystemParamRepo,
		sink:         sink,
	}
}

func (s *retentionService) GetRetentionDays(ctx context.Context) (int, error) {
	return s.sysParamRepo.GetRetentionDays(ctx)
}

func (s *retentionService) SetRetentionDays(ctx context.Context, days int, actor string) error {
	if days <= 0 {
		return errs.NewValidation("retention days must be positive, got %d", days)
	}

	previous, err := s.sysParamRepo.GetRetentionDays(ctx)
	if err != nil {
		return err
	}

	if err := s.sysParamRepo.Set(ctx, model.SysParamHistoryRetentionDays, days); err != nil {
		return err
	}

	if err := s.runRepo.AppendAuditLog(ctx, "retention_policy_changed", nil, actor,
		fmt.Sprintf("Retention policy changed from %d to %d days", previous, days),
		mustJSON(map[string]interface{}{"from": previous, "to": days})); err != nil {
		s.log.ErrorContext(ctx, "Failed to audit retention change", logger.ErrorField(err))
	}

	s.sink.Publish(event.Event{
		Type:    event.TypeRetentionChange,
		Payload: map[string]interface{}{"from": previous, "to": days, "actor": actor},
		At:      utils.TimeNowUTC(),
	})
	return nil
}

func (s *retentionService) ForcePurge(ctx context.Context, daysOverride *int, actor string) (*repository.PurgeResult, error) {
	days := 0
	if daysOverride != nil {
		if *daysOverride <= 0 {
			return nil, errs.NewValidation("retention days override must be positive, got %d", *daysOverride)
		}
		days = *daysOverride
	} else {
		configured, err := s.sysParamRepo.GetRetentionDays(ctx)
		if err != nil {
			return nil, err
		}
		days = configured
	}

	result, err := s.runRepo.PurgeOldTaskHistory(ctx, days, utils.TimeNowUTC())
	if err != nil {
		return nil, err
	}

	if err := s.runRepo.AppendAuditLog(ctx, "history_purged", nil, actor,
		fmt.Sprintf("Manual purge removed history older than %d days", days),
		mustJSON(result)); err != nil {
		s.log.ErrorContext(ctx, "Failed to audit manual purge", logger.ErrorField(err))
	}

	s.sink.Publish(event.Event{
		Type: event.TypeHistoryPurged,
		Payload: map[string]interface{}{
			"retention_days":     result.RetentionDays,
			"cutoff_at":          result.CutoffAt,
			"deleted_runs":       result.DeletedRuns,
			"deleted_run_logs":   result.DeletedRunLogs,
			"deleted_audit_logs": result.DeletedAuditLogs,
			"actor":              actor,
		},
		At: utils.TimeNowUTC(),
	})
	return result, nil
}
