package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/genc-murat/tactilesql-scheduler/internal/errs"
	"github.com/genc-murat/tactilesql-scheduler/internal/model"
	"github.com/genc-murat/tactilesql-scheduler/internal/schedule"
	"github.com/genc-murat/tactilesql-scheduler/pkg/utils"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

type TriggerRepository interface {
	Create(ctx context.Context, trigger *model.TaskTrigger, opts ...utils.DBOption) error
	GetByID(ctx context.Context, id string, opts ...utils.DBOption) (*model.TaskTrigger, error)
	Get(ctx context.Context, param *model.GetTriggerParam, opts ...utils.DBOption) ([]model.TaskTrigger, error)
	Update(ctx context.Context, trigger *model.TaskTrigger, opts ...utils.DBOption) error
	Delete(ctx context.Context, id string, opts ...utils.DBOption) error
	// DeleteByTask removes every trigger of a task. Zero rows is fine.
	DeleteByTask(ctx context.Context, taskID string, opts ...utils.DBOption) error

	// ClaimDueTriggers atomically leases up to batchSize claimable
	// triggers for owner, soonest-due first. Triggers lost to a
	// concurrent claimer are silently absent from the result.
	ClaimDueTriggers(ctx context.Context, owner string, now time.Time, batchSize int, ttl time.Duration) ([]model.TaskTrigger, error)

	// ReleaseClaim clears the lease only while owner still holds it.
	// A lease already expired or taken over is not an error.
	ReleaseClaim(ctx context.Context, triggerID, owner string) error

	// FinalizeAfterDispatch advances next_run_at past dispatchTime,
	// stamps last_run_at and clears the claim. One-shot triggers are
	// disabled once fired.
	FinalizeAfterDispatch(ctx context.Context, triggerID string, dispatchTime time.Time) (*model.TaskTrigger, error)

	// HandleMisfire advances next_run_at strictly past now without
	// creating a run and clears the claim.
	HandleMisfire(ctx context.Context, triggerID string, now time.Time) (*model.TaskTrigger, error)
}

type triggerRepository struct {
	db         *gorm.DB
	cronParser cron.Parser
}

func NewTriggerRepository(db *gorm.DB) TriggerRepository {
	return &triggerRepository{
		db:         db,
		cronParser: schedule.NewCronParser(),
	}
}

func (r *triggerRepository) Create(ctx context.Context, trigger *model.TaskTrigger, opts ...utils.DBOption) error {
	if trigger.ID == "" {
		trigger.ID = "trg_" + uuid.NewString()
	}
	if !trigger.NextRunAt.Valid {
		next, ok, err := schedule.NextOccurrence(r.cronParser, trigger, utils.TimeNowUTC())
		if err != nil {
			return errs.NewValidation("invalid trigger schedule: %v", err)
		}
		if ok {
			trigger.NextRunAt = sql.NullTime{Time: next, Valid: true}
		}
	}
	if err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).Create(trigger).Error; err != nil {
		return errs.NewStore("create_trigger", err)
	}
	return nil
}

func (r *triggerRepository) GetByID(ctx context.Context, id string, opts ...utils.DBOption) (*model.TaskTrigger, error) {
	var trigger model.TaskTrigger
	err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).First(&trigger, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NewNotFound("trigger", id)
		}
		return nil, errs.NewStore("get_trigger", err)
	}
	return &trigger, nil
}

func (r *triggerRepository) Get(ctx context.Context, param *model.GetTriggerParam, opts ...utils.DBOption) ([]model.TaskTrigger, error) {
	var triggers []model.TaskTrigger
	db := utils.ApplyOptions(r.db.WithContext(ctx), opts...).Model(&model.TaskTrigger{})
	if len(param.IDs) > 0 {
		db = db.Where("id IN ?", param.IDs)
	}
	if param.TaskID != nil {
		db = db.Where("task_id = ?", *param.TaskID)
	}
	if param.Enabled != nil {
		db = db.Where("enabled = ?", *param.Enabled)
	}
	if param.Limit != nil {
		db = db.Limit(*param.Limit)
	}
	if err := db.Order("created_at DESC").Find(&triggers).Error; err != nil {
		return nil, errs.NewStore("list_triggers", err)
	}
	return triggers, nil
}

func (r *triggerRepository) Update(ctx context.Context, trigger *model.TaskTrigger, opts ...utils.DBOption) error {
	res := utils.ApplyOptions(r.db.WithContext(ctx), opts...).Model(trigger).Updates(trigger)
	if res.Error != nil {
		return errs.NewStore("update_trigger", res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.NewNotFound("trigger", trigger.ID)
	}
	return nil
}

func (r *triggerRepository) Delete(ctx context.Context, id string, opts ...utils.DBOption) error {
	res := utils.ApplyOptions(r.db.WithContext(ctx), opts...).Delete(&model.TaskTrigger{}, "id = ?", id)
	if res.Error != nil {
		return errs.NewStore("delete_trigger", res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.NewNotFound("trigger", id)
	}
	return nil
}

func (r *triggerRepository) DeleteByTask(ctx context.Context, taskID string, opts ...utils.DBOption) error {
	if err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Delete(&model.TaskTrigger{}, "task_id = ?", taskID).Error; err != nil {
		return errs.NewStore("delete_task_triggers", err)
	}
	return nil
}

func (r *triggerRepository) ClaimDueTriggers(ctx context.Context, owner string, now time.Time, batchSize int, ttl time.Duration) ([]model.TaskTrigger, error) {
	var candidates []model.TaskTrigger
	err := r.db.WithContext(ctx).
		Where("enabled = ? AND next_run_at IS NOT NULL AND next_run_at <= ? AND (claim_owner IS NULL OR claim_until < ?)",
			true, now, now).
		Order("next_run_at ASC, id ASC").
		Limit(batchSize).
		Find(&candidates).Error
	if err != nil {
		return nil, errs.NewStore("claim_due_triggers", err)
	}

	claimUntil := now.Add(ttl)
	claimed := make([]model.TaskTrigger, 0, len(candidates))
	for _, cand := range candidates {
		// Single conditional UPDATE per trigger: the claimable check is
		// re-evaluated inside the statement, so two concurrent claimers
		// can never both win the same unexpired lease.
		res := r.db.WithContext(ctx).Model(&model.TaskTrigger{}).
			Where("id = ? AND enabled = ? AND next_run_at <= ? AND (claim_owner IS NULL OR claim_until < ?)",
				cand.ID, true, now, now).
			Updates(map[string]interface{}{
				"claim_owner": owner,
				"claim_until": claimUntil,
			})
		if res.Error != nil {
			return nil, errs.NewStore("claim_trigger", res.Error)
		}
		if res.RowsAffected == 0 {
			// Lost the race; not an error.
			continue
		}
		cand.ClaimOwner = sql.NullString{String: owner, Valid: true}
		cand.ClaimUntil = sql.NullTime{Time: claimUntil, Valid: true}
		claimed = append(claimed, cand)
	}
	return claimed, nil
}

func (r *triggerRepository) ReleaseClaim(ctx context.Context, triggerID, owner string) error {
	res := r.db.WithContext(ctx).Model(&model.TaskTrigger{}).
		Where("id = ? AND claim_owner = ?", triggerID, owner).
		Updates(map[string]interface{}{
			"claim_owner": nil,
			"claim_until": nil,
		})
	if res.Error != nil {
		return errs.NewStore("release_claim", res.Error)
	}
	return nil
}

func (r *triggerRepository) FinalizeAfterDispatch(ctx context.Context, triggerID string, dispatchTime time.Time) (*model.TaskTrigger, error) {
	trigger, err := r.GetByID(ctx, triggerID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"last_run_at": dispatchTime,
		"claim_owner": nil,
		"claim_until": nil,
	}

	next, ok, err := schedule.NextOccurrence(r.cronParser, trigger, dispatchTime)
	if err != nil {
		return nil, errs.NewStore("compute_next_occurrence", err)
	}
	if ok {
		updates["next_run_at"] = next
		trigger.NextRunAt = sql.NullTime{Time: next, Valid: true}
	} else {
		// One-shot trigger fired; retire it.
		updates["next_run_at"] = nil
		updates["enabled"] = false
		trigger.NextRunAt = sql.NullTime{}
		trigger.Enabled = false
	}

	if err := r.db.WithContext(ctx).Model(&model.TaskTrigger{}).
		Where("id = ?", triggerID).
		Updates(updates).Error; err != nil {
		return nil, errs.NewStore("finalize_trigger", err)
	}

	trigger.LastRunAt = sql.NullTime{Time: dispatchTime, Valid: true}
	trigger.ClaimOwner = sql.NullString{}
	trigger.ClaimUntil = sql.NullTime{}
	return trigger, nil
}

func (r *triggerRepository) HandleMisfire(ctx context.Context, triggerID string, now time.Time) (*model.TaskTrigger, error) {
	trigger, err := r.GetByID(ctx, triggerID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"claim_owner": nil,
		"claim_until": nil,
	}

	next, ok, err := schedule.NextOccurrence(r.cronParser, trigger, now)
	if err != nil {
		return nil, errs.NewStore("compute_next_occurrence", err)
	}
	if ok {
		updates["next_run_at"] = next
		trigger.NextRunAt = sql.NullTime{Time: next, Valid: true}
	} else {
		updates["next_run_at"] = nil
		updates["enabled"] = false
		trigger.NextRunAt = sql.NullTime{}
		trigger.Enabled = false
	}

	if err := r.db.WithContext(ctx).Model(&model.TaskTrigger{}).
		Where("id = ?", triggerID).
		Updates(updates).Error; err != nil {
		return nil, errs.NewStore("handle_misfire", err)
	}

	trigger.ClaimOwner = sql.NullString{}
	trigger.ClaimUntil = sql.NullTime{}
	return trigger, nil
}
