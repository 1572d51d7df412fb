package model

import (
	"database/sql"
	"time"
)

type TriggerType string

const (
	TriggerTypeCron     TriggerType = "cron"
	TriggerTypeInterval TriggerType = "interval"
	TriggerTypeRunAt    TriggerType = "run_at"
)

type MisfirePolicy string

const (
	MisfireFireNow    MisfirePolicy = "fire_now"
	MisfireSkip       MisfirePolicy = "skip"
	MisfireReschedule MisfirePolicy = "reschedule"
)

// TaskTrigger binds a schedule definition to a task. The claim fields
// (ClaimOwner/ClaimUntil) implement the advisory lease: a trigger is
// claimable iff enabled AND next_run_at <= now AND the lease is absent
// or expired.
type TaskTrigger struct {
	ID              string        `gorm:"primaryKey;type:varchar(64)"`
	TaskID          string        `gorm:"type:varchar(64);not null;index"`
	TriggerType     TriggerType   `gorm:"type:varchar(20);not null"`
	CronExpression  string        `gorm:"type:varchar(100)"`
	IntervalSeconds int64         `gorm:"default:0"`
	RunAt           sql.NullTime
	Timezone        string        `gorm:"type:varchar(64)"`
	MisfirePolicy   MisfirePolicy `gorm:"type:varchar(20);not null;default:'fire_now'"`
	MaxAttempts     int           `gorm:"default:0"`
	BackoffMs       int64         `gorm:"default:1000"`
	Enabled         bool          `gorm:"default:true"`
	NextRunAt       sql.NullTime  `gorm:"index"`
	LastRunAt       sql.NullTime
	ClaimOwner      sql.NullString `gorm:"type:varchar(100)"`
	ClaimUntil      sql.NullTime
	CreatedAt       time.Time `gorm:"autoCreateTime"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime"`

	Task TaskDefinition `gorm:"foreignKey:TaskID;references:ID"`
}

func (TaskTrigger) TableName() string {
	return "task_triggers"
}

// Claimed reports whether the trigger currently holds an unexpired lease.
func (t *TaskTrigger) Claimed(now time.Time) bool {
	return t.ClaimOwner.Valid && t.ClaimUntil.Valid && t.ClaimUntil.Time.After(now)
}

type GetTriggerParam struct {
	IDs     []string
	TaskID  *string
	Enabled *bool
	Limit   *int
}
