package model

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
)

type TaskRunStatus string

const (
	RunStatusQueued    TaskRunStatus = "queued"
	RunStatusRunning   TaskRunStatus = "running"
	RunStatusSuccess   TaskRunStatus = "success"
	RunStatusFailed    TaskRunStatus = "failed"
	RunStatusCancelled TaskRunStatus = "cancelled"
)

// IsTerminal reports whether no further transition may occur.
func (s TaskRunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSuccess, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// TaskRun is one execution attempt of a task. TriggerID is null for
// manual runs. Attempt numbers are 1-based and monotonically increasing
// within one trigger-dispatch sequence.
type TaskRun struct {
	ID           string         `gorm:"primaryKey;type:varchar(64)"`
	TaskID       string         `gorm:"type:varchar(64);not null;index"`
	TriggerID    sql.NullString `gorm:"type:varchar(64);index"`
	Attempt      int            `gorm:"not null;default:1"`
	Status       TaskRunStatus  `gorm:"type:varchar(20);not null"`
	StartedAt    time.Time      `gorm:"not null"`
	FinishedAt   sql.NullTime
	ErrorMessage sql.NullString `gorm:"type:text"`
	Metadata     datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time      `gorm:"autoCreateTime"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime"`
}

func (TaskRun) TableName() string {
	return "task_runs"
}
