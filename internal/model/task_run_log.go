package model

import (
	"time"

	"gorm.io/datatypes"
)

// TaskRunLog is an append-only per-run log line. Rows are written once
// and never mutated.
type TaskRunLog struct {
	ID        uint           `gorm:"primaryKey"`
	RunID     string         `gorm:"type:varchar(64);not null;index"`
	TaskID    string         `gorm:"type:varchar(64);not null;index"`
	Level     string         `gorm:"type:varchar(10);not null"`
	Message   string         `gorm:"type:text;not null"`
	Context   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`
}

func (TaskRunLog) TableName() string {
	return "task_run_logs"
}
