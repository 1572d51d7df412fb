package model

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
)

// TaskAuditLog records scheduler-level and operator-level events
// independent of any single run (retention changes, manual cancel/retry
// requests, purges). Append-only.
type TaskAuditLog struct {
	ID        uint           `gorm:"primaryKey"`
	EventType string         `gorm:"type:varchar(50);not null;index"`
	TaskID    sql.NullString `gorm:"type:varchar(64);index"`
	Actor     string         `gorm:"type:varchar(100)"`
	Message   string         `gorm:"type:text"`
	Details   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`
}

func (TaskAuditLog) TableName() string {
	return "task_audit_logs"
}

type GetAuditLogParam struct {
	EventType *string
	TaskID    *string
	Limit     *int
}
