package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	SysParamHistoryRetentionDays = "history_retention_days"
)

type SystemParameter struct {
	ID        uint           `gorm:"primaryKey"`
	Name      string         `gorm:"type:varchar(100);uniqueIndex;not null"`
	Value     datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime"`
}

func (SystemParameter) TableName() string {
	return "system_parameters"
}
