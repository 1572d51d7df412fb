package model

import (
	"time"

	"gorm.io/datatypes"
)

type TaskStatus string

const (
	TaskStatusActive   TaskStatus = "active"
	TaskStatusPaused   TaskStatus = "paused"
	TaskStatusArchived TaskStatus = "archived"
)

type TaskDefinition struct {
	ID          string         `gorm:"primaryKey;type:varchar(64)"`
	Name        string         `gorm:"type:varchar(255);not null"`
	Description string         `gorm:"type:text"`
	TaskType    string         `gorm:"type:varchar(50);not null"`
	Status      TaskStatus     `gorm:"type:varchar(20);not null;default:'active'"`
	Payload     datatypes.JSON `gorm:"type:jsonb;not null"`
	Tags        datatypes.JSON `gorm:"type:jsonb"`
	Owner       string         `gorm:"type:varchar(255)"`
	CreatedAt   time.Time      `gorm:"autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime"`

	Triggers []TaskTrigger `gorm:"foreignKey:TaskID"`
	Runs     []TaskRun     `gorm:"foreignKey:TaskID"`
}

func (TaskDefinition) TableName() string {
	return "tasks"
}

type GetTaskParam struct {
	IDs      []string `json:"ids"`
	Status   *TaskStatus
	TaskType *string
	Limit    *int
}
