package dto

import (
	"encoding/json"
	"time"
)

type CreateTaskRequest struct {
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description"`
	TaskType    string          `json:"task_type" validate:"required"`
	Status      string          `json:"status" validate:"omitempty,oneof=active paused archived"`
	Payload     json.RawMessage `json:"payload"`
	Tags        []string        `json:"tags"`
	Owner       string          `json:"owner"`
}

type UpdateTaskRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	TaskType    string          `json:"task_type"`
	Status      string          `json:"status" validate:"omitempty,oneof=active paused archived"`
	Payload     json.RawMessage `json:"payload"`
	Tags        []string        `json:"tags"`
	Owner       string          `json:"owner"`
}

type CreateTriggerRequest struct {
	TaskID          string     `json:"task_id" validate:"required"`
	TriggerType     string     `json:"trigger_type" validate:"required,oneof=cron interval run_at"`
	CronExpression  string     `json:"cron_expression"`
	IntervalSeconds int64      `json:"interval_seconds"`
	RunAt           *time.Time `json:"run_at"`
	Timezone        string     `json:"timezone"`
	MisfirePolicy   string     `json:"misfire_policy" validate:"omitempty,oneof=fire_now skip reschedule"`
	MaxAttempts     int        `json:"max_attempts" validate:"gte=0"`
	BackoffMs       int64      `json:"backoff_ms" validate:"gte=0"`
	Enabled         *bool      `json:"enabled"`
}

type UpdateTriggerRequest struct {
	CronExpression  string     `json:"cron_expression"`
	IntervalSeconds int64      `json:"interval_seconds"`
	RunAt           *time.Time `json:"run_at"`
	Timezone        string     `json:"timezone"`
	MisfirePolicy   string     `json:"misfire_policy" validate:"omitempty,oneof=fire_now skip reschedule"`
	MaxAttempts     *int       `json:"max_attempts" validate:"omitempty,gte=0"`
	BackoffMs       *int64     `json:"backoff_ms" validate:"omitempty,gte=0"`
	Enabled         *bool      `json:"enabled"`
}

type SetSchedulerStateRequest struct {
	State string `json:"state" validate:"required,oneof=running paused disabled"`
}

type SetRetentionRequest struct {
	Days int `json:"days" validate:"required,gt=0"`
}

type ForcePurgeRequest struct {
	Days *int `json:"days" validate:"omitempty,gt=0"`
}
