// Package event is the fire-and-forget notification boundary between
// the scheduler and the external observability/UI layer.
package event

import "time"

type Type string

const (
	TypeSchedulerTick   Type = "scheduler_tick"
	TypeTaskDispatched  Type = "task_dispatched"
	TypeRunStarted      Type = "task_run_started"
	TypeRunFinished     Type = "task_run_finished"
	TypeMisfireHandled  Type = "task_misfire_handled"
	TypeHistoryPurged   Type = "task_history_purged"
	TypeSchedulerState  Type = "scheduler_state_changed"
	TypeRetentionChange Type = "retention_policy_changed"
)

// Event is one lifecycle notification. Payload content is already
// redacted by the publisher.
type Event struct {
	Type        Type                   `json:"type"`
	SchedulerID string                 `json:"scheduler_id,omitempty"`
	TaskID      string                 `json:"task_id,omitempty"`
	TriggerID   string                 `json:"trigger_id,omitempty"`
	RunID       string                 `json:"run_id,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	At          time.Time              `json:"at"`
}

// Sink consumes lifecycle events. Publish must never block the
// scheduler loop and must swallow its own failures.
type Sink interface {
	Publish(evt Event)
}
