package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/genc-murat/tactilesql-scheduler/internal/model"
)

type NoopPayload struct {
	SleepMs int    `json:"sleep_ms,omitempty"`
	Fail    bool   `json:"fail,omitempty"`
	Message string `json:"message,omitempty"`
}

// NoopStrategy sleeps and echoes its payload. Useful for smoke-testing
// trigger wiring without touching external systems.
type NoopStrategy struct{}

func NewNoopStrategy() *NoopStrategy {
	return &NoopStrategy{}
}

func (s *NoopStrategy) Execute(ctx context.Context, task *model.TaskDefinition) (ExecutionMetadata, error) {
	var payload NoopPayload
	if len(task.Payload) > 0 {
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return ExecutionMetadata{ExitCode: TASK_EXIT_CODE_FAILED}, fmt.Errorf("failed to unmarshal noop payload: %w", err)
		}
	}

	if payload.SleepMs > 0 {
		select {
		case <-time.After(time.Duration(payload.SleepMs) * time.Millisecond):
		case <-ctx.Done():
			return ExecutionMetadata{ExitCode: TASK_EXIT_CODE_FAILED}, ctx.Err()
		}
	}

	if payload.Fail {
		msg := payload.Message
		if msg == "" {
			msg = "noop task configured to fail"
		}
		return ExecutionMetadata{ExitCode: TASK_EXIT_CODE_FAILED}, fmt.Errorf("%s", msg)
	}

	return ExecutionMetadata{ExitCode: TASK_EXIT_CODE_SUCCESS, Output: payload.Message}, nil
}

func (s *NoopStrategy) GetType() TaskType {
	return TaskTypeNoop
}
