package strategy

import (
	"context"

	"github.com/genc-murat/tactilesql-scheduler/internal/model"
)

const (
	TASK_EXIT_CODE_SUCCESS = 200
	TASK_EXIT_CODE_FAILED  = 500
	TASK_EXIT_CODE_SKIPPED = 204
)

type TaskType string

const (
	TaskTypeSQLScript   TaskType = "sql_script"
	TaskTypeHTTPRequest TaskType = "http_request"
	TaskTypeNoop        TaskType = "noop"
)

// ExecutionMetadata is the opaque success metadata a strategy hands back
// to the dispatcher.
type ExecutionMetadata struct {
	ExitCode int32  `json:"exit_code"`
	Output   string `json:"output"`
}

// TaskExecutionStrategy executes one task type's payload. The scheduler
// core never inspects payload semantics; it only routes by task type.
type TaskExecutionStrategy interface {
	Execute(ctx context.Context, task *model.TaskDefinition) (ExecutionMetadata, error)
	GetType() TaskType
}
