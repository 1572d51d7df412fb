package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/genc-murat/tactilesql-scheduler/config"
	"github.com/genc-murat/tactilesql-scheduler/internal/model"
	"github.com/genc-murat/tactilesql-scheduler/pkg/logger"

	"gorm.io/gorm"
)

type SQLScriptPayload struct {
	Script           string `json:"script"`
	StatementTimeout int    `json:"statement_timeout_seconds,omitempty"`
}

type SQLScriptResult struct {
	Statements   int   `json:"statements"`
	RowsAffected int64 `json:"rows_affected"`
}

// SQLScriptStrategy runs a semicolon-separated SQL script, statement by
// statement, against the configured database.
type SQLScriptStrategy struct {
	cfg *config.Config
	log *logger.Logger
	db  *gorm.DB
}

func NewSQLScriptStrategy(cfg *config.Config, log *logger.Logger, db *gorm.DB) *SQLScriptStrategy {
	return &SQLScriptStrategy{cfg: cfg, log: log, db: db}
}

func (s *SQLScriptStrategy) Execute(ctx context.Context, task *model.TaskDefinition) (ExecutionMetadata, error) {
	var payload SQLScriptPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return ExecutionMetadata{ExitCode: TASK_EXIT_CODE_FAILED}, fmt.Errorf("failed to unmarshal sql script payload: %w", err)
	}
	if strings.TrimSpace(payload.Script) == "" {
		return ExecutionMetadata{ExitCode: TASK_EXIT_CODE_FAILED}, fmt.Errorf("sql script payload is empty")
	}

	if payload.StatementTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(payload.StatementTimeout)*time.Second)
		defer cancel()
	}

	result := SQLScriptResult{}
	for _, stmt := range strings.Split(payload.Script, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		res := s.db.WithContext(ctx).Exec(stmt)
		if res.Error != nil {
			return ExecutionMetadata{ExitCode: TASK_EXIT_CODE_FAILED}, fmt.Errorf("statement %d failed: %w", result.Statements+1, res.Error)
		}
		result.Statements++
		result.RowsAffected += res.RowsAffected
	}

	out, err := json.Marshal(result)
	if err != nil {
		return ExecutionMetadata{ExitCode: TASK_EXIT_CODE_FAILED}, fmt.Errorf("failed to marshal sql script result: %w", err)
	}
	return ExecutionMetadata{ExitCode: TASK_EXIT_CODE_SUCCESS, Output: string(out)}, nil
}

func (s *SQLScriptStrategy) GetType() TaskType {
	return TaskTypeSQLScript
}
