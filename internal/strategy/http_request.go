package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/genc-murat/tactilesql-scheduler/config"
	"github.com/genc-murat/tactilesql-scheduler/internal/model"
	"github.com/genc-murat/tactilesql-scheduler/pkg/httpclient"
	"github.com/genc-murat/tactilesql-scheduler/pkg/logger"
)

type HTTPRequestPayload struct {
	Method         string            `json:"method"`
	URL            string            `json:"url"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           json.RawMessage   `json:"body,omitempty"`
	ExpectedStatus int               `json:"expected_status,omitempty"`
}

// HTTPRequestStrategy invokes an HTTP endpoint described by the task
// payload. Any non-expected status is an execution failure so the
// dispatcher's retry policy applies.
type HTTPRequestStrategy struct {
	cfg    *config.Config
	log    *logger.Logger
	client httpclient.HTTPClient
}

func NewHTTPRequestStrategy(cfg *config.Config, log *logger.Logger, client httpclient.HTTPClient) *HTTPRequestStrategy {
	return &HTTPRequestStrategy{cfg: cfg, log: log, client: client}
}

func (s *HTTPRequestStrategy) Execute(ctx context.Context, task *model.TaskDefinition) (ExecutionMetadata, error) {
	var payload HTTPRequestPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return ExecutionMetadata{ExitCode: TASK_EXIT_CODE_FAILED}, fmt.Errorf("failed to unmarshal http request payload: %w", err)
	}
	if payload.URL == "" {
		return ExecutionMetadata{ExitCode: TASK_EXIT_CODE_FAILED}, fmt.Errorf("http request payload has no url")
	}

	method := strings.ToUpper(payload.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body interface{}
	if len(payload.Body) > 0 {
		body = []byte(payload.Body)
	}

	resp, err := s.client.Execute(ctx, method, payload.URL, body, payload.Headers)
	if err != nil {
		return ExecutionMetadata{ExitCode: TASK_EXIT_CODE_FAILED}, fmt.Errorf("http request failed: %w", err)
	}

	expected := payload.ExpectedStatus
	if expected == 0 {
		expected = http.StatusOK
	}
	if resp.StatusCode != expected {
		return ExecutionMetadata{ExitCode: int32(resp.StatusCode)},
			fmt.Errorf("unexpected status %d (want %d): %s", resp.StatusCode, expected, truncate(string(resp.Body), 512))
	}

	return ExecutionMetadata{ExitCode: TASK_EXIT_CODE_SUCCESS, Output: truncate(string(resp.Body), 4096)}, nil
}

func (s *HTTPRequestStrategy) GetType() TaskType {
	return TaskTypeHTTPRequest
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
