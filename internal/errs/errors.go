// Package errs defines the error taxonomy shared by the scheduler,
// repositories and the HTTP command surface.
package errs

import "fmt"

// NotFoundError indicates an unknown task, trigger or run id. It is
// returned to the caller and never retried automatically.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

func NewNotFound(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// StoreError indicates an I/O or serialization failure in the trigger
// store or run ledger. The tick loop logs it, releases the affected
// claim and keeps ticking.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error during %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func NewStore(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err}
}

// ValidationError indicates a malformed request, rejected before any
// state mutation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ExecutionError carries the opaque error string returned by a task
// executor. It drives the retry/backoff state machine; message content
// is redacted before persistence.
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string {
	return e.Message
}

func NewExecution(message string) *ExecutionError {
	return &ExecutionError{Message: message}
}
