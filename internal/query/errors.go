package query

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidStatement      = errors.New("invalid statement")
	ErrStatementNotAllowed   = fmt.Errorf("%w: only a single SELECT or WITH statement is allowed", ErrInvalidStatement)
	ErrConnectionUnavailable = errors.New("connection unavailable")
	ErrExecutionFailed       = errors.New("execution failed")
)

// ExecutionError is a database-level failure, reported verbatim and never retried.
type ExecutionError struct {
	SQLState string
	Err      error
}

func (e *ExecutionError) Error() string {
	if e.SQLState != "" {
		return fmt.Sprintf("execution failed (sqlstate %s): %v", e.SQLState, e.Err)
	}
	return fmt.Sprintf("execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return target == ErrExecutionFailed
}
