// Package errs defines the error taxonomy shared by the incident lifecycle
// and the workflow engine. Handlers map these onto HTTP status codes.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel errors for terminal and control conditions.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrWorkflowTerminal indicates an operation was attempted on a workflow
	// that has already reached COMPLETED, FAILED or CANCELLED.
	ErrWorkflowTerminal = errors.New("workflow is in a terminal state")

	// ErrApprovalRequired is a control signal, not a failure: the workflow
	// suspended at an approval gate and waits for an explicit approval.
	ErrApprovalRequired = errors.New("workflow paused awaiting approval")

	// ErrExecutionInProgress rejects a second concurrent execute call for the
	// same workflow. Execution is strictly one driver per workflow.
	ErrExecutionInProgress = errors.New("workflow execution already in progress")
)

// ValidationError reports malformed create/update input. It is always raised
// before any state is mutated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// NewValidation creates a ValidationError for a field.
func NewValidation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// InvalidTransitionError reports an illegal incident status change.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

// IsInvalidTransition reports whether err is (or wraps) an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var te *InvalidTransitionError
	return errors.As(err, &te)
}

// InvalidWorkflowError reports a malformed workflow definition at creation,
// such as an empty task list.
type InvalidWorkflowError struct {
	Reason string
}

func (e *InvalidWorkflowError) Error() string {
	return fmt.Sprintf("invalid workflow: %s", e.Reason)
}

// IsInvalidWorkflow reports whether err is (or wraps) an InvalidWorkflowError.
func IsInvalidWorkflow(err error) bool {
	var we *InvalidWorkflowError
	return errors.As(err, &we)
}

// ActionExecutionError reports a failed action invocation. The workflow engine
// retries these up to the task's max_retries before failing the workflow.
type ActionExecutionError struct {
	Action  string
	Attempt int
	Err     error
}

func (e *ActionExecutionError) Error() string {
	return fmt.Sprintf("action %s failed (attempt %d): %v", e.Action, e.Attempt, e.Err)
}

func (e *ActionExecutionError) Unwrap() error {
	return e.Err
}

// IsActionExecution reports whether err is (or wraps) an ActionExecutionError.
func IsActionExecution(err error) bool {
	var ae *ActionExecutionError
	return errors.As(err, &ae)
}
