// Package errors defines the failure taxonomy shared by every pipeline stage.
// All pipeline failures are fatal at the point of detection: they abort the
// task, the stage and, transitively, every dependent stage.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrParse             = errors.New("parse error")
	ErrRouting           = errors.New("routing error")
	ErrOrderingViolation = errors.New("ordering violation")
	ErrStageDependency   = errors.New("stage dependency failure")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrInvalidInput      = errors.New("invalid input")
)

// Exit codes reported by the command-line driver.
const (
	ExitOK           = 0
	ExitStageFailure = 1
	ExitConfigError  = 2
)

// PipelineError attaches the stage and task that detected a failure.
type PipelineError struct {
	Err     error
	Stage   string
	Task    string
	Message string
}

func (e *PipelineError) Error() string {
	switch {
	case e.Stage != "" && e.Task != "":
		return fmt.Sprintf("%s [%s/%s]: %s", e.Err.Error(), e.Stage, e.Task, e.Message)
	case e.Stage != "":
		return fmt.Sprintf("%s [%s]: %s", e.Err.Error(), e.Stage, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func New(sentinel error, message string) *PipelineError {
	return &PipelineError{
		Err:     sentinel,
		Message: message,
	}
}

func Newf(sentinel error, format string, args ...any) *PipelineError {
	return &PipelineError{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}

// InTask returns a copy of err annotated with stage and task names. Errors
// that are not PipelineErrors are returned unchanged.
func InTask(err error, stage, task string) error {
	var pErr *PipelineError
	if !errors.As(err, &pErr) {
		return err
	}
	annotated := *pErr
	if annotated.Stage == "" {
		annotated.Stage = stage
	}
	if annotated.Task == "" {
		annotated.Task = task
	}
	return &annotated
}

// IsFatal reports whether err signals corrupted input or a broken engine
// contract. Fatal errors are never retried.
func IsFatal(err error) bool {
	return errors.Is(err, ErrParse) ||
		errors.Is(err, ErrRouting) ||
		errors.Is(err, ErrOrderingViolation)
}

// ExitCode maps an error returned by the driver to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrInvalidInput):
		return ExitConfigError
	default:
		return ExitStageFailure
	}
}

// Is and As re-export the standard helpers so callers need a single import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }
