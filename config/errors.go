package config

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures so the HTTP layer can map them to
// status codes without inspecting messages.
type ErrorKind string

const (
	ErrKindInputValidation    ErrorKind = "input_validation"
	ErrKindDetectionFailure   ErrorKind = "detection_failure"
	ErrKindQualityRejection   ErrorKind = "quality_rejection"
	ErrKindSpoofRejection     ErrorKind = "spoof_rejection"
	ErrKindPersistenceFailure ErrorKind = "persistence_failure"
	ErrKindNotFound           ErrorKind = "not_found"
)

type PipelineError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

func NewValidationError(format string, args ...any) *PipelineError {
	return &PipelineError{Kind: ErrKindInputValidation, Message: fmt.Sprintf(format, args...)}
}

func NewDetectionError(format string, args ...any) *PipelineError {
	return &PipelineError{Kind: ErrKindDetectionFailure, Message: fmt.Sprintf(format, args...)}
}

func NewQualityError(format string, args ...any) *PipelineError {
	return &PipelineError{Kind: ErrKindQualityRejection, Message: fmt.Sprintf(format, args...)}
}

func NewSpoofError(format string, args ...any) *PipelineError {
	return &PipelineError{Kind: ErrKindSpoofRejection, Message: fmt.Sprintf(format, args...)}
}

func NewPersistenceError(message string, cause error) *PipelineError {
	return &PipelineError{Kind: ErrKindPersistenceFailure, Message: message, Cause: cause}
}

func NewNotFoundError(format string, args ...any) *PipelineError {
	return &PipelineError{Kind: ErrKindNotFound, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrorKind from err, defaulting to persistence failure
// for untyped errors so unexpected internals are never surfaced verbatim.
func KindOf(err error) ErrorKind {
	var pErr *PipelineError
	if errors.As(err, &pErr) {
		return pErr.Kind
	}
	return ErrKindPersistenceFailure
}
