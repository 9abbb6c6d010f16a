// Package errors provides typed error handling for the provenance engine.
//
// This package defines domain-specific error types that enable better error
// classification, debugging, and user feedback. All errors support the standard
// errors.Is() and errors.As() functions for error inspection.
package errors

import (
	"errors"
	"fmt"
)

// ErrorKind represents the category of an error.
type ErrorKind int

const (
	// ErrMalformedRecord indicates a raw audit record could not be parsed.
	ErrMalformedRecord ErrorKind = iota
	// ErrEmptyTagPool indicates the configured tag pool has no entries.
	ErrEmptyTagPool
	// ErrNoEventsParsed indicates the input stream yielded zero normalized events.
	ErrNoEventsParsed
	// ErrInvalidStartKind indicates a tracer was called with an unknown start kind.
	ErrInvalidStartKind
	// ErrUnknownStart indicates no start node could be inferred for a detection.
	ErrUnknownStart
	// ErrMissingSocketTuple indicates a connect/accept record had no usable socket tuple.
	ErrMissingSocketTuple
	// ErrInvalidConfig indicates a configuration file failed validation.
	ErrInvalidConfig
	// ErrInternal indicates an internal error.
	ErrInternal
)

// String returns a human-readable name for the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrMalformedRecord:
		return "malformed record"
	case ErrEmptyTagPool:
		return "empty tag pool"
	case ErrNoEventsParsed:
		return "no events parsed"
	case ErrInvalidStartKind:
		return "invalid start kind"
	case ErrUnknownStart:
		return "unable to infer start node"
	case ErrMissingSocketTuple:
		return "missing socket tuple"
	case ErrInvalidConfig:
		return "invalid config"
	case ErrInternal:
		return "internal error"
	default:
		return "unknown error"
	}
}

// AnalysisError represents an error that occurred during provenance analysis.
type AnalysisError struct {
	// Op is the operation that failed (e.g., "normalize", "backtrack", "load tag pool").
	Op string
	// Detection identifies the detection index, if applicable (-1 if not).
	Detection int
	// Err is the underlying error.
	Err error
	// Kind is the error classification.
	Kind ErrorKind
	// Detail provides additional context about the error.
	Detail string
}

// Error returns the error message.
func (e *AnalysisError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var msg string
	if e.Detection >= 0 {
		msg = fmt.Sprintf("detection %d: ", e.Detection)
	}
	if e.Op != "" {
		msg += fmt.Sprintf("%s: ", e.Op)
	}
	if e.Detail != "" {
		msg += e.Detail
	} else {
		msg += e.Kind.String()
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *AnalysisError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether the error matches the target.
// It matches if the target is an *AnalysisError with the same Kind.
// The underlying error is not compared here; errors.Is reaches it
// through Unwrap.
func (e *AnalysisError) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	if t, ok := target.(*AnalysisError); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates a new AnalysisError with the given kind.
func New(kind ErrorKind, op string, detail string) *AnalysisError {
	return &AnalysisError{
		Op:        op,
		Kind:      kind,
		Detail:    detail,
		Detection: -1,
	}
}

// Wrap wraps an error with operation context.
func Wrap(err error, kind ErrorKind, op string) *AnalysisError {
	return &AnalysisError{
		Op:        op,
		Err:       err,
		Kind:      kind,
		Detection: -1,
	}
}

// WrapWithDetection wraps an error with the detection index it occurred on.
func WrapWithDetection(err error, kind ErrorKind, op string, detection int) *AnalysisError {
	return &AnalysisError{
		Op:        op,
		Detection: detection,
		Err:       err,
		Kind:      kind,
	}
}

// WrapWithDetail wraps an error with additional detail.
func WrapWithDetail(err error, kind ErrorKind, op string, detail string) *AnalysisError {
	return &AnalysisError{
		Op:        op,
		Err:       err,
		Kind:      kind,
		Detail:    detail,
		Detection: -1,
	}
}

// IsKind checks if an error is of a specific kind.
func IsKind(err error, kind ErrorKind) bool {
	var aerr *AnalysisError
	if errors.As(err, &aerr) {
		return aerr.Kind == kind
	}
	return false
}

// GetKind returns the error kind if the error is an AnalysisError.
func GetKind(err error) (ErrorKind, bool) {
	var aerr *AnalysisError
	if errors.As(err, &aerr) {
		return aerr.Kind, true
	}
	return 0, false
}

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)
