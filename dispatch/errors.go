package dispatch

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for dispatch configuration.
var (
	ErrMissingBaseURL = errors.New("dispatch: base URL is required")
	ErrMissingMethod  = errors.New("dispatch: method is required")
)

// FailureKind classifies a dispatch failure so callers branch on the
// category instead of parsing message substrings.
type FailureKind int

const (
	// KindNetwork covers transport errors and non-success responses.
	// Network failures are the only retryable kind.
	KindNetwork FailureKind = iota
	// KindAuth covers 401 responses. The session has been cleared by the
	// time the caller sees this error.
	KindAuth
	// KindValidation covers envelopes rejected with per-field detail.
	KindValidation
	// KindCancelled covers calls aborted through the caller's context.
	KindCancelled
)

func (k FailureKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindCancelled:
		return "cancelled"
	default:
		return "network"
	}
}

// Error is a tagged dispatch failure.
type Error struct {
	Kind    FailureKind
	Message string
	Status  int          // HTTP status, 0 for transport-level failures
	Fields  []FieldError // per-field validation detail, if any
	Err     error        // underlying cause, if any
}

// Error folds structured per-field detail into the surfaced message.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if len(e.Fields) == 0 {
		return "dispatch: " + msg
	}

	detail := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		detail[i] = f.Field + ": " + f.Message
	}
	return "dispatch: " + msg + " (" + strings.Join(detail, "; ") + ")"
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a dispatch error of the given kind.
func IsKind(err error, kind FailureKind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == kind
}

// NetworkError builds a retryable transport/response failure.
func NetworkError(message string, status int, err error) *Error {
	return &Error{Kind: KindNetwork, Message: message, Status: status, Err: err}
}

// AuthError builds a 401 failure.
func AuthError(message string) *Error {
	return &Error{Kind: KindAuth, Message: message, Status: 401}
}

// ValidationError builds a failure carrying per-field detail.
func ValidationError(message string, status int, fields []FieldError) *Error {
	return &Error{Kind: KindValidation, Message: message, Status: status, Fields: fields}
}

// CancelledError builds a failure for a context-aborted call.
func CancelledError(err error) *Error {
	return &Error{Kind: KindCancelled, Message: "request cancelled", Err: err}
}

// AggregateError is surfaced when every attempt of a retried call failed.
type AggregateError struct {
	Attempts int
	Last     error
}

func (e *AggregateError) Error() string {
	return fmt.Sprintf("dispatch: request failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *AggregateError) Unwrap() error {
	return e.Last
}
