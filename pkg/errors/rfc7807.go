// Package errors provides kinded errors and RFC 7807 problem details for the relay
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Standard error functions
var (
	Is     = errors.Is
	As     = errors.As
	Join   = errors.Join
	Unwrap = errors.Unwrap
)

// Error kinds
const (
	KindConnection        = "ConnectionError"
	KindMalformedMessage  = "MalformedMessage"
	KindDestinationWrite  = "DestinationWriteError"
	KindInvalidConfig     = "InvalidConfig"
	KindSessionInProgress = "SessionInProgress"
	KindRateLimited       = "RateLimited"
)

var (
	ConnectionError       = NewWithKind(KindConnection)
	MalformedMessage      = NewWithKind(KindMalformedMessage)
	DestinationWriteError = NewWithKind(KindDestinationWrite)
	InvalidConfig         = NewWithKind(KindInvalidConfig)
	SessionInProgress     = NewWithKind(KindSessionInProgress)
	RateLimited           = NewWithKind(KindRateLimited)
)

// FieldError represents a validation error for a specific field
type FieldError struct {
	Kind    string `json:"kind"`
	Field   string `json:"field"`
	Message string `json:"message,omitempty"`
}

func (f *FieldError) Error() string {
	return fmt.Sprintf("%s (%s): %s", f.Field, f.Kind, f.Message)
}

func NewFieldError(kind, field, reason string) FieldError {
	return FieldError{Kind: kind, Field: field, Message: reason}
}

// Error is a custom error type for passing more information
type Error struct {
	// Kind is the returned error type
	Kind string `json:"kind"`
	// Message is the human readable string that indicate the error
	Message string `json:"message"`
	// Fields used when there's validation error for a field.
	Fields []FieldError `json:"fields,omitempty"`

	cause error
}

var _ error = (*Error)(nil)

func New(message string) *Error {
	return &Error{Kind: "Unknown", Message: message}
}

func NewWithKind(kind string) *Error {
	return &Error{Kind: kind}
}

// Error implements error
func (e *Error) Error() string {
	str := fmt.Sprintf("[%s]", e.Kind)
	if e.Message != "" {
		str += " " + e.Message
	}
	if e.cause != nil {
		str += fmt.Sprintf(" (%s)", e.cause)
	}
	return str
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Wrap returns a copy of the error with the given cause
func (e *Error) Wrap(cause error) *Error {
	err := *e
	err.cause = cause
	return &err
}

// Explain makes a copy of the error with given message
func (e *Error) Explain(message string, args ...any) *Error {
	err := *e
	err.Message = fmt.Sprintf(message, args...)
	return &err
}

// WithField returns a copy of error with one more field error.
func (e *Error) WithField(kind, field, message string) *Error {
	newError := *e
	newError.Fields = append(append([]FieldError(nil), e.Fields...), NewFieldError(kind, field, message))
	return &newError
}

// Is implements the needed interface for errors.Is
// It checks kind for equality
func (e *Error) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	if other, ok := target.(*Error); ok {
		return other.Kind == e.Kind
	}
	return false
}

// KindOf returns the kind of the first *Error in the chain, or "" when there is none.
func KindOf(err error) string {
	var e *Error
	if As(err, &e) {
		return e.Kind
	}
	return ""
}

// Problem type URIs
const (
	TypeValidationError   = "https://feedrelay.dev/problems/validation-error"
	TypeSessionInProgress = "https://feedrelay.dev/problems/session-in-progress"
	TypeUpstream          = "https://feedrelay.dev/problems/upstream-failure"
	TypeRateLimited       = "https://feedrelay.dev/problems/rate-limited"
	TypeInternalError     = "https://feedrelay.dev/problems/internal-error"
)

// Problem titles
const (
	TitleValidationError   = "Validation Error"
	TitleSessionInProgress = "Session In Progress"
	TitleUpstream          = "Upstream Failure"
	TitleRateLimited       = "Too Many Requests"
	TitleInternalError     = "Internal Server Error"
)

// ValidationError represents a validation error for RFC 7807
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Status   int               `json:"status"`
	Detail   string            `json:"detail,omitempty"`
	Instance string            `json:"instance,omitempty"`
	TraceID  string            `json:"trace_id,omitempty"`
	Errors   []ValidationError `json:"errors,omitempty"`
	Extra    map[string]any    `json:"-"`
}

// Error implements the error interface
func (p *ProblemDetails) Error() string {
	return p.Detail
}

// WithTraceID adds a trace ID to the problem details
func (p *ProblemDetails) WithTraceID(traceID string) *ProblemDetails {
	p.TraceID = traceID
	return p
}

// WithExtra adds extra fields to the problem details (they will be serialized at the top level)
func (p *ProblemDetails) WithExtra(key string, value any) *ProblemDetails {
	if p.Extra == nil {
		p.Extra = make(map[string]any)
	}
	p.Extra[key] = value
	return p
}

// MarshalJSON implements custom JSON marshaling to include extra fields at the top level
func (p *ProblemDetails) MarshalJSON() ([]byte, error) {
	result := make(map[string]any)
	result["type"] = p.Type
	result["title"] = p.Title
	result["status"] = p.Status
	if p.Detail != "" {
		result["detail"] = p.Detail
	}
	if p.Instance != "" {
		result["instance"] = p.Instance
	}
	if p.TraceID != "" {
		result["trace_id"] = p.TraceID
	}
	if len(p.Errors) > 0 {
		result["errors"] = p.Errors
	}
	for k, v := range p.Extra {
		result[k] = v
	}
	return json.Marshal(result)
}

// ToProblemDetails maps an error from the relay stack onto a problem response.
func ToProblemDetails(err error, instance string) *ProblemDetails {
	var e *Error
	if !As(err, &e) {
		return &ProblemDetails{
			Type:     TypeInternalError,
			Title:    TitleInternalError,
			Status:   http.StatusInternalServerError,
			Detail:   err.Error(),
			Instance: instance,
		}
	}

	p := &ProblemDetails{Detail: e.Error(), Instance: instance}
	switch e.Kind {
	case KindInvalidConfig:
		p.Type, p.Title, p.Status = TypeValidationError, TitleValidationError, http.StatusBadRequest
		for _, f := range e.Fields {
			p.Errors = append(p.Errors, ValidationError{Field: f.Field, Message: f.Message, Code: f.Kind})
		}
	case KindSessionInProgress:
		p.Type, p.Title, p.Status = TypeSessionInProgress, TitleSessionInProgress, http.StatusConflict
	case KindRateLimited:
		p.Type, p.Title, p.Status = TypeRateLimited, TitleRateLimited, http.StatusTooManyRequests
	case KindConnection, KindDestinationWrite:
		p.Type, p.Title, p.Status = TypeUpstream, TitleUpstream, http.StatusBadGateway
		p.WithExtra("kind", e.Kind)
	default:
		p.Type, p.Title, p.Status = TypeInternalError, TitleInternalError, http.StatusInternalServerError
	}
	return p
}
