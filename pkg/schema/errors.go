package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeCapability        = "CAPABILITY_ERROR"
	ErrCodeParse             = "PARSE_ERROR"
	ErrCodePolicyViolation   = "POLICY_VIOLATION"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeTimeout           = "TIMEOUT_ERROR"
	ErrCodeCancelled         = "CANCELLED"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeStore             = "STORE_ERROR"
	ErrCodeInterpolation     = "INTERPOLATION_ERROR"
)

// PipeError is the structured error type for all reportpipe operations.
type PipeError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Stage   Stage          `json:"stage,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *PipeError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("[%s] stage %s: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *PipeError) Unwrap() error {
	return e.Cause
}

// NewError creates a new PipeError.
func NewError(code, message string) *PipeError {
	return &PipeError{Code: code, Message: message}
}

// NewErrorf creates a new PipeError with a formatted message.
func NewErrorf(code, format string, args ...any) *PipeError {
	return &PipeError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStage attaches the failing stage to the error.
func (e *PipeError) WithStage(stage Stage) *PipeError {
	e.Stage = stage
	return e
}

// WithCause attaches an underlying cause.
func (e *PipeError) WithCause(err error) *PipeError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *PipeError) WithDetails(details map[string]any) *PipeError {
	e.Details = details
	return e
}
