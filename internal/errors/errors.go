package errors

import (
	stderrors "errors"
	"fmt"

	"colliderlab/domain/core"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   err,
		}
	}
	return &AppError{
		Code:    codeFor(err),
		Message: message,
		Cause:   err,
	}
}

// codeFor maps domain sentinels onto error codes
func codeFor(err error) string {
	switch {
	case core.IsInvalidParameter(err):
		return CodeInvalidParameter
	case core.IsFittingFailure(err):
		return CodeFittingFailure
	case stderrors.Is(err, core.ErrVariableNotFound):
		return CodeNotFound
	case stderrors.Is(err, core.ErrInsufficientData):
		return CodeInsufficientData
	default:
		return CodeInternalError
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    code,
			Message: appErr.Message,
			Cause:   appErr.Cause,
		}
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// IsAppError checks if an AppError is anywhere in the chain
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetCode returns the code of the outermost AppError in the chain, otherwise "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// Predefined error codes
const (
	CodeConfigInvalid    = "CONFIG_INVALID"
	CodeInvalidParameter = "INVALID_PARAMETER"
	CodeFittingFailure   = "FITTING_FAILURE"
	CodeReportError      = "REPORT_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeInsufficientData = "INSUFFICIENT_DATA"
	CodeInternalError    = "INTERNAL_ERROR"
)

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func InvalidParameter(message string) *AppError {
	return New(CodeInvalidParameter, message)
}

func FittingFailure(workflow string, cause error) *AppError {
	return &AppError{
		Code:    CodeFittingFailure,
		Message: fmt.Sprintf("workflow %s failed", workflow),
		Cause:   cause,
	}
}

func ReportError(message string, cause error) *AppError {
	return &AppError{
		Code:    CodeReportError,
		Message: message,
		Cause:   cause,
	}
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}
