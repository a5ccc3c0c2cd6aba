package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/NomadCrew/dojo-portal/logger"
)

type ErrorType string

const (
	ValidationError    ErrorType = "VALIDATION_ERROR"
	NotFoundError      ErrorType = "NOT_FOUND"
	AuthError          ErrorType = "AUTHENTICATION_ERROR"
	ServerError        ErrorType = "SERVER_ERROR"
	UpstreamError      ErrorType = "UPSTREAM_ERROR"
	PartialFailure     ErrorType = "PARTIAL_FAILURE"
	RateLimitedError   ErrorType = "RATE_LIMITED"
	ServiceUnavailable ErrorType = "SERVICE_UNAVAILABLE"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Raw        error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the underlying error to errors.Is/As.
func (e *AppError) Unwrap() error {
	return e.Raw
}

// GetHTTPStatus returns the status the error maps to, falling back to the type default.
func (e *AppError) GetHTTPStatus() int {
	if e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	return getHTTPStatus(e.Type)
}

// New creates a new AppError
func New(errType ErrorType, message string, detail string) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		Detail:     detail,
		HTTPStatus: getHTTPStatus(errType),
	}
}

// Wrap wraps a raw error with AppError context
func Wrap(err error, errType ErrorType, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Type:       errType,
		Message:    message,
		Detail:     err.Error(),
		HTTPStatus: getHTTPStatus(errType),
		Raw:        err,
	}
}

func NotFound(entity string, id interface{}) *AppError {
	return &AppError{
		Type:       NotFoundError,
		Message:    fmt.Sprintf("%s not found", entity),
		Detail:     fmt.Sprintf("ID: %v", id),
		HTTPStatus: http.StatusNotFound,
	}
}

func ValidationFailed(message string, details string) *AppError {
	return &AppError{
		Type:       ValidationError,
		Message:    message,
		Detail:     details,
		HTTPStatus: http.StatusBadRequest,
	}
}

func AuthenticationFailed(message string) *AppError {
	return &AppError{
		Type:       AuthError,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

func InternalServerError(message string) *AppError {
	return &AppError{
		Type:       ServerError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// NewUpstreamError reports a failed call to the document store. The raw error is
// logged and kept on the AppError; the client only sees the operation name.
func NewUpstreamError(operation string, err error) *AppError {
	logger.GetLogger().Errorw("Document store call failed", "operation", operation, "error", err)
	return &AppError{
		Type:       UpstreamError,
		Code:       operation,
		Message:    "Document store request failed",
		Detail:     err.Error(),
		HTTPStatus: http.StatusBadGateway,
		Raw:        err,
	}
}

// NewPartialFailure reports a bulk mutation that left some of the requested ids in place.
func NewPartialFailure(operation string, remaining []string) *AppError {
	return &AppError{
		Type:       PartialFailure,
		Code:       operation,
		Message:    "Some items could not be processed",
		Detail:     fmt.Sprintf("%d item(s) unchanged", len(remaining)),
		HTTPStatus: http.StatusMultiStatus,
	}
}

func RateLimited(message string, retryAfterSeconds int) *AppError {
	return &AppError{
		Type:       RateLimitedError,
		Message:    message,
		Detail:     fmt.Sprintf("retry after %ds", retryAfterSeconds),
		HTTPStatus: http.StatusTooManyRequests,
	}
}

func NewError(errType ErrorType, code string, message string, status int) error {
	return &AppError{
		Type:       errType,
		Code:       code,
		Message:    message,
		HTTPStatus: status,
	}
}

// IsType reports whether err wraps an AppError of the given type.
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type == errType
	}
	return false
}

func IsNotFound(err error) bool {
	return IsType(err, NotFoundError)
}

func IsUpstream(err error) bool {
	return IsType(err, UpstreamError)
}

func IsPartialFailure(err error) bool {
	return IsType(err, PartialFailure)
}

func getHTTPStatus(errType ErrorType) int {
	switch errType {
	case ValidationError:
		return http.StatusBadRequest
	case NotFoundError:
		return http.StatusNotFound
	case AuthError:
		return http.StatusUnauthorized
	case UpstreamError:
		return http.StatusBadGateway
	case PartialFailure:
		return http.StatusMultiStatus
	case RateLimitedError:
		return http.StatusTooManyRequests
	case ServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
