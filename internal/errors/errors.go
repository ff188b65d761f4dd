// Package errors defines the service error taxonomy. Every error that crosses
// a component boundary is a *ServiceError carrying a stable code, a human
// message and the HTTP status the API layer writes for it.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind-level default codes. Operation-specific codes (ASSET_NOT_FOUND,
// BID_TOO_LOW, ...) ride in ServiceError.Code via the same constructors.
const (
	CodeNotFound             = "NOT_FOUND"
	CodeInvalidStatus        = "INVALID_STATUS"
	CodeInvalidInput         = "INVALID_INPUT"
	CodeConflict             = "CONFLICT"
	CodeForbidden            = "FORBIDDEN"
	CodeKYCRequired          = "KYC_REQUIRED"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeCollaboratorFailure  = "COLLABORATOR_FAILURE"
	CodeInternal             = "INTERNAL"
	CodeRateLimitExceeded    = "RATE_LIMIT_EXCEEDED"
)

// ServiceError is the canonical domain error.
type ServiceError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a detail entry and returns the error for chaining.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NotFound builds a 404 error with an operation-specific code.
func NotFound(code, message string) *ServiceError {
	if code == "" {
		code = CodeNotFound
	}
	return &ServiceError{Code: code, Message: message, HTTPStatus: http.StatusNotFound}
}

// InvalidStatus builds a 400 state-machine precondition error.
func InvalidStatus(code, message string) *ServiceError {
	if code == "" {
		code = CodeInvalidStatus
	}
	return &ServiceError{Code: code, Message: message, HTTPStatus: http.StatusBadRequest}
}

// InvalidInput builds a 400 validation error.
func InvalidInput(code, message string) *ServiceError {
	if code == "" {
		code = CodeInvalidInput
	}
	return &ServiceError{Code: code, Message: message, HTTPStatus: http.StatusBadRequest}
}

// Conflict builds a 409 error for uniqueness and concurrency losers.
func Conflict(code, message string) *ServiceError {
	if code == "" {
		code = CodeConflict
	}
	return &ServiceError{Code: code, Message: message, HTTPStatus: http.StatusConflict}
}

// Forbidden builds a 403 ownership/identity error.
func Forbidden(message string) *ServiceError {
	return &ServiceError{Code: CodeForbidden, Message: message, HTTPStatus: http.StatusForbidden}
}

// KYCRequired builds a 403 error for unverified actors.
func KYCRequired(message string) *ServiceError {
	if message == "" {
		message = "KYC verification required"
	}
	return &ServiceError{Code: CodeKYCRequired, Message: message, HTTPStatus: http.StatusForbidden}
}

// Unauthorized builds a 401 error for missing or unknown identity.
func Unauthorized(message string) *ServiceError {
	return &ServiceError{Code: CodeUnauthorized, Message: message, HTTPStatus: http.StatusUnauthorized}
}

// CollaboratorFailure builds a 502 error for an external system that failed
// after retries.
func CollaboratorFailure(system string, err error) *ServiceError {
	return &ServiceError{
		Code:       CodeCollaboratorFailure,
		Message:    fmt.Sprintf("%s collaborator failed", system),
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// Internal builds a 500 error wrapping an unexpected cause.
func Internal(message string, err error) *ServiceError {
	return &ServiceError{Code: CodeInternal, Message: message, HTTPStatus: http.StatusInternalServerError, Err: err}
}

// RateLimitExceeded builds a 429 error.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return &ServiceError{
		Code:       CodeRateLimitExceeded,
		Message:    fmt.Sprintf("rate limit of %d requests per %s exceeded", limit, window),
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// WithCode overrides the operation-specific code, keeping kind and status.
func (e *ServiceError) WithCode(code string) *ServiceError {
	e.Code = code
	return e
}

// GetServiceError extracts the ServiceError from err, wrapping unknown errors
// as INTERNAL so the API layer always has a status and code to write.
func GetServiceError(err error) *ServiceError {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return Internal("unexpected error", err)
}
