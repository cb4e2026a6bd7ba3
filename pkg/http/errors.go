package http

import (
	"fmt"
	"net/http"
)

// Error codes carried in AppError.Code.
const (
	CodeBadRequest  = "ERR_BAD_REQUEST"
	CodeUpstream    = "ERR_UPSTREAM"
	CodeTimeout     = "ERR_TIMEOUT"
	CodeRateLimited = "ERR_RATE_LIMITED"
	CodeInternal    = "ERR_INTERNAL"
)

// AppError represents application-level error with HTTP status.
// Retryable tells clients that the same request may succeed later.
type AppError struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Retryable bool                   `json:"retryable"`
	Params    map[string]interface{} `json:"params,omitempty"`
	Status    int                    `json:"-"`
	Err       error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// NewAppError creates a new application error. 429, 502, 503 and 504 are retryable.
func NewAppError(code, message string, status int) *AppError {
	retryable := false
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		retryable = true
	}
	return &AppError{
		Code:      code,
		Message:   message,
		Retryable: retryable,
		Status:    status,
	}
}

// WithParam sets a single error param.
func (e *AppError) WithParam(key string, value interface{}) *AppError {
	if e.Params == nil {
		e.Params = make(map[string]interface{})
	}
	e.Params[key] = value
	return e
}

// WithError wraps an underlying error.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func BadRequestError(message string) *AppError {
	return NewAppError(CodeBadRequest, message, http.StatusBadRequest)
}

func BadRequestErrorf(format string, a ...interface{}) *AppError {
	return BadRequestError(fmt.Sprintf(format, a...))
}

// BadGatewayError reports exhausted upstream providers.
func BadGatewayError(message string) *AppError {
	return NewAppError(CodeUpstream, message, http.StatusBadGateway)
}

func TooManyRequestsError(message string) *AppError {
	return NewAppError(CodeRateLimited, message, http.StatusTooManyRequests)
}

func GatewayTimeoutError(message string) *AppError {
	return NewAppError(CodeTimeout, message, http.StatusGatewayTimeout)
}

func InternalError(message string) *AppError {
	return NewAppError(CodeInternal, message, http.StatusInternalServerError)
}
