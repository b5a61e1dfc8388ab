package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard sentinel errors for common cases.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrGone           = errors.New("gone")
	ErrInternal       = errors.New("internal error")
	ErrServiceUnavail = errors.New("service unavailable")
	ErrTimeout        = errors.New("request timeout")
	ErrTransport      = errors.New("transport failure")
	ErrSessionExpired = errors.New("session expired")
)

// AppError is the error every API call fails with. Message is taken from the
// response body when the server supplied one, Status is the HTTP status (0 when
// no response reached the client) and Data carries the decoded response body.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Data    any    `json:"data,omitempty"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// Forbidden creates a 403 error.
func Forbidden(message string) *AppError {
	return &AppError{
		Code:    "FORBIDDEN",
		Message: message,
		Status:  http.StatusForbidden,
		Err:     ErrForbidden,
	}
}

// Conflict creates a 409 error.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// Gone creates a 410 error.
func Gone(message string) *AppError {
	return &AppError{
		Code:    "GONE",
		Message: message,
		Status:  http.StatusGone,
		Err:     ErrGone,
	}
}

// Timeout is returned when the caller aborted the request or its deadline passed.
func Timeout() *AppError {
	return &AppError{
		Code:    "TIMEOUT",
		Message: "Request timeout",
		Status:  http.StatusRequestTimeout,
		Err:     ErrTimeout,
	}
}

// Transport is returned when no response reached the client.
func Transport(err error) *AppError {
	msg := "Network error occurred"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return &AppError{
		Code:    "TRANSPORT_ERROR",
		Message: msg,
		Status:  0,
		Err:     ErrTransport,
	}
}

// SessionExpired is the terminal error of the unauthorized path: tokens are
// gone and the user has to sign in again.
func SessionExpired() *AppError {
	return &AppError{
		Code:    "SESSION_EXPIRED",
		Message: "session expired, please sign in again",
		Status:  http.StatusUnauthorized,
		Err:     ErrSessionExpired,
	}
}

// CircuitOpen is returned while the API circuit breaker rejects requests.
func CircuitOpen(err error) *AppError {
	return &AppError{
		Code:    "CIRCUIT_OPEN",
		Message: "api temporarily unavailable",
		Status:  http.StatusServiceUnavailable,
		Err:     fmt.Errorf("%w: %w", ErrServiceUnavail, err),
	}
}

// FromStatus builds the error for a non-2xx response.
func FromStatus(status int, code, message string, data any) *AppError {
	if message == "" {
		message = http.StatusText(status)
	}
	if message == "" {
		message = "Request failed"
	}
	if code == "" {
		code = defaultCode(status)
	}
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Data:    data,
		Err:     sentinelFor(status),
	}
}

func defaultCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "INVALID_INPUT"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusGone:
		return "GONE"
	case http.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	}
	if status >= 500 {
		return "INTERNAL_ERROR"
	}
	return "REQUEST_FAILED"
}

func sentinelFor(status int) error {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return ErrInvalidInput
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case status == http.StatusForbidden:
		return ErrForbidden
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusConflict:
		return ErrConflict
	case status == http.StatusGone:
		return ErrGone
	case status == http.StatusRequestTimeout:
		return ErrTimeout
	case status == http.StatusServiceUnavailable:
		return ErrServiceUnavail
	case status >= 500:
		return ErrInternal
	default:
		return nil
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus returns the HTTP status carried by err. Errors that never reached
// the server report 0.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrGone):
		return http.StatusGone
	case errors.Is(err, ErrTimeout):
		return http.StatusRequestTimeout
	case errors.Is(err, ErrTransport):
		return 0
	default:
		return http.StatusInternalServerError
	}
}

// IsUnauthorized reports whether err is a plain 401 from the server.
func IsUnauthorized(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Status == http.StatusUnauthorized && !errors.Is(err, ErrSessionExpired)
}
