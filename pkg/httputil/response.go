// Package httputil writes JSON responses in the storefront API's shapes.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/validator"
)

// ErrorEnvelope is the body of every failed request.
type ErrorEnvelope struct {
	Error *ErrorResponse `json:"error"`
}

// ErrorResponse describes a failure.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes v with the given status. Encoding errors are dropped
// because the header is already sent.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// NoContent writes an empty 204.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteError writes err as an ErrorEnvelope. AppErrors keep their status
// and code; anything unclassified becomes a logged 500. The request-scoped
// logger is preferred over fallback.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		l = fallback
	}
	requestID := logger.CorrelationIDFromContext(r.Context())

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		err = valErr.AppError()
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Status >= 400 {
		fields, _ := appErr.Data.(map[string]string)
		WriteJSON(w, appErr.Status, ErrorEnvelope{Error: &ErrorResponse{
			Code:      appErr.Code,
			Message:   appErr.Message,
			Fields:    fields,
			RequestID: requestID,
		}})
		return
	}

	status := apperrors.HTTPStatus(err)
	code, message := "INTERNAL_ERROR", "an internal error occurred"
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		code, message = "NOT_FOUND", "resource not found"
	case errors.Is(err, apperrors.ErrConflict):
		code, message = "CONFLICT", "resource already exists"
	case errors.Is(err, apperrors.ErrInvalidInput):
		code, message = "INVALID_INPUT", err.Error()
	default:
		status = http.StatusInternalServerError
		l.ErrorContext(r.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	WriteJSON(w, status, ErrorEnvelope{Error: &ErrorResponse{Code: code, Message: message, RequestID: requestID}})
}

// DecodeJSON decodes and validates the request body into dst. On failure it
// writes a 400 and returns false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := validator.DecodeAndValidate(r, dst)
	if err == nil {
		return true
	}
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteError(w, r, valErr.AppError(), nil)
		return false
	}
	WriteError(w, r, apperrors.InvalidInput("malformed JSON body"), nil)
	return false
}

// ParseUUID validates an id path parameter. When invalid it writes a 400
// and returns false.
func ParseUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(param)
	if err != nil {
		WriteError(w, r, apperrors.InvalidInput("invalid id: "+param), nil)
		return uuid.Nil, false
	}
	return id, true
}
