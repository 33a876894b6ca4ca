package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tsio/tsio/internal/api/middleware"
	"github.com/tsio/tsio/internal/objectstore"
	"github.com/tsio/tsio/internal/store"
)

// errorCode is one of the five codes spec §6 defines for the {error, message}
// response body.
type errorCode string

const (
	codeDatabase     errorCode = "DATABASE_ERROR"
	codeNotFound     errorCode = "NOT_FOUND"
	codeInvalidInput errorCode = "INVALID_INPUT"
	codeUnauthorized errorCode = "UNAUTHORIZED"
	codeStorage      errorCode = "STORAGE_ERROR"
)

// apiError pairs a client-safe code/message with the HTTP status it maps to
// and the detail that belongs only in the server log (spec §7).
type apiError struct {
	status     int
	code       errorCode
	message    string
	logDetail  string
	wrapped    error
}

func (e *apiError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s (%v)", e.code, e.logDetail, e.wrapped)
	}

	return fmt.Sprintf("%s: %s", e.code, e.logDetail)
}

func (e *apiError) Unwrap() error { return e.wrapped }

// notFound builds a 404 naming the missing entity in both the client message
// and the log (spec §7: "specific missing entity").
func notFound(entity, id string) *apiError {
	return &apiError{
		status:    http.StatusNotFound,
		code:      codeNotFound,
		message:   fmt.Sprintf("%s %q not found", entity, id),
		logDetail: fmt.Sprintf("entity=%s id=%s", entity, id),
	}
}

// invalidInput builds a 400 carrying the specific validation reason back to
// the caller (spec §7: "specific reason").
func invalidInput(reason string) *apiError {
	return &apiError{
		status:    http.StatusBadRequest,
		code:      codeInvalidInput,
		message:   reason,
		logDetail: reason,
	}
}

// unauthorizedMissing and unauthorizedInvalid are the two generic client
// messages the taxonomy allows (spec §7); logDetail keeps the real reason.
func unauthorizedMissing() *apiError {
	return &apiError{status: http.StatusUnauthorized, code: codeUnauthorized, message: "Missing credentials", logDetail: "missing credentials"}
}

func unauthorizedInvalid(reason string) *apiError {
	return &apiError{status: http.StatusUnauthorized, code: codeUnauthorized, message: "Invalid token", logDetail: reason}
}

// forbidden maps an authenticated-but-insufficient-role rejection onto the
// same UNAUTHORIZED code the taxonomy defines (spec §7 has no distinct
// "Forbidden" kind).
func forbidden(reason string) *apiError {
	return &apiError{status: http.StatusForbidden, code: codeUnauthorized, message: "Invalid token", logDetail: reason}
}

// payloadTooLarge builds a 413 reporting size vs. limit on both sides (spec §7).
func payloadTooLarge(size, limit int64) *apiError {
	msg := fmt.Sprintf("payload of %d bytes exceeds the %d byte limit", size, limit)

	return &apiError{status: http.StatusRequestEntityTooLarge, code: codeInvalidInput, message: msg, logDetail: msg}
}

func databaseError(err error) *apiError {
	return &apiError{
		status:    http.StatusInternalServerError,
		code:      codeDatabase,
		message:   "An internal database error occurred",
		logDetail: "database error",
		wrapped:   err,
	}
}

func storageError(kind string, err error) *apiError {
	return &apiError{
		status:    http.StatusInternalServerError,
		code:      codeStorage,
		message:   fmt.Sprintf("object storage %s failed", kind),
		logDetail: fmt.Sprintf("storage kind=%s", kind),
		wrapped:   err,
	}
}

// classifyStoreError maps a store/objectstore sentinel to the apiError that
// belongs on the HTTP response, given the entity name/id for a 404 (spec §7).
func classifyStoreError(err error, entity, id string) *apiError {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return notFound(entity, id)
	case errors.Is(err, store.ErrInvalidArgument):
		return invalidInput(err.Error())
	case errors.Is(err, store.ErrConflict):
		return invalidInput(err.Error())
	case errors.Is(err, objectstore.ErrObjectNotFound):
		return notFound("object", id)
	default:
		return databaseError(err)
	}
}

// writeError writes body, logging full detail server-side per spec §7's
// log column while the client only ever sees the safe message.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err *apiError) {
	correlationID := middleware.GetCorrelationID(r.Context())

	logArgs := []any{
		slog.String("correlation_id", correlationID),
		slog.String("path", r.URL.Path),
		slog.String("code", string(err.code)),
		slog.String("detail", err.logDetail),
	}
	if err.wrapped != nil {
		logArgs = append(logArgs, slog.String("error", err.wrapped.Error()))
	}

	if err.status >= http.StatusInternalServerError {
		logger.Error("request failed", logArgs...)
	} else {
		logger.Warn("request rejected", logArgs...)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.status)

	body := struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}{Error: string(err.code), Message: err.message}

	if encErr := json.NewEncoder(w).Encode(body); encErr != nil {
		logger.Error("failed to encode error response",
			slog.String("correlation_id", correlationID), slog.String("error", encErr.Error()))
	}
}
