package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinels for errors.Is checks across layers.
var (
	ErrNotFound    = errors.New("not found")
	ErrValidation  = errors.New("validation failure")
	ErrConflict    = errors.New("conflict")
	ErrPersistence = errors.New("persistence failure")
	ErrInternal    = errors.New("internal error")
)

// AppError is a structured failure carrying a human-readable message and the
// HTTP status the transport layer should answer with.
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil && !isSentinel(e.Err) {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// MarshalJSON renders the client-facing fields. It takes precedence over
// Error when echo writes an HTTPError whose message is an AppError.
func (e *AppError) MarshalJSON() ([]byte, error) {
	type body AppError
	return json.Marshal((*body)(e))
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrNotFound) match an AppError whose code maps to
// that sentinel even when a driver error is wrapped underneath.
func (e *AppError) Is(target error) bool {
	switch e.Code {
	case "NOT_FOUND":
		return target == ErrNotFound
	case "VALIDATION_ERROR":
		return target == ErrValidation
	case "CONFLICT":
		return target == ErrConflict || target == ErrPersistence
	case "PERSISTENCE_ERROR":
		return target == ErrPersistence
	case "INTERNAL_ERROR":
		return target == ErrInternal
	}
	return false
}

// NotFound reports a missing resource looked up by identity.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Code:       "NOT_FOUND",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]string{"resource": resource, "id": id},
	}
}

// Validation reports malformed input, optionally per field.
func Validation(message string, details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Message:    message,
		Code:       "VALIDATION_ERROR",
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// Conflict reports a write rejected by a uniqueness constraint.
func Conflict(message string, err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "CONFLICT",
		HTTPStatus: http.StatusConflict,
	}
}

// Persistence reports a write the backing store refused. The write has been
// rolled back by the time the caller sees this.
func Persistence(message string, err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "PERSISTENCE_ERROR",
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// Internal wraps an unexpected failure.
func Internal(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "internal server error",
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// As extracts an *AppError from err, if any.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HTTPStatus returns the status an error should be reported with.
func HTTPStatus(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

func isSentinel(err error) bool {
	switch err {
	case ErrNotFound, ErrValidation, ErrConflict, ErrPersistence, ErrInternal:
		return true
	}
	return false
}
