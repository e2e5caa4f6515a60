package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dejobratic/opsapi/internal/idempotency"
	"github.com/dejobratic/opsapi/internal/pagination"
)

// Error is an error with a fixed HTTP status and a machine readable code.
type Error struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NotFound(message string) *Error {
	return &Error{Status: http.StatusNotFound, Code: "not_found", Message: message}
}

func BadRequest(code, message string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: code, Message: message}
}

func Unauthorized(message string) *Error {
	return &Error{Status: http.StatusUnauthorized, Code: "unauthenticated", Message: message}
}

func Forbidden(code, message string) *Error {
	return &Error{Status: http.StatusForbidden, Code: code, Message: message}
}

func Conflict(code, message string) *Error {
	return &Error{Status: http.StatusConflict, Code: code, Message: message}
}

// Classify maps err to the response it produces. Unknown errors become a
// generic 500 so internal details never reach the client.
func Classify(err error) *Error {
	var httpErr *Error
	if errors.As(err, &httpErr) {
		return httpErr
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return &Error{Status: http.StatusBadRequest, Code: "invalid_request", Message: describeValidation(verrs), Err: err}
	}

	switch {
	case errors.Is(err, idempotency.ErrDuplicateInFlight):
		return &Error{Status: http.StatusConflict, Code: "duplicate_in_flight", Message: "a request with this idempotency key is in progress", Err: err}
	case errors.Is(err, idempotency.ErrKeyReused):
		return &Error{Status: http.StatusUnprocessableEntity, Code: "idempotency_key_reused", Message: "idempotency key was already used for a different request", Err: err}
	case errors.Is(err, idempotency.ErrInvalidKey):
		return &Error{Status: http.StatusBadRequest, Code: "invalid_idempotency_key", Message: "idempotency key must be 1 to 255 characters", Err: err}
	case errors.Is(err, idempotency.ErrStoreUnavailable):
		return &Error{Status: http.StatusServiceUnavailable, Code: "store_unavailable", Message: "idempotency store unavailable", Err: err}
	case errors.Is(err, pagination.ErrInvalidCursor):
		return &Error{Status: http.StatusBadRequest, Code: "invalid_cursor", Message: "cursor is malformed", Err: err}
	default:
		return &Error{Status: http.StatusInternalServerError, Code: "internal_error", Message: "internal server error", Err: err}
	}
}

func describeValidation(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
