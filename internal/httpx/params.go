package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/dejobratic/opsapi/internal/pagination"
)

const maxBodyBytes = 1 << 20

var validate = validator.New()

// ParsePage reads limit, cursor and order. A missing or non-positive limit
// falls back to defaultLimit and any limit is clamped to maxLimit.
func ParsePage(r *http.Request, defaultLimit, maxLimit int) (pagination.Plan, error) {
	q := r.URL.Query()

	limit := defaultLimit
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return pagination.Plan{}, BadRequest("invalid_request", "limit must be an integer")
		}
		if parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	direction, err := pagination.ParseDirection(q.Get("order"))
	if err != nil {
		return pagination.Plan{}, BadRequest("invalid_request", err.Error())
	}

	cursor, err := pagination.DecodeCursor(q.Get("cursor"))
	if err != nil {
		return pagination.Plan{}, err
	}

	return pagination.NewPlan(direction, cursor, limit), nil
}

// DecodeJSON reads a bounded JSON body into dst and validates its struct tags.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return BadRequest("invalid_request", "request body is empty")
		}
		return BadRequest("invalid_request", fmt.Sprintf("invalid JSON payload: %v", err))
	}
	return Validate(dst)
}

// Validate runs validator struct tags on v.
func Validate(v any) error {
	return validate.Struct(v)
}

// QueryBool parses a boolean query parameter, treating absence as false.
func QueryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, BadRequest("invalid_request", name+" must be a boolean")
	}
	return v, nil
}
