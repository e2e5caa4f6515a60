// Package etag computes weak HTTP validators for response payloads and
// evaluates If-None-Match preconditions against them.
package etag

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dejobratic/opsapi/internal/canonical"
)

const (
	// Header is the response validator header.
	Header = "ETag"
	// IfNoneMatchHeader carries the client's cached validator.
	IfNoneMatchHeader = "If-None-Match"

	weakPrefix = "W/"
)

// Compute returns the weak validator for payload.
//
// Byte slices and json.RawMessage are treated as serialized JSON and
// canonicalized first. A string is treated as an already serialized body
// and hashed verbatim. Any other value is canonically encoded.
func Compute(payload any) (string, error) {
	var data []byte
	switch v := payload.(type) {
	case string:
		data = []byte(v)
	case []byte:
		canon, err := canonical.EncodeRaw(v)
		if err != nil {
			return "", fmt.Errorf("etag: %w", err)
		}
		data = canon
	case json.RawMessage:
		canon, err := canonical.EncodeRaw(v)
		if err != nil {
			return "", fmt.Errorf("etag: %w", err)
		}
		data = canon
	default:
		canon, err := canonical.Encode(v)
		if err != nil {
			return "", fmt.Errorf("etag: %w", err)
		}
		data = canon
	}
	return FromBytes(data), nil
}

// FromBytes hashes data as-is and wraps the digest as a weak validator.
func FromBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return weakPrefix + `"` + base64.StdEncoding.EncodeToString(sum[:]) + `"`
}

// Matches reports whether an If-None-Match header value selects the fresh
// validator. It accepts "*", a comma separated list, and compares weakly.
func Matches(ifNoneMatch, fresh string) bool {
	ifNoneMatch = strings.TrimSpace(ifNoneMatch)
	if ifNoneMatch == "" || fresh == "" {
		return false
	}
	if ifNoneMatch == fresh || ifNoneMatch == "*" {
		return true
	}

	want := opaque(fresh)
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || opaque(candidate) == want {
			return true
		}
	}
	return false
}

func opaque(tag string) string {
	return strings.TrimPrefix(strings.TrimSpace(tag), weakPrefix)
}
