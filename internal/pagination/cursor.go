// Package pagination implements opaque cursors and keyset planning over a
// (timestamp, id) composite ordering key.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidCursor is returned for any cursor that was not produced by
// EncodeCursor.
var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor identifies the last row of a previously returned page.
type Cursor struct {
	Timestamp time.Time
	ID        string
}

type wireCursor struct {
	T string `json:"t"`
	I string `json:"i"`
}

// EncodeCursor returns the opaque token for c.
func EncodeCursor(c Cursor) string {
	raw, _ := json.Marshal(wireCursor{
		T: c.Timestamp.UTC().Format(time.RFC3339Nano),
		I: c.ID,
	})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses a token produced by EncodeCursor. An empty token
// means "first page" and yields a nil cursor.
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: not base64url", ErrInvalidCursor)
	}

	var wc wireCursor
	if err := json.Unmarshal(raw, &wc); err != nil {
		return nil, fmt.Errorf("%w: malformed payload", ErrInvalidCursor)
	}
	if wc.T == "" || wc.I == "" {
		return nil, fmt.Errorf("%w: missing fields", ErrInvalidCursor)
	}

	ts, err := time.Parse(time.RFC3339Nano, wc.T)
	if err != nil {
		return nil, fmt.Errorf("%w: bad timestamp", ErrInvalidCursor)
	}

	return &Cursor{Timestamp: ts, ID: wc.I}, nil
}
