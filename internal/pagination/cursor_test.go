package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	base := time.Date(2025, 3, 14, 15, 9, 26, 535897000, time.UTC)

	tests := []struct {
		name   string
		cursor Cursor
	}{
		{name: "uuid id", cursor: Cursor{Timestamp: base, ID: "8f14e45f-ceea-467a-9af0-8d2b6c1b2f0e"}},
		{name: "id containing the legacy delimiter", cursor: Cursor{Timestamp: base, ID: "a|b|c"}},
		{name: "unicode id", cursor: Cursor{Timestamp: base, ID: "ünïcødé-✓"}},
		{name: "zero fraction", cursor: Cursor{Timestamp: base.Truncate(time.Second), ID: "x"}},
		{name: "non-utc input", cursor: Cursor{Timestamp: base.In(time.FixedZone("CET", 3600)), ID: "y"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := EncodeCursor(tt.cursor)

			decoded, err := DecodeCursor(token)
			require.NoError(t, err)
			require.NotNil(t, decoded)
			assert.True(t, tt.cursor.Timestamp.Equal(decoded.Timestamp), "timestamp %s != %s", tt.cursor.Timestamp, decoded.Timestamp)
			assert.Equal(t, tt.cursor.ID, decoded.ID)
		})
	}
}

func TestDecodeCursor_Empty(t *testing.T) {
	c, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestDecodeCursor_Invalid(t *testing.T) {
	enc := base64.RawURLEncoding.EncodeToString

	tests := []struct {
		name  string
		token string
	}{
		{name: "not base64", token: "%%%not-base64%%%"},
		{name: "legacy pipe format", token: enc([]byte("2025-01-01T00:00:00.000Z|abc"))},
		{name: "json array", token: enc([]byte(`["2025-01-01T00:00:00Z","abc"]`))},
		{name: "missing id", token: enc([]byte(`{"t":"2025-01-01T00:00:00Z"}`))},
		{name: "missing timestamp", token: enc([]byte(`{"i":"abc"}`))},
		{name: "bad timestamp", token: enc([]byte(`{"t":"yesterday","i":"abc"}`))},
		{name: "wrong field types", token: enc([]byte(`{"t":1,"i":2}`))},
		{name: "padded base64", token: base64.URLEncoding.EncodeToString([]byte(`{"t":"2025-01-01T00:00:00Z","i":"a"}`))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := DecodeCursor(tt.token)
			assert.ErrorIs(t, err, ErrInvalidCursor)
			assert.Nil(t, c)
		})
	}
}
