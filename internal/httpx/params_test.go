package httpx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dejobratic/opsapi/internal/pagination"
)

func TestParsePage(t *testing.T) {
	cursor := pagination.EncodeCursor(pagination.Cursor{Timestamp: time.Unix(100, 0), ID: "id-1"})

	tests := []struct {
		name      string
		query     string
		wantLimit int
		wantDir   pagination.Direction
		hasCursor bool
	}{
		{"defaults", "", 50, pagination.Descending, false},
		{"explicit limit", "limit=10", 10, pagination.Descending, false},
		{"clamped", "limit=5000", 200, pagination.Descending, false},
		{"non positive falls back", "limit=0", 50, pagination.Descending, false},
		{"ascending with cursor", "order=asc&cursor=" + cursor, 50, pagination.Ascending, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/x?"+tt.query, nil)

			plan, err := ParsePage(r, 50, 200)

			require.NoError(t, err)
			assert.Equal(t, tt.wantLimit, plan.Limit)
			assert.Equal(t, tt.wantDir, plan.Direction)
			assert.Equal(t, tt.hasCursor, plan.Cursor != nil)
		})
	}
}

func TestParsePage_Invalid(t *testing.T) {
	for _, query := range []string{"limit=ten", "order=sideways"} {
		r := httptest.NewRequest(http.MethodGet, "/x?"+query, nil)
		_, err := ParsePage(r, 50, 200)
		assert.Equal(t, http.StatusBadRequest, Classify(err).Status, query)
	}

	r := httptest.NewRequest(http.MethodGet, "/x?cursor=@@@", nil)
	_, err := ParsePage(r, 50, 200)
	assert.ErrorIs(t, err, pagination.ErrInvalidCursor)
}

func TestDecodeJSON(t *testing.T) {
	type input struct {
		Name string `json:"name" validate:"required,max=5"`
	}

	t.Run("valid", func(t *testing.T) {
		var in input
		r := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"name":"abc"}`))
		require.NoError(t, DecodeJSON(r, &in))
		assert.Equal(t, "abc", in.Name)
	})

	t.Run("empty body", func(t *testing.T) {
		var in input
		r := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(""))
		assert.Equal(t, http.StatusBadRequest, Classify(DecodeJSON(r, &in)).Status)
	})

	t.Run("unknown field", func(t *testing.T) {
		var in input
		r := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"name":"a","extra":1}`))
		assert.Equal(t, http.StatusBadRequest, Classify(DecodeJSON(r, &in)).Status)
	})

	t.Run("validation failure", func(t *testing.T) {
		var in input
		r := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"name":"toolong"}`))
		err := DecodeJSON(r, &in)
		assert.Equal(t, "invalid_request", Classify(err).Code)
	})
}

func TestQueryBool(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x?active_only=true&bad=maybe", nil)

	v, err := QueryBool(r, "active_only")
	require.NoError(t, err)
	assert.True(t, v)

	v, err = QueryBool(r, "missing")
	require.NoError(t, err)
	assert.False(t, v)

	_, err = QueryBool(r, "bad")
	assert.Error(t, err)
}
