package canonical

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRaw(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "sorts object members",
			input: `{"b":2,"a":1}`,
			want:  `{"a":1,"b":2}`,
		},
		{
			name: "drops whitespace and sorts nested objects",
			input: `{
  "z": [3, 2, 1],
  "a": { "y": true, "x": false }
}`,
			want: `{"a":{"x":false,"y":true},"z":[3,2,1]}`,
		},
		{
			name:  "keeps number literals verbatim",
			input: `{"big":12345678901234567890,"dec":1.50,"exp":1e30}`,
			want:  `{"big":12345678901234567890,"dec":1.50,"exp":1e30}`,
		},
		{
			name:  "passes timestamp strings through",
			input: `{"created_at":"2025-01-01T00:00:00.123456Z"}`,
			want:  `{"created_at":"2025-01-01T00:00:00.123456Z"}`,
		},
		{
			name:  "does not escape html characters",
			input: `{"q":"a<b && c>d"}`,
			want:  `{"q":"a<b && c>d"}`,
		},
		{
			name:  "keeps nulls",
			input: `{"end_ts":null,"items":[]}`,
			want:  `{"end_ts":null,"items":[]}`,
		},
		{
			name:  "scalar document",
			input: `"plain"`,
			want:  `"plain"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeRaw([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestEncodeRaw_Errors(t *testing.T) {
	t.Run("rejects invalid json", func(t *testing.T) {
		_, err := EncodeRaw([]byte(`{"a":`))
		assert.Error(t, err)
	})

	t.Run("rejects trailing data", func(t *testing.T) {
		_, err := EncodeRaw([]byte(`{"a":1}{"b":2}`))
		assert.ErrorIs(t, err, ErrTrailingData)
	})
}

func TestEncode_GoValues(t *testing.T) {
	type row struct {
		Name string `json:"name"`
		ID   string `json:"id"`
	}

	got, err := Encode(map[string]any{
		"z":    1,
		"rows": []row{{Name: "alpha", ID: "A"}},
		"a":    map[string]any{"c": 3, "b": 2},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"b":2,"c":3},"rows":[{"id":"A","name":"alpha"}],"z":1}`, string(got))
}

func TestEncode_UnsupportedValue(t *testing.T) {
	_, err := Encode(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}

func TestEncodeRaw_KeyOrderIndependence(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	members := []string{`"id":"C"`, `"created_at":"2025-03-01T10:00:00Z"`, `"n":7`, `"tags":["x","y"]`, `"meta":{"b":1,"a":2}`}

	want, err := EncodeRaw([]byte("{" + strings.Join(members, ",") + "}"))
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		shuffled := append([]string(nil), members...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got, err := EncodeRaw([]byte("{" + strings.Join(shuffled, ",") + "}"))
		require.NoError(t, err)
		assert.Equal(t, string(want), string(got), fmt.Sprintf("permutation %d", i))
	}
}

func TestEncodeRaw_ContentChangesEncoding(t *testing.T) {
	a, err := EncodeRaw([]byte(`{"id":"A","n":1}`))
	require.NoError(t, err)
	b, err := EncodeRaw([]byte(`{"id":"A","n":2}`))
	require.NoError(t, err)
	c, err := EncodeRaw([]byte(`{"id":"A","n":"1"}`))
	require.NoError(t, err)

	assert.NotEqual(t, string(a), string(b))
	assert.NotEqual(t, string(a), string(c))
}
