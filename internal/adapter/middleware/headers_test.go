package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidRequestID(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"123e4567-e89b-12d3-a456-426614174000", true},
		{"123E4567-E89B-12D3-A456-426614174000", true},
		{strings.Repeat("a", 32), true},
		{strings.Repeat("A", 32), true},
		{"{123e4567-e89b-12d3-a456-426614174000}", false},
		{"urn:uuid:123e4567-e89b-12d3-a456-426614174000", false},
		{strings.Repeat("g", 32), false},
		{"short", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, validRequestID(tc.in), tc.in)
	}
}

func TestParseRequestAt(t *testing.T) {
	ref := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ok := map[string]time.Time{
		strconv.FormatInt(ref.Unix(), 10):      ref,
		strconv.FormatInt(ref.UnixMilli(), 10): ref,
		"2026-03-01T17:00:00+07:00":            ref,
		"2026-03-01T10:00:00Z":                 ref,
		"2026-03-01T10:00:00.5Z":               ref.Add(500 * time.Millisecond),
	}
	for in, want := range ok {
		got, err := parseRequestAt(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), "%s => %s", in, got)
		assert.Equal(t, time.UTC, got.Location())
	}

	for _, in := range []string{"", "   ", "2026-03-01T10:00:00", "yesterday"} {
		_, err := parseRequestAt(in)
		assert.Error(t, err, in)
	}
}

func TestReadMeta(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	valid := func() http.Header {
		h := http.Header{}
		h.Set(HeaderRequestID, strings.Repeat("a", 32))
		h.Set(HeaderRequestAt, now.Format(time.RFC3339))
		h.Set(HeaderActorID, strings.Repeat("b", 32))
		return h
	}

	m, err := readMeta(valid(), now, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 32), m.RequestID)
	assert.Equal(t, strings.Repeat("b", 32), m.ActorID)
	assert.True(t, now.Equal(m.RequestAt))

	cases := map[string]func(h http.Header){
		"missing request id": func(h http.Header) { h.Del(HeaderRequestID) },
		"bad request id":     func(h http.Header) { h.Set(HeaderRequestID, "NOT-VALID") },
		"bad request at":     func(h http.Header) { h.Set(HeaderRequestAt, "not-a-time") },
		"past skew":          func(h http.Header) { h.Set(HeaderRequestAt, now.Add(-2*time.Minute).Format(time.RFC3339)) },
		"future skew":        func(h http.Header) { h.Set(HeaderRequestAt, now.Add(2*time.Minute).Format(time.RFC3339)) },
		"missing actor":      func(h http.Header) { h.Del(HeaderActorID) },
		"uppercase actor":    func(h http.Header) { h.Set(HeaderActorID, strings.Repeat("B", 32)) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			h := valid()
			mutate(h)
			_, err := readMeta(h, now, time.Minute)
			assert.Error(t, err)
		})
	}
}
