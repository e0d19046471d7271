package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"p2p-lending-engine/pkg/id"
)

const (
	HeaderRequestID = "Ax-Request-Id"
	HeaderRequestAt = "Ax-Request-At"
	HeaderActorID   = "Ax-Actor-Id"
	HeaderReplayed  = "Idempotent-Replayed"
)

// requestMeta is the validated idempotency header set.
type requestMeta struct {
	RequestID string
	RequestAt time.Time
	ActorID   string
}

// validRequestID accepts a canonical UUID or a 32 char hex id, case-insensitive.
func validRequestID(raw string) bool {
	raw = strings.ToLower(raw)
	if id.Valid(raw) {
		return true
	}
	if len(raw) != 36 {
		return false
	}
	_, err := uuid.Parse(raw)
	return err == nil
}

// parseRequestAt takes epoch seconds, epoch milliseconds or RFC3339 with an
// explicit zone. Naive local timestamps are rejected.
func parseRequestAt(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("missing " + HeaderRequestAt)
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, errors.New(HeaderRequestAt + " must be epoch (s/ms) or RFC3339 with timezone")
}

func readMeta(h http.Header, now time.Time, skew time.Duration) (requestMeta, error) {
	var m requestMeta
	m.RequestID = strings.TrimSpace(h.Get(HeaderRequestID))
	if m.RequestID == "" {
		return m, errors.New("missing " + HeaderRequestID)
	}
	if !validRequestID(m.RequestID) {
		return m, errors.New("invalid " + HeaderRequestID + " format")
	}

	at, err := parseRequestAt(h.Get(HeaderRequestAt))
	if err != nil {
		return m, err
	}
	if at.Before(now.Add(-skew)) || at.After(now.Add(skew)) {
		return m, errors.New(HeaderRequestAt + " too skewed")
	}
	m.RequestAt = at

	m.ActorID = strings.TrimSpace(h.Get(HeaderActorID))
	if m.ActorID == "" {
		return m, errors.New("missing " + HeaderActorID)
	}
	if !id.Valid(m.ActorID) {
		return m, errors.New("invalid " + HeaderActorID)
	}
	return m, nil
}
