package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "idemp:lending:"

// ErrNoEntry is returned by Store.Load when the key is unknown or expired.
var ErrNoEntry = errors.New("idempotency: no entry")

// Entry is what the store keeps per idempotency key. While InProgress is set
// only the body hash is meaningful.
type Entry struct {
	InProgress  bool      `json:"in_progress"`
	Code        int       `json:"code,omitempty"`
	Body        []byte    `json:"body,omitempty"`
	BodySHA256  string    `json:"body_sha256"`
	RequestAtMS int64     `json:"request_at_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists idempotency entries.
type Store interface {
	// Reserve writes e only if key is free and reports whether it did.
	Reserve(ctx context.Context, key string, e Entry, ttl time.Duration) (bool, error)
	Load(ctx context.Context, key string) (Entry, error)
	Commit(ctx context.Context, key string, e Entry, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

type RedisStore struct{ rdb *redis.Client }

func NewRedisStore(rdb *redis.Client) *RedisStore { return &RedisStore{rdb: rdb} }

func (s *RedisStore) Reserve(ctx context.Context, key string, e Entry, ttl time.Duration) (bool, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return false, err
	}
	return s.rdb.SetNX(ctx, key, payload, ttl).Result()
}

func (s *RedisStore) Load(ctx context.Context, key string) (Entry, error) {
	var e Entry
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return e, ErrNoEntry
	}
	if err != nil {
		return e, err
	}
	err = json.Unmarshal(raw, &e)
	return e, err
}

func (s *RedisStore) Commit(ctx context.Context, key string, e Entry, ttl time.Duration) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, payload, ttl).Err()
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// entryKey scopes a request id to the concrete request path and the caller,
// so the same id may be reused on another resource or by another actor.
func entryKey(method, path, actorID, requestID string) string {
	return keyPrefix + strings.Join([]string{strings.ToLower(method), path, actorID, requestID}, ":")
}
