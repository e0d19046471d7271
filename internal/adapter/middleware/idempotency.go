package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"p2p-lending-engine/pkg/logger"
)

const (
	// lockTTL bounds how long an in-progress reservation survives a crashed handler.
	lockTTL = 60 * time.Second
	// maxClockSkew is the accepted distance between Ax-Request-At and server time.
	maxClockSkew = 10 * time.Minute
	storeTimeout = 2 * time.Second

	// ActorKey holds the validated Ax-Actor-Id in the echo context.
	ActorKey = "actor_id"
)

// Actor returns the caller id recorded by the idempotency middleware.
func Actor(c echo.Context) string {
	s, _ := c.Get(ActorKey).(string)
	return s
}

type respRecorder struct {
	http.ResponseWriter
	buf  bytes.Buffer
	code int
}

func (r *respRecorder) Write(b []byte) (int, error) {
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *respRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func fail(c echo.Context, code int, msg string) error {
	return c.JSON(code, map[string]string{"error": msg})
}

func bodyHash(b []byte) string {
	s := sha256.Sum256(b)
	return hex.EncodeToString(s[:])
}

// IdempotencyMiddleware guards mutating routes with a Redis backed store.
func IdempotencyMiddleware(rdb *redis.Client, ttl time.Duration) echo.MiddlewareFunc {
	return Idempotency(NewRedisStore(rdb), ttl)
}

// Idempotency keys every mutating request by method, path, Ax-Actor-Id and
// Ax-Request-Id. A completed request replays its stored response for ttl. A
// request that ended in a 5xx is released so the caller can retry it with
// the same id, which is how a failed disbursement or repayment is re-driven.
func Idempotency(store Store, ttl time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			switch req.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return next(c)
			}

			meta, err := readMeta(req.Header, time.Now().UTC(), maxClockSkew)
			if err != nil {
				return fail(c, http.StatusBadRequest, err.Error())
			}
			c.Set(ActorKey, meta.ActorID)
			req = req.WithContext(logger.WithTraceID(req.Context(), meta.RequestID))
			c.SetRequest(req)

			var body []byte
			if req.Body != nil {
				body, _ = io.ReadAll(req.Body)
			}
			req.Body = io.NopCloser(bytes.NewReader(body))
			hash := bodyHash(body)

			key := entryKey(req.Method, req.URL.Path, meta.ActorID, meta.RequestID)
			ctx, cancel := context.WithTimeout(req.Context(), storeTimeout)
			defer cancel()

			reserved, err := store.Reserve(ctx, key, Entry{
				InProgress:  true,
				BodySHA256:  hash,
				RequestAtMS: meta.RequestAt.UnixMilli(),
				CreatedAt:   time.Now().UTC(),
			}, lockTTL)
			if err != nil {
				logger.CtxError(ctx, "idempotency store unavailable", err, slog.String("key", key))
				return fail(c, http.StatusServiceUnavailable, "idempotency store unavailable")
			}
			if !reserved {
				return replay(ctx, c, store, key, hash)
			}

			rec := &respRecorder{ResponseWriter: c.Response().Writer, code: http.StatusOK}
			c.Response().Writer = rec
			if err := next(c); err != nil {
				c.Error(err)
			}

			// The handler may outlive ctx; persisting the outcome must not.
			saveCtx, saveCancel := context.WithTimeout(context.WithoutCancel(req.Context()), storeTimeout)
			defer saveCancel()
			if rec.code >= http.StatusInternalServerError {
				if err := store.Release(saveCtx, key); err != nil {
					logger.CtxError(saveCtx, "idempotency key not released", err, slog.String("key", key))
				}
				return nil
			}
			final := Entry{
				Code:        rec.code,
				Body:        rec.buf.Bytes(),
				BodySHA256:  hash,
				RequestAtMS: meta.RequestAt.UnixMilli(),
				CreatedAt:   time.Now().UTC(),
			}
			if err := store.Commit(saveCtx, key, final, ttl); err != nil {
				logger.CtxError(saveCtx, "idempotency result not stored", err, slog.String("key", key))
			}
			return nil
		}
	}
}

func replay(ctx context.Context, c echo.Context, store Store, key, hash string) error {
	cur, err := store.Load(ctx, key)
	switch {
	case errors.Is(err, ErrNoEntry):
		// Released or expired between Reserve and Load.
		return fail(c, http.StatusConflict, "request is already in progress")
	case err != nil:
		logger.CtxWarn(ctx, "idempotency entry unreadable", slog.String("key", key), slog.String("err", err.Error()))
		return fail(c, http.StatusConflict, "request is already in progress")
	}
	if cur.BodySHA256 != hash {
		return fail(c, http.StatusConflict, "Ax-Request-Id reused with different body")
	}
	if cur.InProgress || cur.Code == 0 {
		return fail(c, http.StatusConflict, "request is already in progress")
	}
	c.Response().Header().Set(HeaderReplayed, "true")
	return c.Blob(cur.Code, echo.MIMEApplicationJSON, cur.Body)
}
