package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DailyLock lets a named job run at most once per UTC day across processes.
type DailyLock struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewDailyLock(rdb *redis.Client, ttl time.Duration) *DailyLock {
	if ttl <= 0 {
		ttl = 20 * time.Hour
	}
	return &DailyLock{rdb: rdb, ttl: ttl}
}

func lockKey(job string, day time.Time) string {
	return "runlock:" + job + ":" + day.UTC().Format("2006-01-02")
}

// Acquire reports whether the caller won the run for job on day.
func (l *DailyLock) Acquire(ctx context.Context, job string, day time.Time) (bool, error) {
	return l.rdb.SetNX(ctx, lockKey(job, day), time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
}

// Release frees the slot so a failed run can be repeated the same day.
func (l *DailyLock) Release(ctx context.Context, job string, day time.Time) error {
	return l.rdb.Del(ctx, lockKey(job, day)).Err()
}
