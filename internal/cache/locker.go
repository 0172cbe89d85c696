// Package cache holds Redis-backed coordination shared by replicas.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only when it still holds our token, so a
// lease that expired and was taken by another replica is left alone.
var releaseScript = redis.NewScript(`
    if redis.call('GET', KEYS[1]) == ARGV[1] then
        return redis.call('DEL', KEYS[1])
    end
    return 0
`)

// ErrLockNotHeld is returned by Unlock when the lease expired or belongs
// to another holder.
var ErrLockNotHeld = errors.New("lock not held")

// Locker is a single-key lease on Redis (SET NX PX).
type Locker struct {
	rdb    redis.Cmdable
	prefix string
}

// NewLocker returns a Locker namespacing keys under prefix (may be empty).
func NewLocker(rdb redis.Cmdable, prefix string) *Locker {
	return &Locker{rdb: rdb, prefix: prefix}
}

func (l *Locker) key(k string) string {
	if l.prefix == "" {
		return k
	}
	return l.prefix + ":" + k
}

// TryLock attempts to take key for ttl. ok is false when another holder
// has it; err is set only for Redis failures.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key(key), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Unlock releases key if token still owns it.
func (l *Locker) Unlock(ctx context.Context, key, token string) error {
	n, err := releaseScript.Run(ctx, l.rdb, []string{l.key(key)}, token).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}
