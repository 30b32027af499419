// Package redislock provides a single-owner lease on a named resource,
// used to keep one batch at a time driving the clinic application session.
package redislock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrNotAcquired = errors.New("lock is held by another owner")
	ErrNotHeld     = errors.New("lock is no longer held")
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

type Locker struct {
	rdb    *redis.Client
	prefix string
}

func New(rdb *redis.Client, prefix string) *Locker {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "lock"
	}
	return &Locker{rdb: rdb, prefix: prefix}
}

type Lock struct {
	locker *Locker
	key    string
	token  string
	ttl    time.Duration
}

func (l *Locker) Key(name string) string {
	return l.prefix + ":" + name
}

// Acquire takes the lease or returns ErrNotAcquired without waiting.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	lock := &Lock{
		locker: l,
		key:    l.Key(name),
		token:  uuid.NewString(),
		ttl:    ttl,
	}
	ok, err := l.rdb.SetNX(ctx, lock.key, lock.token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return lock, nil
}

// Refresh extends the lease by its original ttl.
func (k *Lock) Refresh(ctx context.Context) error {
	n, err := refreshScript.Run(ctx, k.locker.rdb, []string{k.key}, k.token, k.ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

func (k *Lock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, k.locker.rdb, []string{k.key}, k.token).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

func ReadyCheck(rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if rdb == nil {
			return errors.New("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}
}
