// Package redislock provides a session.Locker backed by redis.
package redislock

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/chatflow/pkg/session"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultPollInterval = 50 * time.Millisecond

// unlockScript deletes the key only while it still holds our token, so an
// expired lock taken over by another worker is left alone.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// refreshScript extends the expiry under the same token check.
var refreshScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end
`)

type Locker struct {
	client       redis.UniversalClient
	prefix       string
	pollInterval time.Duration
}

func NewLocker(client redis.UniversalClient, prefix string) *Locker {
	return &Locker{client: client, prefix: prefix, pollInterval: defaultPollInterval}
}

// NewLockerFromURL parses a redis:// URL.
func NewLockerFromURL(rawURL, prefix string) (*Locker, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	return NewLocker(redis.NewClient(opts), prefix), nil
}

// Key returns the redis key guarding key.
func (l *Locker) Key(key string) string {
	return l.prefix + "lock:" + key
}

// Lock polls SET NX PX until it wins or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (session.Lease, error) {
	lockKey := l.Key(key)
	token := uuid.NewString()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		acquired, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis setnx %s: %w", lockKey, err)
		}

		if acquired {
			return &lease{client: l.client, key: lockKey, token: token}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

type lease struct {
	client redis.UniversalClient
	key    string
	token  string
}

func (l *lease) Refresh(ctx context.Context, ttl time.Duration) error {
	extended, err := refreshScript.Run(ctx, l.client, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("redis pexpire %s: %w", l.key, err)
	}

	if extended == 0 {
		return session.ErrLockLost
	}

	return nil
}

func (l *lease) Release(ctx context.Context) error {
	return unlockScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}
