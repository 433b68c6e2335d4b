// Package redislock implements lock.Locker on Redis so several ledger
// instances sharing one store also share per-user serialization.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultPrefix = "splitledger:lock:"
	DefaultTTL    = 10 * time.Second
	DefaultRetry  = 25 * time.Millisecond
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lock re-acquired by someone else is left alone.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// Locker acquires locks with SET NX and a random owner token.
type Locker struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	retry  time.Duration
	token  func() string
	logger *slog.Logger
}

type Option func(*Locker)

func WithPrefix(p string) Option { return func(l *Locker) { l.prefix = p } }

// WithTTL bounds how long a crashed holder can block others.
func WithTTL(d time.Duration) Option { return func(l *Locker) { l.ttl = d } }

func WithRetryInterval(d time.Duration) Option { return func(l *Locker) { l.retry = d } }

func WithLogger(logger *slog.Logger) Option { return func(l *Locker) { l.logger = logger } }

// WithTokenFunc replaces the owner token generator.
func WithTokenFunc(fn func() string) Option { return func(l *Locker) { l.token = fn } }

func New(client redis.Cmdable, opts ...Option) *Locker {
	l := &Locker{
		client: client,
		prefix: DefaultPrefix,
		ttl:    DefaultTTL,
		retry:  DefaultRetry,
		token:  func() string { return uuid.New().String() },
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock polls SET NX until it wins or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := l.prefix + key
	token := l.token()

	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redislock: acquire %s: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("redislock: acquire %s: %w", key, ctx.Err())
		case <-time.After(l.retry):
		}
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true

		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.ttl)
		defer cancel()
		n, err := l.client.Eval(rctx, releaseScript, []string{lockKey}, token).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			l.logger.Warn("redislock: release failed", "key", key, "error", err)
			return
		}
		if n == 0 {
			l.logger.Warn("redislock: lock expired before release", "key", key)
		}
	}, nil
}
