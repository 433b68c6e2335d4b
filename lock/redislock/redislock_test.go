package redislock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/splitledger/lock"
	"github.com/xraph/splitledger/lock/redislock"
)

var _ lock.Locker = (*redislock.Locker)(nil)

const release = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

func fixedToken() string { return "token-1" }

func TestLockAndRelease(t *testing.T) {
	client, mock := redismock.NewClientMock()
	l := redislock.New(client, redislock.WithTokenFunc(fixedToken), redislock.WithTTL(5*time.Second))

	mock.ExpectSetNX("splitledger:lock:alice", "token-1", 5*time.Second).SetVal(true)
	mock.ExpectEval(release, []string{"splitledger:lock:alice"}, "token-1").SetVal(int64(1))

	unlock, err := l.Lock(context.Background(), "alice")
	require.NoError(t, err)
	unlock()
	unlock()

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockRetriesUntilFree(t *testing.T) {
	client, mock := redismock.NewClientMock()
	l := redislock.New(client,
		redislock.WithTokenFunc(fixedToken),
		redislock.WithPrefix("test:"),
		redislock.WithRetryInterval(time.Millisecond),
	)

	mock.ExpectSetNX("test:bob", "token-1", redislock.DefaultTTL).SetVal(false)
	mock.ExpectSetNX("test:bob", "token-1", redislock.DefaultTTL).SetVal(false)
	mock.ExpectSetNX("test:bob", "token-1", redislock.DefaultTTL).SetVal(true)
	mock.ExpectEval(release, []string{"test:bob"}, "token-1").SetVal(int64(1))

	unlock, err := l.Lock(context.Background(), "bob")
	require.NoError(t, err)
	unlock()

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockGivesUpOnContext(t *testing.T) {
	client, mock := redismock.NewClientMock()
	l := redislock.New(client, redislock.WithTokenFunc(fixedToken), redislock.WithRetryInterval(time.Hour))

	mock.ExpectSetNX(redislock.DefaultPrefix+"carol", "token-1", redislock.DefaultTTL).SetVal(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := l.Lock(ctx, "carol")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockRedisDown(t *testing.T) {
	client, mock := redismock.NewClientMock()
	l := redislock.New(client, redislock.WithTokenFunc(fixedToken))

	mock.ExpectSetNX(redislock.DefaultPrefix+"dave", "token-1", redislock.DefaultTTL).SetErr(errors.New("connection refused"))

	_, err := l.Lock(context.Background(), "dave")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
