// Package lock serializes work per key. The ledger takes one lock per user
// around every snapshot refresh so two writers never interleave a
// read-fold-write cycle for the same owner.
package lock

import (
	"context"
	"sync"
)

// Locker acquires an exclusive lock on key. It blocks until the lock is
// held or ctx is done. The returned unlock func is safe to call more than
// once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

var _ Locker = (*Local)(nil)

// Local is an in-process keyed mutex. Entries are dropped once nobody
// holds or waits on them.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocal returns an empty Local locker.
func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.ch
				l.release(key, s)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, s)
		return nil, ctx.Err()
	}
}

func (l *Local) release(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// held returns the number of keys currently tracked.
func (l *Local) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
