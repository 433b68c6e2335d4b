package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLocalExclusive(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "alice")
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("expected at most one holder, saw %d", maxSeen)
	}
	if n := l.held(); n != 0 {
		t.Errorf("expected no tracked keys after release, got %d", n)
	}
}

func TestLocalIndependentKeys(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, "alice")
	if err != nil {
		t.Fatalf("Lock(alice): %v", err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "bob")
	if err != nil {
		t.Fatalf("Lock(bob) blocked by alice: %v", err)
	}
	unlockB()
}

func TestLocalContextCancel(t *testing.T) {
	l := NewLocal()
	unlock, err := l.Lock(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "alice"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}

	unlock()
	unlock()
	if n := l.held(); n != 0 {
		t.Errorf("expected no tracked keys, got %d", n)
	}
}

func TestLocalAsLocker(t *testing.T) {
	var lk Locker = NewLocal()
	ctx := context.Background()

	unlock, err := lk.Lock(ctx, "alice")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	unlock()

	again, err := lk.Lock(ctx, "alice")
	if err != nil {
		t.Fatalf("Lock after release: %v", err)
	}
	again()
}
