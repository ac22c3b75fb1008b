package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/wzuhqa/flashstock/internal/adapter/storage"
)

type downLockStore struct {
	*storage.MemoryStore
}

func (downLockStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return false, errors.New("store down")
}

func TestAcquireRelease(t *testing.T) {
	l := New(storage.NewMemoryStore(), zap.NewNop())
	ctx := context.Background()

	token, ok := l.Acquire(ctx, "L", 30*time.Second)
	if !ok {
		t.Fatal("expected acquire to succeed")
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	if !l.Release(ctx, "L", token) {
		t.Error("expected release with matching token to succeed")
	}

	// Immediately re-acquirable.
	if _, ok := l.Acquire(ctx, "L", 30*time.Second); !ok {
		t.Error("expected lock re-acquirable after release")
	}
}

func TestAcquire_MutualExclusion(t *testing.T) {
	l := New(storage.NewMemoryStore(), zap.NewNop())
	ctx := context.Background()

	if _, ok := l.Acquire(ctx, "L", 30*time.Second); !ok {
		t.Fatal("first acquire failed")
	}
	if _, ok := l.Acquire(ctx, "L", 30*time.Second); ok {
		t.Error("expected second acquire to fail while held")
	}
}

func TestAcquire_Concurrent(t *testing.T) {
	l := New(storage.NewMemoryStore(), zap.NewNop())
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := l.Acquire(ctx, "hot", time.Minute); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("expected exactly 1 winner, got %d", wins.Load())
	}
}

func TestRelease_WrongTokenKeepsLock(t *testing.T) {
	l := New(storage.NewMemoryStore(), zap.NewNop())
	ctx := context.Background()

	token, ok := l.Acquire(ctx, "L", 30*time.Second)
	if !ok {
		t.Fatal("acquire failed")
	}

	if l.Release(ctx, "L", "wrong-token") {
		t.Error("expected release with wrong token to fail")
	}
	if _, ok := l.Acquire(ctx, "L", 30*time.Second); ok {
		t.Error("expected lock still held after bogus release")
	}

	if !l.Release(ctx, "L", token) {
		t.Error("expected release with right token to succeed")
	}
}

func TestRelease_AfterExpiryAndReacquire(t *testing.T) {
	l := New(storage.NewMemoryStore(), zap.NewNop())
	ctx := context.Background()

	staleToken, ok := l.Acquire(ctx, "L", 30*time.Millisecond)
	if !ok {
		t.Fatal("acquire failed")
	}

	time.Sleep(50 * time.Millisecond)

	// Lock expired; a new holder takes over.
	newToken, ok := l.Acquire(ctx, "L", 30*time.Second)
	if !ok {
		t.Fatal("expected acquire after expiry to succeed")
	}

	// The crashed holder's token must not free the new holder's lock.
	if l.Release(ctx, "L", staleToken) {
		t.Error("expected stale release to fail")
	}
	if _, ok := l.Acquire(ctx, "L", 30*time.Second); ok {
		t.Error("expected lock still held by new owner")
	}

	if !l.Release(ctx, "L", newToken) {
		t.Error("expected new owner release to succeed")
	}
}

func TestAcquire_FailsClosed(t *testing.T) {
	l := New(downLockStore{}, zap.NewNop())

	if _, ok := l.Acquire(context.Background(), "L", time.Minute); ok {
		t.Error("expected acquire to fail closed on store error")
	}
}

func TestTokensUniquePerAcquisition(t *testing.T) {
	l := New(storage.NewMemoryStore(), zap.NewNop())
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		token, ok := l.Acquire(ctx, "L", time.Minute)
		if !ok {
			t.Fatal("acquire failed")
		}
		if seen[token] {
			t.Fatalf("token reused: %s", token)
		}
		seen[token] = true
		l.Release(ctx, "L", token)
	}
}
