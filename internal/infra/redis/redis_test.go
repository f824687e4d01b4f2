//go:build !integration

package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"khqr-payment-bot/internal/domain"
)

// memClient is an in-memory RedisClient; expirations are recorded, not enforced.
type memClient struct {
	mu      sync.Mutex
	kv      map[string]string
	ttl     map[string]time.Duration
	failErr error
}

var _ RedisClient = (*memClient)(nil)

func newMemClient() *memClient {
	return &memClient{kv: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (m *memClient) Ping(ctx context.Context) error { return m.failErr }

func (m *memClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[key] = value.(string)
	m.ttl[key] = expiration
	return nil
}

func (m *memClient) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.kv[key]
	if !ok {
		return "", errors.New("redis: nil")
	}
	return v, nil
}

func (m *memClient) Incr(ctx context.Context, key string) (int64, error) {
	if m.failErr != nil {
		return 0, m.failErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	if v, ok := m.kv[key]; ok {
		for _, c := range v {
			n = n*10 + int64(c-'0')
		}
	}
	n++
	m.kv[key] = itoa(n)
	return n, nil
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}

func (m *memClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ttl[key] = expiration
	return nil
}

func (m *memClient) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.kv, k)
	}
	return nil
}

func (m *memClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	if m.failErr != nil {
		return false, m.failErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.kv[key]; ok {
		return false, nil
	}
	m.kv[key] = value.(string)
	m.ttl[key] = expiration
	return true, nil
}

func (m *memClient) DelIfEquals(ctx context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.kv[key] != value {
		return false, nil
	}
	delete(m.kv, key)
	return true, nil
}

func (m *memClient) Close() error { return nil }

func TestRateLimiter(t *testing.T) {
	ctx := context.Background()

	t.Run("should allow up to the limit and then block", func(t *testing.T) {
		cli := newMemClient()
		rl := NewRateLimiter(cli)
		key := UserCommandKey(42, "message")
		for i := 0; i < 3; i++ {
			ok, err := rl.Allow(ctx, key, 3, time.Minute)
			if err != nil || !ok {
				t.Fatalf("hit %d: expected allowed, got ok=%v err=%v", i+1, ok, err)
			}
		}
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		if err != nil || ok {
			t.Fatalf("expected 4th hit to be blocked, got ok=%v err=%v", ok, err)
		}
		if cli.ttl[key] != time.Minute {
			t.Errorf("expected window expiry to be set on first hit, got %s", cli.ttl[key])
		}
	})

	t.Run("should surface client errors", func(t *testing.T) {
		cli := newMemClient()
		cli.failErr = errors.New("down")
		if _, err := NewRateLimiter(cli).Allow(ctx, "k", 1, time.Second); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestLocker(t *testing.T) {
	ctx := context.Background()
	cli := newMemClient()
	l := NewLocker(cli)
	key := PaymentCheckLockKey("abc")

	token, err := l.TryLock(ctx, key, 10*time.Second)
	if err != nil || token == "" {
		t.Fatalf("expected lock, got token=%q err=%v", token, err)
	}
	if _, err := l.TryLock(ctx, key, 10*time.Second); !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}

	// a stale token must not release someone else's lock
	if err := l.Unlock(ctx, key, "other"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := l.TryLock(ctx, key, time.Second); !errors.Is(err, domain.ErrLockHeld) {
		t.Fatal("lock must still be held after unlock with a foreign token")
	}

	if err := l.Unlock(ctx, key, token); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := l.TryLock(ctx, key, time.Second); err != nil {
		t.Fatalf("expected lock to be free, got %v", err)
	}
}
