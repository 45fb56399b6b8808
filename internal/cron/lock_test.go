package cron

import (
	"context"
	"errors"
	"testing"
	"time"
)

type memoryLeases struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemoryLeases() *memoryLeases {
	return &memoryLeases{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryLeases) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryLeases) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	if m.values[key] != expected {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func (m *memoryLeases) CompareAndExpire(_ context.Context, key, expected string, ttl time.Duration) (bool, error) {
	if m.values[key] != expected {
		return false, nil
	}
	m.ttls[key] = ttl
	return true, nil
}

func TestRedisLockSingleHolder(t *testing.T) {
	store := newMemoryLeases()
	ctx := context.Background()
	a, err := NewRedisLock(store, "vibes:lock:cron", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	b, _ := NewRedisLock(store, "vibes:lock:cron", time.Minute)

	if ok, err := a.Acquire(ctx); err != nil || !ok {
		t.Fatalf("expected first acquire, ok=%v err=%v", ok, err)
	}
	if ok, _ := b.Acquire(ctx); ok {
		t.Fatal("second replica must not acquire a held lease")
	}
	if err := b.Release(ctx); err != nil {
		t.Fatalf("release by non-holder: %v", err)
	}
	if _, held := store.values["vibes:lock:cron"]; !held {
		t.Fatal("non-holder release removed the lease")
	}
	if err := a.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := b.Acquire(ctx); !ok {
		t.Fatal("expected lease free after release")
	}
}

func TestRedisLockRefreshDetectsTakeover(t *testing.T) {
	store := newMemoryLeases()
	ctx := context.Background()
	lock, _ := NewRedisLock(store, "k", 0)

	if err := lock.Refresh(ctx); !errors.Is(err, ErrLockLost) {
		t.Fatalf("expected refresh without lease to fail, got %v", err)
	}
	if _, err := lock.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if store.ttls["k"] != defaultLockTTL {
		t.Fatalf("expected default ttl, got %v", store.ttls["k"])
	}
	if err := lock.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	store.values["k"] = "someone-else"
	if err := lock.Refresh(ctx); !errors.Is(err, ErrLockLost) {
		t.Fatalf("expected takeover to be detected, got %v", err)
	}
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release after loss: %v", err)
	}
	if store.values["k"] != "someone-else" {
		t.Fatal("release must not delete another holder's lease")
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "k", time.Second); err == nil {
		t.Fatal("expected error without client")
	}
	if _, err := NewRedisLock(newMemoryLeases(), "", time.Second); err == nil {
		t.Fatal("expected error without key")
	}
}
