package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// mockCache is a simple in-memory cache for testing
type mockCache struct {
	mu       sync.RWMutex
	data     map[string]mockEntry
	getErr   error // Error to return on Get
	setErr   error // Error to return on Set
	getCalls int
	setCalls int
}

type mockEntry struct {
	value   interface{}
	expires time.Time
}

func newMockCache() *mockCache {
	return &mockCache{
		data: make(map[string]mockEntry),
	}
}

func (m *mockCache) Get(ctx context.Context, key string) (interface{}, error) {
	m.mu.Lock()
	m.getCalls++
	m.mu.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	if !entry.expires.IsZero() && time.Now().After(entry.expires) {
		return nil, ErrNotFound
	}
	return entry.value, nil
}

func (m *mockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++

	if m.setErr != nil {
		return m.setErr
	}

	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	m.data[key] = mockEntry{value: value, expires: expires}
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *mockCache) Close() error {
	return nil
}

func (m *mockCache) getGetCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getCalls
}

func (m *mockCache) getSetCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.setCalls
}

func TestL1MissTriggersL2Lookup(t *testing.T) {
	ctx := context.Background()
	l1 := newMockCache()
	l2 := newMockCache()
	lc := NewLayeredCache(l1, l2)

	if err := l2.Set(ctx, "key", "from-l2", time.Minute); err != nil {
		t.Fatalf("seed L2 failed: %v", err)
	}

	val, err := lc.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if val != "from-l2" {
		t.Errorf("Get = %v, want from-l2", val)
	}
	if l1.getGetCalls() != 1 {
		t.Errorf("L1 get calls = %d, want 1", l1.getGetCalls())
	}
}

func TestL2HitBackfillsL1(t *testing.T) {
	ctx := context.Background()
	l1 := newMockCache()
	l2 := newMockCache()
	lc := NewLayeredCache(l1, l2)

	if err := l2.Set(ctx, "key", "value", time.Minute); err != nil {
		t.Fatalf("seed L2 failed: %v", err)
	}

	if _, err := lc.Get(ctx, "key"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	// The second lookup should be served from L1.
	l2Calls := l2.getGetCalls()
	val, err := lc.Get(ctx, "key")
	if err != nil {
		t.Fatalf("second Get failed: %v", err)
	}
	if val != "value" {
		t.Errorf("second Get = %v, want value", val)
	}
	if l2.getGetCalls() != l2Calls {
		t.Errorf("L2 was consulted again after backfill")
	}
}

func TestSetWriteThrough(t *testing.T) {
	ctx := context.Background()
	l1 := newMockCache()
	l2 := newMockCache()
	lc := NewLayeredCache(l1, l2)

	if err := lc.Set(ctx, "key", 42, time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if l1.getSetCalls() != 1 || l2.getSetCalls() != 1 {
		t.Errorf("set calls l1=%d l2=%d, want 1 and 1", l1.getSetCalls(), l2.getSetCalls())
	}
}

func TestSetSucceedsWhenOneLayerFails(t *testing.T) {
	ctx := context.Background()
	l1 := newMockCache()
	l2 := newMockCache()
	l2.setErr = errors.New("l2 down")
	lc := NewLayeredCache(l1, l2)

	if err := lc.Set(ctx, "key", "value", time.Minute); err != nil {
		t.Errorf("Set should tolerate a single-layer failure, got %v", err)
	}
}

func TestSetFailsWhenBothLayersFail(t *testing.T) {
	ctx := context.Background()
	l1 := newMockCache()
	l2 := newMockCache()
	l1.setErr = errors.New("l1 down")
	l2.setErr = errors.New("l2 down")
	lc := NewLayeredCache(l1, l2)

	if err := lc.Set(ctx, "key", "value", time.Minute); err == nil {
		t.Error("Set should fail when both layers fail")
	}
}

func TestNotFoundPropagation(t *testing.T) {
	lc := NewLayeredCache(newMockCache(), newMockCache())

	_, err := lc.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get error = %v, want ErrNotFound", err)
	}
}

func TestL1OnlyMode(t *testing.T) {
	ctx := context.Background()
	l1 := newMockCache()
	lc := NewLayeredCache(l1, nil)

	if err := lc.Set(ctx, "key", "value", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	val, err := lc.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if val != "value" {
		t.Errorf("Get = %v, want value", val)
	}
}

func TestInvalidateL1ForcesL2Read(t *testing.T) {
	ctx := context.Background()
	l1 := newMockCache()
	l2 := newMockCache()
	lc := NewLayeredCache(l1, l2)

	if err := lc.Set(ctx, "key", "old", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := l2.Set(ctx, "key", "new", time.Minute); err != nil {
		t.Fatalf("update L2 failed: %v", err)
	}

	if err := lc.InvalidateL1(ctx, "key"); err != nil {
		t.Fatalf("InvalidateL1 failed: %v", err)
	}

	val, err := lc.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if val != "new" {
		t.Errorf("Get after invalidation = %v, want new", val)
	}
}

func TestDeletePurgesBothLayers(t *testing.T) {
	ctx := context.Background()
	lc := NewLayeredCache(newMockCache(), newMockCache())

	if err := lc.Set(ctx, "key", "value", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := lc.Delete(ctx, "key"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := lc.Get(ctx, "key"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	lc := NewLayeredCache(newMockCache(), newMockCache())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = lc.Set(ctx, "key", j, time.Minute)
				_, _ = lc.Get(ctx, "key")
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Error("concurrent access test timed out")
	}
}
