package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemory_SetGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	m.Set(ctx, "/api/users", []byte(`[{"id":1}]`), time.Minute, "application/json")
	e, ok := m.Get(ctx, "/api/users")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(e.Body) != `[{"id":1}]` {
		t.Errorf("body = %q", e.Body)
	}
	if e.ContentType != "application/json" {
		t.Errorf("content type = %q", e.ContentType)
	}
	if e.ETag == "" {
		t.Error("expected a content-hash ETag")
	}
	if e.MaxAge() != 60 {
		t.Errorf("MaxAge = %d, want 60", e.MaxAge())
	}

	if _, ok := m.Get(ctx, "/missing"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestMemory_LazyExpiration(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	m.Set(ctx, "k", []byte("v"), 10*time.Millisecond, "text/plain")
	time.Sleep(15 * time.Millisecond)

	if _, ok := m.Get(ctx, "k"); ok {
		t.Fatal("expected expired entry to be a miss")
	}
	// Eviction happened as a side effect of the expired Get.
	if m.Contains("k") {
		t.Error("expired entry should be physically removed by Get")
	}
}

func TestMemory_ETagDeterministic(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	m.Set(ctx, "k", []byte("X"), time.Minute, "")
	first, _ := m.Get(ctx, "k")
	m.Set(ctx, "k", []byte("X"), time.Minute, "")
	second, _ := m.Get(ctx, "k")
	if first.ETag != second.ETag {
		t.Errorf("identical bodies gave ETags %q and %q", first.ETag, second.ETag)
	}

	m.Set(ctx, "k", []byte("Y"), time.Minute, "")
	third, _ := m.Get(ctx, "k")
	if third.ETag == first.ETag {
		t.Error("different body should give a different ETag")
	}
}

func TestMemory_SetReplaces(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	m.Set(ctx, "k", []byte("old"), time.Minute, "text/plain")
	m.Set(ctx, "k", []byte("new"), time.Minute, "application/json")
	e, ok := m.Get(ctx, "k")
	if !ok || string(e.Body) != "new" || e.ContentType != "application/json" {
		t.Errorf("entry after replace = %+v, %v", e, ok)
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
}

func TestMemory_SetCopiesBody(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	body := []byte("immutable")
	m.Set(ctx, "k", body, time.Minute, "")
	copy(body, "clobbered")
	e, _ := m.Get(ctx, "k")
	if string(e.Body) != "immutable" {
		t.Errorf("stored body = %q, caller mutation leaked in", e.Body)
	}
}

func TestMemory_Invalidate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	m.Set(ctx, "k", []byte("v"), time.Minute, "")
	m.Invalidate(ctx, "k")
	if _, ok := m.Get(ctx, "k"); ok {
		t.Error("expected invalidated key to miss")
	}
}

func TestMemory_InvalidatePrefix(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	for _, k := range []string{"/api/users", "/api/users/1", "/api/posts"} {
		m.Set(ctx, k, []byte(k), time.Minute, "")
	}
	m.InvalidatePrefix(ctx, "/api/users")

	if _, ok := m.Get(ctx, "/api/users"); ok {
		t.Error("/api/users should be gone")
	}
	if _, ok := m.Get(ctx, "/api/users/1"); ok {
		t.Error("/api/users/1 should be gone")
	}
	if _, ok := m.Get(ctx, "/api/posts"); !ok {
		t.Error("/api/posts should survive")
	}
}

func TestMemory_Cleanup(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	m.Set(ctx, "stale", []byte("v"), 5*time.Millisecond, "")
	m.Set(ctx, "live", []byte("v"), time.Minute, "")
	time.Sleep(10 * time.Millisecond)

	m.Cleanup(ctx)
	if m.Contains("stale") {
		t.Error("cleanup should sweep expired entries")
	}
	if !m.Contains("live") {
		t.Error("cleanup should keep live entries")
	}
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("/k/%d", j%10)
				m.Set(ctx, key, []byte("v"), time.Millisecond, "")
				m.Get(ctx, key)
				if j%50 == 0 {
					m.InvalidatePrefix(ctx, "/k")
					m.Cleanup(ctx)
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestContentETag(t *testing.T) {
	a := ContentETag([]byte("body"))
	b := ContentETag([]byte("body"))
	c := ContentETag([]byte("other"))
	if a != b {
		t.Errorf("ETag not deterministic: %q vs %q", a, b)
	}
	if a == c {
		t.Error("different bodies hashed identically")
	}
	if len(a) != 16 {
		t.Errorf("ETag length = %d, want 16 hex chars", len(a))
	}
}
