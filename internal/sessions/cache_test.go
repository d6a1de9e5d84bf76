package sessions

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/haasonsaas/charlotte/internal/errdefs"
	"github.com/haasonsaas/charlotte/pkg/models"
)

// failingStore fails every Save until healed.
type failingStore struct {
	*MemoryStore
	fail bool
}

func (f *failingStore) Save(ctx context.Context, s *models.Session) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.MemoryStore.Save(ctx, s)
}

func TestCacheFlush(t *testing.T) {
	ctx := context.Background()
	durable := newSQLiteStore(t)
	cache, err := NewCache(ctx, durable, nil)
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}

	if err := cache.Save(ctx, testSession("s-1", "p-1", time.Now())); err != nil {
		t.Fatal(err)
	}
	if _, err := durable.Get(ctx, "s-1"); !errors.Is(err, errdefs.ErrNotFound) {
		t.Fatalf("snapshot reached disk before flush: %v", err)
	}
	if cache.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", cache.Pending())
	}

	if err := cache.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if _, err := durable.Get(ctx, "s-1"); err != nil {
		t.Fatalf("durable Get() after flush error = %v", err)
	}
	if cache.Pending() != 0 {
		t.Errorf("Pending() after flush = %d", cache.Pending())
	}

	reloaded, err := NewCache(ctx, durable, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := reloaded.List(ctx, "p-1")
	if err != nil || len(got) != 1 {
		t.Fatalf("reloaded List() = %v, %v", ids(got), err)
	}

	if err := cache.Delete(ctx, "s-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := durable.Get(ctx, "s-1"); !errors.Is(err, errdefs.ErrNotFound) {
		t.Errorf("durable Get() after delete error = %v", err)
	}
}

func TestCacheDeleteUnflushed(t *testing.T) {
	ctx := context.Background()
	cache, err := NewCache(ctx, newSQLiteStore(t), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := cache.Save(ctx, testSession("s-1", "p-1", time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := cache.Delete(ctx, "s-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if cache.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", cache.Pending())
	}
}

func TestCacheFlushKeepsFailuresPending(t *testing.T) {
	ctx := context.Background()
	durable := &failingStore{MemoryStore: NewMemoryStore(), fail: true}
	cache, err := NewCache(ctx, durable, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := cache.Save(ctx, testSession("s-1", "p-1", time.Now())); err != nil {
		t.Fatal(err)
	}

	if err := cache.Flush(ctx); err == nil {
		t.Fatal("Flush() error = nil, want failure")
	}
	if cache.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", cache.Pending())
	}

	durable.fail = false
	if err := cache.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if _, err := durable.Get(ctx, "s-1"); err != nil {
		t.Errorf("durable Get() error = %v", err)
	}
}

func TestCacheWithoutDurableStore(t *testing.T) {
	ctx := context.Background()
	cache, err := NewCache(ctx, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := cache.Save(ctx, testSession("s-1", "p-1", time.Now())); err != nil {
		t.Fatal(err)
	}
	if cache.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", cache.Pending())
	}
	if err := cache.Flush(ctx); err != nil {
		t.Errorf("Flush() error = %v", err)
	}
}

func TestFlusherStopFlushes(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	durable := NewMemoryStore()
	cache, err := NewCache(ctx, durable, nil)
	if err != nil {
		t.Fatal(err)
	}
	f, err := NewFlusher(cache, "@every 1h", nil)
	if err != nil {
		t.Fatalf("NewFlusher() error = %v", err)
	}
	f.Start()
	if err := cache.Save(ctx, testSession("s-1", "p-1", time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := f.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if _, err := durable.Get(ctx, "s-1"); err != nil {
		t.Errorf("durable Get() after Stop error = %v", err)
	}
}

func TestNewFlusherRejectsBadSchedule(t *testing.T) {
	cache, _ := NewCache(context.Background(), nil, nil)
	for _, schedule := range []string{"", "every minute", "61 * * * *"} {
		if _, err := NewFlusher(cache, schedule, nil); err == nil {
			t.Errorf("NewFlusher(%q) error = nil", schedule)
		}
	}
}
