package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"trivia-night-service/internal/domain"
)

func TestScoreboardCacheCaches(t *testing.T) {
	cache := NewScoreboardCache(time.Minute)
	loader := &countingLoader{}

	for i := 0; i < 2; i++ {
		if _, err := cache.Scoreboard(context.Background(), "g1", loader.load); err != nil {
			t.Fatalf("scoreboard: %v", err)
		}
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls.Load())
	}

	if err := cache.Invalidate(context.Background(), "g1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := cache.Scoreboard(context.Background(), "g1", loader.load); err != nil {
		t.Fatalf("scoreboard after invalidate: %v", err)
	}
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after invalidate, loader calls %d", loader.calls.Load())
	}
}

func TestScoreboardCacheExpires(t *testing.T) {
	now := time.Date(2026, 10, 19, 20, 0, 0, 0, time.UTC)
	cache := NewScoreboardCache(time.Minute)
	cache.clock = func() time.Time { return now }
	loader := &countingLoader{}

	_, _ = cache.Scoreboard(context.Background(), "g1", loader.load)
	now = now.Add(2 * time.Minute)
	_, _ = cache.Scoreboard(context.Background(), "g1", loader.load)

	if loader.calls.Load() != 2 {
		t.Fatalf("expected expired entry to reload, loader calls %d", loader.calls.Load())
	}
}

func TestScoreboardCacheDropsLoadRacingInvalidate(t *testing.T) {
	cache := NewScoreboardCache(time.Minute)
	loader := &countingLoader{}
	racing := func(ctx context.Context) (domain.Scoreboard, error) {
		_ = cache.Invalidate(ctx, "g1")
		return loader.load(ctx)
	}

	if _, err := cache.Scoreboard(context.Background(), "g1", racing); err != nil {
		t.Fatalf("scoreboard: %v", err)
	}
	if _, err := cache.Scoreboard(context.Background(), "g1", loader.load); err != nil {
		t.Fatalf("scoreboard: %v", err)
	}
	if loader.calls.Load() != 2 {
		t.Fatalf("stale load must not be cached, loader calls %d", loader.calls.Load())
	}
}

func TestScoreboardCacheSharesConcurrentMisses(t *testing.T) {
	cache := NewScoreboardCache(time.Minute)
	release := make(chan struct{})
	var calls atomic.Int32
	load := func(context.Context) (domain.Scoreboard, error) {
		calls.Add(1)
		<-release
		return domain.Scoreboard{GameID: "g1"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Scoreboard(context.Background(), "g1", load); err != nil {
				t.Errorf("scoreboard: %v", err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected a single shared load, got %d", calls.Load())
	}
}

type countingLoader struct {
	calls atomic.Int32
}

func (l *countingLoader) load(context.Context) (domain.Scoreboard, error) {
	l.calls.Add(1)
	return domain.Scoreboard{GameID: "g1"}, nil
}
