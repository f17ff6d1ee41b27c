package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/typetrace/fontinspector/internal/metrics"
)

func TestLimiter_Wait(t *testing.T) {
	metrics.Init()

	l := New(Config{
		DefaultRPS:   10, // 10 requests per second = 100ms interval
		DefaultBurst: 1,
	})

	ctx := context.Background()

	// First call consumes the initial burst token.
	if err := l.Wait(ctx, "https://example.com/foo"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Next one should wait ~100ms.
	start := time.Now()
	if err := l.Wait(ctx, "https://example.com/bar"); err != nil {
		t.Fatal(err)
	}
	dur := time.Since(start)
	if dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}
}

func TestLimiter_DifferentDomains(t *testing.T) {
	metrics.Init()

	l := New(Config{
		DefaultRPS:   1, // 1 RPS = 1s interval
		DefaultBurst: 1,
	})

	ctx := context.Background()

	if err := l.Wait(ctx, "https://a.com/1"); err != nil {
		t.Fatal(err)
	}

	// Domain B should not be blocked by A.
	start := time.Now()
	if err := l.Wait(ctx, "https://b.com/1"); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Errorf("domain B blocked unexpectedly")
	}
}

func TestLimiter_AllowFetch(t *testing.T) {
	metrics.Init()

	l := New(Config{
		DefaultRPS:   1,
		DefaultBurst: 1,
	})

	if !l.AllowFetch("insp-1", "https://c.com/1") {
		t.Fatal("expected first fetch to be admitted")
	}
	if l.AllowFetch("insp-1", "https://c.com/2") {
		t.Fatal("expected second immediate fetch to be denied")
	}
	if !l.AllowHeadless("insp-1", "https://c.com/1") {
		t.Fatal("expected headless to always be admitted")
	}
}
