package limiter

import (
	"context"
	"sync"
	"testing"
	"time"

	"gameagent/pkg/metrics"
)

func TestAcquireWithinCapacity(t *testing.T) {
	bucket := NewTokenBucket("test-model", 10000, nil)
	defer bucket.Stop()

	if err := bucket.Acquire(context.Background(), 1000); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	stats := bucket.GetStats()
	if stats.AvailableTokens != 8000 { // 9000 buffered capacity - 1000
		t.Errorf("available = %d, want 8000", stats.AvailableTokens)
	}
	if stats.LimitHits != 0 {
		t.Errorf("limit hits = %d, want 0", stats.LimitHits)
	}
}

func TestAcquireExceedsCapacity(t *testing.T) {
	bucket := NewTokenBucket("test-model", 1000, nil)
	defer bucket.Stop()

	// 1000 tpm gives a 900-token buffered capacity.
	if err := bucket.Acquire(context.Background(), 950); err == nil {
		t.Error("expected error for request above capacity")
	}
}

func TestAcquireBlocksUntilCancelled(t *testing.T) {
	bucket := NewTokenBucket("test-model", 1000, nil)
	defer bucket.Stop()

	// Drain the bucket.
	if err := bucket.Acquire(context.Background(), 900); err != nil {
		t.Fatalf("drain failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := bucket.Acquire(ctx, 500)
	if err == nil {
		t.Fatal("expected cancellation error while bucket is empty")
	}
	if time.Since(start) < 100*time.Millisecond {
		t.Error("Acquire returned before the context deadline")
	}

	if bucket.GetStats().LimitHits != 1 {
		t.Errorf("limit hits = %d, want 1", bucket.GetStats().LimitHits)
	}
}

func TestDisabledBucket(t *testing.T) {
	bucket := NewTokenBucket("test-model", 0, nil)
	defer bucket.Stop()

	// Any request size passes immediately when limiting is disabled.
	if err := bucket.Acquire(context.Background(), 1_000_000); err != nil {
		t.Errorf("disabled bucket rejected acquire: %v", err)
	}
}

type throttleRecorder struct {
	metrics.NopRecorder
	mu   sync.Mutex
	hits map[string]int
}

func (r *throttleRecorder) IncThrottle(model, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hits == nil {
		r.hits = map[string]int{}
	}
	r.hits[model+"/"+reason]++
}

func TestThrottleEventsRecorded(t *testing.T) {
	rec := &throttleRecorder{}
	bucket := NewTokenBucket("test-model", 1000, rec)
	defer bucket.Stop()

	// A request above the 900-token buffered capacity counts as a throttle.
	if err := bucket.Acquire(context.Background(), 950); err == nil {
		t.Error("expected error for request above capacity")
	}

	// Drain the bucket, then hit the empty-bucket wait path.
	if err := bucket.Acquire(context.Background(), 900); err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if err := bucket.Acquire(ctx, 500); err == nil {
		t.Fatal("expected cancellation while bucket is empty")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if got := rec.hits["test-model/over_capacity"]; got != 1 {
		t.Errorf("over_capacity hits = %d, want 1", got)
	}
	if got := rec.hits["test-model/token_budget"]; got != 1 {
		t.Errorf("token_budget hits = %d, want 1", got)
	}
}

func TestRefillCapsAtCapacity(t *testing.T) {
	bucket := NewTokenBucket("test-model", 10000, nil)
	defer bucket.Stop()

	bucket.refill()
	bucket.refill()

	if got := bucket.GetStats().AvailableTokens; got != 9000 {
		t.Errorf("available = %d after refills at full capacity, want 9000", got)
	}

	if err := bucket.Acquire(context.Background(), 5000); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	bucket.refill() // +1000
	if got := bucket.GetStats().AvailableTokens; got != 5000 {
		t.Errorf("available = %d after refill, want 5000", got)
	}
}
