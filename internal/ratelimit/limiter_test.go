package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func TestNewLimiter(t *testing.T) {
	l := NewLimiter(10.0, 5)
	if l == nil {
		t.Fatal("NewLimiter returned nil")
	}
	if l.rate != 10.0 {
		t.Errorf("rate = %f, want 10.0", l.rate)
	}
	if l.burst != 5 {
		t.Errorf("burst = %v, want 5", l.burst)
	}
}

func TestAllow_WithinBurst(t *testing.T) {
	l := NewLimiter(1.0, 3)

	// First 3 requests should all be allowed (burst)
	for i := 0; i < 3; i++ {
		if !l.Allow("key1") {
			t.Errorf("request %d should be allowed (within burst)", i+1)
		}
	}
}

func TestAllow_ExceedsBurst(t *testing.T) {
	l := NewLimiter(1.0, 2)

	// Consume entire burst
	l.Allow("key1")
	l.Allow("key1")

	// Next request should be rejected
	if l.Allow("key1") {
		t.Error("request after burst exhaustion should be rejected")
	}
}

func TestAllow_RefillAfterWait(t *testing.T) {
	now := time.Now()
	l := NewLimiter(10.0, 2) // 10 tokens/sec
	l.nowFunc = func() time.Time { return now }

	// Consume burst
	l.Allow("key1")
	l.Allow("key1")

	// Should be rejected
	if l.Allow("key1") {
		t.Error("expected rejection after burst")
	}

	// Advance time by 200ms => 10 * 0.2 = 2 tokens refilled
	now = now.Add(200 * time.Millisecond)

	// Should be allowed now
	if !l.Allow("key1") {
		t.Error("expected allow after token refill")
	}
}

func TestAllow_IndependentKeys(t *testing.T) {
	l := NewLimiter(1.0, 1)

	// Exhaust key1's burst
	l.Allow("key1")
	if l.Allow("key1") {
		t.Error("key1 should be exhausted")
	}

	// key2 should still work independently
	if !l.Allow("key2") {
		t.Error("key2 should be allowed (independent bucket)")
	}
}

func TestAllow_BurstDoesNotExceedMax(t *testing.T) {
	now := time.Now()
	l := NewLimiter(100.0, 3) // High rate, but burst capped at 3
	l.nowFunc = func() time.Time { return now }

	// Exhaust burst
	l.Allow("key1")
	l.Allow("key1")
	l.Allow("key1")

	// Even after waiting a long time, tokens should cap at burst
	now = now.Add(10 * time.Second) // Would refill 1000 tokens uncapped

	// Should only get burst=3 tokens back
	for i := 0; i < 3; i++ {
		if !l.Allow("key1") {
			t.Errorf("request %d should be allowed after refill capped at burst", i+1)
		}
	}
	if l.Allow("key1") {
		t.Error("4th request should be rejected (burst cap)")
	}
}

func TestAllow_PartialTokenRefill(t *testing.T) {
	now := time.Now()
	l := NewLimiter(2.0, 5) // 2 tokens/sec
	l.nowFunc = func() time.Time { return now }

	// Use 3 tokens
	l.Allow("key1")
	l.Allow("key1")
	l.Allow("key1")

	// Advance 250ms => 2*0.25 = 0.5 tokens refilled, total ~2.5
	// (started with 5, used 3 => 2.0 remaining; +0.5 = 2.5)
	now = now.Add(250 * time.Millisecond)

	// Should allow (2.5 tokens available, need 1)
	if !l.Allow("key1") {
		t.Error("expected allow with partial refill")
	}
}

func TestAllow_ZeroRate(t *testing.T) {
	l := NewLimiter(0.0, 2)

	// Initial burst should still work
	if !l.Allow("key1") {
		t.Error("first request should use initial burst")
	}
	if !l.Allow("key1") {
		t.Error("second request should use initial burst")
	}

	// No refill ever (rate=0)
	if l.Allow("key1") {
		t.Error("should be rejected with zero rate")
	}
}

func TestAllow_ConcurrentAccess(t *testing.T) {
	l := NewLimiter(1000.0, 100)

	var wg sync.WaitGroup
	allowed := make(chan bool, 200)

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- l.Allow("concurrent-key")
		}()
	}

	wg.Wait()
	close(allowed)

	allowedCount := 0
	for a := range allowed {
		if a {
			allowedCount++
		}
	}

	// With burst=100 and 200 requests, should allow roughly 100
	// Allow some slack for timing
	if allowedCount < 90 || allowedCount > 110 {
		t.Errorf("allowed %d requests, expected ~100 (burst limit)", allowedCount)
	}
}

func TestAllowN(t *testing.T) {
	now := time.Now()
	l := NewLimiter(1.0, 10)
	l.nowFunc = func() time.Time { return now }

	if !l.AllowN("sim", 7) {
		t.Fatal("AllowN(7) should fit in a full bucket of 10")
	}
	if l.AllowN("sim", 4) {
		t.Error("AllowN(4) should be rejected with 3 tokens left")
	}
	if !l.AllowN("sim", 3) {
		t.Error("AllowN(3) should drain the remaining tokens")
	}

	// Advance 5s => 5 tokens.
	now = now.Add(5 * time.Second)
	if !l.AllowN("sim", 5) {
		t.Error("AllowN(5) should be allowed after refill")
	}
}

func TestAllowN_LargerThanBurst(t *testing.T) {
	now := time.Now()
	l := NewLimiter(1.0, 10)
	l.nowFunc = func() time.Time { return now }

	// A full bucket admits one oversized request and is drained by it.
	if !l.AllowN("sim", 500) {
		t.Fatal("oversized request should be allowed against a full bucket")
	}
	if l.Allow("sim") {
		t.Error("bucket should be empty after an oversized request")
	}

	now = now.Add(5 * time.Second)
	if l.AllowN("sim", 500) {
		t.Error("oversized request should wait for a full bucket")
	}
}

func TestWorkUnits(t *testing.T) {
	tests := []struct {
		name                      string
		rows, cols, iters, repeat int
		want                      float64
	}{
		{"tiny run costs one", 10, 10, 10, 1, 1},
		{"default run", 100, 100, 1000, 1, 10},
		{"replicates multiply", 100, 100, 1000, 4, 40},
		{"partial unit rounds up", 100, 100, 101, 1, 2},
		{"zero replicates treated as one", 100, 100, 1000, 0, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WorkUnits(tt.rows, tt.cols, tt.iters, tt.repeat); got != tt.want {
				t.Errorf("WorkUnits() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewToolLimiters(t *testing.T) {
	limiters := NewToolLimiters()
	for _, tool := range []string{ToolSimulate, ToolKernel, ToolRuns, ToolExport} {
		if _, ok := limiters[tool]; !ok {
			t.Errorf("missing rate limiter for tool: %s", tool)
		}
	}
}

func TestCheckLimit(t *testing.T) {
	limiters := ToolLimiters{ToolExport: NewLimiter(0, 2)}

	for i := 0; i < 2; i++ {
		if err := CheckLimit(limiters, ToolExport); err != nil {
			t.Fatalf("call %d: unexpected error: %v", i+1, err)
		}
	}
	if err := CheckLimit(limiters, ToolExport); err == nil {
		t.Error("third call should be rate limited")
	}
	if err := CheckLimit(limiters, "unknown_tool"); err != nil {
		t.Errorf("unconfigured tool should always be allowed, got %v", err)
	}
}

func TestCheckCost(t *testing.T) {
	limiters := ToolLimiters{ToolSimulate: NewLimiter(0, 10)}

	if err := CheckCost(limiters, ToolSimulate, 6); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := CheckCost(limiters, ToolSimulate, 6); err == nil {
		t.Error("second run should exceed the remaining budget")
	}
	if err := CheckCost(limiters, ToolSimulate, 4); err != nil {
		t.Errorf("smaller run should fit: %v", err)
	}
}
