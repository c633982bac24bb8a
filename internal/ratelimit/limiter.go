// Package ratelimit provides per-key token bucket rate limiting for MCP tools.
//
// Simulation requests differ in cost by orders of magnitude, so a request
// may draw more than one token. The cost of a run is measured in work units
// (see WorkUnits).
package ratelimit

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Limiter implements a per-key token bucket rate limiter.
// Each key gets its own bucket with the configured rate and burst.
// It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64          // tokens per second
	burst   float64          // max tokens held (also initial token count)
	nowFunc func() time.Time // injectable clock for testing
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// NewLimiter creates a rate limiter with the given rate (tokens/sec) and burst size.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   float64(burst),
		nowFunc: time.Now,
	}
}

// Allow takes one token for key.
func (l *Limiter) Allow(key string) bool {
	return l.AllowN(key, 1)
}

// AllowN takes n tokens for key if that many are available. A request larger
// than the burst is allowed only against a full bucket, which it drains.
func (l *Limiter) AllowN(key string, n float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, lastCheck: now}
		l.buckets[key] = b
	}

	if elapsed := now.Sub(b.lastCheck).Seconds(); elapsed > 0 {
		b.tokens = math.Min(l.burst, b.tokens+l.rate*elapsed)
		b.lastCheck = now
	}

	need := math.Min(n, l.burst)
	if b.tokens < need || b.tokens < 1 {
		return false
	}
	b.tokens -= need
	return true
}

// Tool names with a configured limiter.
const (
	ToolSimulate = "hagerstrand_simulate"
	ToolKernel   = "hagerstrand_kernel"
	ToolRuns     = "hagerstrand_runs"
	ToolExport   = "hagerstrand_export"
)

// WorkUnit is the number of cell-iterations one token pays for.
const WorkUnit = 1_000_000

// WorkUnits converts the size of a run into tokens: one token per started
// million cell-iterations, per replicate.
func WorkUnits(rows, cols, iterations, replicates int) float64 {
	if replicates < 1 {
		replicates = 1
	}
	work := float64(rows) * float64(cols) * float64(iterations) * float64(replicates)
	return math.Max(1, math.Ceil(work/WorkUnit))
}

// ToolLimiters maps tool names to their rate limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters creates the default set of per-tool rate limiters.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		ToolSimulate: NewLimiter(60.0/60.0, 100), // 60 work units/minute, burst 100
		ToolKernel:   NewLimiter(1.0, 10),        // 60/minute, burst 10
		ToolRuns:     NewLimiter(1.0, 10),        // 60/minute, burst 10
		ToolExport:   NewLimiter(10.0/60.0, 3),   // 10/minute, burst 3
	}
}

// CheckLimit checks the rate limit for a single call of toolName.
// Tools without a configured limiter are always allowed.
func CheckLimit(limiters ToolLimiters, toolName string) error {
	return CheckCost(limiters, toolName, 1)
}

// CheckCost checks the rate limit for a call of toolName costing cost tokens.
func CheckCost(limiters ToolLimiters, toolName string, cost float64) error {
	limiter, ok := limiters[toolName]
	if !ok {
		return nil
	}
	if !limiter.AllowN(toolName, cost) {
		return fmt.Errorf("rate limit exceeded for %s, please try again shortly", toolName)
	}
	return nil
}
