package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/guarzo/pricegrab/internal/model"
)

// Limiter implements a token bucket rate limiter
type Limiter struct {
	tokens     int
	maxTokens  int
	refillRate time.Duration
	mu         sync.Mutex
	lastRefill time.Time
}

// NewLimiter creates a new token bucket rate limiter
// maxTokens: maximum number of tokens in the bucket
// refillRate: how often to add one token to the bucket
func NewLimiter(maxTokens int, refillRate time.Duration) *Limiter {
	return &Limiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow checks if a request can proceed immediately
// Returns true if a token is available and consumed
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refillTokens()

	if l.tokens > 0 {
		l.tokens--
		return true
	}

	return false
}

// Wait blocks until a token is available
func (l *Limiter) Wait() {
	for !l.Allow() {
		time.Sleep(l.refillRate / time.Duration(l.maxTokens))
	}
}

// WaitContext blocks until a token is available or the context ends,
// whichever comes first
func (l *Limiter) WaitContext(ctx context.Context) error {
	for !l.Allow() {
		timer := time.NewTimer(l.refillRate / time.Duration(l.maxTokens))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// TokensAvailable returns the current number of tokens available
func (l *Limiter) TokensAvailable() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refillTokens()
	return l.tokens
}

// refillTokens adds tokens based on elapsed time
// Must be called with mutex held
func (l *Limiter) refillTokens() {
	now := time.Now()
	elapsed := now.Sub(l.lastRefill)

	tokensToAdd := int(elapsed / l.refillRate)

	if tokensToAdd > 0 {
		l.tokens = min(l.maxTokens, l.tokens+tokensToAdd)
		l.lastRefill = now
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// PerSite hands out one limiter per competitor site so a slow storefront
// never starves the others of crawl budget.
type PerSite struct {
	mu       sync.Mutex
	limiters map[model.Site]*Limiter
	burst    int
	refill   time.Duration
}

// NewPerSite creates a per-site limiter pool. Every site gets a bucket of
// burst tokens refilled one per refill interval.
func NewPerSite(burst int, refill time.Duration) *PerSite {
	return &PerSite{
		limiters: make(map[model.Site]*Limiter),
		burst:    burst,
		refill:   refill,
	}
}

// For returns the limiter for a site, creating it on first use.
func (p *PerSite) For(site model.Site) *Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.limiters[site]
	if !ok {
		l = NewLimiter(p.burst, p.refill)
		p.limiters[site] = l
	}
	return l
}
