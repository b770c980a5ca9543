// Package ratelimit provides an in-memory token-bucket limiter keyed by an
// arbitrary string. The delivery pipeline keys buckets by recipient to
// throttle per-destination send volume.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultCapacity is the burst size of a fresh bucket.
	DefaultCapacity = 10.0

	// DefaultRefillRate is tokens added per second.
	DefaultRefillRate = 1.0
)

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// Limiter is a map of token buckets behind one mutex. Each operation is
// O(1), so a single lock serves all keys.
type Limiter struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	capacity   float64
	refillRate float64
	now        func() time.Time
}

// New creates a limiter. Non-positive capacity or refill rate fall back to
// the defaults.
func New(capacity, refillRate float64) *Limiter {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if refillRate <= 0 {
		refillRate = DefaultRefillRate
	}
	return &Limiter{
		buckets:    make(map[string]*bucket),
		capacity:   capacity,
		refillRate: refillRate,
		now:        time.Now,
	}
}

// Allow takes amount tokens from key's bucket if available. New buckets
// start full. A denied request does not consume tokens.
func (l *Limiter) Allow(key string, amount float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.capacity, lastRefill: now}
		l.buckets[key] = b
	}

	if elapsed := now.Sub(b.lastRefill).Seconds(); elapsed > 0 {
		b.tokens += elapsed * l.refillRate
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.lastRefill = now
	}

	if b.tokens >= amount {
		b.tokens -= amount
		return true
	}
	return false
}

// Tokens reports the current token count for key without consuming any.
// Unknown keys report a full bucket.
func (l *Limiter) Tokens(key string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		return l.capacity
	}
	tokens := b.tokens + l.now().Sub(b.lastRefill).Seconds()*l.refillRate
	if tokens > l.capacity {
		tokens = l.capacity
	}
	return tokens
}

// RecipientKey builds the bucket key the delivery workers use.
func RecipientKey(recipient string) string {
	return fmt.Sprintf("recipient:%s", recipient)
}
