package ratelimiter

import (
	"context"
	"sync"
	"time"
)

// Limiter spaces outbound requests at least interval apart.
// A nil Limiter or a zero interval never blocks.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

// New creates a limiter that allows one request per interval
func New(interval time.Duration) *Limiter {
	return &Limiter{interval: interval}
}

// Allow reserves the current slot if it is free.
// When the slot is taken it returns false and the time left until it frees up.
func (l *Limiter) Allow() (bool, time.Duration) {
	if l == nil || l.interval <= 0 {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if !now.Before(l.next) {
		l.next = now.Add(l.interval)
		return true, 0
	}
	return false, l.next.Sub(now)
}

// Wait blocks until a slot is reserved or ctx is done
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		ok, wait := l.Allow()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Reset frees the next slot immediately
func (l *Limiter) Reset() {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.next = time.Time{}
	l.mu.Unlock()
}

// Interval returns the configured spacing
func (l *Limiter) Interval() time.Duration {
	if l == nil {
		return 0
	}
	return l.interval
}
