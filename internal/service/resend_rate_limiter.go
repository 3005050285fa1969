package service

import (
	"strings"
	"sync"
	"time"
)

// ResendRateLimiter limita la frecuencia de reenvíos de verificación por
// usuario dentro de una ventana fija.
type ResendRateLimiter interface {
	Allow(userID string) bool
}

type memoryResendRateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	hits   map[string][]time.Time
}

// NewMemoryResendRateLimiter crea un rate limiter en memoria. Pensado para
// tests y arranques sin redis.
func NewMemoryResendRateLimiter(window time.Duration, max int) ResendRateLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &memoryResendRateLimiter{
		window: window,
		max:    max,
		hits:   make(map[string][]time.Time),
	}
}

func (l *memoryResendRateLimiter) Allow(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := strings.TrimSpace(userID)
	if key == "" {
		return false
	}
	now := time.Now().UTC()
	cutoff := now.Add(-l.window)
	entries := l.hits[key]
	kept := entries[:0]
	for _, ts := range entries {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.hits[key] = kept
		return false
	}
	kept = append(kept, now)
	l.hits[key] = kept
	return true
}
