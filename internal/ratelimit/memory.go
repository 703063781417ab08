package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is the single-process limiter used without Redis.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	opts    Options
	now     func() time.Time
}

func NewMemoryLimiter(opts Options) *MemoryLimiter {
	return NewMemoryLimiterWithClock(opts, time.Now)
}

func NewMemoryLimiterWithClock(opts Options, now func() time.Time) *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*window),
		opts:    opts.withDefaults(),
		now:     now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.opts.Window)}
		l.windows[key] = w
	}
	if w.count >= l.opts.Limit {
		return false, nil
	}
	w.count++
	return true, nil
}

// Cleanup drops expired windows every interval until ctx is done.
func (l *MemoryLimiter) Cleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			now := l.now()
			for key, w := range l.windows {
				if !now.Before(w.resetAt) {
					delete(l.windows, key)
				}
			}
			l.mu.Unlock()
		}
	}
}
