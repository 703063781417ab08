// Package ratelimit implements the fixed-window chat request limiter. A
// window opens at the first accepted request for a key and rejected requests
// never consume a slot.
package ratelimit

import (
	"context"
	"time"
)

type Limiter interface {
	// Allow reports whether the request is accepted and, if so, counts it.
	Allow(ctx context.Context, key string) (bool, error)
}

// Key identifies the caller: the user id when known, else the client IP.
func Key(userID *string, ip string) string {
	if userID != nil && *userID != "" {
		return "user_" + *userID
	}
	return "ip_" + ip
}

type Options struct {
	Limit  int
	Window time.Duration
}

func (o Options) withDefaults() Options {
	if o.Limit <= 0 {
		o.Limit = 60
	}
	if o.Window <= 0 {
		o.Window = time.Hour
	}
	return o
}
