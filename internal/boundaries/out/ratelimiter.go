package out

import "context"

// RateLimiter decides whether a caller identified by key may proceed.
type RateLimiter interface {
	// Allow reports whether one more request for key fits the budget.
	// Key is typically "ip:<address>".
	Allow(ctx context.Context, key string) bool
}
