package ports

import "context"

// LoginThrottle tracks failed login attempts per username. Implementations
// fail open: an unavailable backend must not lock users out.
type LoginThrottle interface {
	// Blocked reports whether the username has exhausted its failure budget.
	Blocked(ctx context.Context, username string) (bool, error)
	// RecordFailure counts one failed attempt inside the rolling window.
	RecordFailure(ctx context.Context, username string) error
	// Reset clears the counter after a successful login.
	Reset(ctx context.Context, username string) error
}
