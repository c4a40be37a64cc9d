// Package lock provides per-key mutual exclusion for summarization runs.
package lock

import (
	"context"
	"time"
)

// Locker hands out at most one lease per key.
type Locker interface {
	// TryAcquire returns ok=false without blocking when the key is held.
	// release is safe to call more than once.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
	// Held reports whether some caller currently holds key.
	Held(ctx context.Context, key string) (bool, error)
}
