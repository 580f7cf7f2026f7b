package lock

import (
	"context"
	"errors"
	"time"
)

var ErrWaitTimeout = errors.New("lock_wait_timeout")

// Locker hands out exclusive per-key leases.
type Locker interface {
	// Acquire blocks up to wait for key. The returned release func must be called exactly once.
	Acquire(ctx context.Context, key string, wait time.Duration) (release func(), err error)
	Backend() string
}
