// Package lock serializes work per key, in process or across instances.
package lock

import "context"

// Locker acquires an exclusive lock for key. Lock blocks until the lock is
// held or ctx is done. The returned release func must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}
