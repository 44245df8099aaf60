package lock

import (
	"context"
	"time"
)

// Locker is a keyed lock shared between processes. A ttl of zero means the
// lock never expires on its own.
//
// Every successful acquire returns a token naming that hold. Release only
// frees the key while the token is still current; once the hold expired or
// passed to someone else it returns ErrLockLost and leaves the new holder
// alone.
type Locker interface {
	// TryLock attempts to obtain the lock without waiting and reports
	// whether it succeeded.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	// Acquire blocks until the lock is obtained or ctx is done.
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	// Release frees the hold named by token.
	Release(ctx context.Context, key, token string) error
}

func unlockTopic(key string) string {
	return "unlock:" + key
}
