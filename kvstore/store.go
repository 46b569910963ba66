package kvstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by reads when the key is absent or its TTL elapsed.
	ErrNotFound = errors.New("kvstore: key not found")
	// ErrUnavailable wraps every backend transport or server failure.
	ErrUnavailable = errors.New("kvstore: backend unavailable")
	// ErrLockTimeout is returned by Lock when the key stays held past the wait budget.
	ErrLockTimeout = errors.New("kvstore: lock wait timeout")
	// ErrWrongType is returned when a key holds a value of a different kind
	// (for example a list read through Get).
	ErrWrongType = errors.New("kvstore: wrong value type")
)

// Unlocker releases a lock obtained from [Store.Lock]. Releasing a lock that
// already expired or was taken over by another holder is a no-op.
type Unlocker func(ctx context.Context) error

// Store is the shared cache contract the policy engine runs on.
//
// Every method must be safe for concurrent use from many goroutines and many
// processes sharing the same backend. Append, SetAdd and Lock are atomic on the
// backend; callers rely on that instead of read-modify-write sequences.
//
// A ttl <= 0 means "no expiry".
type Store interface {
	// Get returns the value stored under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes value under key, replacing any previous value and TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Replace writes value only if key currently exists. It reports whether the
	// write happened.
	Replace(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// Delete removes keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// Append atomically pushes value to the tail of the list stored under key,
	// trims the list to its newest limit entries (limit <= 0 disables trimming)
	// and refreshes the TTL of the whole list.
	Append(ctx context.Context, key string, value []byte, ttl time.Duration, limit int) error
	// Range returns the whole list stored under key, oldest first. A missing
	// key yields an empty slice.
	Range(ctx context.Context, key string) ([][]byte, error)

	// SetAdd adds member to the set stored under key and refreshes its TTL.
	SetAdd(ctx context.Context, key, member string, ttl time.Duration) error
	// SetRemove removes members from the set. Missing members are ignored.
	SetRemove(ctx context.Context, key string, members ...string) error
	// Members returns the set stored under key. A missing key yields an empty slice.
	Members(ctx context.Context, key string) ([]string, error)

	// Lock acquires a short-lived exclusive lock on key. The lock expires on
	// its own after ttl even if never released. Lock waits at most wait for a
	// concurrent holder before returning ErrLockTimeout.
	Lock(ctx context.Context, key string, ttl, wait time.Duration) (Unlocker, error)
}

const (
	lockPollMin = 5 * time.Millisecond
	lockPollMax = 100 * time.Millisecond
)

// waitLock polls try until it succeeds, the wait budget runs out, or ctx ends.
func waitLock(ctx context.Context, wait time.Duration, try func() (bool, error)) error {
	deadline := time.Now().Add(wait)
	backoff := lockPollMin

	for {
		ok, err := try()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrLockTimeout
		}
		if backoff > remaining {
			backoff = remaining
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff *= 2
		if backoff > lockPollMax {
			backoff = lockPollMax
		}
	}
}
