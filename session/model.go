package session

import "time"

// Record is the persisted state of one login session.
//
// SessionID is carried by the storage key, not the encoded payload.
type Record struct {
	SessionID    string
	UserID       string
	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time
}

// Clone returns a copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	return &out
}

// idleExpired reports whether the session has been idle longer than timeout at now.
func (r *Record) idleExpired(now time.Time, timeout time.Duration) bool {
	return now.Sub(r.LastActivity) > timeout
}

// olderThan orders records by last activity, breaking ties on session id so
// eviction is deterministic.
func (r *Record) olderThan(other *Record) bool {
	if !r.LastActivity.Equal(other.LastActivity) {
		return r.LastActivity.Before(other.LastActivity)
	}
	return r.SessionID < other.SessionID
}
