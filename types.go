package authpolicy

import (
	"context"
	"time"

	"github.com/MrEthical07/authpolicy/internal/limiters"
	"github.com/MrEthical07/authpolicy/internal/passwordpolicy"
	"github.com/MrEthical07/authpolicy/session"
)

// Clock supplies the current time. Inject a fake one in tests.
type Clock interface {
	Now() time.Time
}

// PasswordHasher hashes and verifies passwords. [password.Multi] is the default.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) (bool, error)
}

// PasswordHistoryStore returns a user's most recent password hashes, newest first.
type PasswordHistoryStore interface {
	RecentHashes(ctx context.Context, userID string, n int) ([]string, error)
}

// UserAttributes is what a [UserAttributeSource] knows about a user.
type UserAttributes = passwordpolicy.Attributes

// UserAttributeSource supplies username/email for similarity checks and the
// last password change for expiry.
type UserAttributeSource interface {
	UserAttributes(ctx context.Context, userID string) (UserAttributes, error)
	// LastPasswordChangedAt returns ok=false when the time is unknown.
	LastPasswordChangedAt(ctx context.Context, userID string) (at time.Time, ok bool, err error)
}

// SimilarityChecker decides whether a password resembles user attributes.
type SimilarityChecker interface {
	Similar(password string, attributes ...string) bool
}

// CommonPasswordChecker flags dictionary and digit-only passwords.
type CommonPasswordChecker interface {
	IsCommon(password string) bool
	IsAllNumeric(password string) bool
}

// UserContext identifies whose password is validated. Leave UserID empty for
// accounts that do not exist yet. When Username and Email are both empty the
// engine asks the [UserAttributeSource].
type UserContext struct {
	UserID   string
	Username string
	Email    string
	// Extra attributes such as display names are also compared for similarity.
	Extra []string
}

// Violation is one failed password check.
type Violation = passwordpolicy.Violation

// ViolationCode identifies the kind of a [Violation].
type ViolationCode = passwordpolicy.Code

const (
	ViolationTooShort               = passwordpolicy.TooShort
	ViolationTooLong                = passwordpolicy.TooLong
	ViolationMissingUppercase       = passwordpolicy.MissingUppercase
	ViolationMissingLowercase       = passwordpolicy.MissingLowercase
	ViolationMissingDigit           = passwordpolicy.MissingDigit
	ViolationMissingSpecial         = passwordpolicy.MissingSpecial
	ViolationSimilarToUserAttribute = passwordpolicy.SimilarToUserAttribute
	ViolationCommonPassword         = passwordpolicy.CommonPassword
	ViolationAllNumeric             = passwordpolicy.AllNumeric
	ViolationReusedPassword         = passwordpolicy.ReusedPassword
)

// SessionRecord is a session as stored by the engine.
type SessionRecord struct {
	SessionID    string
	UserID       string
	CreatedAt    time.Time
	LastActivity time.Time
	// ExpiresAt is LastActivity + Session.Timeout.
	ExpiresAt time.Time
}

// SessionInfo is returned by session reads.
type SessionInfo = SessionRecord

// AttemptRecord is one recorded login attempt.
type AttemptRecord struct {
	ID       string
	At       time.Time
	Username string
	IP       string
	Success  bool
}

// AttemptSummary describes failed-login state for operator tooling. Locked
// is the same answer IsLockedOut gives.
type AttemptSummary struct {
	UsernameFailures int
	IPFailures       int
	// Remaining is how many more failures are tolerated before lockout.
	Remaining  int
	Locked     bool
	RetryAfter time.Duration
}

func sessionRecordFrom(r *session.Record) SessionRecord {
	return SessionRecord{
		SessionID:    r.SessionID,
		UserID:       r.UserID,
		CreatedAt:    r.CreatedAt,
		LastActivity: r.LastActivity,
		ExpiresAt:    r.ExpiresAt,
	}
}

func attemptRecordFrom(a limiters.Attempt) AttemptRecord {
	return AttemptRecord{
		ID:       a.ID,
		At:       a.At,
		Username: a.Username,
		IP:       a.IP,
		Success:  a.Success,
	}
}

func attemptSummaryFrom(s limiters.Status) AttemptSummary {
	return AttemptSummary{
		UsernameFailures: s.UserFailures,
		IPFailures:       s.IPFailures,
		Remaining:        s.Remaining,
		Locked:           s.Locked(),
		RetryAfter:       s.RetryAfter,
	}
}
