package authpolicy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authpolicy/internal/passwordpolicy"
)

// ValidatePassword runs every password check and returns all violations.
// An empty result means the password is acceptable. Errors come only from
// collaborators (history store, attribute source, hash verification).
func (e *Engine) ValidatePassword(ctx context.Context, password string, user UserContext) ([]Violation, error) {
	violations, err := e.passwords.Validate(ctx, password, passwordpolicy.User{
		ID:       user.UserID,
		Username: user.Username,
		Email:    user.Email,
		Extra:    user.Extra,
	})
	if err != nil {
		return nil, e.dependencyFailure(err)
	}

	if len(violations) == 0 {
		e.metrics.Inc(MetricPasswordAccepted)
		return nil, nil
	}

	e.metrics.Inc(MetricPasswordRejected)
	codes := make([]string, len(violations))
	for i, v := range violations {
		codes[i] = string(v.Code)
	}
	e.emitAudit(ctx, AuditPasswordRejected, func(ev *AuditEvent) {
		ev.UserID = user.UserID
		ev.Username = user.Username
		ev.Reason = strings.Join(codes, ",")
	})
	return violations, nil
}

// ValidatePasswordError is [Engine.ValidatePassword] returning a
// [*ValidationError] instead of a slice.
func (e *Engine) ValidatePasswordError(ctx context.Context, password string, user UserContext) error {
	violations, err := e.ValidatePassword(ctx, password, user)
	if err != nil {
		return err
	}
	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

// HashPassword validates password and, if it passes, hashes it for storage.
func (e *Engine) HashPassword(ctx context.Context, password string, user UserContext) (string, error) {
	if err := e.ValidatePasswordError(ctx, password, user); err != nil {
		return "", err
	}
	return e.hasher.Hash(password)
}

// IsPasswordExpired reports whether userID must change their password. With
// expiry enabled, an unknown last change counts as expired.
func (e *Engine) IsPasswordExpired(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, ErrUserRequired
	}
	expired, err := e.passwords.IsExpired(ctx, userID)
	if err != nil {
		return false, e.dependencyFailure(err)
	}
	if expired {
		e.metrics.Inc(MetricPasswordExpired)
	}
	return expired, nil
}

// PasswordExpiresAt returns when userID's password expires. ok is false when
// expiry is disabled or the last change is unknown.
func (e *Engine) PasswordExpiresAt(ctx context.Context, userID string) (at time.Time, ok bool, err error) {
	if userID == "" {
		return time.Time{}, false, ErrUserRequired
	}
	at, ok, err = e.passwords.ExpiresAt(ctx, userID)
	if err != nil {
		return time.Time{}, false, e.dependencyFailure(err)
	}
	return at, ok, nil
}

func (e *Engine) dependencyFailure(err error) error {
	e.logger.Error().Err(err).Msg("password policy dependency failure")
	return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
}
