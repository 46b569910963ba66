package authpolicy

import (
	"context"
	"time"
)

// RecordLoginAttempt appends the attempt to the username and IP histories.
// A success is recorded but does not clear earlier failures.
//
// A failure that brings either subject to MaxAttempts emits a lockout audit
// event; that costs one extra history read per failed attempt.
func (e *Engine) RecordLoginAttempt(ctx context.Context, username, ip string, success bool) error {
	a, err := e.attempts.Record(ctx, username, ip, success)
	if err != nil {
		return e.storeFailure("record_login_attempt", err)
	}

	if success {
		e.metrics.Inc(MetricLoginAttemptSuccess)
	} else {
		e.metrics.Inc(MetricLoginAttemptFailure)
	}
	e.emitAudit(ctx, AuditLoginAttempt, func(ev *AuditEvent) {
		ev.Username = username
		ev.IP = ip
		ev.Success = success
		ev.Metadata = map[string]string{"attempt_id": a.ID}
	})

	if success {
		return nil
	}

	st, err := e.attempts.Status(ctx, username, ip)
	if err != nil {
		// The attempt itself is stored; only the lockout notification is lost.
		e.logger.Warn().Err(err).Msg("lockout check after failed attempt")
		return nil
	}
	threshold := e.config.LoginAttempt.MaxAttempts
	if st.UserFailures == threshold || st.IPFailures == threshold {
		e.metrics.Inc(MetricLockoutTriggered)
		e.logger.Info().
			Str("username", username).
			Str("ip", ip).
			Bool("username_locked", st.UserLocked).
			Bool("ip_locked", st.IPLocked).
			Dur("retry_after", st.RetryAfter).
			Msg("login lockout")
		e.emitAudit(ctx, AuditLockout, func(ev *AuditEvent) {
			ev.Username = username
			ev.IP = ip
			ev.Metadata = map[string]string{"retry_after": st.RetryAfter.String()}
		})
	}
	return nil
}

// IsLockedOut reports whether the username or the IP has too many recent
// failures. The answer does not reveal which. Store failures are returned,
// never treated as "not locked".
//
//	Performance: 2 list reads, O(history length).
func (e *Engine) IsLockedOut(ctx context.Context, username, ip string) (bool, error) {
	e.metrics.Inc(MetricLockoutCheck)
	locked, err := e.attempts.IsLockedOut(ctx, username, ip)
	if err != nil {
		return false, e.storeFailure("is_locked_out", err)
	}
	if locked {
		e.metrics.Inc(MetricLockedOut)
	}
	return locked, nil
}

// FailedAttempts summarizes in-window failures for operator tooling.
func (e *Engine) FailedAttempts(ctx context.Context, username, ip string) (AttemptSummary, error) {
	st, err := e.attempts.Status(ctx, username, ip)
	if err != nil {
		return AttemptSummary{}, e.storeFailure("failed_attempts", err)
	}
	return attemptSummaryFrom(st), nil
}

// LockoutRemaining returns how long until the pair unlocks without further
// failures. Zero when not locked.
func (e *Engine) LockoutRemaining(ctx context.Context, username, ip string) (time.Duration, error) {
	st, err := e.attempts.Status(ctx, username, ip)
	if err != nil {
		return 0, e.storeFailure("lockout_remaining", err)
	}
	return st.RetryAfter, nil
}

// RecentAttempts returns up to limit attempts for username, newest first.
func (e *Engine) RecentAttempts(ctx context.Context, username string, limit int) ([]AttemptRecord, error) {
	list, err := e.attempts.Recent(ctx, username, limit)
	if err != nil {
		return nil, e.storeFailure("recent_attempts", err)
	}
	out := make([]AttemptRecord, len(list))
	for i, a := range list {
		out[i] = attemptRecordFrom(a)
	}
	return out, nil
}

// ClearLoginAttempts forgets the attempt history of username and ip. It is
// an operator action; logins never call it.
func (e *Engine) ClearLoginAttempts(ctx context.Context, username, ip string) error {
	if err := e.attempts.Clear(ctx, username, ip); err != nil {
		return e.storeFailure("clear_login_attempts", err)
	}
	e.logger.Info().Str("username", username).Str("ip", ip).Msg("login attempts cleared")
	return nil
}
