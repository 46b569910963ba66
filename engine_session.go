package authpolicy

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/authpolicy/session"
)

// CreateSession starts a session for userID.
//
// With AllowConcurrent=false and an active session already present it returns
// [ErrConcurrentSessionDenied] and leaves that session untouched. Otherwise,
// at MaxSessions the least recently active session is evicted first, so the
// user never holds more than MaxSessions.
//
//	Performance: one per-user lock plus O(active sessions) store reads.
func (e *Engine) CreateSession(ctx context.Context, userID string) (SessionRecord, error) {
	res, err := e.sessions.Create(ctx, userID)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrUserRequired):
			return SessionRecord{}, ErrUserRequired
		case errors.Is(err, session.ErrConcurrentDenied):
			e.metrics.Inc(MetricSessionDenied)
			e.emitAudit(ctx, AuditSessionDenied, func(ev *AuditEvent) {
				ev.UserID = userID
				ev.Reason = "concurrent_session"
			})
			return SessionRecord{}, ErrConcurrentSessionDenied
		default:
			return SessionRecord{}, e.storeFailure("create_session", err)
		}
	}

	for _, victim := range res.Evicted {
		e.metrics.Inc(MetricSessionEvicted)
		e.logger.Debug().
			Str("user_id", userID).
			Str("session_id", victim.SessionID).
			Time("last_activity", victim.LastActivity).
			Msg("session evicted")
		sid := victim.SessionID
		e.emitAudit(ctx, AuditSessionEvicted, func(ev *AuditEvent) {
			ev.UserID = userID
			ev.SessionID = sid
			ev.Success = true
			ev.Reason = "max_sessions"
		})
	}

	e.metrics.Inc(MetricSessionCreated)
	rec := sessionRecordFrom(res.Record)
	e.emitAudit(ctx, AuditSessionCreated, func(ev *AuditEvent) {
		ev.UserID = userID
		ev.SessionID = rec.SessionID
		ev.Success = true
	})
	return rec, nil
}

// ValidateSession returns the session and slides its idle expiry forward.
// Unknown, destroyed, evicted and idle sessions all yield [ErrSessionExpired];
// idle ones are deleted.
//
//	Performance: 1 GET + 1 SET XX + 1 index refresh.
func (e *Engine) ValidateSession(ctx context.Context, sessionID string) (SessionInfo, error) {
	var start time.Time
	if e.metrics.LatencyEnabled() {
		start = time.Now()
		defer func() { e.metrics.Observe(MetricValidateSessionLatency, time.Since(start)) }()
	}

	rec, err := e.sessions.Validate(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrExpired) {
			if errors.Is(err, session.ErrStoreUnavailable) {
				// Expired either way; the TTL collects what the delete missed.
				e.logger.Warn().Err(err).Msg("stale session cleanup failed")
			}
			e.metrics.Inc(MetricSessionExpired)
			e.emitAudit(ctx, AuditSessionExpired, func(ev *AuditEvent) {
				ev.SessionID = sessionID
			})
			return SessionInfo{}, ErrSessionExpired
		}
		return SessionInfo{}, e.storeFailure("validate_session", err)
	}

	e.metrics.Inc(MetricSessionValidated)
	return sessionRecordFrom(rec), nil
}

// DestroySession ends a session. Destroying an unknown or already destroyed
// session is a no-op and returns nil.
func (e *Engine) DestroySession(ctx context.Context, sessionID string) error {
	existed, err := e.sessions.Destroy(ctx, sessionID)
	if err != nil {
		return e.storeFailure("destroy_session", err)
	}
	if !existed {
		return nil
	}

	e.metrics.Inc(MetricSessionDestroyed)
	e.emitAudit(ctx, AuditSessionDestroyed, func(ev *AuditEvent) {
		ev.SessionID = sessionID
		ev.Success = true
	})
	return nil
}

// ActiveSessions lists the user's live sessions, least recently active
// first, without refreshing them.
func (e *Engine) ActiveSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	recs, err := e.sessions.List(ctx, userID)
	if err != nil {
		if errors.Is(err, session.ErrUserRequired) {
			return nil, ErrUserRequired
		}
		return nil, e.storeFailure("active_sessions", err)
	}

	out := make([]SessionInfo, len(recs))
	for i, r := range recs {
		out[i] = sessionRecordFrom(r)
	}
	return out, nil
}

// DestroyAllSessions ends every session of userID and returns how many were active.
func (e *Engine) DestroyAllSessions(ctx context.Context, userID string) (int, error) {
	n, err := e.sessions.DestroyAll(ctx, userID)
	if err != nil {
		if errors.Is(err, session.ErrUserRequired) {
			return 0, ErrUserRequired
		}
		return 0, e.storeFailure("destroy_all_sessions", err)
	}

	e.metrics.Inc(MetricSessionDestroyAll)
	e.emitAudit(ctx, AuditSessionDestroyed, func(ev *AuditEvent) {
		ev.UserID = userID
		ev.Success = true
		ev.Reason = "destroy_all"
		ev.Metadata = map[string]string{"count": strconv.Itoa(n)}
	})
	return n, nil
}
