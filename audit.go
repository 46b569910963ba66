package authpolicy

import (
	"context"
	"io"

	internalaudit "github.com/MrEthical07/authpolicy/internal/audit"
	"github.com/rs/zerolog"
)

// AuditEvent is one security-relevant decision. It never carries passwords
// or hashes.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the async dispatcher.
type AuditSink = internalaudit.Sink

// Audit event types.
const (
	AuditSessionCreated   = internalaudit.SessionCreated
	AuditSessionEvicted   = internalaudit.SessionEvicted
	AuditSessionDenied    = internalaudit.SessionDenied
	AuditSessionExpired   = internalaudit.SessionExpired
	AuditSessionDestroyed = internalaudit.SessionDestroyed
	AuditLoginAttempt     = internalaudit.LoginAttempt
	AuditLockout          = internalaudit.Lockout
	AuditPasswordRejected = internalaudit.PasswordRejected
)

// NoOpSink discards events.
type NoOpSink = internalaudit.NoOpSink

// NewChannelSink returns a sink that delivers events on a buffered channel.
func NewChannelSink(buffer int) *internalaudit.ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *internalaudit.JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewLogSink returns a sink writing events through logger.
func NewLogSink(logger zerolog.Logger) *internalaudit.LogSink {
	return internalaudit.NewLogSink(logger)
}

func (e *Engine) emitAudit(ctx context.Context, typ string, fill func(*AuditEvent)) {
	if e.audit == nil {
		return
	}
	ev := internalaudit.NewEvent(typ, e.clock.Now())
	if fill != nil {
		fill(&ev)
	}
	e.audit.Emit(ctx, ev)
}

// AuditDropped returns how many audit events were dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}
