package authpolicy

import (
	"context"
	"errors"
	"fmt"
	"time"

	internalaudit "github.com/MrEthical07/authpolicy/internal/audit"
	"github.com/MrEthical07/authpolicy/internal/limiters"
	"github.com/MrEthical07/authpolicy/internal/passwordpolicy"
	"github.com/MrEthical07/authpolicy/kvstore"
	"github.com/MrEthical07/authpolicy/session"
	"github.com/rs/zerolog"
)

// Engine enforces password, session and login-attempt policy on a shared
// store. Build one with [Builder]; every method is safe for concurrent use.
type Engine struct {
	config Config
	store  kvstore.Store
	clock  Clock
	logger zerolog.Logger

	sessions  *session.Manager
	attempts  *limiters.AttemptTracker
	passwords *passwordpolicy.Validator
	hasher    PasswordHasher

	metrics *Metrics
	audit   *internalaudit.Dispatcher
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() Config {
	return e.config
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// Close flushes pending audit events. It does not close the store.
func (e *Engine) Close() {
	e.audit.Close()
}

// storeFailure counts and wraps a store error. Errors already wrapping
// ErrStoreUnavailable are returned as is.
func (e *Engine) storeFailure(op string, err error) error {
	e.metrics.Inc(MetricStoreError)
	e.logger.Error().Err(err).Str("op", op).Msg("policy store failure")
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

type pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// Ping checks that the shared store is reachable and returns the round-trip
// time. Stores without a health check report zero.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	p, ok := e.store.(pinger)
	if !ok {
		return 0, nil
	}
	d, err := p.Ping(ctx)
	if err != nil {
		return d, e.storeFailure("ping", err)
	}
	return d, nil
}
