package authpolicy

import (
	"errors"

	"github.com/MrEthical07/authpolicy/internal"
	internalaudit "github.com/MrEthical07/authpolicy/internal/audit"
	"github.com/MrEthical07/authpolicy/internal/limiters"
	"github.com/MrEthical07/authpolicy/internal/passwordpolicy"
	"github.com/MrEthical07/authpolicy/kvstore"
	"github.com/MrEthical07/authpolicy/password"
	"github.com/MrEthical07/authpolicy/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Builder assembles an [Engine]. It is single-use.
type Builder struct {
	config Config
	store  kvstore.Store
	redis  redis.UniversalClient
	clock  Clock
	logger *zerolog.Logger

	hasher     PasswordHasher
	history    PasswordHistoryStore
	users      UserAttributeSource
	similarity SimilarityChecker
	common     CommonPasswordChecker
	auditSink  AuditSink

	built bool
}

// New returns a builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the whole configuration. It is validated in Build.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStore sets the shared store. It takes precedence over [Builder.WithRedis].
func (b *Builder) WithStore(store kvstore.Store) *Builder {
	b.store = store
	return b
}

// WithRedis builds a [kvstore.Redis] on client with Config.Store.KeyPrefix.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithClock sets the time source. The default is the system clock.
func (b *Builder) WithClock(clock Clock) *Builder {
	b.clock = clock
	return b
}

// WithLogger sets the engine logger. The default discards everything.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = &logger
	return b
}

// WithHasher overrides the default argon2id/bcrypt hasher used for history checks.
func (b *Builder) WithHasher(h PasswordHasher) *Builder {
	b.hasher = h
	return b
}

// WithHistoryStore enables password reuse checks.
func (b *Builder) WithHistoryStore(s PasswordHistoryStore) *Builder {
	b.history = s
	return b
}

// WithUserSource enables attribute lookups and password expiry.
func (b *Builder) WithUserSource(s UserAttributeSource) *Builder {
	b.users = s
	return b
}

// WithSimilarityChecker overrides the default attribute similarity check.
func (b *Builder) WithSimilarityChecker(s SimilarityChecker) *Builder {
	b.similarity = s
	return b
}

// WithCommonPasswordChecker overrides the embedded common-password dictionary.
func (b *Builder) WithCommonPasswordChecker(c CommonPasswordChecker) *Builder {
	b.common = c
	return b
}

// WithAuditSink sets the audit destination and enables auditing.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = true
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the ValidateSession latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine. It performs no I/O.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := b.store
	if store == nil {
		if b.redis == nil {
			return nil, ErrStoreRequired
		}
		store = kvstore.NewRedis(b.redis, cfg.Store.KeyPrefix)
	}

	clock := b.clock
	if clock == nil {
		clock = internal.SystemClock{}
	}

	logger := zerolog.Nop()
	if b.logger != nil {
		logger = *b.logger
	}
	logger = logger.With().Str("component", "authpolicy").Logger()

	hasher := b.hasher
	if hasher == nil {
		hasher = password.NewDefault()
	}
	similarity := b.similarity
	if similarity == nil {
		similarity = password.AttributeSimilarity{
			MaxSimilarity: cfg.Password.MaxSimilarity,
			MinLength:     cfg.Password.MinSimilarityLength,
		}
	}
	common := b.common
	if common == nil {
		common = password.DefaultDictionary()
	}

	e := &Engine{
		config:  cfg,
		store:   store,
		clock:   clock,
		logger:  logger,
		metrics: NewMetrics(cfg.Metrics),
	}

	e.sessions = session.NewManager(store, clock, session.Config{
		Timeout:         cfg.Session.Timeout,
		MaxSessions:     cfg.Session.MaxSessions,
		AllowConcurrent: cfg.Session.AllowConcurrent,
		LockTTL:         cfg.Store.LockTTL,
		LockWait:        cfg.Store.LockWait,
	})

	e.attempts = limiters.NewAttemptTracker(store, clock, limiters.AttemptConfig{
		MaxAttempts:   cfg.LoginAttempt.MaxAttempts,
		LockoutWindow: cfg.LoginAttempt.LockoutTime,
		ResetAfter:    cfg.LoginAttempt.ResetTime,
		HistoryLimit:  cfg.LoginAttempt.HistoryLimit,
	})

	deps := passwordpolicy.Deps{
		Clock:      clock,
		Verifier:   hasher,
		Similarity: similarity,
		Common:     common,
	}
	if b.history != nil {
		deps.History = b.history
	}
	if b.users != nil {
		deps.Attributes = b.users
	}
	e.passwords = passwordpolicy.New(passwordpolicy.Config{
		MinLength:       cfg.Password.MinLength,
		MaxLength:       cfg.Password.MaxLength,
		RequireUpper:    cfg.Password.RequireUpper,
		RequireLower:    cfg.Password.RequireLower,
		RequireDigit:    cfg.Password.RequireDigit,
		RequireSpecial:  cfg.Password.RequireSpecial,
		SpecialChars:    cfg.Password.SpecialChars,
		History:         cfg.Password.PasswordHistory,
		ExpireDays:      cfg.Password.PasswordExpireDays,
		CheckSimilarity: cfg.Password.CheckSimilarity,
		CheckCommon:     cfg.Password.CheckCommon,
		CheckNumeric:    cfg.Password.CheckNumeric,
	}, deps)
	e.hasher = hasher

	e.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink, func(ev internalaudit.Event) {
		logger.Warn().Str("type", ev.Type).Str("audit_id", ev.ID).Msg("audit event dropped")
	})

	b.built = true
	return e, nil
}
