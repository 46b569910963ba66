package authpolicy

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the complete engine configuration. Build it explicitly, usually
// starting from [DefaultConfig]; nothing is read from the environment.
type Config struct {
	Password     PasswordPolicyConfig `mapstructure:"password"`
	Session      SessionPolicyConfig  `mapstructure:"session"`
	LoginAttempt LoginAttemptConfig   `mapstructure:"login_attempt"`
	Store        StoreConfig          `mapstructure:"store"`
	Audit        AuditConfig          `mapstructure:"audit"`
	Metrics      MetricsConfig        `mapstructure:"metrics"`
}

/*
====================================
PASSWORD POLICY
====================================
*/

// PasswordPolicyConfig controls password composition, reuse and age.
type PasswordPolicyConfig struct {
	MinLength      int    `mapstructure:"min_length" validate:"gte=1"`
	MaxLength      int    `mapstructure:"max_length" validate:"gte=1,lte=4096"`
	RequireUpper   bool   `mapstructure:"require_upper"`
	RequireLower   bool   `mapstructure:"require_lower"`
	RequireDigit   bool   `mapstructure:"require_digit"`
	RequireSpecial bool   `mapstructure:"require_special"`
	SpecialChars   string `mapstructure:"special_chars" validate:"required_if=RequireSpecial true"`
	// PasswordHistory is how many previous hashes a new password must not match.
	PasswordHistory int `mapstructure:"password_history" validate:"gte=0,lte=64"`
	// PasswordExpireDays is the maximum password age. 0 disables expiry.
	PasswordExpireDays int `mapstructure:"password_expire_days" validate:"gte=0"`

	CheckSimilarity bool `mapstructure:"check_similarity"`
	// MaxSimilarity is the similarity ratio at or above which a password is
	// rejected as resembling the username or email.
	MaxSimilarity float64 `mapstructure:"max_similarity" validate:"gt=0,lte=1"`
	// MinSimilarityLength skips attribute parts shorter than this.
	MinSimilarityLength int  `mapstructure:"min_similarity_length" validate:"gte=1"`
	CheckCommon         bool `mapstructure:"check_common"`
	CheckNumeric        bool `mapstructure:"check_numeric"`
}

/*
====================================
SESSION POLICY
====================================
*/

// SessionPolicyConfig controls session lifetime and concurrency.
type SessionPolicyConfig struct {
	// Timeout is the inactivity period after which a session expires.
	Timeout         time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxSessions     int           `mapstructure:"max_sessions" validate:"gte=1"`
	AllowConcurrent bool          `mapstructure:"allow_concurrent"`
}

/*
====================================
LOGIN ATTEMPTS
====================================
*/

// LoginAttemptConfig controls failed-login lockout.
type LoginAttemptConfig struct {
	MaxAttempts int `mapstructure:"max_attempts" validate:"gte=1"`
	// LockoutTime is the window in which failures count toward lockout.
	LockoutTime time.Duration `mapstructure:"lockout_time" validate:"gt=0"`
	// ResetTime is the TTL of attempt history, refreshed on every attempt.
	ResetTime time.Duration `mapstructure:"reset_time" validate:"gt=0"`
	// HistoryLimit caps the per-username attempt log behind RecentAttempts.
	// Failure lists used for lockout are bounded only by ResetTime.
	HistoryLimit int `mapstructure:"history_limit" validate:"gte=0"`
}

/*
====================================
STORE / AUDIT / METRICS
====================================
*/

// StoreConfig controls key layout and locking on the shared store.
type StoreConfig struct {
	// KeyPrefix namespaces keys when the engine builds its own Redis store.
	KeyPrefix string        `mapstructure:"key_prefix"`
	LockTTL   time.Duration `mapstructure:"lock_ttl" validate:"gt=0"`
	LockWait  time.Duration `mapstructure:"lock_wait" validate:"gte=0"`
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size" validate:"gte=0"`
	DropIfFull bool `mapstructure:"drop_if_full"`
}

// MetricsConfig controls in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool `mapstructure:"enabled"`
	EnableLatencyHistograms bool `mapstructure:"enable_latency_histograms"`
}

// DefaultConfig returns the recognized defaults: 8..128 character passwords
// with every character class required, 5 remembered hashes, 90 day expiry,
// 30 minute idle sessions capped at 5 per user, and lockout after 5 failures
// in 5 minutes with history forgotten after an hour.
func DefaultConfig() Config {
	return Config{
		Password: PasswordPolicyConfig{
			MinLength:           8,
			MaxLength:           128,
			RequireUpper:        true,
			RequireLower:        true,
			RequireDigit:        true,
			RequireSpecial:      true,
			SpecialChars:        "!@#$%^&*()_+-=[]{}|;:,.<>?",
			PasswordHistory:     5,
			PasswordExpireDays:  90,
			CheckSimilarity:     true,
			MaxSimilarity:       0.7,
			MinSimilarityLength: 3,
			CheckCommon:         true,
			CheckNumeric:        true,
		},
		Session: SessionPolicyConfig{
			Timeout:         1800 * time.Second,
			MaxSessions:     5,
			AllowConcurrent: true,
		},
		LoginAttempt: LoginAttemptConfig{
			MaxAttempts:  5,
			LockoutTime:  300 * time.Second,
			ResetTime:    3600 * time.Second,
			HistoryLimit: 256,
		},
		Store: StoreConfig{
			KeyPrefix: "ap",
			LockTTL:   5 * time.Second,
			LockWait:  2 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and the cross-field invariants. All problems
// are reported together; the result matches [ErrInvalidConfig].
func (c *Config) Validate() error {
	var errs []error

	if err := configValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Errorf("%s: failed %q (%s)", fe.Namespace(), fe.Tag(), fe.Param()))
		}
	}

	if c.Password.MinLength > c.Password.MaxLength {
		errs = append(errs, errors.New("Password.MinLength must be <= Password.MaxLength"))
	}
	if c.LoginAttempt.LockoutTime > c.LoginAttempt.ResetTime {
		errs = append(errs, errors.New("LoginAttempt.LockoutTime must be <= LoginAttempt.ResetTime"))
	}
	if c.LoginAttempt.HistoryLimit > 0 && c.LoginAttempt.HistoryLimit < c.LoginAttempt.MaxAttempts {
		errs = append(errs, errors.New("LoginAttempt.HistoryLimit must be 0 or >= LoginAttempt.MaxAttempts"))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}
