package main

import (
	"fmt"
	"strings"

	authpolicy "github.com/MrEthical07/authpolicy"
	"github.com/spf13/viper"
)

type loadConfig struct {
	RedisAddr   string `mapstructure:"redis_addr"`
	HistoryDSN  string `mapstructure:"history_dsn"`
	Users       int    `mapstructure:"users"`
	IPs         int    `mapstructure:"ips"`
	Concurrency int    `mapstructure:"concurrency"`
	Ops         int    `mapstructure:"ops"`
	LogLevel    string `mapstructure:"log_level"`

	Engine authpolicy.Config `mapstructure:"engine"`
}

// loadSettings reads defaults, then the optional config file, then
// AUTHPOLICY_* environment variables (AUTHPOLICY_ENGINE_SESSION_MAX_SESSIONS
// sets engine.session.max_sessions).
func loadSettings(path string) (loadConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AUTHPOLICY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return loadConfig{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg loadConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return loadConfig{}, fmt.Errorf("unable to decode config: %w", err)
	}
	if cfg.Users <= 0 || cfg.IPs <= 0 || cfg.Concurrency <= 0 || cfg.Ops <= 0 {
		return loadConfig{}, fmt.Errorf("users, ips, concurrency and ops must be > 0")
	}
	if err := cfg.Engine.Validate(); err != nil {
		return loadConfig{}, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("redis_addr", "")
	v.SetDefault("history_dsn", "")
	v.SetDefault("users", 200)
	v.SetDefault("ips", 50)
	v.SetDefault("concurrency", 64)
	v.SetDefault("ops", 20000)
	v.SetDefault("log_level", "info")

	d := authpolicy.DefaultConfig()

	v.SetDefault("engine.password.min_length", d.Password.MinLength)
	v.SetDefault("engine.password.max_length", d.Password.MaxLength)
	v.SetDefault("engine.password.require_upper", d.Password.RequireUpper)
	v.SetDefault("engine.password.require_lower", d.Password.RequireLower)
	v.SetDefault("engine.password.require_digit", d.Password.RequireDigit)
	v.SetDefault("engine.password.require_special", d.Password.RequireSpecial)
	v.SetDefault("engine.password.special_chars", d.Password.SpecialChars)
	v.SetDefault("engine.password.password_history", d.Password.PasswordHistory)
	v.SetDefault("engine.password.password_expire_days", d.Password.PasswordExpireDays)
	v.SetDefault("engine.password.check_similarity", d.Password.CheckSimilarity)
	v.SetDefault("engine.password.max_similarity", d.Password.MaxSimilarity)
	v.SetDefault("engine.password.min_similarity_length", d.Password.MinSimilarityLength)
	v.SetDefault("engine.password.check_common", d.Password.CheckCommon)
	v.SetDefault("engine.password.check_numeric", d.Password.CheckNumeric)

	v.SetDefault("engine.session.timeout", d.Session.Timeout)
	v.SetDefault("engine.session.max_sessions", d.Session.MaxSessions)
	v.SetDefault("engine.session.allow_concurrent", d.Session.AllowConcurrent)

	v.SetDefault("engine.login_attempt.max_attempts", d.LoginAttempt.MaxAttempts)
	v.SetDefault("engine.login_attempt.lockout_time", d.LoginAttempt.LockoutTime)
	v.SetDefault("engine.login_attempt.reset_time", d.LoginAttempt.ResetTime)
	v.SetDefault("engine.login_attempt.history_limit", d.LoginAttempt.HistoryLimit)

	v.SetDefault("engine.store.key_prefix", "aplt")
	v.SetDefault("engine.store.lock_ttl", d.Store.LockTTL)
	// Workers contend on the per-user lock far harder than real logins do.
	v.SetDefault("engine.store.lock_wait", 10*d.Store.LockWait)

	v.SetDefault("engine.audit.enabled", d.Audit.Enabled)
	v.SetDefault("engine.audit.buffer_size", d.Audit.BufferSize)
	v.SetDefault("engine.audit.drop_if_full", d.Audit.DropIfFull)

	v.SetDefault("engine.metrics.enabled", true)
	v.SetDefault("engine.metrics.enable_latency_histograms", true)
}
