// Command authpolicy-loadtest drives concurrent session creation and login
// attempts through an engine on Redis (or miniredis) and then checks that
// session caps and lockout decisions still hold.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	authpolicy "github.com/MrEthical07/authpolicy"
	"github.com/MrEthical07/authpolicy/history/sqlhistory"
	"github.com/MrEthical07/authpolicy/metrics/export/prometheus"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "", "optional YAML/TOML/JSON config file")
	flag.Parse()

	cfg, err := loadSettings(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := newLogger(cfg.LogLevel)
	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error().Err(err).Msg("load test failed")
		os.Exit(1)
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}

func run(ctx context.Context, cfg loadConfig, logger zerolog.Logger) error {
	client, cleanup, err := connectRedis(cfg.RedisAddr, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	b := authpolicy.New().
		WithConfig(cfg.Engine).
		WithRedis(client).
		WithLogger(logger)

	var history *sqlhistory.Store
	if cfg.HistoryDSN != "" {
		history, err = sqlhistory.Open(ctx, "postgres", cfg.HistoryDSN)
		if err != nil {
			return err
		}
		defer history.Close()
		if err := history.Migrate(ctx); err != nil {
			return err
		}
		b = b.WithHistoryStore(history).WithUserSource(history)
	}

	engine, err := b.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	rtt, err := engine.Ping(ctx)
	if err != nil {
		return err
	}
	logger.Info().Dur("rtt", rtt).Msg("store reachable")

	users := make([]string, cfg.Users)
	for i := range users {
		users[i] = fmt.Sprintf("lt-user-%d", i)
	}
	ips := make([]string, cfg.IPs)
	for i := range ips {
		ips[i] = fmt.Sprintf("10.0.%d.%d", i/250, i%250+1)
	}

	logger.Info().Int("ops", cfg.Ops).Int("concurrency", cfg.Concurrency).Msg("session phase")
	sessionStats := runPhase(cfg.Ops, cfg.Concurrency, func(r *rand.Rand) error {
		user := users[r.Intn(len(users))]
		rec, err := engine.CreateSession(ctx, user)
		if err != nil {
			if errors.Is(err, authpolicy.ErrConcurrentSessionDenied) {
				return nil
			}
			return err
		}
		_, err = engine.ValidateSession(ctx, rec.SessionID)
		if errors.Is(err, authpolicy.ErrSessionExpired) {
			// Evicted by a concurrent create for the same user.
			return nil
		}
		return err
	})

	logger.Info().Msg("login attempt phase")
	attemptStats := runPhase(cfg.Ops, cfg.Concurrency, func(r *rand.Rand) error {
		user := users[r.Intn(len(users))]
		ip := ips[r.Intn(len(ips))]
		return engine.RecordLoginAttempt(ctx, user, ip, r.Intn(4) == 0)
	})

	var violations []string
	violations = append(violations, checkSessions(ctx, engine, users)...)
	violations = append(violations, checkLockouts(ctx, engine, users, ips)...)
	if history != nil {
		violations = append(violations, checkHistory(ctx, engine, history)...)
	}

	fmt.Println("---- results ----")
	fmt.Printf("sessions: %s\n", sessionStats)
	fmt.Printf("attempts: %s\n", attemptStats)
	exposition, err := prometheus.NewPrometheusExporter(engine).Render()
	if err != nil {
		return err
	}
	fmt.Print(exposition)

	for _, v := range violations {
		logger.Error().Msg(v)
	}
	if len(violations) > 0 {
		return fmt.Errorf("%d invariant violations", len(violations))
	}
	logger.Info().Msg("all invariants held")
	return nil
}

func connectRedis(addr string, logger zerolog.Logger) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		logger.Info().Str("addr", addr).Msg("using redis")
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	logger.Info().Str("addr", mr.Addr()).Msg("using miniredis")
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func runPhase(ops, concurrency int, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				if int(atomic.AddInt64(&cursor, 1)) > ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

func checkSessions(ctx context.Context, engine *authpolicy.Engine, users []string) []string {
	limit := engine.Config().Session.MaxSessions
	if !engine.Config().Session.AllowConcurrent {
		limit = 1
	}

	var out []string
	for _, u := range users {
		active, err := engine.ActiveSessions(ctx, u)
		if err != nil {
			out = append(out, fmt.Sprintf("active sessions %s: %v", u, err))
			continue
		}
		if len(active) > limit {
			out = append(out, fmt.Sprintf("user %s holds %d sessions, limit %d", u, len(active), limit))
		}
	}
	return out
}

// checkLockouts compares IsLockedOut with the failure counts behind it.
func checkLockouts(ctx context.Context, engine *authpolicy.Engine, users, ips []string) []string {
	threshold := engine.Config().LoginAttempt.MaxAttempts

	var out []string
	for i, u := range users {
		ip := ips[i%len(ips)]
		sum, err := engine.FailedAttempts(ctx, u, ip)
		if err != nil {
			out = append(out, fmt.Sprintf("failed attempts %s/%s: %v", u, ip, err))
			continue
		}
		locked, err := engine.IsLockedOut(ctx, u, ip)
		if err != nil {
			out = append(out, fmt.Sprintf("lockout %s/%s: %v", u, ip, err))
			continue
		}
		// Counts may only grow between the two reads; the window is far longer than the check.
		want := sum.UsernameFailures >= threshold || sum.IPFailures >= threshold
		if want && !locked {
			out = append(out, fmt.Sprintf("%s/%s has %d/%d failures but is not locked",
				u, ip, sum.UsernameFailures, sum.IPFailures))
		}
	}
	return out
}

func checkHistory(ctx context.Context, engine *authpolicy.Engine, history *sqlhistory.Store) []string {
	const pw = "Loadtest#Pw1"
	userID := fmt.Sprintf("lt-history-%d", time.Now().UnixNano())

	hash, err := engine.HashPassword(ctx, pw, authpolicy.UserContext{UserID: userID})
	if err != nil {
		return []string{fmt.Sprintf("hash password: %v", err)}
	}
	if err := history.RecordPassword(ctx, userID, hash, time.Now()); err != nil {
		return []string{fmt.Sprintf("record password: %v", err)}
	}
	err = engine.ValidatePasswordError(ctx, pw, authpolicy.UserContext{UserID: userID})
	var verr *authpolicy.ValidationError
	if !errors.As(err, &verr) || !verr.Has(authpolicy.ViolationReusedPassword) {
		return []string{fmt.Sprintf("reused password accepted: %v", err)}
	}
	return nil
}
