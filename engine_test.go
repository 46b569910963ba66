package authpolicy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authpolicy/kvstore"
	"github.com/MrEthical07/authpolicy/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memHistory struct {
	hashes map[string][]string
}

func (h *memHistory) RecentHashes(_ context.Context, userID string, n int) ([]string, error) {
	all := h.hashes[userID]
	if len(all) > n {
		all = all[:n]
	}
	return all, nil
}

type memUsers struct {
	attrs   map[string]UserAttributes
	changed map[string]time.Time
}

func (u *memUsers) UserAttributes(_ context.Context, userID string) (UserAttributes, error) {
	return u.attrs[userID], nil
}

func (u *memUsers) LastPasswordChangedAt(_ context.Context, userID string) (time.Time, bool, error) {
	at, ok := u.changed[userID]
	return at, ok, nil
}

type testEnv struct {
	engine *Engine
	clock  *fakeClock
	mr     *miniredis.Miniredis
	sink   *auditCollector
}

type auditCollector struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (c *auditCollector) Emit(_ context.Context, e AuditEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *auditCollector) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Type
	}
	return out
}

func testHasher(t *testing.T) *password.Multi {
	t.Helper()
	a, err := password.NewArgon2(password.Argon2Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("argon2: %v", err)
	}
	return password.NewMulti(a, nil)
}

func newTestEnv(t *testing.T, mutate func(*Config), opts ...func(*Builder)) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	cfg := DefaultConfig()
	cfg.Audit.DropIfFull = false
	if mutate != nil {
		mutate(&cfg)
	}

	clock := newFakeClock()
	sink := &auditCollector{}
	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithClock(clock).
		WithHasher(testHasher(t)).
		WithAuditSink(sink)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, clock: clock, mr: mr, sink: sink}
}

func TestBuildRequiresStore(t *testing.T) {
	_, err := New().Build()
	if !errors.Is(err, ErrStoreRequired) {
		t.Fatalf("expected ErrStoreRequired, got %v", err)
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Password.MinLength = 500
	_, err := New().WithConfig(cfg).WithStore(kvstore.NewMemory()).Build()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithStore(kvstore.NewMemory())
	e, err := b.Build()
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	defer e.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second build to fail")
	}
}

func TestEngineMaxSessionsEvictsLeastRecentlyActive(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Session.MaxSessions = 3 })
	ctx := context.Background()
	e := env.engine

	var ids []string
	for i := 0; i < 3; i++ {
		rec, err := e.CreateSession(ctx, "u1")
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		ids = append(ids, rec.SessionID)
		env.clock.Advance(time.Minute)
	}

	// Touch the first; the second is now the least recently active.
	if _, err := e.ValidateSession(ctx, ids[0]); err != nil {
		t.Fatalf("validate: %v", err)
	}
	env.clock.Advance(time.Minute)

	newest, err := e.CreateSession(ctx, "u1")
	if err != nil {
		t.Fatalf("create 4th: %v", err)
	}

	active, err := e.ActiveSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 3 {
		t.Fatalf("expected 3 active sessions, got %d", len(active))
	}
	if _, err := e.ValidateSession(ctx, ids[1]); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("evicted session should be expired, got %v", err)
	}
	for _, id := range []string{ids[0], ids[2], newest.SessionID} {
		if _, err := e.ValidateSession(ctx, id); err != nil {
			t.Fatalf("session %s should survive: %v", id, err)
		}
	}

	if got := e.MetricsSnapshot().Counters[MetricSessionEvicted]; got != 1 {
		t.Fatalf("expected 1 eviction, got %d", got)
	}
}

func TestEngineConcurrentSessionDenied(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Session.AllowConcurrent = false })
	ctx := context.Background()
	e := env.engine

	first, err := e.CreateSession(ctx, "u1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	env.clock.Advance(time.Minute)
	if _, err := e.CreateSession(ctx, "u1"); !errors.Is(err, ErrConcurrentSessionDenied) {
		t.Fatalf("expected ErrConcurrentSessionDenied, got %v", err)
	}

	active, err := e.ActiveSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 1 || active[0].SessionID != first.SessionID {
		t.Fatalf("existing session changed: %+v", active)
	}
	if !active[0].LastActivity.Equal(first.LastActivity) {
		t.Fatal("denied create must not touch the existing session")
	}
}

func TestEngineIdleSessionExpires(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	e := env.engine

	rec, err := e.CreateSession(ctx, "u1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !rec.ExpiresAt.Equal(rec.LastActivity.Add(30 * time.Minute)) {
		t.Fatalf("unexpected ExpiresAt: %v", rec.ExpiresAt)
	}

	env.clock.Advance(29 * time.Minute)
	info, err := e.ValidateSession(ctx, rec.SessionID)
	if err != nil {
		t.Fatalf("validate within timeout: %v", err)
	}
	if !info.LastActivity.Equal(env.clock.Now()) {
		t.Fatal("validate must slide last activity")
	}

	env.clock.Advance(31 * time.Minute)
	if _, err := e.ValidateSession(ctx, rec.SessionID); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if env.mr.Exists("ap:session:" + rec.SessionID) {
		t.Fatal("expired session record must be deleted")
	}
	if _, err := e.ValidateSession(ctx, rec.SessionID); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired on retry, got %v", err)
	}
}

func TestEngineDestroySessionIdempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	e := env.engine

	rec, err := e.CreateSession(ctx, "u1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := e.DestroySession(ctx, rec.SessionID); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if err := e.DestroySession(ctx, rec.SessionID); err != nil {
		t.Fatalf("second destroy: %v", err)
	}
	if got := e.MetricsSnapshot().Counters[MetricSessionDestroyed]; got != 1 {
		t.Fatalf("second destroy must have no side effect, metric=%d", got)
	}
	if env.mr.Exists("ap:user_sessions:u1") {
		t.Fatal("index should be empty and removed")
	}
}

func TestEngineDestroyAllSessions(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	e := env.engine

	for i := 0; i < 3; i++ {
		if _, err := e.CreateSession(ctx, "u1"); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	n, err := e.DestroyAllSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("destroy all: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3, got %d", n)
	}
	active, _ := e.ActiveSessions(ctx, "u1")
	if len(active) != 0 {
		t.Fatalf("expected none active, got %d", len(active))
	}
}

func TestEngineLockoutScenario(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	e := env.engine
	start := env.clock.Now()

	for i := 0; i < 5; i++ {
		if err := e.RecordLoginAttempt(ctx, "alice", "1.2.3.4", false); err != nil {
			t.Fatalf("record: %v", err)
		}
		env.clock.Advance(12 * time.Second)
	}

	locked, err := e.IsLockedOut(ctx, "alice", "1.2.3.4")
	if err != nil {
		t.Fatalf("is locked out: %v", err)
	}
	if !locked {
		t.Fatal("expected lockout after 5 failures in 60s")
	}

	remaining, err := e.LockoutRemaining(ctx, "alice", "1.2.3.4")
	if err != nil {
		t.Fatalf("lockout remaining: %v", err)
	}
	if remaining != 240*time.Second {
		t.Fatalf("expected 240s remaining, got %v", remaining)
	}

	env.clock.Set(start.Add(301 * time.Second))
	locked, err = e.IsLockedOut(ctx, "alice", "1.2.3.4")
	if err != nil {
		t.Fatalf("is locked out: %v", err)
	}
	if locked {
		t.Fatal("expected unlock once the first failure left the window")
	}

	if got := e.MetricsSnapshot().Counters[MetricLockoutTriggered]; got != 1 {
		t.Fatalf("expected one lockout trigger, got %d", got)
	}
}

func TestEngineLockoutAcrossUsernamesSameIP(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	e := env.engine

	users := []string{"ann", "ben", "cat", "dan", "eve"}
	for _, u := range users {
		if err := e.RecordLoginAttempt(ctx, u, "9.9.9.9", false); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	for _, u := range users {
		locked, err := e.IsLockedOut(ctx, u, "9.9.9.9")
		if err != nil {
			t.Fatalf("is locked out: %v", err)
		}
		if !locked {
			t.Fatalf("%s should be locked via the ip index", u)
		}
	}

	sum, err := e.FailedAttempts(ctx, "ann", "9.9.9.9")
	if err != nil {
		t.Fatalf("failed attempts: %v", err)
	}
	if sum.UsernameFailures != 1 || sum.IPFailures != 5 || !sum.Locked || sum.Remaining != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}

func TestEngineSuccessDoesNotResetFailures(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	e := env.engine

	for i := 0; i < 4; i++ {
		_ = e.RecordLoginAttempt(ctx, "bob", "5.5.5.5", false)
	}
	_ = e.RecordLoginAttempt(ctx, "bob", "5.5.5.5", true)
	_ = e.RecordLoginAttempt(ctx, "bob", "5.5.5.5", false)

	locked, err := e.IsLockedOut(ctx, "bob", "5.5.5.5")
	if err != nil {
		t.Fatalf("is locked out: %v", err)
	}
	if !locked {
		t.Fatal("success must not clear failures")
	}

	recent, err := e.RecentAttempts(ctx, "bob", 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 || recent[0].Success || !recent[1].Success {
		t.Fatalf("unexpected recent attempts: %+v", recent)
	}

	if err := e.ClearLoginAttempts(ctx, "bob", "5.5.5.5"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	locked, _ = e.IsLockedOut(ctx, "bob", "5.5.5.5")
	if locked {
		t.Fatal("cleared history must unlock")
	}
}

func TestEngineStoreFailureIsNotSwallowed(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.mr.Close()

	if _, err := env.engine.IsLockedOut(ctx, "alice", "1.2.3.4"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("IsLockedOut: expected ErrStoreUnavailable, got %v", err)
	}
	if err := env.engine.RecordLoginAttempt(ctx, "alice", "1.2.3.4", false); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("RecordLoginAttempt: expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := env.engine.CreateSession(ctx, "u1"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("CreateSession: expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := env.engine.ValidateSession(ctx, "whatever"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("ValidateSession: expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := env.engine.Ping(ctx); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Ping: expected ErrStoreUnavailable, got %v", err)
	}
}

func TestEngineValidatePassword(t *testing.T) {
	hasher := testHasher(t)
	var hashes []string
	for _, pw := range []string{"Newest#Pw1", "Second#Pw2", "Third#Pw3", "Fourth#Pw4", "Fifth#Pw5", "Sixth#Pw6"} {
		h, err := hasher.Hash(pw)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		hashes = append(hashes, h)
	}
	history := &memHistory{hashes: map[string][]string{"u1": hashes}}

	env := newTestEnv(t, nil, func(b *Builder) { b.WithHistoryStore(history) })
	ctx := context.Background()
	e := env.engine
	user := UserContext{UserID: "u1", Username: "carol", Email: "carol@example.com"}

	violations, err := e.ValidatePassword(ctx, "Fifth#Pw5", user)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(violations) != 1 || violations[0].Code != ViolationReusedPassword {
		t.Fatalf("expected only ReusedPassword, got %+v", violations)
	}

	// Sixth is beyond the 5 remembered hashes.
	violations, err = e.ValidatePassword(ctx, "Sixth#Pw6", user)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(violations) != 0 {
		t.Fatalf("expected no violations, got %+v", violations)
	}

	err = e.ValidatePasswordError(ctx, "abc", user)
	var verr *ValidationError
	if !errors.As(err, &verr) || !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected *ValidationError matching ErrPasswordPolicy, got %v", err)
	}
	for _, code := range []ViolationCode{ViolationTooShort, ViolationMissingUppercase, ViolationMissingDigit, ViolationMissingSpecial} {
		if !verr.Has(code) {
			t.Errorf("expected %s in %v", code, verr)
		}
	}

	hash, err := e.HashPassword(ctx, "Brand#New9", user)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if ok, _ := hasher.Verify("Brand#New9", hash); !ok {
		t.Fatal("returned hash must verify")
	}
}

func TestEnginePasswordExpiry(t *testing.T) {
	clockNow := newFakeClock().Now()
	users := &memUsers{
		attrs: map[string]UserAttributes{},
		changed: map[string]time.Time{
			"fresh": clockNow.Add(-10 * 24 * time.Hour),
			"stale": clockNow.Add(-91 * 24 * time.Hour),
		},
	}
	env := newTestEnv(t, nil, func(b *Builder) { b.WithUserSource(users) })
	ctx := context.Background()
	e := env.engine

	cases := map[string]bool{"fresh": false, "stale": true, "unknown": true}
	for user, want := range cases {
		got, err := e.IsPasswordExpired(ctx, user)
		if err != nil {
			t.Fatalf("%s: %v", user, err)
		}
		if got != want {
			t.Errorf("IsPasswordExpired(%s) = %v, want %v", user, got, want)
		}
	}

	at, ok, err := e.PasswordExpiresAt(ctx, "fresh")
	if err != nil || !ok {
		t.Fatalf("PasswordExpiresAt: %v %v", ok, err)
	}
	if want := clockNow.Add(80 * 24 * time.Hour); !at.Equal(want) {
		t.Fatalf("expires at %v, want %v", at, want)
	}

	noExpiry := newTestEnv(t, func(c *Config) { c.Password.PasswordExpireDays = 0 }, func(b *Builder) { b.WithUserSource(users) })
	got, err := noExpiry.engine.IsPasswordExpired(ctx, "unknown")
	if err != nil || got {
		t.Fatalf("expiry disabled must never expire, got %v %v", got, err)
	}
}

func TestEngineAuditTrail(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Session.MaxSessions = 1 })
	ctx := context.Background()
	e := env.engine

	first, _ := e.CreateSession(ctx, "u1")
	_, _ = e.CreateSession(ctx, "u1")
	_ = e.DestroySession(ctx, first.SessionID)
	_ = e.RecordLoginAttempt(ctx, "dave", "2.2.2.2", true)
	_, _ = e.ValidatePassword(ctx, "short", UserContext{})
	e.Close()

	want := []string{
		AuditSessionCreated,
		AuditSessionEvicted,
		AuditSessionCreated,
		AuditLoginAttempt,
		AuditPasswordRejected,
	}
	got := env.sink.types()
	if len(got) != len(want) {
		t.Fatalf("audit types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("audit types = %v, want %v", got, want)
		}
	}
	for _, ev := range env.sink.events {
		if ev.ID == "" {
			t.Fatal("audit events must carry an id")
		}
	}
}

func TestEngineConcurrentCreateRespectsMaxSessions(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.Session.MaxSessions = 2
		c.Store.LockWait = 10 * time.Second
	})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.engine.CreateSession(ctx, "u1"); err != nil {
				t.Errorf("create: %v", err)
			}
		}()
	}
	wg.Wait()

	active, err := env.engine.ActiveSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active sessions, got %d", len(active))
	}
}
