package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/MrEthical07/authpolicy/internal"
	"github.com/MrEthical07/authpolicy/kvstore"
)

var (
	// ErrExpired is returned for sessions that are idle past the timeout, were
	// destroyed or evicted, or never existed. The cases are deliberately not
	// distinguished.
	ErrExpired = errors.New("session expired")
	// ErrConcurrentDenied is returned by [Manager.Create] when concurrent
	// sessions are disabled and the user already has an active one.
	ErrConcurrentDenied = errors.New("concurrent session denied")
	// ErrStoreUnavailable wraps key-value backend failures.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrUserRequired is returned when a session is requested for an empty user id.
	ErrUserRequired = errors.New("session user id required")
)

const (
	defaultLockTTL  = 5 * time.Second
	defaultLockWait = 2 * time.Second
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Config holds the session policy the [Manager] enforces.
type Config struct {
	// Timeout is the idle duration after which a session expires.
	Timeout time.Duration
	// MaxSessions caps active sessions per user. Values below 1 behave as 1.
	MaxSessions int
	// AllowConcurrent permits more than one active session per user.
	AllowConcurrent bool
	// LockTTL bounds how long the per-user creation lock may be held.
	LockTTL time.Duration
	// LockWait bounds how long Create waits for a concurrent Create of the same user.
	LockWait time.Duration
}

// CreateResult is returned by [Manager.Create].
type CreateResult struct {
	Record  *Record
	Evicted []*Record
}

// Manager owns the session lifecycle: Created -> Active -> Expired | Destroyed | Evicted.
//
// Records live under "session:{id}" with TTL = Timeout, and each user has an
// index set "user_sessions:{user}" of session ids. Creation runs under a
// per-user lock so the max-sessions bound holds across processes.
type Manager struct {
	store kvstore.Store
	clock Clock
	cfg   Config
	newID func() (string, error)
}

// NewManager creates a [Manager]. A nil clock uses wall-clock time.
func NewManager(store kvstore.Store, clock Clock, cfg Config) *Manager {
	if clock == nil {
		clock = internal.SystemClock{}
	}
	if cfg.MaxSessions < 1 {
		cfg.MaxSessions = 1
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = defaultLockWait
	}
	return &Manager{
		store: store,
		clock: clock,
		cfg:   cfg,
		newID: internal.NewSessionToken,
	}
}

func recordKey(sessionID string) string {
	return "session:" + sessionID
}

func indexKey(userID string) string {
	return "user_sessions:" + userID
}

func lockKey(userID string) string {
	return "lock:user_sessions:" + userID
}

func storeErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// Create starts a new session for userID.
//
// With AllowConcurrent=false an existing active session rejects the call with
// [ErrConcurrentDenied] and is left untouched. Otherwise, when the user is at
// MaxSessions, the sessions with the oldest LastActivity (ties: smallest id)
// are evicted first, so the user never ends up above the cap.
//
//	Performance: 1 lock + 1 SMEMBERS + N GET + 2 writes, N = current sessions.
func (m *Manager) Create(ctx context.Context, userID string) (*CreateResult, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}

	unlock, err := m.store.Lock(ctx, lockKey(userID), m.cfg.LockTTL, m.cfg.LockWait)
	if err != nil {
		return nil, storeErr(err)
	}
	defer func() {
		// The lock expires on its own if release fails.
		_ = unlock(context.WithoutCancel(ctx))
	}()

	now := m.clock.Now()
	active, err := m.active(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	if !m.cfg.AllowConcurrent && len(active) > 0 {
		return nil, ErrConcurrentDenied
	}

	var evicted []*Record
	for len(active) >= m.cfg.MaxSessions {
		victim := active[0]
		if err := m.remove(ctx, victim); err != nil {
			return nil, err
		}
		evicted = append(evicted, victim)
		active = active[1:]
	}

	id, err := m.newID()
	if err != nil {
		return nil, fmt.Errorf("session id generation: %w", err)
	}

	rec := &Record{
		SessionID:    id,
		UserID:       userID,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(m.cfg.Timeout),
	}
	data, err := Encode(rec)
	if err != nil {
		return nil, err
	}

	// Record before index: an index member without a record is treated as
	// stale and pruned by concurrent readers.
	if err := m.store.Set(ctx, recordKey(id), data, m.cfg.Timeout); err != nil {
		return nil, storeErr(err)
	}
	if err := m.store.SetAdd(ctx, indexKey(userID), id, m.cfg.Timeout); err != nil {
		_ = m.store.Delete(ctx, recordKey(id))
		return nil, storeErr(err)
	}

	return &CreateResult{Record: rec, Evicted: evicted}, nil
}

// Validate returns the session and slides its expiry forward. Sessions idle
// past Timeout are deleted and reported as [ErrExpired]. If deleting the stale
// record fails, the returned error matches both ErrExpired and ErrStoreUnavailable.
//
// Concurrent Validate calls on one session race on LastActivity; the last
// writer wins. A session destroyed mid-call is never written back. If the
// index refresh fails the session is deleted and a store error returned.
func (m *Manager) Validate(ctx context.Context, sessionID string) (*Record, error) {
	if sessionID == "" {
		return nil, ErrExpired
	}

	rec, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	if rec.idleExpired(now, m.cfg.Timeout) {
		if err := m.remove(ctx, rec); err != nil {
			return nil, errors.Join(ErrExpired, err)
		}
		return nil, ErrExpired
	}

	rec.LastActivity = now
	rec.ExpiresAt = now.Add(m.cfg.Timeout)
	data, err := Encode(rec)
	if err != nil {
		return nil, err
	}

	ok, err := m.store.Replace(ctx, recordKey(sessionID), data, m.cfg.Timeout)
	if err != nil {
		return nil, storeErr(err)
	}
	if !ok {
		return nil, ErrExpired
	}

	// Refresh the index TTL so it outlives every member record. A live record
	// the index may forget would escape the MaxSessions count, so it goes too.
	if err := m.store.SetAdd(ctx, indexKey(rec.UserID), sessionID, m.cfg.Timeout); err != nil {
		if delErr := m.store.Delete(ctx, recordKey(sessionID)); delErr != nil {
			return nil, storeErr(errors.Join(err, delErr))
		}
		return nil, storeErr(err)
	}

	return rec, nil
}

// Get returns the session without sliding its expiry. Idle sessions are
// reported as [ErrExpired] but left for the TTL to collect.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Record, error) {
	if sessionID == "" {
		return nil, ErrExpired
	}
	rec, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if rec.idleExpired(m.clock.Now(), m.cfg.Timeout) {
		return nil, ErrExpired
	}
	return rec, nil
}

// Destroy deletes the session and its index entry. It reports whether a
// record existed; destroying an unknown or already destroyed id is a no-op.
func (m *Manager) Destroy(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, nil
	}

	data, err := m.store.Get(ctx, recordKey(sessionID))
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return false, nil
		}
		return false, storeErr(err)
	}

	rec, err := Decode(data)
	if err != nil {
		// No owner to unindex; readers prune the dangling member.
		if err := m.store.Delete(ctx, recordKey(sessionID)); err != nil {
			return false, storeErr(err)
		}
		return true, nil
	}
	rec.SessionID = sessionID

	if err := m.remove(ctx, rec); err != nil {
		return false, err
	}
	return true, nil
}

// DestroyAll removes every session of userID and returns how many active
// sessions were terminated.
func (m *Manager) DestroyAll(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrUserRequired
	}

	unlock, err := m.store.Lock(ctx, lockKey(userID), m.cfg.LockTTL, m.cfg.LockWait)
	if err != nil {
		return 0, storeErr(err)
	}
	defer func() {
		_ = unlock(context.WithoutCancel(ctx))
	}()

	active, err := m.active(ctx, userID, m.clock.Now())
	if err != nil {
		return 0, err
	}

	keys := make([]string, 0, len(active)+1)
	for _, rec := range active {
		keys = append(keys, recordKey(rec.SessionID))
	}
	keys = append(keys, indexKey(userID))

	if err := m.store.Delete(ctx, keys...); err != nil {
		return 0, storeErr(err)
	}
	return len(active), nil
}

// List returns the active sessions of userID, oldest activity first, without
// sliding their expiry. Stale index members are pruned as a side effect.
func (m *Manager) List(ctx context.Context, userID string) ([]*Record, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	return m.active(ctx, userID, m.clock.Now())
}

// Count returns the number of active sessions of userID.
func (m *Manager) Count(ctx context.Context, userID string) (int, error) {
	active, err := m.List(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(active), nil
}

func (m *Manager) load(ctx context.Context, sessionID string) (*Record, error) {
	data, err := m.store.Get(ctx, recordKey(sessionID))
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, ErrExpired
		}
		return nil, storeErr(err)
	}

	rec, err := Decode(data)
	if err != nil {
		_ = m.store.Delete(ctx, recordKey(sessionID))
		return nil, ErrExpired
	}
	rec.SessionID = sessionID
	return rec, nil
}

// active reads the user's index, drops members whose record is gone, corrupt
// or idle past the timeout, and returns the rest sorted oldest first.
func (m *Manager) active(ctx context.Context, userID string, now time.Time) ([]*Record, error) {
	ids, err := m.store.Members(ctx, indexKey(userID))
	if err != nil {
		return nil, storeErr(err)
	}

	active := make([]*Record, 0, len(ids))
	var stale []string
	var staleKeys []string

	for _, id := range ids {
		data, err := m.store.Get(ctx, recordKey(id))
		if err != nil {
			if errors.Is(err, kvstore.ErrNotFound) {
				stale = append(stale, id)
				continue
			}
			return nil, storeErr(err)
		}

		rec, err := Decode(data)
		if err != nil || rec.UserID != userID {
			stale = append(stale, id)
			if err != nil {
				staleKeys = append(staleKeys, recordKey(id))
			}
			continue
		}
		rec.SessionID = id

		if rec.idleExpired(now, m.cfg.Timeout) {
			stale = append(stale, id)
			staleKeys = append(staleKeys, recordKey(id))
			continue
		}
		active = append(active, rec)
	}

	if len(staleKeys) > 0 {
		if err := m.store.Delete(ctx, staleKeys...); err != nil {
			return nil, storeErr(err)
		}
	}
	if len(stale) > 0 {
		if err := m.store.SetRemove(ctx, indexKey(userID), stale...); err != nil {
			return nil, storeErr(err)
		}
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].olderThan(active[j])
	})
	return active, nil
}

func (m *Manager) remove(ctx context.Context, rec *Record) error {
	if err := m.store.Delete(ctx, recordKey(rec.SessionID)); err != nil {
		return storeErr(err)
	}
	if err := m.store.SetRemove(ctx, indexKey(rec.UserID), rec.SessionID); err != nil {
		return storeErr(err)
	}
	return nil
}
