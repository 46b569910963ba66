package limiters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/MrEthical07/authpolicy/kvstore"
	"github.com/google/uuid"
)

var (
	// ErrAttemptStoreUnavailable indicates the attempt history backend is unreachable.
	ErrAttemptStoreUnavailable = errors.New("login attempt store unavailable")
)

const defaultHistoryLimit = 256

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// AttemptConfig holds the login attempt policy.
type AttemptConfig struct {
	// MaxAttempts is the failure count inside LockoutWindow that locks a subject.
	MaxAttempts int
	// LockoutWindow is how far back failures count toward lockout.
	LockoutWindow time.Duration
	// ResetAfter is the TTL of a subject's whole attempt history, refreshed on
	// every recorded attempt.
	ResetAfter time.Duration
	// HistoryLimit caps the per-username log returned by Recent. 0 uses 256.
	// Failure lists are not capped by count.
	HistoryLimit int
}

// Attempt is one recorded login attempt.
type Attempt struct {
	ID       string    `json:"id"`
	At       time.Time `json:"-"`
	IP       string    `json:"ip,omitempty"`
	Username string    `json:"user,omitempty"`
	Success  bool      `json:"ok"`
}

type attemptWire struct {
	ID       string `json:"id"`
	AtNano   int64  `json:"at"`
	IP       string `json:"ip,omitempty"`
	Username string `json:"user,omitempty"`
	Success  bool   `json:"ok"`
}

// Status is the lockout state of a (username, ip) pair at one instant.
type Status struct {
	UserFailures int
	IPFailures   int
	UserLocked   bool
	IPLocked     bool
	// Remaining is how many more failures either subject tolerates before lockout.
	Remaining int
	// RetryAfter is how long until the window slides far enough to unlock.
	// Zero when not locked.
	RetryAfter time.Duration
}

// Locked reports whether either subject is locked out.
func (s Status) Locked() bool {
	return s.UserLocked || s.IPLocked
}

// AttemptTracker records login attempts per username and per IP and derives
// lockout from them at read time. Nothing about lockout is persisted; a
// subject unlocks once enough failures slide out of the window.
//
// Successful attempts are recorded but never clear earlier failures. Only the
// ResetAfter TTL or an explicit [AttemptTracker.Clear] forgets history.
type AttemptTracker struct {
	store  kvstore.Store
	clock  Clock
	config AttemptConfig
}

// NewAttemptTracker creates a tracker over store.
func NewAttemptTracker(store kvstore.Store, clock Clock, cfg AttemptConfig) *AttemptTracker {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.HistoryLimit < cfg.MaxAttempts {
		cfg.HistoryLimit = cfg.MaxAttempts
	}
	return &AttemptTracker{store: store, clock: clock, config: cfg}
}

func userFailKey(username string) string {
	return "fail:user:" + username
}

func ipFailKey(ip string) string {
	return "fail:ip:" + ip
}

func userLogKey(username string) string {
	return "log:user:" + username
}

// Record stores the attempt. Failures go to the username and ip failure lists,
// which are never trimmed by count and expire only through ResetAfter. Every
// attempt also goes to the username log read by [AttemptTracker.Recent],
// which is capped at HistoryLimit. Either subject may be empty, in which case
// its lists are skipped.
//
//	Performance: up to 3 atomic appends (1 round-trip each on Redis).
func (t *AttemptTracker) Record(ctx context.Context, username, ip string, success bool) (Attempt, error) {
	a := Attempt{
		ID:       uuid.NewString(),
		At:       t.clock.Now(),
		IP:       ip,
		Username: username,
		Success:  success,
	}

	data, err := encodeAttempt(a)
	if err != nil {
		return Attempt{}, err
	}

	if !success {
		if username != "" {
			if err := t.store.Append(ctx, userFailKey(username), data, t.config.ResetAfter, 0); err != nil {
				return Attempt{}, fmt.Errorf("%w: %v", ErrAttemptStoreUnavailable, err)
			}
		}
		if ip != "" {
			if err := t.store.Append(ctx, ipFailKey(ip), data, t.config.ResetAfter, 0); err != nil {
				return Attempt{}, fmt.Errorf("%w: %v", ErrAttemptStoreUnavailable, err)
			}
		}
	}
	if username != "" {
		if err := t.store.Append(ctx, userLogKey(username), data, t.config.ResetAfter, t.config.HistoryLimit); err != nil {
			return Attempt{}, fmt.Errorf("%w: %v", ErrAttemptStoreUnavailable, err)
		}
	}
	return a, nil
}

// IsLockedOut reports whether the username or the ip has reached MaxAttempts
// failures inside the window. The result does not say which one.
func (t *AttemptTracker) IsLockedOut(ctx context.Context, username, ip string) (bool, error) {
	st, err := t.Status(ctx, username, ip)
	if err != nil {
		return false, err
	}
	return st.Locked(), nil
}

// Status computes the full lockout state for both subjects.
//
//	Performance: 2 list reads, O(n) in list length.
func (t *AttemptTracker) Status(ctx context.Context, username, ip string) (Status, error) {
	now := t.clock.Now()
	var st Status

	var userFails, ipFails []time.Time
	if username != "" {
		list, err := t.load(ctx, userFailKey(username))
		if err != nil {
			return Status{}, err
		}
		userFails = t.failuresInWindow(list, now)
	}
	if ip != "" {
		list, err := t.load(ctx, ipFailKey(ip))
		if err != nil {
			return Status{}, err
		}
		ipFails = t.failuresInWindow(list, now)
	}

	st.UserFailures = len(userFails)
	st.IPFailures = len(ipFails)
	st.UserLocked = st.UserFailures >= t.config.MaxAttempts
	st.IPLocked = st.IPFailures >= t.config.MaxAttempts

	worst := st.UserFailures
	if st.IPFailures > worst {
		worst = st.IPFailures
	}
	st.Remaining = t.config.MaxAttempts - worst
	if st.Remaining < 0 {
		st.Remaining = 0
	}

	st.RetryAfter = t.unlockIn(userFails, now)
	if d := t.unlockIn(ipFails, now); d > st.RetryAfter {
		st.RetryAfter = d
	}
	return st, nil
}

// Recent returns up to limit attempts recorded for username, successes and
// failures, newest first. limit <= 0 returns every retained attempt.
func (t *AttemptTracker) Recent(ctx context.Context, username string, limit int) ([]Attempt, error) {
	if username == "" {
		return []Attempt{}, nil
	}
	list, err := t.load(ctx, userLogKey(username))
	if err != nil {
		return nil, err
	}

	out := make([]Attempt, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		out = append(out, list[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Clear forgets the attempt history of username and ip.
func (t *AttemptTracker) Clear(ctx context.Context, username, ip string) error {
	keys := make([]string, 0, 3)
	if username != "" {
		keys = append(keys, userFailKey(username), userLogKey(username))
	}
	if ip != "" {
		keys = append(keys, ipFailKey(ip))
	}
	if err := t.store.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("%w: %v", ErrAttemptStoreUnavailable, err)
	}
	return nil
}

func (t *AttemptTracker) load(ctx context.Context, key string) ([]Attempt, error) {
	raw, err := t.store.Range(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAttemptStoreUnavailable, err)
	}

	out := make([]Attempt, 0, len(raw))
	for _, item := range raw {
		a, err := decodeAttempt(item)
		if err != nil {
			// Unreadable entries age out with the list TTL.
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// failuresInWindow returns the failure timestamps with now-at < LockoutWindow,
// oldest first.
func (t *AttemptTracker) failuresInWindow(list []Attempt, now time.Time) []time.Time {
	var out []time.Time
	for _, a := range list {
		if a.Success {
			continue
		}
		if now.Sub(a.At) < t.config.LockoutWindow {
			out = append(out, a.At)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// unlockIn returns how long until fewer than MaxAttempts of fails remain in
// the window. fails must be sorted oldest first.
func (t *AttemptTracker) unlockIn(fails []time.Time, now time.Time) time.Duration {
	excess := len(fails) - t.config.MaxAttempts
	if excess < 0 {
		return 0
	}
	d := fails[excess].Add(t.config.LockoutWindow).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

func encodeAttempt(a Attempt) ([]byte, error) {
	return json.Marshal(attemptWire{
		ID:       a.ID,
		AtNano:   a.At.UnixNano(),
		IP:       a.IP,
		Username: a.Username,
		Success:  a.Success,
	})
}

func decodeAttempt(data []byte) (Attempt, error) {
	var w attemptWire
	if err := json.Unmarshal(data, &w); err != nil {
		return Attempt{}, err
	}
	if w.AtNano == 0 {
		return Attempt{}, errors.New("attempt without timestamp")
	}
	return Attempt{
		ID:       w.ID,
		At:       time.Unix(0, w.AtNano),
		IP:       w.IP,
		Username: w.Username,
		Success:  w.Success,
	}, nil
}
