package passwordpolicy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

var (
	// ErrHistoryUnavailable wraps failures to read or verify password history.
	ErrHistoryUnavailable = errors.New("password history unavailable")
	// ErrAttributesUnavailable wraps failures to read user attributes.
	ErrAttributesUnavailable = errors.New("user attributes unavailable")
)

// Code identifies one kind of policy violation.
type Code string

const (
	TooShort               Code = "too_short"
	TooLong                Code = "too_long"
	MissingUppercase       Code = "missing_uppercase"
	MissingLowercase       Code = "missing_lowercase"
	MissingDigit           Code = "missing_digit"
	MissingSpecial         Code = "missing_special"
	SimilarToUserAttribute Code = "similar_to_user_attribute"
	CommonPassword         Code = "common_password"
	AllNumeric             Code = "all_numeric"
	ReusedPassword         Code = "reused_password"
)

// Violation is one failed check, with a message suitable for display.
type Violation struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// Config is the password policy.
type Config struct {
	MinLength      int
	MaxLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
	SpecialChars   string
	// History is how many previous hashes a new password is checked against.
	History int
	// ExpireDays is the maximum password age. 0 disables expiry.
	ExpireDays int

	CheckSimilarity bool
	CheckCommon     bool
	CheckNumeric    bool
}

// User identifies whose password is being validated. An empty ID means the
// account does not exist yet, which skips the history check.
type User struct {
	ID       string
	Username string
	Email    string
	// Extra holds further attributes (names, handles) for the similarity check.
	Extra []string
}

// Attributes is what an attribute source knows about a user.
type Attributes struct {
	Username string
	Email    string
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Verifier checks a plaintext password against a stored hash.
type Verifier interface {
	Verify(password, encoded string) (bool, error)
}

// HistoryStore returns a user's most recent password hashes, newest first.
type HistoryStore interface {
	RecentHashes(ctx context.Context, userID string, n int) ([]string, error)
}

// AttributeSource looks up user attributes and password age.
type AttributeSource interface {
	UserAttributes(ctx context.Context, userID string) (Attributes, error)
	// LastPasswordChangedAt reports when the password last changed. ok is
	// false when that is unknown.
	LastPasswordChangedAt(ctx context.Context, userID string) (at time.Time, ok bool, err error)
}

// SimilarityChecker decides whether a password resembles user attributes.
type SimilarityChecker interface {
	Similar(password string, attributes ...string) bool
}

// CommonChecker flags dictionary and digit-only passwords.
type CommonChecker interface {
	IsCommon(password string) bool
	IsAllNumeric(password string) bool
}

// Deps are the collaborators a [Validator] delegates to. Any may be nil, which
// skips the checks that need it.
type Deps struct {
	Clock      Clock
	Verifier   Verifier
	History    HistoryStore
	Attributes AttributeSource
	Similarity SimilarityChecker
	Common     CommonChecker
}

// Validator evaluates passwords against [Config].
type Validator struct {
	cfg  Config
	deps Deps
}

// New creates a [Validator].
func New(cfg Config, deps Deps) *Validator {
	return &Validator{cfg: cfg, deps: deps}
}

// Validate runs every check and returns all violations, in check order. It
// never stops at the first violation. An error is returned only when a
// collaborator fails, in which case the violations are discarded.
//
//	Performance: dominated by History hash verifications.
func (v *Validator) Validate(ctx context.Context, password string, user User) ([]Violation, error) {
	var out []Violation
	add := func(code Code, format string, args ...any) {
		out = append(out, Violation{Code: code, Message: fmt.Sprintf(format, args...)})
	}

	n := utf8.RuneCountInString(password)
	if n < v.cfg.MinLength {
		add(TooShort, "password must be at least %d characters", v.cfg.MinLength)
	}
	if v.cfg.MaxLength > 0 && n > v.cfg.MaxLength {
		add(TooLong, "password must be at most %d characters", v.cfg.MaxLength)
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
		if strings.ContainsRune(v.cfg.SpecialChars, r) {
			special = true
		}
	}
	if v.cfg.RequireUpper && !upper {
		add(MissingUppercase, "password must contain an uppercase letter")
	}
	if v.cfg.RequireLower && !lower {
		add(MissingLowercase, "password must contain a lowercase letter")
	}
	if v.cfg.RequireDigit && !digit {
		add(MissingDigit, "password must contain a digit")
	}
	if v.cfg.RequireSpecial && !special {
		add(MissingSpecial, "password must contain one of %s", v.cfg.SpecialChars)
	}

	if v.cfg.CheckSimilarity && v.deps.Similarity != nil {
		attrs, err := v.attributes(ctx, user)
		if err != nil {
			return nil, err
		}
		if len(attrs) > 0 && v.deps.Similarity.Similar(password, attrs...) {
			add(SimilarToUserAttribute, "password is too similar to your account details")
		}
	}

	if v.deps.Common != nil {
		if v.cfg.CheckCommon && v.deps.Common.IsCommon(password) {
			add(CommonPassword, "password is too common")
		}
		if v.cfg.CheckNumeric && v.deps.Common.IsAllNumeric(password) {
			add(AllNumeric, "password must not be entirely numeric")
		}
	}

	reused, err := v.reused(ctx, password, user.ID)
	if err != nil {
		return nil, err
	}
	if reused {
		add(ReusedPassword, "password was used within the last %d changes", v.cfg.History)
	}

	return out, nil
}

func (v *Validator) attributes(ctx context.Context, user User) ([]string, error) {
	username, email := user.Username, user.Email
	if username == "" && email == "" && user.ID != "" && v.deps.Attributes != nil {
		a, err := v.deps.Attributes.UserAttributes(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAttributesUnavailable, err)
		}
		username, email = a.Username, a.Email
	}

	out := make([]string, 0, 2+len(user.Extra))
	for _, s := range append([]string{username, email}, user.Extra...) {
		if s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// reused verifies password against each of the last History hashes
// independently. A hash that fails to parse is an error, not a mismatch.
func (v *Validator) reused(ctx context.Context, password, userID string) (bool, error) {
	if v.cfg.History <= 0 || userID == "" || v.deps.History == nil || v.deps.Verifier == nil {
		return false, nil
	}

	hashes, err := v.deps.History.RecentHashes(ctx, userID, v.cfg.History)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrHistoryUnavailable, err)
	}
	if len(hashes) > v.cfg.History {
		hashes = hashes[:v.cfg.History]
	}

	for _, h := range hashes {
		ok, err := v.deps.Verifier.Verify(password, h)
		if err != nil {
			return false, fmt.Errorf("%w: verify: %v", ErrHistoryUnavailable, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// ExpiresAt returns when the user's password expires. ok is false when expiry
// is disabled or the last change time is unknown.
func (v *Validator) ExpiresAt(ctx context.Context, userID string) (time.Time, bool, error) {
	if v.cfg.ExpireDays <= 0 || v.deps.Attributes == nil {
		return time.Time{}, false, nil
	}
	changed, ok, err := v.deps.Attributes.LastPasswordChangedAt(ctx, userID)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %v", ErrAttributesUnavailable, err)
	}
	if !ok {
		return time.Time{}, false, nil
	}
	return changed.Add(time.Duration(v.cfg.ExpireDays) * 24 * time.Hour), true, nil
}

// IsExpired reports whether the user must change their password. With expiry
// enabled, an unknown last change counts as expired.
func (v *Validator) IsExpired(ctx context.Context, userID string) (bool, error) {
	if v.cfg.ExpireDays <= 0 {
		return false, nil
	}
	if v.deps.Attributes == nil {
		return true, nil
	}

	at, ok, err := v.ExpiresAt(ctx, userID)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return !v.now().Before(at), nil
}

func (v *Validator) now() time.Time {
	if v.deps.Clock == nil {
		return time.Now()
	}
	return v.deps.Clock.Now()
}
