package authpolicy

import (
	"errors"
	"strings"
)

var (
	// ErrSessionExpired is returned for sessions that are idle, destroyed,
	// evicted or unknown. The cases are not distinguished.
	ErrSessionExpired = errors.New("session expired")
	// ErrConcurrentSessionDenied is returned by CreateSession when concurrent
	// sessions are disabled and the user already has one.
	ErrConcurrentSessionDenied = errors.New("concurrent session denied")
	// ErrStoreUnavailable wraps shared store failures. Callers must choose
	// fail-open or fail-closed explicitly; the engine never guesses.
	ErrStoreUnavailable = errors.New("policy store unavailable")
	// ErrDependencyUnavailable wraps password history or user attribute
	// lookup failures.
	ErrDependencyUnavailable = errors.New("policy dependency unavailable")
	// ErrPasswordPolicy is matched by every [*ValidationError].
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrUserRequired is returned when an operation needs a user id and got none.
	ErrUserRequired = errors.New("user id required")
	// ErrInvalidConfig is returned by [Config.Validate] and [Builder.Build].
	ErrInvalidConfig = errors.New("invalid config")
	// ErrStoreRequired is returned by [Builder.Build] without a store.
	ErrStoreRequired = errors.New("store or redis client required")
)

// ValidationError carries every policy violation found for a password.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return ErrPasswordPolicy.Error()
	}
	codes := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		codes[i] = string(v.Code)
	}
	return ErrPasswordPolicy.Error() + ": " + strings.Join(codes, ", ")
}

// Is makes errors.Is(err, ErrPasswordPolicy) true.
func (e *ValidationError) Is(target error) bool {
	return target == ErrPasswordPolicy
}

// Has reports whether code is among the violations.
func (e *ValidationError) Has(code ViolationCode) bool {
	for _, v := range e.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}
