// Package session implements the session lifecycle on top of a [kvstore.Store]:
// creation with per-user concurrency limits, sliding idle expiry on validation,
// idempotent destruction, and the compact binary record codec.
//
// # State machine
//
//	Created -> Active -> Expired | Destroyed | Evicted
//
// Expired, Destroyed and Evicted are terminal and indistinguishable to callers
// ([ErrExpired]) so session ids cannot be enumerated.
//
// # Concurrency
//
// Create and DestroyAll hold a short per-user lock from the store while they
// read the user's index, evict and insert, so MaxSessions holds across
// processes. Validate writes back with a replace-if-exists primitive so a
// destroyed or evicted session is never resurrected.
//
// # What this package must NOT do
//
//   - Import authpolicy (no upward imports).
//   - Authenticate credentials or decide login policy.
package session
