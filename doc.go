// Package authpolicy enforces authentication security policy: password
// composition, reuse and age; session lifetime and per-user concurrency; and
// lockout after repeated failed logins.
//
// The package does not authenticate credentials, issue tokens, or send
// notifications. A login handler typically calls [Engine.IsLockedOut], checks
// the password itself, calls [Engine.RecordLoginAttempt], and on success
// [Engine.CreateSession]. Password change handlers call
// [Engine.ValidatePassword] before persisting.
//
// Engine methods are safe to call from many goroutines and from many processes
// sharing one store. The only shared mutable state lives in the
// [kvstore.Store]; lockout is recomputed from attempt history on every check
// and never stored.
//
// # Architecture boundaries
//
// authpolicy is the public surface. Session records live in package session,
// the store contract in kvstore, hashing and password heuristics in package
// password. Attempt tracking, password validation and audit dispatch live
// under internal/.
//
// # What this package must NOT do
//
//   - Read configuration from the environment or globals. [Config] is passed
//     explicitly through [Builder].
//   - Treat a store failure as "not locked out" or "session valid".
//   - Reveal whether a lockout was triggered by the username or the IP, or
//     whether a session expired or never existed.
package authpolicy
