// Package audit implements async event dispatching for security-relevant
// policy decisions: session lifecycle, login attempts, lockouts and rejected
// passwords.
//
// # Components
//
//   - [Event]: structured record with a uuid id, type, subject and outcome.
//   - [Sink]: event consumer (channel, JSON lines, zerolog, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full semantics.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import authpolicy or any sibling internal package.
//   - Carry plaintext passwords or password hashes in events.
package audit
