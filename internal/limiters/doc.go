// Package limiters derives login lockout from recorded attempt history.
//
// # Model
//
// [AttemptTracker] appends failed attempts to two lists in the shared store:
// "fail:user:{username}" and "fail:ip:{ip}". Every attempt, successful or not,
// also goes to "log:user:{username}", capped at HistoryLimit entries. All
// lists carry a TTL of ResetAfter that is refreshed on each append. Failure
// lists are never trimmed by count, so successes cannot push an in-window
// failure out. A subject is locked out while at least MaxAttempts failures in
// its list are younger than LockoutWindow. The check is an O(n) scan at read time; at very
// high attempt volume a bucketed counter would be cheaper.
//
// # Architecture boundaries
//
// Appends go through [kvstore.Store.Append], which is atomic on every backend,
// so concurrent requests never lose attempts.
//
// # What this package must NOT do
//
//   - Import authpolicy (no upward imports).
//   - Persist a "locked" flag. Lockout is always recomputed from history.
//   - Decide what happens to a locked-out caller.
package limiters
