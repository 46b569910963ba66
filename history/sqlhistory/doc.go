// Package sqlhistory stores password history and user attributes in a
// relational database through sqlx.
//
// [Store] implements the engine's PasswordHistoryStore and UserAttributeSource.
// Postgres (lib/pq, driver "postgres") is the production target; any driver
// sqlx can rebind for works, and the tests run on modernc sqlite.
//
// Schema:
//
//	users(id, username, email, password_changed_at)
//	password_history(id, user_id, password_hash, created_at)
//
// Timestamps are unix seconds so the same queries run on every dialect.
//
// # What this package must NOT do
//
//   - Hash or compare passwords. It only stores hashes it is given.
//   - Decide policy. History depth and expiry belong to the engine.
package sqlhistory
