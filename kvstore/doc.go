// Package kvstore defines the shared key-value contract the policy engine is
// built on, plus two backends.
//
// # Backends
//
//   - [Redis]: go-redis client; lists, sets and token locks map to native
//     Redis structures, multi-command writes run inside MULTI/EXEC or Lua.
//   - [Memory]: go-cache with a store-wide mutex. Single process only.
//
// # Atomicity contract
//
// Callers never implement read-modify-write over shared keys. Append, SetAdd,
// Replace and Lock are the primitives that keep attempt history and session
// limits correct under concurrent requests; any third-party [Store] must
// provide the same guarantees.
//
// # What this package must NOT do
//
//   - Interpret stored values (sessions, attempts) or apply policy.
//   - Retry failed backend calls silently; failures surface as [ErrUnavailable].
package kvstore
