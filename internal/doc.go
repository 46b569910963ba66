// Package internal contains helper utilities that are intentionally private to
// authpolicy: secure session token generation and the system clock.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - limiters: login attempt tracking and lockout decisions
//   - passwordpolicy: password composition, history and expiry rules
//
// # What this package must NOT do
//
//   - Export types that appear in the public authpolicy API.
//   - Be imported by any package outside the authpolicy module.
package internal
