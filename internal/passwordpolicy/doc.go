// Package passwordpolicy validates candidate passwords and password age.
//
// [Validator.Validate] collects every violation instead of failing fast so a
// form can show them together. Only collaborator failures (history store,
// attribute source, hash verification) are returned as errors.
//
// Reuse is checked by verifying the candidate against each of the user's last
// N stored hashes through the configured [Verifier]. Plaintext is never
// compared.
//
// # What this package must NOT do
//
//   - Import authpolicy (no upward imports).
//   - Persist passwords or hashes.
package passwordpolicy
