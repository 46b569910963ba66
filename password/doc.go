// Package password implements password hashing and the heuristics the
// password policy delegates to.
//
// # Hash formats
//
// [Argon2] writes PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<key>
//
// [Bcrypt] reads and writes the usual $2a$/$2b$/$2y$ strings. [Multi] hashes
// with argon2id and verifies either, which lets password history span a
// migration between schemes.
//
// # Heuristics
//
//   - [Dictionary] holds an embedded list of common passwords.
//   - [IsAllNumeric] flags digit-only passwords.
//   - [AttributeSimilarity] flags passwords that resemble a username or email.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import authpolicy or any internal package.
//   - Log plaintext passwords or hash parameters.
package password
