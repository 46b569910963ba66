package sqlhistory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	authpolicy "github.com/MrEthical07/authpolicy"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ErrUserRequired is returned when a write names no user.
var ErrUserRequired = errors.New("sqlhistory: user id required")

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id                  TEXT PRIMARY KEY,
	username            TEXT NOT NULL DEFAULT '',
	email               TEXT NOT NULL DEFAULT '',
	password_changed_at BIGINT
);
CREATE TABLE IF NOT EXISTS password_history (
	id            BIGSERIAL PRIMARY KEY,
	user_id       TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at    BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS password_history_user_idx ON password_history (user_id, created_at DESC);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id                  TEXT PRIMARY KEY,
	username            TEXT NOT NULL DEFAULT '',
	email               TEXT NOT NULL DEFAULT '',
	password_changed_at INTEGER
);
CREATE TABLE IF NOT EXISTS password_history (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id       TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS password_history_user_idx ON password_history (user_id, created_at DESC);
`

// User is one row of the users table.
type User struct {
	ID                string        `db:"id"`
	Username          string        `db:"username"`
	Email             string        `db:"email"`
	PasswordChangedAt sql.NullInt64 `db:"password_changed_at"`
}

// Store reads and writes password history through sqlx.
type Store struct {
	db *sqlx.DB
	// Keep bounds stored history per user on write. 0 keeps everything.
	Keep int
}

// New wraps an open database.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects with sqlx and pings the database.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying handle.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the tables if missing.
func (s *Store) Migrate(ctx context.Context) error {
	schema := sqliteSchema
	if s.db.DriverName() == "postgres" {
		schema = postgresSchema
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// RecentHashes returns up to n stored hashes for userID, newest first.
func (s *Store) RecentHashes(ctx context.Context, userID string, n int) ([]string, error) {
	if n <= 0 || userID == "" {
		return nil, nil
	}
	query := s.db.Rebind(`
		SELECT password_hash FROM password_history
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`)

	var hashes []string
	if err := s.db.SelectContext(ctx, &hashes, query, userID, n); err != nil {
		return nil, fmt.Errorf("failed to get password history: %w", err)
	}
	return hashes, nil
}

// UserAttributes returns the username and email of userID. Unknown users
// yield empty attributes.
func (s *Store) UserAttributes(ctx context.Context, userID string) (authpolicy.UserAttributes, error) {
	u, found, err := s.user(ctx, userID)
	if err != nil || !found {
		return authpolicy.UserAttributes{}, err
	}
	return authpolicy.UserAttributes{Username: u.Username, Email: u.Email}, nil
}

// LastPasswordChangedAt reports when userID last changed password. ok is
// false for unknown users and users who never set one.
func (s *Store) LastPasswordChangedAt(ctx context.Context, userID string) (time.Time, bool, error) {
	u, found, err := s.user(ctx, userID)
	if err != nil || !found || !u.PasswordChangedAt.Valid {
		return time.Time{}, false, err
	}
	return time.Unix(u.PasswordChangedAt.Int64, 0).UTC(), true, nil
}

func (s *Store) user(ctx context.Context, userID string) (User, bool, error) {
	query := s.db.Rebind(`SELECT id, username, email, password_changed_at FROM users WHERE id = ?`)

	var u User
	if err := s.db.GetContext(ctx, &u, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, false, nil
		}
		return User{}, false, fmt.Errorf("failed to get user: %w", err)
	}
	return u, true, nil
}

// UpsertUser creates or updates the username and email of u.ID. The
// password change time is left alone.
func (s *Store) UpsertUser(ctx context.Context, u User) error {
	if u.ID == "" {
		return ErrUserRequired
	}
	query := s.db.Rebind(`
		INSERT INTO users (id, username, email) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET username = excluded.username, email = excluded.email
	`)
	if _, err := s.db.ExecContext(ctx, query, u.ID, u.Username, u.Email); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// RecordPassword appends hash to userID's history and stamps the change
// time, in one transaction. With Keep > 0 older rows are pruned.
func (s *Store) RecordPassword(ctx context.Context, userID, hash string, at time.Time) error {
	if userID == "" {
		return ErrUserRequired
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		insert := tx.Rebind(`INSERT INTO password_history (user_id, password_hash, created_at) VALUES (?, ?, ?)`)
		if _, err := tx.ExecContext(ctx, insert, userID, hash, at.Unix()); err != nil {
			return fmt.Errorf("failed to insert password history: %w", err)
		}

		stamp := tx.Rebind(`
			INSERT INTO users (id, password_changed_at) VALUES (?, ?)
			ON CONFLICT (id) DO UPDATE SET password_changed_at = excluded.password_changed_at
		`)
		if _, err := tx.ExecContext(ctx, stamp, userID, at.Unix()); err != nil {
			return fmt.Errorf("failed to stamp password change: %w", err)
		}

		if s.Keep <= 0 {
			return nil
		}
		prune := tx.Rebind(`
			DELETE FROM password_history
			WHERE user_id = ? AND id NOT IN (
				SELECT id FROM password_history
				WHERE user_id = ?
				ORDER BY created_at DESC, id DESC
				LIMIT ?
			)
		`)
		if _, err := tx.ExecContext(ctx, prune, userID, userID, s.Keep); err != nil {
			return fmt.Errorf("failed to prune password history: %w", err)
		}
		return nil
	})
}

func (s *Store) withTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var (
	_ authpolicy.PasswordHistoryStore = (*Store)(nil)
	_ authpolicy.UserAttributeSource  = (*Store)(nil)
)
