// Package identity persists the mapping between channel-native sender ids
// and internal user ids.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS channel_identities (
		channel TEXT NOT NULL,
		native_id TEXT NOT NULL,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (channel, native_id)
	);
	CREATE INDEX IF NOT EXISTS idx_identities_user ON channel_identities(user_id, channel);
`

// ErrEmptyIdentity is returned for a blank channel or native id.
var ErrEmptyIdentity = errors.New("channel and native id are required")

// SQLiteMapper assigns sequential internal ids to channel identities and
// remembers them across restarts.
type SQLiteMapper struct {
	db     *sql.DB
	logger zerolog.Logger
}

// OpenSQLite opens (creating if needed) the identity database at path.
func OpenSQLite(path string) (*SQLiteMapper, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Resolve runs read-then-insert in one transaction; a single connection
	// keeps those transactions serialized.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	m := &SQLiteMapper{
		db:     db,
		logger: log.With().Str("component", "identity").Logger(),
	}
	m.logger.Info().Str("path", path).Msg("Identity store opened")
	return m, nil
}

// Close closes the database.
func (m *SQLiteMapper) Close() error {
	return m.db.Close()
}

// Resolve returns the internal id for a channel identity, creating a new
// user the first time the identity is seen.
func (m *SQLiteMapper) Resolve(ctx context.Context, channel, nativeID string) (int64, error) {
	if channel == "" || nativeID == "" {
		return 0, ErrEmptyIdentity
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var userID int64
	err = tx.QueryRowContext(ctx,
		"SELECT user_id FROM channel_identities WHERE channel = ? AND native_id = ?",
		channel, nativeID,
	).Scan(&userID)
	switch {
	case err == nil:
		return userID, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("lookup identity: %w", err)
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, "INSERT INTO users (created_at) VALUES (?)", now)
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	if userID, err = res.LastInsertId(); err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO channel_identities (channel, native_id, user_id, created_at) VALUES (?, ?, ?, ?)",
		channel, nativeID, userID, now,
	); err != nil {
		return 0, fmt.Errorf("store identity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	m.logger.Info().Str("channel", channel).Int64("user_id", userID).Msg("New user identity")
	return userID, nil
}

// Link attaches another channel identity to an existing user so both
// resolve to the same session. Re-linking an identity moves it.
func (m *SQLiteMapper) Link(ctx context.Context, userID int64, channel, nativeID string) error {
	if channel == "" || nativeID == "" {
		return ErrEmptyIdentity
	}

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO channel_identities (channel, native_id, user_id, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(channel, native_id) DO UPDATE SET user_id = excluded.user_id`,
		channel, nativeID, userID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("link identity: %w", err)
	}
	return nil
}

// NativeID returns the most recently linked native id of userID on channel.
func (m *SQLiteMapper) NativeID(ctx context.Context, userID int64, channel string) (string, bool, error) {
	var native string
	err := m.db.QueryRowContext(ctx,
		"SELECT native_id FROM channel_identities WHERE user_id = ? AND channel = ? ORDER BY created_at DESC LIMIT 1",
		userID, channel,
	).Scan(&native)
	switch {
	case err == nil:
		return native, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	default:
		return "", false, fmt.Errorf("lookup native id: %w", err)
	}
}
