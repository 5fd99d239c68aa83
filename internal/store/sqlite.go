package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/Tyrowin/chatwire/internal/protocol"
)

// SQLite implements CredentialStore and HistoryStore on a single SQLite
// database file. WAL mode keeps concurrent verify calls from blocking
// history appends.
type SQLite struct {
	db        *sql.DB
	closeOnce sync.Once

	registerStmt *sql.Stmt
	verifyStmt   *sql.Stmt
	appendStmt   *sql.Stmt
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	username TEXT PRIMARY KEY,
	password TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	message_id INTEGER PRIMARY KEY,
	sender     TEXT NOT NULL,
	kind       TEXT NOT NULL,
	body       TEXT,
	filename   TEXT,
	media_type TEXT,
	payload    BLOB,
	created_at TEXT NOT NULL
);
`

// OpenSQLite opens (creating if necessary) the database at path and prepares
// the statements used on the hot paths.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	// modernc.org/sqlite serializes writes per connection; a single
	// connection avoids SQLITE_BUSY churn under concurrent appends.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &SQLite{db: db}
	if s.registerStmt, err = db.Prepare(
		"INSERT INTO users (username, password) VALUES (?, ?)"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if s.verifyStmt, err = db.Prepare(
		"SELECT password FROM users WHERE username = ?"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if s.appendStmt, err = db.Prepare(
		`INSERT INTO messages (sender, kind, body, filename, media_type, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Register hashes the password with bcrypt and inserts the credential.
func (s *SQLite) Register(ctx context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if _, err := s.registerStmt.ExecContext(ctx, username, string(hash)); err != nil {
		if isUniqueViolation(err) {
			return ErrUserExists
		}
		return fmt.Errorf("register %s: %w", username, err)
	}
	return nil
}

// Verify compares the password against the stored bcrypt hash.
func (s *SQLite) Verify(ctx context.Context, username, password string) (bool, error) {
	var hash string
	err := s.verifyStmt.QueryRowContext(ctx, username).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrUnknownUser
	}
	if err != nil {
		return false, fmt.Errorf("look up %s: %w", username, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return false, nil
	}
	return true, nil
}

// Append stores one accepted chat message. Only deliverable kinds carry
// payload columns; everything else stores NULLs.
func (s *SQLite) Append(ctx context.Context, m *protocol.Message) error {
	var (
		body      sql.NullString
		filename  sql.NullString
		mediaType sql.NullString
		payload   []byte
	)
	switch m.Kind {
	case protocol.KindText, protocol.KindSystem:
		body = sql.NullString{String: m.Body, Valid: true}
	case protocol.KindFile:
		filename = sql.NullString{String: m.File.Filename, Valid: true}
		mediaType = sql.NullString{String: m.File.MediaType, Valid: true}
		payload = m.File.Data
	}
	_, err := s.appendStmt.ExecContext(ctx,
		m.Sender, m.Kind.String(), body, filename, mediaType, payload,
		time.UnixMilli(m.Timestamp).UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append message from %s: %w", m.Sender, err)
	}
	return nil
}

// Close releases the prepared statements and the database handle.
func (s *SQLite) Close() error {
	var err error
	s.closeOnce.Do(func() {
		for _, stmt := range []*sql.Stmt{s.registerStmt, s.verifyStmt, s.appendStmt} {
			if stmt != nil {
				_ = stmt.Close()
			}
		}
		err = s.db.Close()
	})
	return err
}

// isUniqueViolation matches the driver's primary-key conflict error without
// depending on its error types.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint violation")
}
