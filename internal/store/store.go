// Package store provides the persistence backends consumed by the chat
// core: credential verification/registration and message history. The core
// treats both as oracles; schema and hashing are this package's concern.
package store

import (
	"context"
	"errors"

	"github.com/Tyrowin/chatwire/internal/protocol"
)

var (
	// ErrUserExists is returned when registering a username that is
	// already taken.
	ErrUserExists = errors.New("store: user already exists")

	// ErrUnknownUser is returned when verifying a username that was never
	// registered.
	ErrUnknownUser = errors.New("store: no such user")
)

// CredentialStore verifies and registers username/password pairs. Plaintext
// passwords never persist past the call.
type CredentialStore interface {
	// Register creates a new credential. Fails with ErrUserExists if the
	// username is taken.
	Register(ctx context.Context, username, password string) error

	// Verify reports whether the password matches the stored credential.
	// An unknown username fails with ErrUnknownUser; a wrong password
	// returns (false, nil).
	Verify(ctx context.Context, username, password string) (bool, error)
}

// HistoryStore appends accepted chat messages to durable history.
type HistoryStore interface {
	Append(ctx context.Context, m *protocol.Message) error
}
