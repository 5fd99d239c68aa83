package store

import (
	"context"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/Tyrowin/chatwire/internal/protocol"
)

// Memory is a map-backed CredentialStore and HistoryStore. It exists for
// tests and for running a throwaway server without a database file; nothing
// survives the process.
type Memory struct {
	mu       sync.RWMutex
	users    map[string][]byte
	messages []*protocol.Message
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{users: make(map[string][]byte)}
}

// Register hashes and stores the credential in memory.
func (m *Memory) Register(_ context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[username]; ok {
		return ErrUserExists
	}
	m.users[username] = hash
	return nil
}

// Verify compares the password against the stored hash.
func (m *Memory) Verify(_ context.Context, username, password string) (bool, error) {
	m.mu.RLock()
	hash, ok := m.users[username]
	m.mu.RUnlock()
	if !ok {
		return false, ErrUnknownUser
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil, nil
}

// Append records the message in order of acceptance.
func (m *Memory) Append(_ context.Context, msg *protocol.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

// Messages returns a copy of everything appended so far.
func (m *Memory) Messages() []*protocol.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*protocol.Message, len(m.messages))
	copy(out, m.messages)
	return out
}
