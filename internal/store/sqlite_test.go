package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/chatwire/internal/protocol"
)

func openTestDB(t *testing.T) *SQLite {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRegisterAndVerify(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Register(ctx, "alice", "wonderland"))

	ok, err := db.Verify(ctx, "alice", "wonderland")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.Verify(ctx, "alice", "not-it")
	require.NoError(t, err, "a wrong password is a clean rejection, not an error")
	assert.False(t, ok)
}

func TestRegisterDuplicateUser(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Register(ctx, "alice", "wonderland"))
	err := db.Register(ctx, "alice", "other")
	require.ErrorIs(t, err, ErrUserExists)
}

func TestVerifyUnknownUser(t *testing.T) {
	db := openTestDB(t)

	ok, err := db.Verify(context.Background(), "nobody", "whatever")
	require.ErrorIs(t, err, ErrUnknownUser)
	assert.False(t, ok)
}

func TestPasswordsAreHashed(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Register(ctx, "alice", "wonderland"))

	var stored string
	require.NoError(t, db.verifyStmt.QueryRowContext(ctx, "alice").Scan(&stored))
	assert.NotEqual(t, "wonderland", stored)
	assert.Contains(t, stored, "$2", "bcrypt hashes carry a $2 prefix")
}

func TestAppendTextAndFile(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Append(ctx, &protocol.Message{
		Kind: protocol.KindText, Sender: "alice", Timestamp: protocol.Now(), Body: "hi",
	}))
	require.NoError(t, db.Append(ctx, &protocol.Message{
		Kind: protocol.KindFile, Sender: "bob", Timestamp: protocol.Now(),
		File: &protocol.FilePayload{
			Filename: "cat.png", MediaType: "image/png", Data: []byte{1, 2, 3},
		},
	}))

	rows, err := db.db.QueryContext(ctx,
		"SELECT sender, kind, body, filename FROM messages ORDER BY message_id")
	require.NoError(t, err)
	defer rows.Close()

	type row struct {
		sender, kind   string
		body, filename *string
	}
	var got []row
	for rows.Next() {
		var r row
		require.NoError(t, rows.Scan(&r.sender, &r.kind, &r.body, &r.filename))
		got = append(got, r)
	}
	require.NoError(t, rows.Err())
	require.Len(t, got, 2)

	assert.Equal(t, "alice", got[0].sender)
	assert.Equal(t, "text", got[0].kind)
	require.NotNil(t, got[0].body)
	assert.Equal(t, "hi", *got[0].body)
	assert.Nil(t, got[0].filename)

	assert.Equal(t, "bob", got[1].sender)
	assert.Equal(t, "file", got[1].kind)
	assert.Nil(t, got[1].body)
	require.NotNil(t, got[1].filename)
	assert.Equal(t, "cat.png", *got[1].filename)
}

func TestMemoryStore(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Register(ctx, "alice", "wonderland"))
	require.ErrorIs(t, m.Register(ctx, "alice", "again"), ErrUserExists)

	ok, err := m.Verify(ctx, "alice", "wonderland")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = m.Verify(ctx, "alice", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = m.Verify(ctx, "nobody", "x")
	require.ErrorIs(t, err, ErrUnknownUser)

	require.NoError(t, m.Append(ctx, &protocol.Message{Kind: protocol.KindText, Sender: "alice", Body: "hi"}))
	msgs := m.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Body)
}
