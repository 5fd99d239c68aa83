package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/chatwire/internal/protocol"
)

type recordingCloser struct{ calls int }

func (c *recordingCloser) Close() error {
	c.calls++
	return nil
}

func TestSessionEnqueueUntilFull(t *testing.T) {
	sess := newSession("alice", nil, 2)
	m := &protocol.Message{Kind: protocol.KindText, Sender: "alice", Body: "hi"}

	assert.True(t, sess.enqueue(m))
	assert.True(t, sess.enqueue(m))
	assert.False(t, sess.enqueue(m), "third enqueue exceeds the queue bound")
}

func TestSessionEnqueueAfterClose(t *testing.T) {
	sess := newSession("alice", nil, 2)
	sess.close()

	assert.False(t, sess.enqueue(&protocol.Message{Kind: protocol.KindText, Sender: "alice"}))
	assert.True(t, sess.closed())
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	closer := &recordingCloser{}
	sess := newSession("alice", closer, 2)

	sess.close()
	sess.close()
	require.Equal(t, 1, closer.calls, "underlying connection closes once")
}
