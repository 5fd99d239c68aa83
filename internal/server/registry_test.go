package server

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAddGetRemove(t *testing.T) {
	reg := NewRegistry()
	sess := newSession("alice", nil, 4)

	reg.Add(sess)
	assert.Equal(t, 1, reg.Len())
	assert.Same(t, sess, reg.Get(sess.id))

	removed := reg.Remove(sess.id)
	require.Same(t, sess, removed)
	assert.Zero(t, reg.Len())
	assert.Nil(t, reg.Get(sess.id))
}

func TestRegistryRemoveTwiceReturnsNil(t *testing.T) {
	reg := NewRegistry()
	sess := newSession("alice", nil, 4)
	reg.Add(sess)

	require.NotNil(t, reg.Remove(sess.id))
	assert.Nil(t, reg.Remove(sess.id), "second remove must report already-gone")
}

func TestRegistryRemoveUnknown(t *testing.T) {
	reg := NewRegistry()
	assert.Nil(t, reg.Remove(uuid.New()))
}

func TestRegistryAllowsDuplicateUsernames(t *testing.T) {
	reg := NewRegistry()
	a := newSession("alice", nil, 4)
	b := newSession("alice", nil, 4)
	reg.Add(a)
	reg.Add(b)

	assert.Equal(t, 2, reg.Len())
	assert.NotEqual(t, a.id, b.id)
}

func TestRegistrySnapshotIsACopy(t *testing.T) {
	reg := NewRegistry()
	sess := newSession("alice", nil, 4)
	reg.Add(sess)

	snap := reg.Snapshot()
	require.Len(t, snap, 1)
	reg.Remove(sess.id)
	assert.Len(t, snap, 1, "snapshot must not track later removals")
}
