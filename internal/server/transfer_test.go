package server

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/chatwire/internal/protocol"
)

func startPayload(id string, size uint64) *protocol.FileStartPayload {
	return &protocol.FileStartPayload{
		TransferID: id,
		Size:       size,
		Filename:   "notes.txt",
		MediaType:  "text/plain",
	}
}

func TestReassembleTwoChunks(t *testing.T) {
	r := NewReassembler(1 << 20)
	data := []byte("helloworld")

	require.NoError(t, r.Start(startPayload("t1", 10)))
	require.NoError(t, r.Chunk(&protocol.FileChunkPayload{TransferID: "t1", Offset: 0, Data: data[:5]}))
	require.NoError(t, r.Chunk(&protocol.FileChunkPayload{TransferID: "t1", Offset: 5, Data: data[5:]}))

	payload, err := r.End(&protocol.FileEndPayload{TransferID: "t1", Checksum: protocol.Checksum(data)})
	require.NoError(t, err)
	assert.Equal(t, data, payload.Data)
	assert.Equal(t, "notes.txt", payload.Filename)
	assert.Equal(t, "text/plain", payload.MediaType)
	assert.Zero(t, r.Open(), "context must be destroyed on completion")
}

func TestReassembleEmptyFile(t *testing.T) {
	r := NewReassembler(1 << 20)
	require.NoError(t, r.Start(startPayload("t1", 0)))

	payload, err := r.End(&protocol.FileEndPayload{TransferID: "t1", Checksum: protocol.Checksum(nil)})
	require.NoError(t, err)
	assert.Empty(t, payload.Data)
}

func TestRejectsOversizedDeclaration(t *testing.T) {
	r := NewReassembler(100)
	err := r.Start(startPayload("t1", 101))
	require.ErrorIs(t, err, ErrTransferTooLarge)
	assert.Zero(t, r.Open())
}

func TestRejectsOutOfOrderChunk(t *testing.T) {
	r := NewReassembler(1 << 20)
	require.NoError(t, r.Start(startPayload("t1", 10)))

	err := r.Chunk(&protocol.FileChunkPayload{TransferID: "t1", Offset: 5, Data: []byte("world")})
	require.ErrorIs(t, err, ErrChunkOutOfOrder)
	assert.Zero(t, r.Open(), "out-of-order chunk aborts the transfer")
}

func TestRejectsOverlappingChunk(t *testing.T) {
	r := NewReassembler(1 << 20)
	require.NoError(t, r.Start(startPayload("t1", 10)))
	require.NoError(t, r.Chunk(&protocol.FileChunkPayload{TransferID: "t1", Offset: 0, Data: []byte("hello")}))

	// Re-sending covered bytes is an overlap, not a retry.
	err := r.Chunk(&protocol.FileChunkPayload{TransferID: "t1", Offset: 3, Data: []byte("lox")})
	require.ErrorIs(t, err, ErrChunkOutOfOrder)
	assert.Zero(t, r.Open())
}

func TestRejectsChunkPastDeclaredSize(t *testing.T) {
	r := NewReassembler(1 << 20)
	require.NoError(t, r.Start(startPayload("t1", 4)))

	err := r.Chunk(&protocol.FileChunkPayload{TransferID: "t1", Offset: 0, Data: []byte("hello")})
	require.ErrorIs(t, err, ErrChunkOverflow)
	assert.Zero(t, r.Open())
}

func TestRejectsChecksumMismatch(t *testing.T) {
	r := NewReassembler(1 << 20)
	data := []byte("helloworld")
	require.NoError(t, r.Start(startPayload("t1", 10)))
	require.NoError(t, r.Chunk(&protocol.FileChunkPayload{TransferID: "t1", Offset: 0, Data: data}))

	_, err := r.End(&protocol.FileEndPayload{TransferID: "t1", Checksum: "deadbeef"})
	require.ErrorIs(t, err, ErrChecksumMismatch)
	assert.Zero(t, r.Open())
}

func TestRejectsIncompleteTransfer(t *testing.T) {
	r := NewReassembler(1 << 20)
	require.NoError(t, r.Start(startPayload("t1", 10)))
	require.NoError(t, r.Chunk(&protocol.FileChunkPayload{TransferID: "t1", Offset: 0, Data: []byte("hello")}))

	_, err := r.End(&protocol.FileEndPayload{TransferID: "t1", Checksum: protocol.Checksum([]byte("hello"))})
	require.ErrorIs(t, err, ErrTransferIncomplete)
}

func TestRejectsUnknownTransfer(t *testing.T) {
	r := NewReassembler(1 << 20)

	require.ErrorIs(t, r.Chunk(&protocol.FileChunkPayload{TransferID: "nope", Data: []byte("x")}), ErrTransferUnknown)
	_, err := r.End(&protocol.FileEndPayload{TransferID: "nope"})
	require.ErrorIs(t, err, ErrTransferUnknown)
}

func TestRejectsDuplicateTransferID(t *testing.T) {
	r := NewReassembler(1 << 20)
	require.NoError(t, r.Start(startPayload("t1", 10)))

	err := r.Start(startPayload("t1", 10))
	require.ErrorIs(t, err, ErrTransferExists)
	assert.Zero(t, r.Open(), "both accumulations are dropped")
}

func TestRejectsTooManyOpenTransfers(t *testing.T) {
	// Declarations alone must not let a peer reserve memory without bound:
	// past the cap, Start fails before anything is allocated.
	r := NewReassembler(16 << 20)
	for i := 0; i < maxOpenTransfers; i++ {
		require.NoError(t, r.Start(startPayload(fmt.Sprintf("t%d", i), 16<<20)))
	}

	err := r.Start(startPayload("one-too-many", 16<<20))
	require.ErrorIs(t, err, ErrTooManyTransfers)
	assert.Equal(t, maxOpenTransfers, r.Open(), "open transfers are untouched by the rejection")

	// Finishing one frees a slot.
	r.Abort("t0")
	require.NoError(t, r.Start(startPayload("t0-again", 16<<20)))
}

func TestReassemblesPastInitialReserve(t *testing.T) {
	// A transfer larger than the up-front buffer reservation still
	// accumulates correctly as the buffer grows chunk by chunk.
	r := NewReassembler(16 << 20)
	data := make([]byte, initialTransferReserve*3)
	for i := range data {
		data[i] = byte(i)
	}

	require.NoError(t, r.Start(startPayload("big", uint64(len(data)))))
	chunk := 50 << 10
	for off := 0; off < len(data); off += chunk {
		end := min(off+chunk, len(data))
		require.NoError(t, r.Chunk(&protocol.FileChunkPayload{
			TransferID: "big", Offset: uint64(off), Data: data[off:end],
		}))
	}

	payload, err := r.End(&protocol.FileEndPayload{TransferID: "big", Checksum: protocol.Checksum(data)})
	require.NoError(t, err)
	assert.Equal(t, data, payload.Data)
}

func TestInterleavedTransfers(t *testing.T) {
	// Two transfers on the same connection progress independently; a plain
	// abort of one leaves the other intact.
	r := NewReassembler(1 << 20)
	require.NoError(t, r.Start(startPayload("a", 3)))
	require.NoError(t, r.Start(startPayload("b", 3)))

	require.NoError(t, r.Chunk(&protocol.FileChunkPayload{TransferID: "a", Offset: 0, Data: []byte("aaa")}))
	require.NoError(t, r.Chunk(&protocol.FileChunkPayload{TransferID: "b", Offset: 0, Data: []byte("bbb")}))
	r.Abort("a")
	assert.Equal(t, 1, r.Open())

	payload, err := r.End(&protocol.FileEndPayload{TransferID: "b", Checksum: protocol.Checksum([]byte("bbb"))})
	require.NoError(t, err)
	assert.Equal(t, []byte("bbb"), payload.Data)
}

func TestIsTransferError(t *testing.T) {
	assert.True(t, IsTransferError(ErrChecksumMismatch))
	assert.True(t, IsTransferError(ErrTooManyTransfers))
	assert.False(t, IsTransferError(protocol.ErrFrameTooLarge))
}
