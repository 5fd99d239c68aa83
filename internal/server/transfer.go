// Package server transfer reassembly: accumulates chunked file/image
// payloads arriving inline on one connection into a complete payload.
package server

import (
	"errors"
	"fmt"

	"github.com/Tyrowin/chatwire/internal/protocol"
)

// Transfer error taxonomy. A transfer error aborts only the affected
// transfer; the connection and any other in-flight activity continue.
var (
	ErrTransferTooLarge   = errors.New("transfer: declared size exceeds maximum")
	ErrTooManyTransfers   = errors.New("transfer: too many open transfers")
	ErrTransferExists     = errors.New("transfer: id already in progress")
	ErrTransferUnknown    = errors.New("transfer: no such transfer")
	ErrChunkOutOfOrder    = errors.New("transfer: chunk offset out of order")
	ErrChunkOverflow      = errors.New("transfer: chunk exceeds declared size")
	ErrTransferIncomplete = errors.New("transfer: received bytes short of declared size")
	ErrChecksumMismatch   = errors.New("transfer: checksum mismatch")
)

// transferContext holds the accumulation state for one in-flight transfer.
// The invariant len(buf) <= size holds at all times; completion requires
// len(buf) == size plus a matching checksum.
type transferContext struct {
	id        string
	size      uint64
	filename  string
	mediaType string
	buf       []byte
}

// maxOpenTransfers caps the in-flight transfers of one connection. A legit
// client interleaves at most a handful; past that the declarations alone
// are a memory reservation attack.
const maxOpenTransfers = 8

// initialTransferReserve is the largest buffer capacity a declaration may
// reserve up front. Larger transfers grow as chunks actually arrive, so a
// declared size costs nothing until its bytes are delivered.
const initialTransferReserve = 64 << 10

// Reassembler tracks the in-flight transfers of a single connection, keyed
// by transfer id. It is driven only by that connection's read loop, which
// processes frames strictly in arrival order, so chunk ordering needs no
// extra sequencing and no locking.
type Reassembler struct {
	maxSize   uint64
	transfers map[string]*transferContext
}

// NewReassembler returns a reassembler that rejects transfers declared
// larger than maxSize and holds at most maxOpenTransfers at once.
func NewReassembler(maxSize uint64) *Reassembler {
	return &Reassembler{
		maxSize:   maxSize,
		transfers: make(map[string]*transferContext),
	}
}

// Start opens a transfer from its declaration. The declared size and the
// open-transfer count are checked before any buffer is allocated.
func (r *Reassembler) Start(p *protocol.FileStartPayload) error {
	if p.Size > r.maxSize {
		return fmt.Errorf("%w: declared %d, limit %d", ErrTransferTooLarge, p.Size, r.maxSize)
	}
	if _, ok := r.transfers[p.TransferID]; ok {
		// A duplicate id is a faulty sender; drop the old accumulation too.
		delete(r.transfers, p.TransferID)
		return fmt.Errorf("%w: %s", ErrTransferExists, p.TransferID)
	}
	if len(r.transfers) >= maxOpenTransfers {
		return fmt.Errorf("%w: %d already open", ErrTooManyTransfers, len(r.transfers))
	}
	r.transfers[p.TransferID] = &transferContext{
		id:        p.TransferID,
		size:      p.Size,
		filename:  p.Filename,
		mediaType: p.MediaType,
		buf:       make([]byte, 0, min(p.Size, initialTransferReserve)),
	}
	return nil
}

// Chunk appends bytes to an open transfer. The offset must be exactly the
// next expected byte; gaps, overlaps, and over-long chunks abort the
// transfer.
func (r *Reassembler) Chunk(p *protocol.FileChunkPayload) error {
	ctx, ok := r.transfers[p.TransferID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTransferUnknown, p.TransferID)
	}
	if p.Offset != uint64(len(ctx.buf)) {
		r.Abort(p.TransferID)
		return fmt.Errorf("%w: got offset %d, expected %d", ErrChunkOutOfOrder, p.Offset, len(ctx.buf))
	}
	if uint64(len(ctx.buf))+uint64(len(p.Data)) > ctx.size {
		r.Abort(p.TransferID)
		return fmt.Errorf("%w: %d bytes past declared size %d", ErrChunkOverflow,
			uint64(len(ctx.buf))+uint64(len(p.Data))-ctx.size, ctx.size)
	}
	ctx.buf = append(ctx.buf, p.Data...)
	return nil
}

// End closes a transfer. Reassembly succeeds exactly when the received
// bytes equal the declared size and the checksum over the accumulated
// buffer matches; anything else aborts with zero delivered bytes. The
// context is destroyed either way.
func (r *Reassembler) End(p *protocol.FileEndPayload) (*protocol.FilePayload, error) {
	ctx, ok := r.transfers[p.TransferID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTransferUnknown, p.TransferID)
	}
	delete(r.transfers, p.TransferID)

	if uint64(len(ctx.buf)) != ctx.size {
		return nil, fmt.Errorf("%w: got %d of %d bytes", ErrTransferIncomplete, len(ctx.buf), ctx.size)
	}
	if sum := protocol.Checksum(ctx.buf); sum != p.Checksum {
		return nil, fmt.Errorf("%w: computed %s, declared %s", ErrChecksumMismatch, sum, p.Checksum)
	}
	return &protocol.FilePayload{
		Filename:  ctx.filename,
		MediaType: ctx.mediaType,
		Data:      ctx.buf,
	}, nil
}

// Abort discards one transfer's accumulation state.
func (r *Reassembler) Abort(id string) {
	delete(r.transfers, id)
}

// Open returns the number of in-flight transfers. Contexts never outlive
// their connection: the connection driver drops the whole Reassembler on
// close.
func (r *Reassembler) Open() int {
	return len(r.transfers)
}

// IsTransferError reports whether err belongs to the transfer taxonomy.
func IsTransferError(err error) bool {
	return errors.Is(err, ErrTransferTooLarge) ||
		errors.Is(err, ErrTooManyTransfers) ||
		errors.Is(err, ErrTransferExists) ||
		errors.Is(err, ErrTransferUnknown) ||
		errors.Is(err, ErrChunkOutOfOrder) ||
		errors.Is(err, ErrChunkOverflow) ||
		errors.Is(err, ErrTransferIncomplete) ||
		errors.Is(err, ErrChecksumMismatch)
}
