// Package protocol defines the chatwire wire format: a tagged Message union
// encoded as CBOR inside 4-byte big-endian length-prefixed frames.
package protocol

import (
	"fmt"
	"time"
)

// Now returns the current UTC time in the wire timestamp representation.
func Now() int64 {
	return time.Now().UTC().UnixMilli()
}

// Kind identifies the payload shape of a Message. The set of kinds is closed;
// decoders reject anything outside it.
type Kind uint8

const (
	// KindAuth is the client's login request and must be the first message
	// on every connection.
	KindAuth Kind = iota + 1
	// KindAuthResult is the server's reply to KindAuth.
	KindAuthResult
	// KindText is a plain chat message.
	KindText
	// KindFile is a complete file or image payload, produced by the server
	// after reassembling a chunked transfer.
	KindFile
	// KindFileStart opens a chunked transfer.
	KindFileStart
	// KindFileChunk carries one slice of an open transfer.
	KindFileChunk
	// KindFileEnd closes a transfer and carries its checksum.
	KindFileEnd
	// KindSystem is a server-originated notice (joins, departures).
	KindSystem
	// KindError reports a server-side failure to one peer.
	KindError
)

// String returns the lowercase name of the kind for logs and storage.
func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindAuthResult:
		return "auth_result"
	case KindText:
		return "text"
	case KindFile:
		return "file"
	case KindFileStart:
		return "file_start"
	case KindFileChunk:
		return "file_chunk"
	case KindFileEnd:
		return "file_end"
	case KindSystem:
		return "system"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Message is the single unit exchanged on the wire. Kind selects which
// payload field is populated; all others stay nil. Sender and Timestamp are
// assigned by the server when a message is accepted — inbound values are
// never trusted except for the Auth kind, which has no sender yet.
// Timestamp is UTC milliseconds since the Unix epoch.
type Message struct {
	Kind       Kind               `cbor:"1,keyasint"`
	Sender     string             `cbor:"2,keyasint,omitempty"`
	Timestamp  int64              `cbor:"3,keyasint,omitempty"`
	Body       string             `cbor:"4,keyasint,omitempty"`
	Auth       *AuthPayload       `cbor:"5,keyasint,omitempty"`
	AuthResult *AuthResultPayload `cbor:"6,keyasint,omitempty"`
	File       *FilePayload       `cbor:"7,keyasint,omitempty"`
	FileStart  *FileStartPayload  `cbor:"8,keyasint,omitempty"`
	FileChunk  *FileChunkPayload  `cbor:"9,keyasint,omitempty"`
	FileEnd    *FileEndPayload    `cbor:"10,keyasint,omitempty"`
}

// AuthPayload carries login credentials. The password never leaves the
// handshake path.
type AuthPayload struct {
	Username string `cbor:"1,keyasint"`
	Password string `cbor:"2,keyasint"`
}

// AuthResultPayload is the server's verdict on an Auth message.
type AuthResultPayload struct {
	OK     bool   `cbor:"1,keyasint"`
	Reason string `cbor:"2,keyasint,omitempty"`
}

// FilePayload is a fully reassembled file or image as delivered to
// recipients.
type FilePayload struct {
	Filename  string `cbor:"1,keyasint"`
	MediaType string `cbor:"2,keyasint"`
	Data      []byte `cbor:"3,keyasint"`
}

// FileStartPayload declares a new chunked transfer.
type FileStartPayload struct {
	TransferID string `cbor:"1,keyasint"`
	Size       uint64 `cbor:"2,keyasint"`
	Filename   string `cbor:"3,keyasint"`
	MediaType  string `cbor:"4,keyasint"`
}

// FileChunkPayload carries bytes at a given offset of an open transfer.
// Offsets must arrive strictly in order with no gaps or overlap.
type FileChunkPayload struct {
	TransferID string `cbor:"1,keyasint"`
	Offset     uint64 `cbor:"2,keyasint"`
	Data       []byte `cbor:"3,keyasint"`
}

// FileEndPayload closes a transfer. Checksum is the hex-encoded xxhash64 of
// the complete payload.
type FileEndPayload struct {
	TransferID string `cbor:"1,keyasint"`
	Checksum   string `cbor:"2,keyasint"`
}

// Validate checks that the message declares a known kind and carries the
// payload that kind requires.
func (m *Message) Validate() error {
	switch m.Kind {
	case KindAuth:
		if m.Auth == nil {
			return fmt.Errorf("%w: auth message without credentials", ErrMalformedMessage)
		}
	case KindAuthResult:
		if m.AuthResult == nil {
			return fmt.Errorf("%w: auth result without verdict", ErrMalformedMessage)
		}
	case KindText, KindSystem, KindError:
		// Body may legitimately be empty.
	case KindFile:
		if m.File == nil {
			return fmt.Errorf("%w: file message without payload", ErrMalformedMessage)
		}
	case KindFileStart:
		if m.FileStart == nil {
			return fmt.Errorf("%w: file start without transfer declaration", ErrMalformedMessage)
		}
	case KindFileChunk:
		if m.FileChunk == nil {
			return fmt.Errorf("%w: file chunk without data", ErrMalformedMessage)
		}
	case KindFileEnd:
		if m.FileEnd == nil {
			return fmt.Errorf("%w: file end without checksum", ErrMalformedMessage)
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnknownKind, uint8(m.Kind))
	}
	return nil
}
