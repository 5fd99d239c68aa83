package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// DefaultMaxFrameSize bounds a single frame when no explicit limit is
// configured. It must stay above the maximum transfer size plus envelope
// overhead so a reassembled File message always fits in one frame.
const DefaultMaxFrameSize = 32 << 20

// frameHeaderLen is the size of the big-endian length prefix.
const frameHeaderLen = 4

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		MaxArrayElements: 1 << 16,
		MaxMapPairs:      1 << 16,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Encode serializes a message into a complete frame: length prefix followed
// by the CBOR payload. It fails with ErrFrameTooLarge if the encoded payload
// would exceed maxFrame.
func Encode(m *Message, maxFrame uint32) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	payload, err := encMode.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if uint64(len(payload)) > uint64(maxFrame) {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrFrameTooLarge, len(payload), maxFrame)
	}
	frame := make([]byte, frameHeaderLen+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[frameHeaderLen:], payload)
	return frame, nil
}

// Decode parses a frame payload (without the length prefix) into a Message.
func Decode(payload []byte) (*Message, error) {
	var m Message
	if err := decMode.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// WriteMessage encodes m and writes the full frame to w.
func WriteMessage(w io.Writer, m *Message, maxFrame uint32) error {
	frame, err := Encode(m, maxFrame)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// ReadMessage reads exactly one frame from r and decodes it. The length
// prefix is validated against maxFrame before any payload bytes are read, so
// an oversized declaration never triggers a large allocation. A short read
// surfaces as an I/O error, never as a partially decoded message.
func ReadMessage(r io.Reader, maxFrame uint32) (*Message, error) {
	var header [frameHeaderLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length == 0 {
		return nil, ErrEmptyFrame
	}
	if length > maxFrame {
		return nil, fmt.Errorf("%w: declared %d bytes, limit %d", ErrFrameTooLarge, length, maxFrame)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return Decode(payload)
}
