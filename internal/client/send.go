// Package client outgoing transfers: chunked file and image sends over the
// chat connection.
package client

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/Tyrowin/chatwire/internal/protocol"
)

// ImageEncoder converts raw image bytes into a compressed payload and its
// media type. Pixel-level conversion is outside the chat core; this is its
// seam.
type ImageEncoder func(data []byte, detectedType string) ([]byte, string, error)

// ErrNotAnImage is returned by the default encoder for data that is not an
// already-compressed image.
var ErrNotAnImage = errors.New("client: not a supported image format")

// PassthroughImageEncoder accepts data that already carries an image media
// type and rejects everything else.
func PassthroughImageEncoder(data []byte, detectedType string) ([]byte, string, error) {
	if strings.HasPrefix(detectedType, "image/") {
		return data, detectedType, nil
	}
	return nil, "", fmt.Errorf("%w: %s", ErrNotAnImage, detectedType)
}

// sendFile streams a file to the relay as a chunked transfer.
func (c *Client) sendFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	mediaType := mimetype.Detect(data).String()
	name := sanitizeFilename(path, "unknown.bin")
	if err := c.sendChunked(name, mediaType, data); err != nil {
		return err
	}
	c.renderer.notice(fmt.Sprintf("file %s sent (%d bytes)", name, len(data)))
	return nil
}

// sendImage sends a file as an image: the payload must be (or be encodable
// to) a compressed image format.
func (c *Client) sendImage(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	detected := mimetype.Detect(data).String()
	encoded, mediaType, err := c.cfg.EncodeImage(data, detected)
	if err != nil {
		return err
	}
	name := sanitizeFilename(path, "image.bin")
	if err := c.sendChunked(name, mediaType, encoded); err != nil {
		return err
	}
	c.renderer.notice(fmt.Sprintf("image %s sent (%d bytes)", name, len(encoded)))
	return nil
}

// sendChunked emits the FileStart/FileChunk/FileEnd sequence for one
// payload. Offsets are strictly sequential; the server rejects anything
// else.
func (c *Client) sendChunked(filename, mediaType string, data []byte) error {
	transferID := uuid.NewString()

	start := &protocol.Message{
		Kind:   protocol.KindFileStart,
		Sender: c.cfg.Username,
		FileStart: &protocol.FileStartPayload{
			TransferID: transferID,
			Size:       uint64(len(data)),
			Filename:   filename,
			MediaType:  mediaType,
		},
	}
	if err := c.writeMessage(start); err != nil {
		return err
	}

	for offset := 0; offset < len(data); offset += c.cfg.ChunkSize {
		end := offset + c.cfg.ChunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := &protocol.Message{
			Kind:   protocol.KindFileChunk,
			Sender: c.cfg.Username,
			FileChunk: &protocol.FileChunkPayload{
				TransferID: transferID,
				Offset:     uint64(offset),
				Data:       data[offset:end],
			},
		}
		if err := c.writeMessage(chunk); err != nil {
			return err
		}
	}

	return c.writeMessage(&protocol.Message{
		Kind:   protocol.KindFileEnd,
		Sender: c.cfg.Username,
		FileEnd: &protocol.FileEndPayload{
			TransferID: transferID,
			Checksum:   protocol.Checksum(data),
		},
	})
}
