package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		name string
		line string
		want userCommand
	}{
		{"plain text", "hello there", userCommand{kind: cmdText, arg: "hello there"}},
		{"file", ".file /tmp/report.pdf", userCommand{kind: cmdFile, arg: "/tmp/report.pdf"}},
		{"image", ".image cat.png", userCommand{kind: cmdImage, arg: "cat.png"}},
		{"quit", ".quit", userCommand{kind: cmdQuit}},
		{"quit with trailing words is text", ".quit now please", userCommand{kind: cmdText, arg: ".quit now please"}},
		{"file without argument is text", ".file", userCommand{kind: cmdText, arg: ".file"}},
		{"image without argument is text", ".image", userCommand{kind: cmdText, arg: ".image"}},
		{"path with spaces", ".file my vacation photo.jpg", userCommand{kind: cmdFile, arg: "my vacation photo.jpg"}},
		{"empty line", "", userCommand{kind: cmdText, arg: ""}},
		{"unknown directive is text", ".frobnicate", userCommand{kind: cmdText, arg: ".frobnicate"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, parseCommand(tc.line))
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"plain name", "cat.png", "cat.png"},
		{"unix path", "a/b/c.txt", "c.txt"},
		{"windows path", `C:\Users\bob\doc.pdf`, "doc.pdf"},
		{"traversal", "../../etc/passwd", "passwd"},
		{"empty", "", "fallback.bin"},
		{"dot", ".", "fallback.bin"},
		{"dot dot", "..", "fallback.bin"},
		{"root", "/", "fallback.bin"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, sanitizeFilename(tc.in, "fallback.bin"))
		})
	}
}

func TestPassthroughImageEncoder(t *testing.T) {
	data := []byte{0x89, 0x50, 0x4e, 0x47}
	out, mediaType, err := PassthroughImageEncoder(data, "image/png")
	assert.NoError(t, err)
	assert.Equal(t, data, out)
	assert.Equal(t, "image/png", mediaType)

	_, _, err = PassthroughImageEncoder([]byte("plain text"), "text/plain; charset=utf-8")
	assert.ErrorIs(t, err, ErrNotAnImage)
}
