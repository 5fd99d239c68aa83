// Package client directive parsing: turns a line of user input into a chat
// send, a file/image transfer, or a quit.
package client

import (
	"path/filepath"
	"strings"
)

type commandKind int

const (
	cmdText commandKind = iota
	cmdFile
	cmdImage
	cmdQuit
)

type userCommand struct {
	kind commandKind
	arg  string
}

// parseCommand recognizes the dot directives; anything else is chat text.
// ".quit" with trailing arguments is deliberately treated as text so a
// sentence starting with it is not swallowed.
func parseCommand(line string) userCommand {
	directive, rest, _ := strings.Cut(line+" ", " ")
	rest = strings.TrimSpace(rest)
	switch {
	case directive == ".quit" && rest == "":
		return userCommand{kind: cmdQuit}
	case directive == ".file" && rest != "":
		return userCommand{kind: cmdFile, arg: rest}
	case directive == ".image" && rest != "":
		return userCommand{kind: cmdImage, arg: rest}
	default:
		return userCommand{kind: cmdText, arg: line}
	}
}

// sanitizeFilename reduces a peer-supplied filename to a safe basename,
// falling back when the result is unusable. Path separators from the peer
// never reach the filesystem.
func sanitizeFilename(name, fallback string) string {
	base := filepath.Base(filepath.Clean(strings.ReplaceAll(name, "\\", "/")))
	if base == "" || base == "." || base == ".." || base == string(filepath.Separator) {
		return fallback
	}
	return base
}
