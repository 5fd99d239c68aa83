// Package client rendering: formats incoming traffic for the terminal and
// saves delivered files to disk.
package client

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/gabriel-vasile/mimetype"

	"github.com/Tyrowin/chatwire/internal/protocol"
)

type renderer struct {
	out         io.Writer
	downloadDir string

	senderStyle lipgloss.Style
	systemStyle lipgloss.Style
	errorStyle  lipgloss.Style
}

func newRenderer(out io.Writer, downloadDir string) *renderer {
	return &renderer{
		out:         out,
		downloadDir: downloadDir,
		senderStyle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		systemStyle: lipgloss.NewStyle().Faint(true).Italic(true),
		errorStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

// render prints one delivered message. Unknown kinds are impossible past
// the codec but get a line anyway rather than silence.
func (r *renderer) render(m *protocol.Message) {
	switch m.Kind {
	case protocol.KindText:
		fmt.Fprintf(r.out, "%s %s\n", r.senderStyle.Render("["+m.Sender+"]"), m.Body)
	case protocol.KindSystem:
		fmt.Fprintln(r.out, r.systemStyle.Render("* "+m.Body))
	case protocol.KindError:
		fmt.Fprintln(r.out, r.errorStyle.Render("! "+m.Body))
	case protocol.KindFile:
		r.renderFile(m)
	case protocol.KindAuthResult:
		// Late auth results carry nothing worth showing.
	default:
		fmt.Fprintln(r.out, r.systemStyle.Render("* received "+m.Kind.String()+" message"))
	}
}

func (r *renderer) notice(text string) {
	fmt.Fprintln(r.out, r.systemStyle.Render("* "+text))
}

func (r *renderer) renderFile(m *protocol.Message) {
	f := m.File
	kind, article, subdir := "file", "a", "files"
	if strings.HasPrefix(f.MediaType, "image/") {
		kind, article, subdir = "image", "an", "images"
	}
	fmt.Fprintf(r.out, "%s sent %s %s\n", r.senderStyle.Render("["+m.Sender+"]"), article, kind)

	path, err := r.saveFile(subdir, f)
	if err != nil {
		fmt.Fprintln(r.out, r.errorStyle.Render(fmt.Sprintf("! failed to save incoming %s: %v", kind, err)))
		return
	}
	fmt.Fprintf(r.out, "%s saved to %s\n", strings.ToUpper(kind[:1])+kind[1:], path)
}

// saveFile writes a delivered payload under the download directory. The
// peer-supplied name is reduced to a basename; when it is unusable a
// timestamped name with a sniffed extension takes its place.
func (r *renderer) saveFile(subdir string, f *protocol.FilePayload) (string, error) {
	dir := filepath.Join(r.downloadDir, subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	fallback := time.Now().Format("2006-01-02-15-04-05") + mimetype.Detect(f.Data).Extension()
	name := sanitizeFilename(f.Filename, fallback)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, f.Data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
