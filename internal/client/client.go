// Package client implements the chatwire terminal client: connect,
// authenticate, then concurrently send user input and render whatever the
// relay delivers.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/Tyrowin/chatwire/internal/protocol"
)

// ErrLoginFailed is returned by Dial when the server refuses the
// credentials. There is no in-connection retry; reconnect to try again.
var ErrLoginFailed = errors.New("client: login failed")

// Config describes a client session.
type Config struct {
	// Addr is the relay's TCP address.
	Addr string

	Username string
	Password string

	// MaxFrameSize bounds inbound frames; it should match the server's
	// limit.
	MaxFrameSize uint32

	// ChunkSize is the slice size for outgoing file transfers.
	ChunkSize int

	// DownloadDir is where incoming files and images are saved; files go
	// to DownloadDir/files, images to DownloadDir/images.
	DownloadDir string

	// Input is the command source, stdin by default.
	Input io.Reader

	// Output receives rendered incoming traffic, stdout by default.
	Output io.Writer

	// EncodeImage converts arbitrary image bytes to a compressed format
	// for ".image" sends. The pixel-level conversion is an external
	// collaborator; the default hook passes already-compressed images
	// through and rejects everything else.
	EncodeImage ImageEncoder

	Logger *slog.Logger
}

const defaultChunkSize = 256 << 10

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:11111"
	}
	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = protocol.DefaultMaxFrameSize
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.DownloadDir == "" {
		c.DownloadDir = "."
	}
	if c.Input == nil {
		c.Input = os.Stdin
	}
	if c.Output == nil {
		c.Output = os.Stdout
	}
	if c.EncodeImage == nil {
		c.EncodeImage = PassthroughImageEncoder
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Client is one authenticated connection to the relay.
type Client struct {
	cfg      Config
	conn     net.Conn
	renderer *renderer
	logger   *slog.Logger

	// writeMu serializes frame writes; text sends and transfer chunks
	// both go through it.
	writeMu sync.Mutex

	closeOnce sync.Once
}

// Dial connects and authenticates. The first frame out is Auth and the
// first frame back must be AuthResult, mirroring the server's handshake.
func Dial(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()

	conn, err := net.Dial("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Addr, err)
	}

	login := &protocol.Message{
		Kind: protocol.KindAuth,
		Auth: &protocol.AuthPayload{Username: cfg.Username, Password: cfg.Password},
	}
	if err := protocol.WriteMessage(conn, login, cfg.MaxFrameSize); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send login: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	reply, err := protocol.ReadMessage(conn, cfg.MaxFrameSize)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("await login result: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	if reply.Kind != protocol.KindAuthResult {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: unexpected %s reply", ErrLoginFailed, reply.Kind)
	}
	if !reply.AuthResult.OK {
		_ = conn.Close()
		if reason := reply.AuthResult.Reason; reason != "" {
			return nil, fmt.Errorf("%w: %s", ErrLoginFailed, reason)
		}
		return nil, ErrLoginFailed
	}

	return &Client{
		cfg:      cfg,
		conn:     conn,
		renderer: newRenderer(cfg.Output, cfg.DownloadDir),
		logger:   cfg.Logger,
	}, nil
}

// Run drives the session: one goroutine renders incoming frames, another
// reads user input and sends. Neither blocks the other; an incoming render
// may interleave with local composition, which is accepted. Run returns
// when the user quits, input ends, the context is cancelled, or the
// connection breaks.
func (c *Client) Run(ctx context.Context) error {
	c.renderer.notice(fmt.Sprintf("connected as %s", c.cfg.Username))

	errCh := make(chan error, 2)
	go func() { errCh <- c.incomingLoop() }()
	go func() { errCh <- c.inputLoop() }()

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case err = <-errCh:
	}
	c.Close()
	return err
}

// Close tears the connection down, unblocking both loops.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

// incomingLoop renders every frame the relay delivers, as it arrives.
func (c *Client) incomingLoop() error {
	for {
		m, err := protocol.ReadMessage(c.conn, c.cfg.MaxFrameSize)
		if err != nil {
			if protocol.IsProtocolError(err) {
				c.renderer.notice("malformed message from server; disconnecting")
				return err
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				c.renderer.notice("connection closed")
				return nil
			}
			return fmt.Errorf("connection with server broken: %w", err)
		}
		c.renderer.render(m)
	}
}

// inputLoop reads directives from Input until quit or end of input.
func (c *Client) inputLoop() error {
	scanner := bufio.NewScanner(c.cfg.Input)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		cmd := parseCommand(scanner.Text())
		switch cmd.kind {
		case cmdQuit:
			c.renderer.notice("bye")
			return nil
		case cmdText:
			if cmd.arg == "" {
				continue
			}
			if err := c.sendText(cmd.arg); err != nil {
				return err
			}
		case cmdFile:
			if err := c.sendFile(cmd.arg); err != nil {
				// A bad path or unreadable file is the user's problem,
				// not the connection's.
				c.renderer.notice(fmt.Sprintf("file send failed: %v", err))
			}
		case cmdImage:
			if err := c.sendImage(cmd.arg); err != nil {
				c.renderer.notice(fmt.Sprintf("image send failed: %v", err))
			}
		}
	}
	return scanner.Err()
}

func (c *Client) writeMessage(m *protocol.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return protocol.WriteMessage(c.conn, m, c.cfg.MaxFrameSize)
}

func (c *Client) sendText(body string) error {
	return c.writeMessage(&protocol.Message{
		Kind:   protocol.KindText,
		Sender: c.cfg.Username,
		Body:   body,
	})
}
