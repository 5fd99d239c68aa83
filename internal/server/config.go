// Package server configuration: runtime defaults, environment loading, and
// sanitization for the chatwire relay.
package server

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Tyrowin/chatwire/internal/protocol"
)

// RateLimitConfig defines the parameters for per-session message rate
// limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the relay configuration. A Config is constructed once at
// startup and passed into New; nothing reads it globally.
type Config struct {
	// Addr is the TCP listen address for the binary chat protocol.
	Addr string

	// HTTPAddr is the listen address for the WebSocket gateway, health
	// and metrics endpoints. Empty disables the HTTP listener.
	HTTPAddr string

	// AllowedOrigins restricts WebSocket upgrades by Origin header.
	// "*" allows any origin.
	AllowedOrigins []string

	// MaxFrameSize bounds a single wire frame. Oversized length prefixes
	// are rejected before allocation.
	MaxFrameSize uint32

	// MaxTransferSize bounds the declared size of a chunked file
	// transfer. Sanitization keeps it small enough that a reassembled
	// File message still fits in one frame.
	MaxTransferSize uint64

	// QueueSize is the capacity of each session's outbound queue. A
	// session whose queue overflows is disconnected rather than allowed
	// to stall fan-out.
	QueueSize int

	RateLimit RateLimitConfig

	// DatabasePath locates the SQLite credential/history database.
	DatabasePath string

	// ShutdownTimeout bounds how long Shutdown waits for connection
	// goroutines to drain.
	ShutdownTimeout time.Duration
}

// transferEnvelopeOverhead is headroom for the CBOR envelope around a
// reassembled File payload.
const transferEnvelopeOverhead = 4096

// NewConfig creates a Config populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

func defaultConfig() Config {
	return Config{
		Addr:            ":11111",
		HTTPAddr:        "",
		AllowedOrigins:  []string{"http://localhost:8080"},
		MaxFrameSize:    protocol.DefaultMaxFrameSize,
		MaxTransferSize: 16 << 20,
		QueueSize:       64,
		RateLimit: RateLimitConfig{
			Burst:          10,
			RefillInterval: time.Second,
		},
		DatabasePath:    "chatwire.db",
		ShutdownTimeout: 10 * time.Second,
	}
}

// NewConfigFromEnv creates a Config from CHATWIRE_* environment variables,
// falling back to defaults for anything unset.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if addr := os.Getenv("CHATWIRE_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if addr := os.Getenv("CHATWIRE_HTTP_ADDR"); addr != "" {
		cfg.HTTPAddr = addr
	}
	if origins := os.Getenv("CHATWIRE_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}
	if v := os.Getenv("CHATWIRE_MAX_FRAME_SIZE"); v != "" {
		if size, err := strconv.ParseUint(v, 10, 32); err == nil && size > 0 {
			cfg.MaxFrameSize = uint32(size)
		}
	}
	if v := os.Getenv("CHATWIRE_MAX_TRANSFER_SIZE"); v != "" {
		if size, err := strconv.ParseUint(v, 10, 64); err == nil && size > 0 {
			cfg.MaxTransferSize = size
		}
	}
	if v := os.Getenv("CHATWIRE_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.QueueSize = n
		}
	}
	if v := os.Getenv("CHATWIRE_RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimit.Burst = n
		}
	}
	if v := os.Getenv("CHATWIRE_RATE_LIMIT_REFILL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimit.RefillInterval = time.Duration(n) * time.Second
		}
	}
	if path := os.Getenv("CHATWIRE_DB_PATH"); path != "" {
		cfg.DatabasePath = path
	}

	return &cfg
}

// sanitized returns a copy with every field forced into a usable range.
func (c Config) sanitized() Config {
	if c.Addr == "" {
		c.Addr = ":11111"
	}
	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = protocol.DefaultMaxFrameSize
	}
	if c.MaxTransferSize == 0 {
		c.MaxTransferSize = 16 << 20
	}
	// A reassembled transfer is delivered as one frame; keep the cap
	// below the frame limit.
	if c.MaxTransferSize+transferEnvelopeOverhead > uint64(c.MaxFrameSize) {
		c.MaxTransferSize = uint64(c.MaxFrameSize) - transferEnvelopeOverhead
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 10
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	c.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	return c
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
