// Package server implements the chatwire relay core: the session registry,
// the broadcast hub, chunked transfer reassembly, the per-connection auth
// handshake and read/write loops, and the optional WebSocket gateway.
//
// The implementation is organized into specialized files for configuration,
// registry, hub, transfers, connection handling, and the gateway to keep
// the codebase maintainable and testable as the project grows.
package server
