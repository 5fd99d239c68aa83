// Package server origin checks: normalizes and validates HTTP origins for
// WebSocket upgrades against the configured allow-list.
package server

import (
	"net/http"
	"net/url"
	"strings"
)

func normalizeOrigins(origins []string) (map[string]struct{}, bool) {
	allowed := make(map[string]struct{}, len(origins))
	allowAll := false

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			allowAll = true
			continue
		}
		if normalized, ok := normalizeOrigin(trimmed); ok {
			allowed[normalized] = struct{}{}
		}
	}
	return allowed, allowAll
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if s.allowAllOrigins {
		return true
	}
	originHeader := r.Header.Get("Origin")
	if originHeader == "" {
		return false
	}
	normalized, ok := normalizeOrigin(originHeader)
	if !ok {
		return false
	}
	if _, exists := s.allowedOrigins[normalized]; exists {
		return true
	}
	s.logger.Warn("blocked websocket upgrade from disallowed origin", "origin", originHeader)
	return false
}
