package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeOrigins(t *testing.T) {
	allowed, allowAll := normalizeOrigins([]string{
		"HTTPS://Chat.Example.Com", " http://localhost:8080 ", "", "not a url",
	})
	assert.False(t, allowAll)
	assert.Contains(t, allowed, "https://chat.example.com")
	assert.Contains(t, allowed, "http://localhost:8080")
	assert.Len(t, allowed, 2)
}

func TestNormalizeOriginsWildcard(t *testing.T) {
	_, allowAll := normalizeOrigins([]string{"*"})
	assert.True(t, allowAll)
}

func TestNormalizeOrigin(t *testing.T) {
	got, ok := normalizeOrigin("HTTP://LocalHost:9000")
	assert.True(t, ok)
	assert.Equal(t, "http://localhost:9000", got)

	_, ok = normalizeOrigin("missing-scheme.example.com")
	assert.False(t, ok)
}
