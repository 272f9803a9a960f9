package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginPolicyAllowsConfiguredOrigins(t *testing.T) {
	p := newOriginPolicy([]string{"http://localhost:8080", "https://chat.example.com"})

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "http://localhost:8080")
	assert.True(t, p.check(r))

	r.Header.Set("Origin", "HTTPS://CHAT.EXAMPLE.COM")
	assert.True(t, p.check(r), "origin matching is case-insensitive")

	r.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, p.check(r))
}

func TestOriginPolicyWildcard(t *testing.T) {
	p := newOriginPolicy([]string{"*"})

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "https://anywhere.example")
	assert.True(t, p.check(r))

	r.Header.Del("Origin")
	assert.True(t, p.check(r), "wildcard admits requests without an Origin header")
}

func TestOriginPolicyRejectsMissingOrMalformedOrigin(t *testing.T) {
	p := newOriginPolicy([]string{"http://localhost:8080"})

	r := httptest.NewRequest("GET", "/ws", nil)
	assert.False(t, p.check(r), "no Origin header")

	r.Header.Set("Origin", "not a url")
	assert.False(t, p.check(r))
}

func TestOriginPolicySkipsInvalidConfigEntries(t *testing.T) {
	p := newOriginPolicy([]string{"", "garbage", "http://ok.example"})

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "http://ok.example")
	assert.True(t, p.check(r))
	assert.Len(t, p.allowed, 1)
}
