package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandlerReflectsHubState(t *testing.T) {
	h := NewHub(NewConfig())
	router := NewRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "not ready before Run")

	go h.Run()
	require.Eventually(t, func() bool { return h.Ready() }, time.Second, 5*time.Millisecond)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())

	require.NoError(t, h.Shutdown(time.Second))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "not ready after shutdown")
}

func TestInfoHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	InfoHandler(rec, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Parlor")
}

func TestServeWSRejectsDisallowedOrigin(t *testing.T) {
	h := newTestHub(t, func(cfg *Config) {
		cfg.AllowedOrigins = []string{"http://allowed.example"}
	})
	srv := httptest.NewServer(NewRouter(h))
	defer srv.Close()

	req, err := http.NewRequest("GET", srv.URL+"/ws", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
