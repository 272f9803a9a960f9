// Package testhelpers provides shared utilities for integration tests:
// starting a fully wired server, dialing WebSocket clients, and exchanging
// protocol frames.
package testhelpers

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parlorchat/parlor/internal/server"
)

// Frame mirrors the wire envelope used by the server.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// TestServer bundles a running hub behind an httptest server.
type TestServer struct {
	Hub    *server.Hub
	URL    string
	WSURL  string
	Origin string
}

// StartServer boots a hub and HTTP server for an integration test and tears
// both down with the test. The test server's own URL is always an allowed
// origin.
func StartServer(t *testing.T, customize func(*server.Config)) *TestServer {
	t.Helper()

	cfg := server.NewConfig()
	if customize != nil {
		customize(&cfg)
	}

	// The allowed origin has to include the port httptest picked, so the
	// listener is created before the hub's origin policy.
	ts := httptest.NewUnstartedServer(nil)
	origin := "http://" + ts.Listener.Addr().String()
	cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)

	hub := server.NewHub(cfg)
	go hub.Run()
	ts.Config.Handler = server.NewRouter(hub)
	ts.Start()

	t.Cleanup(func() {
		ts.Close()
		_ = hub.Shutdown(5 * time.Second)
	})

	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("parse test server URL: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"

	return &TestServer{Hub: hub, URL: ts.URL, WSURL: u.String(), Origin: ts.URL}
}

// Dial opens a WebSocket connection using the test server's own URL as the
// Origin header.
func (ts *TestServer) Dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, err := DialWithOrigin(ts.WSURL, ts.Origin)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// DialWithOrigin opens a WebSocket connection with an explicit Origin header.
// An empty origin omits the header.
func DialWithOrigin(wsURL, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, resp, err := dialer.Dial(wsURL, header)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// SendEvent writes one protocol frame.
func SendEvent(t *testing.T, conn *websocket.Conn, event string, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal %s payload: %v", event, err)
	}
	if err := conn.WriteJSON(Frame{Event: event, Data: data}); err != nil {
		t.Fatalf("write %s frame: %v", event, err)
	}
}

// ReadFrame reads the next frame, failing the test on timeout.
func ReadFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) Frame {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	var f Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

// WaitForEvent reads frames until one with the given event name arrives,
// discarding others. This keeps tests robust against interleaved presence
// and typing traffic.
func WaitForEvent(t *testing.T, conn *websocket.Conn, event string, timeout time.Duration) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := conn.SetReadDeadline(deadline); err != nil {
			t.Fatalf("set read deadline: %v", err)
		}
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("read frame while waiting for %q: %v", event, err)
		}
		if f.Event == event {
			return f.Data
		}
	}
	t.Fatalf("timed out waiting for %q", event)
	return nil
}

// ExpectNoFrame asserts that no frame arrives within the window.
func ExpectNoFrame(t *testing.T, conn *websocket.Conn, window time.Duration) {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(window)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no frame, got: %s", raw)
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	t.Fatalf("unexpected error while waiting for absence of frames: %v", err)
}

// Join authenticates the connection and consumes the three join frames the
// server replies with: messageHistory, the system announcement, and userList.
func Join(t *testing.T, conn *websocket.Conn, username string) {
	t.Helper()
	SendEvent(t, conn, "join", map[string]string{"username": username})
	WaitForEvent(t, conn, "messageHistory", 2*time.Second)
	WaitForEvent(t, conn, "message", 2*time.Second)
	WaitForEvent(t, conn, "userList", 2*time.Second)
}

// CloseGracefully sends a close frame before tearing the connection down.
func CloseGracefully(conn *websocket.Conn) {
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()
}
