package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/assetpipe/internal/config"
	"github.com/conneroisu/assetpipe/internal/logging"
)

type testServer struct {
	cfg  *config.Config
	hub  *Hub
	http *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := config.Default(t.TempDir())
	cfg.Server.Port = 0
	require.NoError(t, os.MkdirAll(cfg.OutputPath(""), 0o755))

	hub := NewHub(AllowedOrigins(cfg), logging.Discard())
	srv := New(cfg, hub, logging.Discard())
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = hub.Shutdown(ctx)
		ts.Close()
	})

	return &testServer{cfg: cfg, hub: hub, http: ts}
}

func (ts *testServer) writeOutput(t *testing.T, rel, content string) string {
	t.Helper()

	path := filepath.Join(ts.cfg.OutputPath(""), filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func (ts *testServer) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()

	resp, err := http.Get(ts.http.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, string(body)
}

func (ts *testServer) dial(t *testing.T, ctx context.Context) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })

	require.Eventually(t, func() bool { return ts.hub.Clients() > 0 },
		2*time.Second, 10*time.Millisecond)

	return conn
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) UpdateMessage {
	t.Helper()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg UpdateMessage
	require.NoError(t, json.Unmarshal(data, &msg))

	return msg
}

func TestServesOutputFiles(t *testing.T) {
	ts := newTestServer(t)
	ts.writeOutput(t, "style/main.css", "body{color:red}")

	resp, body := ts.get(t, "/style/main.css")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "body{color:red}", body)

	resp, _ = ts.get(t, "/missing.css")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTMLGetsReloadClientButDiskIsUntouched(t *testing.T) {
	ts := newTestServer(t)
	page := "<html><body><h1>Hi</h1></body></html>"
	path := ts.writeOutput(t, "index.html", page)

	for _, route := range []string{"/", "/index.html"} {
		resp, body := ts.get(t, route)
		assert.Equal(t, http.StatusOK, resp.StatusCode, route)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/html", route)
		assert.Equal(t,
			`<html><body><h1>Hi</h1><script src="/__assetpipe/reload.js"></script></body></html>`,
			body, route)
	}

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, page, string(onDisk))
}

func TestReloadScriptIsServed(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.get(t, ReloadScriptPath)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "javascript")
	assert.Contains(t, body, "/ws")
}

func TestHealthReportsClients(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ts.dial(t, ctx)

	resp, body := ts.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.EqualValues(t, 1, health["clients"])
	assert.NotEmpty(t, health["version"])
}

func TestReloadReachesEveryClient(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first := ts.dial(t, ctx)
	second := ts.dial(t, ctx)
	require.Eventually(t, func() bool { return ts.hub.Clients() == 2 },
		2*time.Second, 10*time.Millisecond)

	ts.hub.Reload(ctx)

	assert.Equal(t, MessageReload, readMessage(t, ctx, first).Type)
	assert.Equal(t, MessageReload, readMessage(t, ctx, second).Type)
}

func TestBuildFailedCarriesErrorText(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := ts.dial(t, ctx)
	ts.hub.BuildFailed(ctx, errors.New("styles: undefined variable $brand"))

	msg := readMessage(t, ctx, conn)
	assert.Equal(t, MessageBuildError, msg.Type)
	assert.Equal(t, "styles: undefined variable $brand", msg.Content)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestDisconnectedClientIsForgotten(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := ts.dial(t, ctx)
	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))

	assert.Eventually(t, func() bool { return ts.hub.Clients() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestOriginCheck(t *testing.T) {
	hub := NewHub([]string{"localhost:3000", "*.example.test"}, logging.Discard())
	t.Cleanup(func() { _ = hub.Shutdown(context.Background()) })

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"no origin", "", true},
		{"same host", "http://devbox:4000", true},
		{"listed origin", "http://localhost:3000", true},
		{"pattern origin", "https://app.example.test", true},
		{"other port", "http://localhost:9999", false},
		{"foreign site", "https://evil.test", false},
		{"bad scheme", "file://localhost:3000", false},
		{"garbage", "://", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "http://devbox:4000/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, hub.isAllowedOrigin(r))
		})
	}
}

func TestForeignOriginIsRejected(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/ws"
	_, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://evil.test"}},
	})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestShutdownClosesSessions(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := ts.dial(t, ctx)
	require.NoError(t, ts.hub.Shutdown(ctx))

	_, _, err := conn.Read(ctx)
	assert.Error(t, err)
	assert.Equal(t, 0, ts.hub.Clients())

	// Broadcasting after shutdown must not block
	ts.hub.Reload(ctx)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	cfg := config.Default(t.TempDir())
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.Open = false

	srv := New(cfg, NewHub(AllowedOrigins(cfg), logging.Discard()), logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool { return srv.Addr() != nil }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + srv.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunStopsHubWhenListenFails(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	cfg := config.Default(t.TempDir())
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = taken.Addr().(*net.TCPAddr).Port
	cfg.Server.Open = false

	hub := NewHub(AllowedOrigins(cfg), logging.Discard())
	err = New(cfg, hub, logging.Discard()).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listening on")

	select {
	case <-hub.done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub goroutine still running")
	}
}
