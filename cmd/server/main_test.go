package main

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcarmo/go-dcl/internal/codec"
	"github.com/rcarmo/go-dcl/internal/config"
)

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Server.Host = "localhost"
	cfg.Server.Port = "8080"
	return cfg
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

// captureStdout runs fn and returns what it printed.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	os.Stdout = oldStdout
	_ = w.Close()
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}

func TestCreateServer(t *testing.T) {
	server, err := createServer(testConfig())

	require.NoError(t, err)
	require.NotNil(t, server)
	assert.Equal(t, "localhost:8080", server.Addr)
	assert.Equal(t, 30*time.Second, server.ReadTimeout)
	assert.Equal(t, 30*time.Second, server.WriteTimeout)
	assert.Equal(t, 120*time.Second, server.IdleTimeout)
}

func TestCreateServer_Routes(t *testing.T) {
	server, err := createServer(testConfig())
	require.NoError(t, err)

	ts := httptest.NewServer(server.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "DCL Preview")
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/decode", nil)
	require.NoError(t, err)
	defer conn.Close()

	block := make([]byte, codec.BlockSize)
	block[0] = 'L'
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, block))

	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, mt)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, codec.Width, img.Bounds().Dx())
}

func TestApplySecurityMiddleware(t *testing.T) {
	cfg := testConfig()
	cfg.Server.AllowedOrigins = []string{"https://example.com"}

	middleware := applySecurityMiddleware(okHandler(), cfg)
	require.NotNil(t, middleware)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "https://example.com")
	rr := httptest.NewRecorder()

	middleware.ServeHTTP(rr, req)

	assert.Equal(t, "https://example.com", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type", rr.Header().Get("Access-Control-Allow-Headers"))

	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", rr.Header().Get("Referrer-Policy"))
}

func TestApplySecurityMiddlewareNilConfig(t *testing.T) {
	middleware := applySecurityMiddleware(okHandler(), nil)
	require.NotNil(t, middleware)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Host = "example.com"
	rr := httptest.NewRecorder()

	middleware.ServeHTTP(rr, req)

	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "http://example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	middleware := securityHeadersMiddleware(okHandler())

	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()

	middleware.ServeHTTP(rr, req)

	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	csp := rr.Header().Get("Content-Security-Policy")
	assert.Contains(t, csp, "default-src 'self'")
	assert.Contains(t, csp, "img-src 'self' blob:")
	assert.Contains(t, csp, "connect-src 'self' ws: wss:")
}

func TestCorsMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		allowedOrigins []string
		requestOrigin  string
		requestHost    string
		expectAllowed  bool
	}{
		{
			name:           "allowed origin from list",
			allowedOrigins: []string{"https://example.com", "https://app.example.com"},
			requestOrigin:  "https://example.com",
			requestHost:    "example.com:8080",
			expectAllowed:  true,
		},
		{
			name:           "not allowed origin from list",
			allowedOrigins: []string{"https://example.com"},
			requestOrigin:  "https://malicious.com",
			requestHost:    "example.com:8080",
			expectAllowed:  false,
		},
		{
			name:           "same origin when no list configured",
			allowedOrigins: []string{},
			requestOrigin:  "http://localhost:8080",
			requestHost:    "localhost:8080",
			expectAllowed:  true,
		},
		{
			name:           "different origin when no list configured",
			allowedOrigins: []string{},
			requestOrigin:  "https://malicious.com",
			requestHost:    "localhost:8080",
			expectAllowed:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			middleware := corsMiddleware(okHandler(), tt.allowedOrigins)

			req := httptest.NewRequest("GET", "/", nil)
			req.Header.Set("Origin", tt.requestOrigin)
			req.Host = tt.requestHost

			rr := httptest.NewRecorder()
			middleware.ServeHTTP(rr, req)

			if tt.expectAllowed {
				assert.Equal(t, tt.requestOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
				assert.Equal(t, "GET, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"))
			} else {
				assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
			}
			assert.Equal(t, "OK", rr.Body.String())
		})
	}
}

func TestCorsMiddlewareOptionsRequest(t *testing.T) {
	middleware := corsMiddleware(okHandler(), []string{"https://example.com"})

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://example.com")
	rr := httptest.NewRecorder()

	middleware.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "https://example.com", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rr.Body.String())
}

func TestIsOriginAllowed(t *testing.T) {
	tests := []struct {
		name           string
		origin         string
		allowedOrigins []string
		host           string
		expected       bool
	}{
		{"empty origin returns false", "", []string{"https://example.com"}, "localhost", false},
		{"origin in allowed list", "https://example.com", []string{"https://example.com"}, "localhost", true},
		{"origin not in allowed list", "https://malicious.com", []string{"https://example.com"}, "localhost", false},
		{"same host without list", "http://localhost:8080", nil, "localhost:8080", true},
		{"origin with whitespace in allowed list", "https://example.com", []string{" https://example.com "}, "localhost", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isOriginAllowed(tt.origin, tt.allowedOrigins, tt.host))
		})
	}
}

func TestRequestLoggingMiddleware(t *testing.T) {
	middleware := requestLoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest("GET", "/test-path", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	rr := httptest.NewRecorder()

	middleware.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusTeapot, rr.Code)
}

func TestStatusRecorderHijackUnsupported(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rec.Hijack()
	assert.Error(t, err)
}

func TestStartServer(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	_ = listener.Close()

	server := &http.Server{Addr: addr, Handler: okHandler()}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- startServer(server)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Shutdown(ctx))

	select {
	case err := <-serverErr:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("server shutdown timed out")
	}
}

func TestStartServerNilServer(t *testing.T) {
	err := startServer(nil)
	assert.ErrorContains(t, err, "server is nil")
}

func TestStartServerInvalidAddress(t *testing.T) {
	err := startServer(&http.Server{Addr: "invalid-addr:-1"})
	assert.Error(t, err)
}

func TestRunWithServerError(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = listener.Close() }()
	port := listener.Addr().(*net.TCPAddr).Port

	err = run(parsedArgs{
		host:     "127.0.0.1",
		port:     fmt.Sprintf("%d", port),
		logLevel: "error",
	})
	assert.Error(t, err)
}

func TestRunWithBadConfig(t *testing.T) {
	err := run(parsedArgs{port: "99999"})
	assert.ErrorContains(t, err, "failed to load config")
}

func TestParseFlagsWithArgs(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		expectedAction string
		want           parsedArgs
	}{
		{
			name: "no args returns empty args",
			args: []string{},
		},
		{
			name: "all flags",
			args: []string{"-config", "dcl.yaml", "-host", " 0.0.0.0 ", "-port", "9090", "-log-level", "debug", "-strict"},
			want: parsedArgs{configFile: "dcl.yaml", host: "0.0.0.0", port: "9090", logLevel: "debug", strict: true},
		},
		{
			name:           "help flag returns help action",
			args:           []string{"-help"},
			expectedAction: "help",
		},
		{
			name:           "version flag returns version action",
			args:           []string{"-version"},
			expectedAction: "version",
		},
		{
			name:           "unknown flag shows help",
			args:           []string{"-nla"},
			expectedAction: "help",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, action := parseFlagsWithArgs(tt.args)
			assert.Equal(t, tt.expectedAction, action)
			assert.Equal(t, tt.want, args)
		})
	}
}

func TestParseFlags_UsesOsArgs(t *testing.T) {
	originalArgs := os.Args
	defer func() { os.Args = originalArgs }()

	os.Args = []string{"server", "-host", " example ", "-port", " 1234 "}
	args, action := parseFlags()
	assert.Empty(t, action)
	assert.Equal(t, "example", args.host)
	assert.Equal(t, "1234", args.port)
}

func TestShowHelp(t *testing.T) {
	captured := captureStdout(t, showHelp)

	assert.Contains(t, captured, "DCL Preview Server")
	assert.Contains(t, captured, "USAGE:")
	assert.Contains(t, captured, "OPTIONS:")
	assert.Contains(t, captured, "ENVIRONMENT VARIABLES:")
	assert.Contains(t, captured, "EXAMPLES:")
}

func TestShowVersion(t *testing.T) {
	captured := captureStdout(t, showVersion)

	assert.Contains(t, captured, "DCL Preview Server 1.0.0")
	assert.Contains(t, captured, "640x480")
}

func TestMain_Help(t *testing.T) {
	originalArgs := os.Args
	defer func() { os.Args = originalArgs }()

	os.Args = []string{"server", "-help"}
	out := captureStdout(t, main)
	assert.Contains(t, out, "USAGE:")
}
