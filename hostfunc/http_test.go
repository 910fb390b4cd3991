package hostfunc

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPGetBlockedWhenNoHosts(t *testing.T) {
	fn := NewHTTPGet(HTTPConfig{AllowedHosts: nil})
	_, err := fn(context.Background(), map[string]any{"url": "https://example.com"})
	assert.EqualError(t, err, "http not enabled")
}

func TestHTTPGetBlockedForUnallowedHost(t *testing.T) {
	fn := NewHTTPGet(HTTPConfig{AllowedHosts: []string{"allowed.com"}})

	tests := []struct {
		name string
		url  string
		host string
	}{
		{"plain", "https://evil.com", "evil.com"},
		{"query param", "https://evil.com/?x=allowed.com", "evil.com"},
		{"suffix", "https://allowed.com.evil.com/", "allowed.com.evil.com"},
		{"userinfo", "https://allowed.com@evil.com/", "evil.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fn(context.Background(), map[string]any{"url": tt.url})
			assert.EqualError(t, err, "host not allowed: "+tt.host)
		})
	}
}

func TestHTTPGetAllowsExactHost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("X-Test", "yes")
		w.WriteHeader(200)
		w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	fn := NewHTTPGet(HTTPConfig{AllowedHosts: []string{"127.0.0.1"}})
	result, err := fn(context.Background(), map[string]any{"url": server.URL, "method": "POST"})
	require.NoError(t, err)

	data := result.(map[string]any)
	assert.Equal(t, 200, data["status"])
	assert.Equal(t, `{"ok": true}`, data["body"])
	assert.Equal(t, "yes", data["headers"].(map[string]any)["X-Test"])
}

func TestHTTPRequestSendsBodyAndHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Write([]byte(r.Method + " " + r.Header.Get("X-Token") + " " + string(body)))
	}))
	defer server.Close()

	h := NewHTTP(HTTPConfig{AllowedHosts: []string{"127.0.0.1"}})
	result, err := h.Request(context.Background(), map[string]any{
		"method":  "put",
		"url":     server.URL,
		"body":    "payload",
		"headers": map[string]any{"X-Token": "abc"},
	})
	require.NoError(t, err)
	assert.Equal(t, "PUT abc payload", result.(map[string]any)["body"])
}

func TestHTTPResponseBodyLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer server.Close()

	h := NewHTTP(HTTPConfig{AllowedHosts: []string{"127.0.0.1"}, MaxBodySize: 10})
	result, err := h.Request(context.Background(), map[string]any{"url": server.URL})
	require.NoError(t, err)
	assert.Len(t, result.(map[string]any)["body"], 10)
}

func TestHTTPConnectionRefusedIsErrno(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	h := NewHTTP(HTTPConfig{AllowedHosts: []string{"127.0.0.1"}})
	_, err = h.Request(context.Background(), map[string]any{"url": "http://" + addr})
	requireCode(t, err, "ECONNREFUSED")
}

func TestHTTPValidation(t *testing.T) {
	fn := NewHTTPGet(HTTPConfig{AllowedHosts: []string{"example.com"}, MaxURLLength: 100})
	ctx := context.Background()

	_, err := fn(ctx, map[string]any{})
	assert.EqualError(t, err, "url required")

	_, err = fn(ctx, map[string]any{"url": "://invalid"})
	assert.EqualError(t, err, "invalid url")

	_, err = fn(ctx, map[string]any{"url": "ftp://example.com/"})
	assert.EqualError(t, err, "scheme must be http or https")

	_, err = fn(ctx, map[string]any{"url": "https://example.com/" + strings.Repeat("a", 200)})
	assert.EqualError(t, err, "url exceeds max length")

	h := NewHTTP(HTTPConfig{AllowedHosts: []string{"example.com"}})
	_, err = h.Request(ctx, map[string]any{"url": "https://example.com", "method": "TRACE"})
	assert.EqualError(t, err, "unsupported method: TRACE")
}

func TestHTTPGetDefaultMaxURLLength(t *testing.T) {
	fn := NewHTTPGet(HTTPConfig{AllowedHosts: []string{"example.com"}})

	_, err := fn(context.Background(), map[string]any{"url": "https://example.com/" + strings.Repeat("a", 10*1024)})
	assert.EqualError(t, err, "url exceeds max length")
}

func TestHTTPHostMatching(t *testing.T) {
	tests := []struct {
		allowed string
		host    string
		want    bool
	}{
		{"example.com", "example.com", true},
		{"example.com", "api.example.com", true},
		{"example.com", "badexample.com", false},
		{"::1", "::1", true},
		{"::1", "0:0:0:0:0:0:0:1", true},
		{"::1", "::2", false},
		{"::1", "example.com", false},
		{"192.168.1.1", "192.168.1.1", true},
		{"192.168.1.1", "192.168.1.2", false},
		{"192.168.1.1", "::ffff:192.168.1.1", true},
		{"example.com", "127.0.0.1", false},
		{"example.com", "2001:db8::1", false},
	}

	for _, tt := range tests {
		h := NewHTTP(HTTPConfig{AllowedHosts: []string{tt.allowed}})
		assert.Equal(t, tt.want, h.isHostAllowed(tt.host), "allowed=%s host=%s", tt.allowed, tt.host)
	}
}

func TestHTTPGetDoesNotMutateArgs(t *testing.T) {
	fn := NewHTTPGet(HTTPConfig{})
	args := map[string]any{"url": "https://example.com", "method": "POST"}
	_, _ = fn(context.Background(), args)
	assert.Equal(t, "POST", args["method"])
}
