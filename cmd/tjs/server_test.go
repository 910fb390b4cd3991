package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/caffeineduck/tjs/executor"
	"github.com/caffeineduck/tjs/hostfunc"
)

func setupTestServer(t *testing.T, s settings) (*server, http.Handler) {
	t.Helper()

	exec, err := executor.New(hostfunc.NewRegistry())
	require.NoError(t, err)

	sessions := newSessionManager(15 * time.Minute)
	t.Cleanup(func() {
		sessions.closeAll()
		exec.Close()
	})

	if s.timeout == 0 {
		s.timeout = 5 * time.Second
	}
	srv := &server{exec: exec, sessions: sessions, settings: s, log: zap.NewNop()}
	return srv, srv.routes()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeResult(t *testing.T, w *httptest.ResponseRecorder) executeResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp executeResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func createSession(t *testing.T, h http.Handler, body string) string {
	t.Helper()
	w := do(t, h, http.MethodPost, "/sessions", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp createSessionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotEmpty(t, resp.SessionID)
	return resp.SessionID
}

func TestHealthEndpoint(t *testing.T) {
	_, h := setupTestServer(t, settings{})

	w := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestExecuteEndpoint(t *testing.T) {
	_, h := setupTestServer(t, settings{})

	resp := decodeResult(t, do(t, h, http.MethodPost, "/execute", `{"code": "print(tjs.args)", "args": ["a"]}`))
	assert.Equal(t, `("a",)`+"\n", resp.Output)
	assert.Empty(t, resp.Error)

	resp = decodeResult(t, do(t, h, http.MethodPost, "/execute", `{"code": "fail(\"nope\")"}`))
	assert.Contains(t, resp.Error, "nope")
}

func TestExecuteTimeout(t *testing.T) {
	_, h := setupTestServer(t, settings{})

	resp := decodeResult(t, do(t, h, http.MethodPost, "/execute", `{"code": "while True:\n    pass\n", "timeout": "50ms"}`))
	assert.Equal(t, "timeout after 50ms", resp.Error)
}

func TestExecuteBadRequests(t *testing.T) {
	_, h := setupTestServer(t, settings{})

	tests := []struct {
		name   string
		method string
		body   string
		status int
	}{
		{"invalid json", http.MethodPost, `{`, http.StatusBadRequest},
		{"missing code", http.MethodPost, `{}`, http.StatusBadRequest},
		{"bad timeout", http.MethodPost, `{"code": "pass", "timeout": "later"}`, http.StatusBadRequest},
		{"wrong method", http.MethodGet, ``, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, tt.method, "/execute", tt.body)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestExecuteUsesCapabilities(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "in.txt"), []byte("served"), 0o644))

	_, h := setupTestServer(t, settings{
		mounts:    []hostfunc.Mount{{VirtualPath: "/in", HostPath: dir, Mode: hostfunc.MountReadOnly}},
		fsMaxFile: hostfunc.DefaultMaxFileSize,
	})

	resp := decodeResult(t, do(t, h, http.MethodPost, "/execute", `{"code": "print(tjs.fs_read(path = \"/in/in.txt\"))"}`))
	assert.Equal(t, "served\n", resp.Output)
}

func TestSessionLifecycle(t *testing.T) {
	srv, h := setupTestServer(t, settings{kv: true})

	id := createSession(t, h, "")
	assert.Equal(t, 1, srv.sessions.count())

	resp := decodeResult(t, do(t, h, http.MethodPost, "/sessions/"+id+"/exec", `{"code": "x = 42"}`))
	assert.Empty(t, resp.Error)

	resp = decodeResult(t, do(t, h, http.MethodPost, "/sessions/"+id+"/exec", `{"code": "x"}`))
	assert.Equal(t, "42\n", resp.Output)

	resp = decodeResult(t, do(t, h, http.MethodPost, "/sessions/"+id+"/exec", `{"code": "tjs.kv_set(key = \"a\", value = x)\ntjs.kv_get(key = \"a\")"}`))
	assert.Empty(t, resp.Error)

	w := do(t, h, http.MethodDelete, "/sessions/"+id, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, srv.sessions.count())

	w = do(t, h, http.MethodDelete, "/sessions/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodPost, "/sessions/"+id+"/exec", `{"code": "x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionArgs(t *testing.T) {
	_, h := setupTestServer(t, settings{})

	id := createSession(t, h, `{"args": ["one", "two"]}`)
	resp := decodeResult(t, do(t, h, http.MethodPost, "/sessions/"+id+"/exec", `{"code": "len(tjs.args)"}`))
	assert.Equal(t, "2\n", resp.Output)
}

func TestSessionExecBadRequests(t *testing.T) {
	_, h := setupTestServer(t, settings{})
	id := createSession(t, h, "")

	w := do(t, h, http.MethodPost, "/sessions/"+id+"/exec", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/sessions/"+id+"/exec", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/sessions", `{"args": 1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionExecTimeout(t *testing.T) {
	_, h := setupTestServer(t, settings{})
	id := createSession(t, h, "")

	resp := decodeResult(t, do(t, h, http.MethodPost, "/sessions/"+id+"/exec", `{"code": "while True:\n    pass\n", "timeout": "50ms"}`))
	assert.NotEmpty(t, resp.Error)

	resp = decodeResult(t, do(t, h, http.MethodPost, "/sessions/"+id+"/exec", `{"code": "print(\"alive\")"}`))
	assert.Equal(t, "alive\n", resp.Output)
}

func TestMultipleSessions(t *testing.T) {
	_, h := setupTestServer(t, settings{})

	id1 := createSession(t, h, "")
	id2 := createSession(t, h, "")
	assert.NotEqual(t, id1, id2)

	decodeResult(t, do(t, h, http.MethodPost, "/sessions/"+id1+"/exec", `{"code": "x = \"session1\""}`))
	decodeResult(t, do(t, h, http.MethodPost, "/sessions/"+id2+"/exec", `{"code": "x = \"session2\""}`))

	resp := decodeResult(t, do(t, h, http.MethodPost, "/sessions/"+id1+"/exec", `{"code": "print(x)"}`))
	assert.Equal(t, "session1\n", resp.Output)
	resp = decodeResult(t, do(t, h, http.MethodPost, "/sessions/"+id2+"/exec", `{"code": "print(x)"}`))
	assert.Equal(t, "session2\n", resp.Output)
}

func TestSessionExpiry(t *testing.T) {
	srv, h := setupTestServer(t, settings{})

	id := createSession(t, h, "")
	session, ok := srv.sessions.get(id)
	require.True(t, ok)

	assert.Equal(t, 0, srv.sessions.expire(time.Now()))
	assert.Equal(t, 1, srv.sessions.expire(time.Now().Add(16*time.Minute)))

	_, ok = srv.sessions.get(id)
	assert.False(t, ok)
	assert.ErrorIs(t, session.Run(t.Context(), "1").Error, executor.ErrSessionClosed)
}

func TestSessionManagerCloseAll(t *testing.T) {
	exec, err := executor.New(hostfunc.NewRegistry())
	require.NoError(t, err)
	defer exec.Close()

	sm := newSessionManager(time.Minute)
	_, err = sm.create(exec)
	require.NoError(t, err)
	_, err = sm.create(exec)
	require.NoError(t, err)

	sm.closeAll()
	sm.closeAll()
	assert.Equal(t, 0, sm.count())
	assert.False(t, sm.close("nonexistent-session-id"))
}

func TestGenerateSessionID(t *testing.T) {
	a, b := generateSessionID(), generateSessionID()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
