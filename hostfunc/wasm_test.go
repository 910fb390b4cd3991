package hostfunc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// addWasm exports add(i32, i32) -> i32.
var addWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x07, 0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x07, 0x01, 0x03, 0x61, 0x64, 0x64, 0x00, 0x00,
	0x0a, 0x09, 0x01, 0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b,
}

func newWasm(t *testing.T, fs *FS) *Wasm {
	t.Helper()
	w, err := NewWasm(context.Background(), WasmConfig{MemoryLimitPages: 16}, fs)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close(context.Background()) })
	return w
}

func TestWasmCall(t *testing.T) {
	w := newWasm(t, nil)
	ctx := context.Background()

	got, err := w.Call(ctx, map[string]any{
		"module":   string(addWasm),
		"function": "add",
		"args":     []any{int64(40), int64(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(42)}, got)

	got, err = w.Call(ctx, map[string]any{
		"module":   addWasm,
		"function": "add",
		"args":     []any{int64(-5), 3.0},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(-2)}, got)

	assert.Len(t, w.compiled, 1)
}

func TestWasmCallErrors(t *testing.T) {
	w := newWasm(t, nil)
	ctx := context.Background()

	_, err := w.Call(ctx, map[string]any{"module": "not wasm", "function": "add"})
	requireCode(t, err, "EFTYPE")

	_, err = w.Call(ctx, map[string]any{"module": string(addWasm), "function": "sub"})
	assert.EqualError(t, err, `no exported function "sub"`)

	_, err = w.Call(ctx, map[string]any{"module": string(addWasm), "function": "add", "args": []any{int64(1)}})
	assert.EqualError(t, err, "add: expected 2 arguments, got 1")

	_, err = w.Call(ctx, map[string]any{"module": string(addWasm), "function": "add", "args": []any{"x", int64(1)}})
	assert.ErrorContains(t, err, "expected integer")

	_, err = w.Call(ctx, map[string]any{"function": "add"})
	assert.EqualError(t, err, "module or path required")

	_, err = w.Call(ctx, map[string]any{"path": "/mods/add.wasm", "function": "add"})
	requireCode(t, err, "ENOENT")
}

func TestWasmFromMount(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "add.wasm"), addWasm, 0o644))

	fs := NewFS([]Mount{{VirtualPath: "/mods", HostPath: dir, Mode: MountReadOnly}})
	w := newWasm(t, fs)

	got, err := w.Call(context.Background(), map[string]any{
		"path":     "/mods/add.wasm",
		"function": "add",
		"args":     []any{int64(1), int64(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(3)}, got)

	_, err = w.Call(context.Background(), map[string]any{"path": "/mods/missing.wasm", "function": "add"})
	requireCode(t, err, "ENOENT")
}

func TestWasmExports(t *testing.T) {
	w := newWasm(t, nil)

	got, err := w.Exports(context.Background(), map[string]any{"module": string(addWasm)})
	require.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{
			"name":    "add",
			"params":  []any{"i32", "i32"},
			"results": []any{"i32"},
		},
	}, got)
}

func TestWasmModuleSizeLimit(t *testing.T) {
	w, err := NewWasm(context.Background(), WasmConfig{MaxModuleSize: 8}, nil)
	require.NoError(t, err)
	defer w.Close(context.Background())

	_, err = w.Call(context.Background(), map[string]any{"module": string(addWasm), "function": "add"})
	requireCode(t, err, "EFBIG")
}

func TestWasmClosed(t *testing.T) {
	w, err := NewWasm(context.Background(), WasmConfig{}, nil)
	require.NoError(t, err)
	require.NoError(t, w.Close(context.Background()))
	require.NoError(t, w.Close(context.Background()))

	_, err = w.Call(context.Background(), map[string]any{"module": string(addWasm), "function": "add"})
	assert.EqualError(t, err, "wasm runtime closed")
}

func TestWasmWithFSSharesCompiled(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "add.wasm"), addWasm, 0o644))

	w := newWasm(t, nil)
	_, err := w.Call(context.Background(), map[string]any{"module": string(addWasm), "function": "add", "args": []any{1, 1}})
	require.NoError(t, err)

	view := w.WithFS(NewFS([]Mount{{VirtualPath: "/", HostPath: dir, Mode: MountReadOnly}}))
	got, err := view.Call(context.Background(), map[string]any{"path": "/add.wasm", "function": "add", "args": []any{2, 2}})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(4)}, got)
	assert.Len(t, w.compiled, 1)

	_, err = w.Call(context.Background(), map[string]any{"path": "/add.wasm", "function": "add"})
	requireCode(t, err, "ENOENT")
}
