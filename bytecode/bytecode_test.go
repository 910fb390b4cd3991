package bytecode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/protobuf/encoding/protowire"
)

const moduleSrc = `
def double(x):
    return x * 2

answer = double(21)
`

func compileModule(t *testing.T) []byte {
	t.Helper()
	blob, err := Compile("test.star", []byte(moduleSrc), KindModule, nil)
	require.NoError(t, err)
	return blob
}

func TestCompileAndRead(t *testing.T) {
	blob := compileModule(t)

	obj, err := NewReader(Untrusted, nil).Read("test", blob, KindModule)
	require.NoError(t, err)
	assert.Equal(t, KindModule, obj.Kind)
	assert.Equal(t, "test.star", obj.Name)

	globals, err := obj.Program.Init(&starlark.Thread{Name: "test"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "42", globals["answer"].String())
}

func TestReadWrongKind(t *testing.T) {
	blob := compileModule(t)

	_, err := NewReader(Untrusted, nil).Read("test", blob, KindScript)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrKind)
}

func TestReadBadMagic(t *testing.T) {
	blob := compileModule(t)
	blob[1] = 'X'

	_, err := NewReader(Untrusted, nil).Read("test", blob, KindModule)
	assert.ErrorIs(t, err, ErrMagic)
}

func TestReadShortBlob(t *testing.T) {
	_, err := NewReader(Untrusted, nil).Read("test", []byte{0}, KindModule)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestReadTruncatedProgram(t *testing.T) {
	blob := compileModule(t)

	_, err := NewReader(Untrusted, nil).Read("test", blob[:len(blob)-3], KindModule)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestReadVersionMismatch(t *testing.T) {
	b := []byte(magic)
	b = protowire.AppendTag(b, fieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, FormatVersion+1)
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(KindModule))
	b = protowire.AppendTag(b, fieldProgram, protowire.BytesType)
	b = protowire.AppendBytes(b, nil)

	_, err := NewReader(Untrusted, nil).Read("test", b, KindModule)
	assert.ErrorIs(t, err, ErrVersion)
}

func TestReadGarbageProgram(t *testing.T) {
	blob := Encode(KindModule, "junk", []byte("not a starlark program"))

	_, err := NewReader(Untrusted, nil).Read("junk", blob, KindModule)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode program")
}

func TestReadSkipsUnknownFields(t *testing.T) {
	blob := compileModule(t)
	blob = protowire.AppendTag(blob, 99, protowire.BytesType)
	blob = protowire.AppendString(blob, "future")

	_, err := NewReader(Untrusted, nil).Read("test", blob, KindModule)
	assert.NoError(t, err)
}

// returnHook lets a Fatal entry return to the caller instead of exiting.
type returnHook struct{}

func (returnHook) OnWrite(*zapcore.CheckedEntry, []zapcore.Field) {}

func TestTrustedCorruptionIsFatal(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	r := NewReader(Trusted, zap.New(core, zap.WithFatalHook(returnHook{})))

	blob := compileModule(t)

	var recovered any
	func() {
		defer func() { recovered = recover() }()
		r.Read("tjs:broken", blob, KindScript)
	}()

	require.NotNil(t, recovered)
	cerr, ok := recovered.(*CorruptError)
	require.True(t, ok, "panic value should be *CorruptError, got %T", recovered)
	assert.Equal(t, "tjs:broken", cerr.Name)
	assert.True(t, errors.Is(cerr, ErrKind))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.FatalLevel, entry.Level)
	assert.Equal(t, "corrupt embedded bytecode", entry.Message)
	assert.Equal(t, "tjs:broken", entry.ContextMap()["name"])
}

func TestTrustedCorruptionPanicHook(t *testing.T) {
	r := NewReader(Trusted, zap.New(zapcore.NewNopCore(), zap.WithFatalHook(zapcore.WriteThenPanic)))

	assert.PanicsWithValue(t, "corrupt embedded bytecode", func() {
		r.Read("tjs:broken", []byte("garbage"), KindModule)
	})
}

func TestTrustedReadsValidBlob(t *testing.T) {
	r := NewReader(Trusted, nil)
	assert.NotPanics(t, func() {
		obj, err := r.Read("tjs:ok", compileModule(t), KindModule)
		assert.NoError(t, err)
		assert.NotNil(t, obj.Program)
	})
}

func TestCompileFunctionRequiresMain(t *testing.T) {
	_, err := Compile("fn.star", []byte("x = 1\n"), KindFunction, nil)
	assert.Error(t, err)

	blob, err := Compile("fn.star", []byte("def main(a):\n    return a + 1\n"), KindFunction, nil)
	require.NoError(t, err)

	kind, err := Peek(blob)
	require.NoError(t, err)
	assert.Equal(t, KindFunction, kind)
}

func TestCompilePredeclared(t *testing.T) {
	src := []byte("y = tjs.version\n")

	_, err := Compile("p.star", src, KindScript, nil)
	assert.Error(t, err, "undeclared name should fail to compile")

	_, err = Compile("p.star", src, KindScript, func(name string) bool { return name == "tjs" })
	assert.NoError(t, err)
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindScript, KindFunction, KindModule} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("plugin")
	assert.Error(t, err)
}
