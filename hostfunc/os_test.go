package hostfunc

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandom(t *testing.T) {
	ctx := context.Background()

	b, err := Random(ctx, map[string]any{"size": 16})
	require.NoError(t, err)
	assert.Len(t, b, 16)

	other, err := Random(ctx, map[string]any{"size": int64(16)})
	require.NoError(t, err)
	assert.NotEqual(t, b, other)

	_, err = Random(ctx, map[string]any{"size": MaxRandomSize + 1})
	requireCode(t, err, "EINVAL")

	_, err = Random(ctx, map[string]any{"size": -1})
	requireCode(t, err, "EINVAL")
}

func TestHash(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		algorithm string
		want      string
	}{
		{"md5", "900150983cd24fb0d6963f7d28e17f72"},
		{"sha1", "a9993e364706816aba3e25717850c26c9cd0d89d"},
		{"sha256", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{"SHA256", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
	}

	for _, tt := range tests {
		t.Run(tt.algorithm, func(t *testing.T) {
			got, err := Hash(ctx, map[string]any{"algorithm": tt.algorithm, "data": "abc"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	got, err := Hash(ctx, map[string]any{"algorithm": "sha512", "data": []byte("abc")})
	require.NoError(t, err)
	_, err = hex.DecodeString(got.(string))
	assert.NoError(t, err)
	assert.Len(t, got, 128)

	_, err = Hash(ctx, map[string]any{"algorithm": "crc32", "data": "abc"})
	assert.EqualError(t, err, `unsupported algorithm: "crc32"`)
}

func TestTimeNow(t *testing.T) {
	v, err := TimeNow(context.Background(), nil)
	require.NoError(t, err)
	assert.Greater(t, v.(int64), int64(1_600_000_000_000))
}

func TestRegisterCore(t *testing.T) {
	r := NewRegistry()
	RegisterCore(r)
	assert.Equal(t, []string{"hash", "random", "time_now"}, r.List())
}

func TestEnv(t *testing.T) {
	o := NewOS()
	ctx := context.Background()
	t.Setenv("TJS_TEST_VAR", "before")

	v, err := o.Getenv(ctx, map[string]any{"name": "TJS_TEST_VAR"})
	require.NoError(t, err)
	assert.Equal(t, "before", v)

	_, err = o.Setenv(ctx, map[string]any{"name": "TJS_TEST_VAR", "value": 42})
	require.NoError(t, err)
	assert.Equal(t, "42", os.Getenv("TJS_TEST_VAR"))

	env, err := o.Environ(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "42", env.(map[string]any)["TJS_TEST_VAR"])

	_, err = o.Unsetenv(ctx, map[string]any{"name": "TJS_TEST_VAR"})
	require.NoError(t, err)

	v, err = o.Getenv(ctx, map[string]any{"name": "TJS_TEST_VAR"})
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = o.Setenv(ctx, map[string]any{"name": "A=B", "value": "x"})
	requireCode(t, err, "EINVAL")
}

func TestChdir(t *testing.T) {
	o := NewOS()
	ctx := context.Background()

	orig, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { os.Chdir(orig) })

	dir := t.TempDir()
	_, err = o.Chdir(ctx, map[string]any{"path": dir})
	require.NoError(t, err)

	cwd, err := o.Cwd(ctx, nil)
	require.NoError(t, err)
	want, _ := filepath.EvalSymlinks(dir)
	got, _ := filepath.EvalSymlinks(cwd.(string))
	assert.Equal(t, want, got)

	_, err = o.Chdir(ctx, map[string]any{"path": filepath.Join(dir, "missing")})
	requireCode(t, err, "ENOENT")
}

func TestHostInfo(t *testing.T) {
	o := NewOS()
	ctx := context.Background()

	u, err := o.Uname(ctx, nil)
	require.NoError(t, err)
	info := u.(map[string]any)
	assert.NotEmpty(t, info["sysname"])
	assert.NotEmpty(t, info["machine"])

	pid, _ := o.Getpid(ctx, nil)
	assert.Equal(t, os.Getpid(), pid)

	n, _ := o.AvailableParallelism(ctx, nil)
	assert.Equal(t, runtime.GOMAXPROCS(0), n)

	tmp, _ := o.Tmpdir(ctx, nil)
	assert.Equal(t, os.TempDir(), tmp)

	host, err := o.Hostname(ctx, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, host)
}

func TestSystemLoad(t *testing.T) {
	o := NewOS()
	ctx := context.Background()

	avg, err := o.Loadavg(ctx, nil)
	require.NoError(t, err)
	require.Len(t, avg, 3)
	for _, v := range avg.([]any) {
		assert.GreaterOrEqual(t, v.(float64), 0.0)
	}

	cpus, err := o.CPUInfo(ctx, nil)
	require.NoError(t, err)
	list := cpus.([]map[string]any)
	require.NotEmpty(t, list)
	assert.Contains(t, list[0], "model")
	assert.Contains(t, list[0], "speed")
	times := list[0]["times"].(map[string]any)
	for _, k := range []string{"user", "nice", "sys", "idle", "irq"} {
		assert.Contains(t, times, k)
	}

	up, err := o.Uptime(ctx, nil)
	if runtime.GOOS != "linux" {
		requireCode(t, err, "ENOSYS")
		return
	}
	require.NoError(t, err)
	assert.Greater(t, up.(float64), 0.0)
	assert.Greater(t, times["idle"].(float64), 0.0)
}

func TestEnvKeys(t *testing.T) {
	t.Setenv("TJS_ENV_KEYS_TEST", "1")

	keys, err := NewOS().EnvKeys(context.Background(), nil)
	require.NoError(t, err)
	list := keys.([]string)
	assert.Contains(t, list, "TJS_ENV_KEYS_TEST")
	assert.IsNonDecreasing(t, list)
}

func TestExit(t *testing.T) {
	_, err := NewOS().Exit(context.Background(), map[string]any{"status": int64(4)})
	var exit *ExitError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 4, exit.Status)
	assert.True(t, exit.Terminal())
	assert.Equal(t, "exit status 4", err.Error())

	_, err = NewOS().Exit(context.Background(), map[string]any{})
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 0, exit.Status)
}

func TestOSRegister(t *testing.T) {
	r := NewRegistry()
	NewOS().Register(r)

	for _, name := range []string{"getenv", "setenv", "unsetenv", "environ", "cwd", "chdir", "homedir", "tmpdir", "hostname", "uname", "getpid", "getppid", "available_parallelism", "uptime", "loadavg", "cpu_info", "env_keys", "exit"} {
		_, ok := r.Get(name)
		assert.True(t, ok, name)
	}
}
