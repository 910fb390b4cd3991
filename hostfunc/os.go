package hostfunc

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"os"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/caffeineduck/tjs/errno"
)

// MaxRandomSize bounds a single random() call.
const MaxRandomSize = 65536

// Random returns size cryptographically random bytes.
func Random(ctx context.Context, args map[string]any) (any, error) {
	req, err := decode[RandomRequest]("random", args)
	if err != nil {
		return nil, err
	}
	if req.Size < 0 || req.Size > MaxRandomSize {
		return nil, errno.Raise(errno.EINVAL)
	}
	buf := make([]byte, req.Size)
	if _, err := rand.Read(buf); err != nil {
		return nil, errno.Wrap(err)
	}
	return buf, nil
}

// TimeNow returns the current Unix time in milliseconds.
func TimeNow(ctx context.Context, args map[string]any) (any, error) {
	return time.Now().UnixMilli(), nil
}

var hashes = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha512": sha512.New,
}

// Hash returns the lowercase hex digest of data.
func Hash(ctx context.Context, args map[string]any) (any, error) {
	req, err := decode[HashRequest]("hash", args)
	if err != nil {
		return nil, err
	}
	newHash, ok := hashes[strings.ToLower(req.Algorithm)]
	if !ok {
		return nil, fmt.Errorf("unsupported algorithm: %q", req.Algorithm)
	}
	h := newHash()
	h.Write([]byte(req.Data))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// RegisterCore installs the functions every script gets: random, time_now
// and hash.
func RegisterCore(r *Registry) {
	r.Register("random", Random)
	r.Register("time_now", TimeNow)
	r.Register("hash", Hash)
}

// OS exposes process and host information. The working directory is
// process-wide, so chdir is serialized with cwd.
type OS struct {
	mu sync.Mutex
}

func NewOS() *OS { return &OS{} }

func (o *OS) Getenv(ctx context.Context, args map[string]any) (any, error) {
	req, err := decode[EnvRequest]("getenv", args)
	if err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, errors.New("name required")
	}
	v, ok := os.LookupEnv(req.Name)
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (o *OS) Setenv(ctx context.Context, args map[string]any) (any, error) {
	req, err := decode[EnvRequest]("setenv", args)
	if err != nil {
		return nil, err
	}
	if req.Name == "" || strings.ContainsAny(req.Name, "=\x00") {
		return nil, errno.Raise(errno.EINVAL)
	}
	if err := os.Setenv(req.Name, req.Value); err != nil {
		return nil, errno.Wrap(err)
	}
	return nil, nil
}

func (o *OS) Unsetenv(ctx context.Context, args map[string]any) (any, error) {
	req, err := decode[EnvRequest]("unsetenv", args)
	if err != nil {
		return nil, err
	}
	if req.Name == "" || strings.ContainsAny(req.Name, "=\x00") {
		return nil, errno.Raise(errno.EINVAL)
	}
	if err := os.Unsetenv(req.Name); err != nil {
		return nil, errno.Wrap(err)
	}
	return nil, nil
}

func (o *OS) Environ(ctx context.Context, args map[string]any) (any, error) {
	env := make(map[string]any)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && k != "" {
			env[k] = v
		}
	}
	return env, nil
}

func (o *OS) Cwd(ctx context.Context, args map[string]any) (any, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	dir, err := os.Getwd()
	if err != nil {
		return nil, errno.Wrap(err)
	}
	return dir, nil
}

func (o *OS) Chdir(ctx context.Context, args map[string]any) (any, error) {
	req, err := decode[FSPathRequest]("chdir", args)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := os.Chdir(req.Path); err != nil {
		return nil, errno.Wrap(err)
	}
	return nil, nil
}

func (o *OS) Homedir(ctx context.Context, args map[string]any) (any, error) {
	dir, err := os.UserHomeDir()
	if err != nil {
		return nil, errno.Raise(errno.ENOENT)
	}
	return dir, nil
}

func (o *OS) Tmpdir(ctx context.Context, args map[string]any) (any, error) {
	return os.TempDir(), nil
}

func (o *OS) Hostname(ctx context.Context, args map[string]any) (any, error) {
	name, err := os.Hostname()
	if err != nil {
		return nil, errno.Wrap(err)
	}
	return name, nil
}

func (o *OS) Uname(ctx context.Context, args map[string]any) (any, error) {
	u, err := uname()
	if err != nil {
		return nil, errno.Wrap(err)
	}
	return u, nil
}

func (o *OS) Getpid(ctx context.Context, args map[string]any) (any, error) {
	return os.Getpid(), nil
}

func (o *OS) Getppid(ctx context.Context, args map[string]any) (any, error) {
	return os.Getppid(), nil
}

func (o *OS) AvailableParallelism(ctx context.Context, args map[string]any) (any, error) {
	return runtime.GOMAXPROCS(0), nil
}

// Uptime returns the host's uptime in seconds.
func (o *OS) Uptime(ctx context.Context, args map[string]any) (any, error) {
	up, err := uptime()
	if err != nil {
		return nil, errno.Wrap(err)
	}
	return up, nil
}

// Loadavg returns the 1, 5 and 15 minute load averages.
func (o *OS) Loadavg(ctx context.Context, args map[string]any) (any, error) {
	avg, err := loadavg()
	if err != nil {
		return nil, errno.Wrap(err)
	}
	return []any{avg[0], avg[1], avg[2]}, nil
}

func (o *OS) CPUInfo(ctx context.Context, args map[string]any) (any, error) {
	cpus, err := cpuInfo()
	if err != nil {
		return nil, errno.Wrap(err)
	}
	out := make([]map[string]any, len(cpus))
	for i, c := range cpus {
		out[i] = map[string]any{
			"model": c.Model,
			"speed": c.Speed,
			"times": map[string]any{
				"user": c.Times.User,
				"nice": c.Times.Nice,
				"sys":  c.Times.Sys,
				"idle": c.Times.Idle,
				"irq":  c.Times.IRQ,
			},
		}
	}
	return out, nil
}

// EnvKeys returns the names of the environment variables, sorted.
func (o *OS) EnvKeys(ctx context.Context, args map[string]any) (any, error) {
	var keys []string
	for _, kv := range os.Environ() {
		if k, _, ok := strings.Cut(kv, "="); ok && k != "" {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return slices.Compact(keys), nil
}

// ExitError ends a script at its exit() call. The host decides what the
// status means; the CLI exits with it.
type ExitError struct {
	Status int
}

func (e *ExitError) Error() string { return fmt.Sprintf("exit status %d", e.Status) }

// Terminal marks the error as one tjs.catch must not swallow.
func (e *ExitError) Terminal() bool { return true }

func (o *OS) Exit(ctx context.Context, args map[string]any) (any, error) {
	req, err := decode[ExitRequest]("exit", args)
	if err != nil {
		return nil, err
	}
	return nil, &ExitError{Status: req.Status}
}

// Register installs the OS functions on r.
func (o *OS) Register(r *Registry) {
	r.Register("getenv", o.Getenv)
	r.Register("setenv", o.Setenv)
	r.Register("unsetenv", o.Unsetenv)
	r.Register("environ", o.Environ)
	r.Register("cwd", o.Cwd)
	r.Register("chdir", o.Chdir)
	r.Register("homedir", o.Homedir)
	r.Register("tmpdir", o.Tmpdir)
	r.Register("hostname", o.Hostname)
	r.Register("uname", o.Uname)
	r.Register("getpid", o.Getpid)
	r.Register("getppid", o.Getppid)
	r.Register("available_parallelism", o.AvailableParallelism)
	r.Register("uptime", o.Uptime)
	r.Register("loadavg", o.Loadavg)
	r.Register("cpu_info", o.CPUInfo)
	r.Register("env_keys", o.EnvKeys)
	r.Register("exit", o.Exit)
}
