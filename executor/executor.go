package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.starlark.net/starlark"
	"go.uber.org/zap"

	"github.com/caffeineduck/tjs/builtin"
	"github.com/caffeineduck/tjs/bytecode"
	"github.com/caffeineduck/tjs/hostfunc"
)

// Result holds the output and metadata from code execution.
type Result struct {
	Output   string
	Duration time.Duration
	Error    error
}

// Executor runs scripts against a host function registry and a table of
// builtin modules.
type Executor struct {
	registry *hostfunc.Registry
	loader   *builtin.Loader
	reader   *bytecode.Reader
	wasm     *hostfunc.Wasm
	log      *zap.Logger
	mu       sync.Mutex
	closed   bool
}

// New creates an Executor with the given host function registry. The
// functions in registry are available to every run in addition to the ones
// its options enable.
func New(registry *hostfunc.Registry, opts ...ExecutorOption) (*Executor, error) {
	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	log := cfg.log
	if log == nil {
		log = zap.NewNop()
	}
	builtins := cfg.builtins
	if builtins == nil {
		builtins = builtin.Default()
	}

	e := &Executor{
		registry: registry,
		loader:   builtin.NewLoader(builtins, log.Named("builtin")),
		reader:   bytecode.NewReader(bytecode.Untrusted, log),
		log:      log,
	}

	if cfg.wasm {
		wcfg := hostfunc.WasmConfig{MemoryLimitPages: cfg.memoryLimitPages}
		if cfg.diskCache {
			wcfg.CacheDir = cfg.cacheDir
			if wcfg.CacheDir == "" {
				wcfg.CacheDir = defaultCacheDir()
			}
		}
		w, err := hostfunc.NewWasm(context.Background(), wcfg, nil)
		if err != nil {
			return nil, err
		}
		e.wasm = w
	}

	return e, nil
}

// Builtins returns the table load() falls back to.
func (e *Executor) Builtins() *builtin.Registry {
	return e.loader.Registry()
}

// Run executes Starlark source code.
func (e *Executor) Run(ctx context.Context, code string, opts ...Option) Result {
	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return e.run(ctx, cfg, func(thread *starlark.Thread, predeclared starlark.StringDict) error {
		_, err := starlark.ExecFileOptions(bytecode.FileOptions, thread, cfg.name, code, predeclared)
		return err
	})
}

// RunBlob executes a compiled script or function artifact. A function
// artifact has its main called with no arguments; a result other than None is
// printed. Blobs are untrusted: a malformed one is reported as an error.
func (e *Executor) RunBlob(ctx context.Context, blob []byte, opts ...Option) Result {
	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	kind, err := bytecode.Peek(blob)
	if err != nil {
		return Result{Error: fmt.Errorf("read %s: %w", cfg.name, err)}
	}
	if kind != bytecode.KindScript && kind != bytecode.KindFunction {
		return Result{Error: fmt.Errorf("read %s: cannot run a %s artifact", cfg.name, kind)}
	}
	obj, err := e.reader.Read(cfg.name, blob, kind)
	if err != nil {
		return Result{Error: err}
	}

	return e.run(ctx, cfg, func(thread *starlark.Thread, predeclared starlark.StringDict) error {
		globals, err := obj.Program.Init(thread, predeclared)
		if err != nil || kind != bytecode.KindFunction {
			return err
		}

		main, ok := globals["main"].(starlark.Callable)
		if !ok {
			return errors.New("function artifact has no callable main")
		}
		v, err := starlark.Call(thread, main, nil, nil)
		if err != nil {
			return err
		}
		if v != starlark.None {
			thread.Print(thread, v.String())
		}
		return nil
	})
}

func (e *Executor) run(ctx context.Context, cfg runConfig, body func(*starlark.Thread, starlark.StringDict) error) Result {
	start := time.Now()

	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	var out bytes.Buffer
	x := newExecution(ctx, &out)
	stop := x.watch()
	defer stop()

	registry := e.hostFunctions(&cfg.capabilities)
	predeclared := starlark.StringDict{
		"tjs": newNamespace(registry, e.Builtins().Specifiers(), cfg.args),
	}

	res := newResolver(e.loader, cfg.moduleRoot, e.log)
	res.predeclared = predeclared
	res.exec = x

	thread := x.newThread(cfg.name)
	thread.Load = res.Load

	err := body(thread, predeclared)

	result := Result{
		Output:   out.String(),
		Duration: time.Since(start),
	}
	if err != nil {
		result.Error = runError(ctx, cfg.timeout, err)
	}

	e.log.Debug("run finished",
		zap.String("name", cfg.name),
		zap.Duration("duration", result.Duration),
		zap.Int("modules", len(res.cache)),
		zap.Error(result.Error),
	)
	return result
}

func runError(ctx context.Context, timeout time.Duration, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("timeout after %v", timeout)
	case ctx.Err() != nil:
		return fmt.Errorf("execution cancelled: %w", ctx.Err())
	default:
		return fmt.Errorf("execution failed: %w", err)
	}
}

// hostFunctions assembles the registry one run or session sees: the
// executor's own functions, the always-present core, and whatever c enables.
func (e *Executor) hostFunctions(c *capabilities) *hostfunc.Registry {
	registry := e.registry.Clone()
	hostfunc.RegisterCore(registry)

	if c.kvEnabled {
		kv := c.kvStore
		if kv == nil {
			kv = hostfunc.NewKV(hostfunc.DefaultKVConfig(), c.kvOptions...)
		}
		kv.Register(registry)
	}

	if len(c.allowedHosts) > 0 {
		hostfunc.NewHTTP(hostfunc.HTTPConfig{
			AllowedHosts:   c.allowedHosts,
			MaxURLLength:   c.httpMaxURLLength,
			MaxBodySize:    c.httpMaxBodySize,
			RequestTimeout: c.httpTimeout,
		}).Register(registry)
	}

	var fs *hostfunc.FS
	if len(c.mounts) > 0 {
		fs = hostfunc.NewFS(c.mounts, c.fsOptions...)
		fs.Register(registry)
	}

	if c.osAccess {
		hostfunc.NewOS().Register(registry)
	}

	if e.wasm != nil {
		e.wasm.WithFS(fs).Register(registry)
	}

	return registry
}

// Close releases all resources held by the Executor.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	if e.wasm != nil {
		return e.wasm.Close(context.Background())
	}
	return nil
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "tjs")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "tjs")
	}
	return filepath.Join(os.TempDir(), "tjs-cache")
}
