package executor

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/caffeineduck/tjs/bytecode"
	"github.com/caffeineduck/tjs/hostfunc"
)

var (
	ErrSessionClosed  = errors.New("session closed")
	ErrExecutorClosed = errors.New("executor closed")
)

// sessionFileOptions lets a load in one run bind names for later runs.
var sessionFileOptions = func() *syntax.FileOptions {
	opts := *bytecode.FileOptions
	opts.LoadBindsGlobally = true
	return &opts
}()

// Session keeps globals, loaded modules and the KV store across runs.
type Session struct {
	exec     *Executor
	cfg      sessionConfig
	globals  starlark.StringDict
	resolver *resolver

	mu     sync.Mutex
	closed bool
}

type sessionConfig struct {
	capabilities
	timeout time.Duration
}

func defaultSessionConfig() sessionConfig {
	return sessionConfig{
		timeout: 30 * time.Second,
	}
}

type SessionOption func(*sessionConfig)

func WithSessionTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		c.timeout = d
	}
}

func WithSessionAllowedHosts(hosts []string) SessionOption {
	return func(c *sessionConfig) {
		c.allowedHosts = hosts
	}
}

func WithSessionMount(virtualPath, hostPath string, mode hostfunc.MountMode) SessionOption {
	return func(c *sessionConfig) {
		c.mounts = append(c.mounts, hostfunc.Mount{
			VirtualPath: virtualPath,
			HostPath:    hostPath,
			Mode:        mode,
		})
	}
}

// WithSessionKV enables a KV store that lives as long as the session.
func WithSessionKV(opts ...hostfunc.KVOption) SessionOption {
	return func(c *sessionConfig) {
		c.kvEnabled = true
		c.kvOptions = append(c.kvOptions, opts...)
	}
}

func WithSessionOSAccess() SessionOption {
	return func(c *sessionConfig) {
		c.osAccess = true
	}
}

func WithSessionModuleRoot(dir string) SessionOption {
	return func(c *sessionConfig) {
		c.moduleRoot = dir
	}
}

func WithSessionArgs(args []string) SessionOption {
	return func(c *sessionConfig) {
		c.args = args
	}
}

func WithSessionHTTPTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		c.httpTimeout = d
	}
}

func WithSessionHTTPMaxURLLength(size int) SessionOption {
	return func(c *sessionConfig) {
		c.httpMaxURLLength = size
	}
}

func WithSessionHTTPMaxBodySize(size int64) SessionOption {
	return func(c *sessionConfig) {
		c.httpMaxBodySize = size
	}
}

func WithSessionFSMaxFileSize(size int64) SessionOption {
	return func(c *sessionConfig) {
		c.fsOptions = append(c.fsOptions, hostfunc.WithMaxFileSize(size))
	}
}

func (e *Executor) NewSession(opts ...SessionOption) (*Session, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, ErrExecutorClosed
	}

	cfg := defaultSessionConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.kvEnabled && cfg.kvStore == nil {
		cfg.kvStore = hostfunc.NewKV(hostfunc.DefaultKVConfig(), cfg.kvOptions...)
	}

	registry := e.hostFunctions(&cfg.capabilities)
	globals := starlark.StringDict{
		"tjs": newNamespace(registry, e.Builtins().Specifiers(), cfg.args),
	}

	res := newResolver(e.loader, cfg.moduleRoot, e.log)
	res.predeclared = starlark.StringDict{"tjs": globals["tjs"]}

	return &Session{
		exec:     e,
		cfg:      cfg,
		globals:  globals,
		resolver: res,
	}, nil
}

// Run executes code against the session's globals. A chunk consisting of a
// single expression prints its value unless it is None.
func (s *Session) Run(ctx context.Context, code string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()

	if s.closed {
		return Result{Error: ErrSessionClosed, Duration: time.Since(start)}
	}

	if s.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.timeout)
		defer cancel()
	}

	var out bytes.Buffer
	x := newExecution(ctx, &out)
	stop := x.watch()
	defer stop()

	s.resolver.exec = x
	thread := x.newThread("session")
	thread.Load = s.resolver.Load

	err := s.execChunk(thread, code)

	result := Result{
		Output:   out.String(),
		Duration: time.Since(start),
	}
	if err != nil {
		result.Error = runError(ctx, s.cfg.timeout, err)
	}
	return result
}

func (s *Session) execChunk(thread *starlark.Thread, code string) error {
	f, err := sessionFileOptions.Parse("<session>", code, 0)
	if err != nil {
		return err
	}

	if expr := soleExpr(f); expr != nil {
		v, err := starlark.EvalExprOptions(f.Options, thread, expr, s.globals)
		if err != nil {
			return err
		}
		if v != starlark.None {
			thread.Print(thread, v.String())
		}
		return nil
	}

	return starlark.ExecREPLChunk(f, thread, s.globals)
}

func soleExpr(f *syntax.File) syntax.Expr {
	if len(f.Stmts) == 1 {
		if stmt, ok := f.Stmts[0].(*syntax.ExprStmt); ok {
			return stmt.X
		}
	}
	return nil
}

// Names returns the session's global names in sorted order.
func (s *Session) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.globals.Keys()
}

// Members returns the attribute names of the global called name, or nil when
// it has none.
func (s *Session) Members(name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.globals[name].(starlark.HasAttrs)
	if !ok {
		return nil
	}
	return v.AttrNames()
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.globals = nil
	return nil
}
