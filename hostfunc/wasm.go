package hostfunc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/caffeineduck/tjs/errno"
)

const DefaultMaxModuleSize = 64 << 20

// WasmConfig configures the WebAssembly binding.
type WasmConfig struct {
	// MemoryLimitPages caps guest memory in 64KB pages. Zero keeps the wazero
	// default of 4GB.
	MemoryLimitPages uint32
	// CacheDir enables a persistent compilation cache in that directory.
	CacheDir      string
	MaxModuleSize int64
}

// Wasm runs exported functions of WebAssembly modules. Compiled modules are
// cached by the SHA-256 of their binary; every call gets a fresh instance.
type Wasm struct {
	fs *FS
	*engine
}

// engine is the runtime state shared by every view of a Wasm.
type engine struct {
	cfg      WasmConfig
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	compiled map[string]wazero.CompiledModule
	mu       sync.RWMutex
	closed   bool
}

// NewWasm creates the runtime. fs, when non-nil, lets scripts name modules by
// a path on one of its mounts.
func NewWasm(ctx context.Context, cfg WasmConfig, fs *FS) (*Wasm, error) {
	if cfg.MaxModuleSize == 0 {
		cfg.MaxModuleSize = DefaultMaxModuleSize
	}

	var cache wazero.CompilationCache
	if cfg.CacheDir != "" {
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(cfg.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("create wasm cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.MemoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		if cache != nil {
			cache.Close(ctx)
		}
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	return &Wasm{
		fs: fs,
		engine: &engine{
			cfg:      cfg,
			runtime:  rt,
			cache:    cache,
			compiled: make(map[string]wazero.CompiledModule),
		},
	}, nil
}

// WithFS returns a view of w that resolves module paths through fs. The view
// shares the runtime and compiled modules with w; closing either closes both.
func (w *Wasm) WithFS(fs *FS) *Wasm {
	return &Wasm{fs: fs, engine: w.engine}
}

func (w *Wasm) binary(req WasmRequest) ([]byte, error) {
	var bin []byte
	switch {
	case req.Path != "":
		if w.fs == nil {
			return nil, errno.Raise(errno.ENOENT)
		}
		data, err := w.fs.readFile(req.Path)
		if err != nil {
			return nil, err
		}
		bin = data
	case req.Module != "":
		bin = []byte(req.Module)
	default:
		return nil, errors.New("module or path required")
	}

	if int64(len(bin)) > w.cfg.MaxModuleSize {
		return nil, errno.Raise(errno.EFBIG)
	}
	return bin, nil
}

// getCompiled returns a cached compiled module, compiling if necessary.
func (w *engine) getCompiled(ctx context.Context, bin []byte) (wazero.CompiledModule, error) {
	sum := sha256.Sum256(bin)
	key := hex.EncodeToString(sum[:])

	w.mu.RLock()
	if compiled, ok := w.compiled[key]; ok {
		w.mu.RUnlock()
		return compiled, nil
	}
	closed := w.closed
	w.mu.RUnlock()
	if closed {
		return nil, errors.New("wasm runtime closed")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if compiled, ok := w.compiled[key]; ok {
		return compiled, nil
	}

	compiled, err := w.runtime.CompileModule(ctx, bin)
	if err != nil {
		return nil, errno.Raise(errno.EFTYPE)
	}

	w.compiled[key] = compiled
	return compiled, nil
}

// Call instantiates a module and calls one of its exported functions with
// numeric arguments. It returns the list of results.
func (w *Wasm) Call(ctx context.Context, args map[string]any) (any, error) {
	req, err := decode[WasmRequest]("wasm_call", args)
	if err != nil {
		return nil, err
	}
	if req.Function == "" {
		return nil, errors.New("function required")
	}

	bin, err := w.binary(req)
	if err != nil {
		return nil, err
	}
	compiled, err := w.getCompiled(ctx, bin)
	if err != nil {
		return nil, err
	}

	cfg := wazero.NewModuleConfig().WithName("").WithStartFunctions()
	mod, err := w.runtime.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		return nil, fmt.Errorf("instantiate: %w", err)
	}
	defer mod.Close(ctx)

	fn := mod.ExportedFunction(req.Function)
	if fn == nil {
		return nil, fmt.Errorf("no exported function %q", req.Function)
	}

	def := fn.Definition()
	params, err := encodeParams(def.ParamTypes(), req.Args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.Function, err)
	}

	results, err := fn.Call(ctx, params...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errno.Wrap(ctxErr)
		}
		return nil, fmt.Errorf("%s: %w", req.Function, err)
	}

	return decodeResults(def.ResultTypes(), results), nil
}

// Exports lists the functions a module exports with their signatures.
func (w *Wasm) Exports(ctx context.Context, args map[string]any) (any, error) {
	req, err := decode[WasmRequest]("wasm_exports", args)
	if err != nil {
		return nil, err
	}
	bin, err := w.binary(req)
	if err != nil {
		return nil, err
	}
	compiled, err := w.getCompiled(ctx, bin)
	if err != nil {
		return nil, err
	}

	defs := compiled.ExportedFunctions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]any, 0, len(names))
	for _, name := range names {
		def := defs[name]
		out = append(out, map[string]any{
			"name":    name,
			"params":  typeNames(def.ParamTypes()),
			"results": typeNames(def.ResultTypes()),
		})
	}
	return out, nil
}

// Close releases the runtime and every compiled module.
func (w *engine) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	err := w.runtime.Close(ctx)
	if w.cache != nil {
		if cerr := w.cache.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}

// Register installs wasm_call and wasm_exports on r.
func (w *Wasm) Register(r *Registry) {
	r.Register("wasm_call", w.Call)
	r.Register("wasm_exports", w.Exports)
}

func typeNames(types []api.ValueType) []any {
	out := make([]any, len(types))
	for i, t := range types {
		out[i] = api.ValueTypeName(t)
	}
	return out
}

func encodeParams(types []api.ValueType, args []any) ([]uint64, error) {
	if len(args) != len(types) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(types), len(args))
	}

	params := make([]uint64, len(types))
	for i, t := range types {
		switch t {
		case api.ValueTypeI32, api.ValueTypeI64:
			n, ok := toInt64(args[i])
			if !ok {
				return nil, fmt.Errorf("argument %d: expected integer, got %T", i, args[i])
			}
			if t == api.ValueTypeI32 {
				if n < math.MinInt32 || n > math.MaxUint32 {
					return nil, fmt.Errorf("argument %d: %d out of i32 range", i, n)
				}
				params[i] = api.EncodeI32(int32(n))
			} else {
				params[i] = api.EncodeI64(n)
			}
		case api.ValueTypeF32, api.ValueTypeF64:
			f, ok := toFloat64(args[i])
			if !ok {
				return nil, fmt.Errorf("argument %d: expected number, got %T", i, args[i])
			}
			if t == api.ValueTypeF32 {
				params[i] = api.EncodeF32(float32(f))
			} else {
				params[i] = api.EncodeF64(f)
			}
		default:
			return nil, fmt.Errorf("argument %d: unsupported type %s", i, api.ValueTypeName(t))
		}
	}
	return params, nil
}

func decodeResults(types []api.ValueType, results []uint64) []any {
	out := make([]any, len(results))
	for i, r := range results {
		switch types[i] {
		case api.ValueTypeI32:
			out[i] = int64(api.DecodeI32(r))
		case api.ValueTypeI64:
			out[i] = int64(r)
		case api.ValueTypeF32:
			out[i] = float64(api.DecodeF32(r))
		case api.ValueTypeF64:
			out[i] = api.DecodeF64(r)
		default:
			out[i] = int64(r)
		}
	}
	return out
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return int64(n), true
		}
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}
