package executor

import (
	"time"

	"go.uber.org/zap"

	"github.com/caffeineduck/tjs/builtin"
	"github.com/caffeineduck/tjs/hostfunc"
)

// capabilities is what a script may reach beyond pure computation. Run and
// Session options both fill it in.
type capabilities struct {
	allowedHosts     []string
	httpMaxURLLength int
	httpMaxBodySize  int64
	httpTimeout      time.Duration

	mounts    []hostfunc.Mount
	fsOptions []hostfunc.FSOption

	kvEnabled bool
	kvStore   *hostfunc.KV
	kvOptions []hostfunc.KVOption

	osAccess   bool
	moduleRoot string
	args       []string
}

// Option configures execution behavior.
type Option func(*runConfig)

type runConfig struct {
	capabilities
	timeout time.Duration
	name    string
}

func defaultRunConfig() runConfig {
	return runConfig{
		timeout: 30 * time.Second,
		name:    "main.star",
	}
}

// WithTimeout sets the maximum execution time.
func WithTimeout(d time.Duration) Option {
	return func(c *runConfig) {
		c.timeout = d
	}
}

// WithName sets the file name reported in errors and backtraces.
func WithName(name string) Option {
	return func(c *runConfig) {
		c.name = name
	}
}

// WithArgs sets tjs.args.
func WithArgs(args []string) Option {
	return func(c *runConfig) {
		c.args = args
	}
}

// WithAllowedHosts sets the list of hosts that HTTP requests can access.
func WithAllowedHosts(hosts []string) Option {
	return func(c *runConfig) {
		c.allowedHosts = hosts
	}
}

// WithKV enables a KV store that lives for one run.
func WithKV() Option {
	return func(c *runConfig) {
		c.kvEnabled = true
	}
}

// WithKVStore provides a KV store for persistence across runs.
func WithKVStore(kv *hostfunc.KV) Option {
	return func(c *runConfig) {
		c.kvEnabled = true
		c.kvStore = kv
	}
}

// WithOSAccess exposes environment, working directory and host information.
func WithOSAccess() Option {
	return func(c *runConfig) {
		c.osAccess = true
	}
}

// WithModuleRoot lets load() find .star and .tjsb files under dir before
// falling back to the builtin modules.
func WithModuleRoot(dir string) Option {
	return func(c *runConfig) {
		c.moduleRoot = dir
	}
}

// Mount permission modes (re-exported from hostfunc for convenience).
const (
	MountReadOnly        = hostfunc.MountReadOnly
	MountReadWrite       = hostfunc.MountReadWrite
	MountReadWriteCreate = hostfunc.MountReadWriteCreate
)

// WithMount adds a filesystem mount point with the specified permissions.
// The virtual path is what scripts see; host path is the actual location.
//
// Examples:
//
//	executor.WithMount("/data", "./input", executor.MountReadOnly)
//	executor.WithMount("/output", "./results", executor.MountReadWrite)
//	executor.WithMount("/workspace", "./work", executor.MountReadWriteCreate)
func WithMount(virtualPath, hostPath string, mode hostfunc.MountMode) Option {
	return func(c *runConfig) {
		c.mounts = append(c.mounts, hostfunc.Mount{
			VirtualPath: virtualPath,
			HostPath:    hostPath,
			Mode:        mode,
		})
	}
}

// WithKVMaxKeySize sets the maximum key size for KV store operations.
func WithKVMaxKeySize(size int) Option {
	return func(c *runConfig) {
		c.kvOptions = append(c.kvOptions, hostfunc.WithMaxKeySize(size))
	}
}

// WithKVMaxValueSize sets the maximum value size for KV store operations.
func WithKVMaxValueSize(size int) Option {
	return func(c *runConfig) {
		c.kvOptions = append(c.kvOptions, hostfunc.WithMaxValueSize(size))
	}
}

// WithKVMaxEntries sets the maximum number of entries in the KV store.
func WithKVMaxEntries(n int) Option {
	return func(c *runConfig) {
		c.kvOptions = append(c.kvOptions, hostfunc.WithMaxEntries(n))
	}
}

// WithHTTPMaxURLLength sets the maximum URL length for HTTP requests.
func WithHTTPMaxURLLength(size int) Option {
	return func(c *runConfig) {
		c.httpMaxURLLength = size
	}
}

// WithHTTPMaxBodySize sets the maximum response body size for HTTP requests.
func WithHTTPMaxBodySize(size int64) Option {
	return func(c *runConfig) {
		c.httpMaxBodySize = size
	}
}

// WithHTTPTimeout sets the timeout of a single HTTP request.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *runConfig) {
		c.httpTimeout = d
	}
}

// WithFSMaxFileSize sets the maximum file size for read operations.
func WithFSMaxFileSize(size int64) Option {
	return func(c *runConfig) {
		c.fsOptions = append(c.fsOptions, hostfunc.WithMaxFileSize(size))
	}
}

// WithFSMaxWriteSize sets the maximum content size for write operations.
func WithFSMaxWriteSize(size int64) Option {
	return func(c *runConfig) {
		c.fsOptions = append(c.fsOptions, hostfunc.WithMaxWriteSize(size))
	}
}

// WithFSMaxPathLength sets the maximum path length for filesystem operations.
func WithFSMaxPathLength(length int) Option {
	return func(c *runConfig) {
		c.fsOptions = append(c.fsOptions, hostfunc.WithMaxPathLength(length))
	}
}

// ExecutorOption configures the Executor at creation time.
type ExecutorOption func(*executorConfig)

type executorConfig struct {
	log              *zap.Logger
	builtins         *builtin.Registry
	wasm             bool
	diskCache        bool
	cacheDir         string
	memoryLimitPages uint32 // Max memory pages (each page = 64KB), 0 = default (4GB)
}

func defaultExecutorConfig() executorConfig {
	return executorConfig{}
}

// WithLogger sets the logger used by the executor and its builtin loader.
func WithLogger(log *zap.Logger) ExecutorOption {
	return func(c *executorConfig) {
		c.log = log
	}
}

// WithBuiltins replaces the embedded standard library with reg.
func WithBuiltins(reg *builtin.Registry) ExecutorOption {
	return func(c *executorConfig) {
		c.builtins = reg
	}
}

// WithWasm enables tjs.wasm_call and tjs.wasm_exports.
func WithWasm() ExecutorOption {
	return func(c *executorConfig) {
		c.wasm = true
	}
}

// WithDiskCache enables a persistent compilation cache for WebAssembly
// modules. Optionally provide a custom directory; otherwise uses
// ~/.cache/tjs or XDG_CACHE_HOME/tjs. It implies WithWasm.
//
// Examples:
//
//	executor.New(registry, executor.WithDiskCache())            // default dir
//	executor.New(registry, executor.WithDiskCache("/tmp/cache")) // custom dir
func WithDiskCache(dir ...string) ExecutorOption {
	return func(c *executorConfig) {
		c.wasm = true
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithMemoryLimit sets the maximum memory available to WebAssembly modules.
// Each page is 64KB. Examples:
//   - WithMemoryLimit(16) = 1MB max
//   - WithMemoryLimit(256) = 16MB max
//   - WithMemoryLimit(1024) = 64MB max
//   - WithMemoryLimit(4096) = 256MB max
//
// Default is 0 (no limit, up to 4GB).
func WithMemoryLimit(pages uint32) ExecutorOption {
	return func(c *executorConfig) {
		c.memoryLimitPages = pages
	}
}

// Memory limit constants for convenience.
const (
	MemoryLimit1MB   uint32 = 16    // 1 MB
	MemoryLimit16MB  uint32 = 256   // 16 MB
	MemoryLimit64MB  uint32 = 1024  // 64 MB
	MemoryLimit256MB uint32 = 4096  // 256 MB
	MemoryLimit1GB   uint32 = 16384 // 1 GB
)
