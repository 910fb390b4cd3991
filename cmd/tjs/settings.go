package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/caffeineduck/tjs/executor"
	"github.com/caffeineduck/tjs/hostfunc"
	"github.com/caffeineduck/tjs/internal/config"
)

// settings is the merged view of flags and the config file. A flag set on
// the command line wins over the file, the file wins over flag defaults.
type settings struct {
	timeout     time.Duration
	kv          bool
	hosts       []string
	mounts      []hostfunc.Mount
	osAccess    bool
	wasm        bool
	memoryPages uint32
	moduleRoot  string

	httpMaxURL  int
	httpMaxBody int64
	fsMaxFile   int64
	fsMaxWrite  int64
	fsMaxPath   int

	logLevel  string
	logFormat string
	noCache   bool
}

func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("timeout", 30*time.Second, "Execution timeout")
	cmd.Flags().Bool("kv", false, "Enable key-value store")
	cmd.Flags().StringArray("allow-host", nil, "Allow HTTP to host (repeatable)")
	cmd.Flags().StringArray("mount", nil, "Mount filesystem virtual:host:mode (repeatable)")
	cmd.Flags().Bool("os", false, "Enable environment, process and host information functions")
	cmd.Flags().Bool("wasm", false, "Enable tjs.wasm_call and tjs.wasm_exports")
	cmd.Flags().String("memory", "256mb", "WebAssembly memory limit: 1mb, 16mb, 64mb, 256mb, 1gb")
	cmd.Flags().String("module-root", "", "Directory load() searches for .star and .tjsb files")

	// Security limits
	cmd.Flags().Int("http-max-url", 8192, "Max HTTP URL length")
	cmd.Flags().Int64("http-max-body", 1024*1024, "Max HTTP response body size")
	cmd.Flags().Int64("fs-max-file", hostfunc.DefaultMaxFileSize, "Max file read size")
	cmd.Flags().Int64("fs-max-write", hostfunc.DefaultMaxWriteSize, "Max file write size")
	cmd.Flags().Int("fs-max-path", hostfunc.DefaultMaxPathLength, "Max path length")
}

func loadSettings(cmd *cobra.Command) (settings, error) {
	flags := cmd.Flags()

	var s settings
	s.timeout, _ = flags.GetDuration("timeout")
	s.kv, _ = flags.GetBool("kv")
	s.hosts, _ = flags.GetStringArray("allow-host")
	s.osAccess, _ = flags.GetBool("os")
	s.wasm, _ = flags.GetBool("wasm")
	s.moduleRoot, _ = flags.GetString("module-root")
	s.httpMaxURL, _ = flags.GetInt("http-max-url")
	s.httpMaxBody, _ = flags.GetInt64("http-max-body")
	s.fsMaxFile, _ = flags.GetInt64("fs-max-file")
	s.fsMaxWrite, _ = flags.GetInt64("fs-max-write")
	s.fsMaxPath, _ = flags.GetInt("fs-max-path")
	s.logLevel, _ = flags.GetString("log-level")
	s.logFormat, _ = flags.GetString("log-format")
	s.noCache, _ = flags.GetBool("no-cache")

	memory, _ := flags.GetString("memory")
	mounts, _ := flags.GetStringArray("mount")

	path, _ := flags.GetString("config")
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return s, err
		}
		if err := s.apply(cmd, cfg); err != nil {
			return s, err
		}
		if !flags.Changed("memory") && cfg.Memory != "" {
			memory = cfg.Memory
		}
	}

	pages, err := parseMemoryLimit(memory)
	if err != nil {
		return s, err
	}
	s.memoryPages = pages

	for _, spec := range mounts {
		m, err := parseMount(spec)
		if err != nil {
			return s, err
		}
		s.mounts = append(s.mounts, m)
	}
	return s, nil
}

// apply fills in every setting the command line left alone. Mounts and
// hosts from the file are added to those given as flags.
func (s *settings) apply(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed

	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		return err
	}
	if !changed("timeout") && timeout > 0 {
		s.timeout = timeout
	}
	if !changed("kv") && cfg.KV {
		s.kv = true
	}
	if !changed("os") && cfg.OSAccess {
		s.osAccess = true
	}
	if !changed("wasm") && cfg.Wasm {
		s.wasm = true
	}
	if !changed("module-root") && cfg.ModuleRoot != "" {
		s.moduleRoot = cfg.ModuleRoot
	}
	if cfg.Log != nil {
		if !changed("log-level") && cfg.Log.Level != "" {
			s.logLevel = cfg.Log.Level
		}
		if !changed("log-format") && cfg.Log.Format != "" {
			s.logFormat = cfg.Log.Format
		}
	}

	s.hosts = append(s.hosts, cfg.AllowHosts...)
	mounts, err := cfg.ParsedMounts()
	if err != nil {
		return err
	}
	s.mounts = append(s.mounts, mounts...)
	return nil
}

func (s settings) logger(cmd *cobra.Command) *zap.Logger {
	return newLogger(s.logLevel, s.logFormat, cmd.ErrOrStderr())
}

func (s settings) executorOptions(log *zap.Logger) []executor.ExecutorOption {
	opts := []executor.ExecutorOption{executor.WithLogger(log)}
	if s.wasm {
		if s.noCache {
			opts = append(opts, executor.WithWasm())
		} else {
			opts = append(opts, executor.WithDiskCache())
		}
		opts = append(opts, executor.WithMemoryLimit(s.memoryPages))
	}
	return opts
}

func (s settings) newExecutor(cmd *cobra.Command) (*executor.Executor, *zap.Logger, error) {
	log := s.logger(cmd)
	exec, err := executor.New(hostfunc.NewRegistry(), s.executorOptions(log)...)
	if err != nil {
		return nil, nil, err
	}
	return exec, log, nil
}

func (s settings) runOptions() []executor.Option {
	opts := []executor.Option{
		executor.WithTimeout(s.timeout),
		executor.WithHTTPMaxURLLength(s.httpMaxURL),
		executor.WithHTTPMaxBodySize(s.httpMaxBody),
		executor.WithFSMaxFileSize(s.fsMaxFile),
		executor.WithFSMaxWriteSize(s.fsMaxWrite),
		executor.WithFSMaxPathLength(s.fsMaxPath),
	}
	if s.kv {
		opts = append(opts, executor.WithKV())
	}
	if len(s.hosts) > 0 {
		opts = append(opts, executor.WithAllowedHosts(s.hosts))
	}
	for _, m := range s.mounts {
		opts = append(opts, executor.WithMount(m.VirtualPath, m.HostPath, m.Mode))
	}
	if s.osAccess {
		opts = append(opts, executor.WithOSAccess())
	}
	if s.moduleRoot != "" {
		opts = append(opts, executor.WithModuleRoot(s.moduleRoot))
	}
	return opts
}

func (s settings) sessionOptions() []executor.SessionOption {
	opts := []executor.SessionOption{
		executor.WithSessionTimeout(s.timeout),
		executor.WithSessionFSMaxFileSize(s.fsMaxFile),
	}
	if s.kv {
		opts = append(opts, executor.WithSessionKV())
	}
	if len(s.hosts) > 0 {
		opts = append(opts,
			executor.WithSessionAllowedHosts(s.hosts),
			executor.WithSessionHTTPMaxURLLength(s.httpMaxURL),
			executor.WithSessionHTTPMaxBodySize(s.httpMaxBody),
		)
	}
	for _, m := range s.mounts {
		opts = append(opts, executor.WithSessionMount(m.VirtualPath, m.HostPath, m.Mode))
	}
	if s.osAccess {
		opts = append(opts, executor.WithSessionOSAccess())
	}
	if s.moduleRoot != "" {
		opts = append(opts, executor.WithSessionModuleRoot(s.moduleRoot))
	}
	return opts
}
