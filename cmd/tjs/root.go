package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/caffeineduck/tjs/hostfunc"
	"github.com/caffeineduck/tjs/internal/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tjs [file] [args...]",
		Short: "Starlark runtime with builtin modules and sandboxed host access",
		Long: `tjs - Run Starlark scripts with an embedded standard library.

Run code from files, inline strings, or stdin. By default, scripts
have no access to filesystem, network, or other system resources. Enable
capabilities explicitly with flags or a config file (--config tjs.hcl).`,
		Args:          cobra.ArbitraryArgs,
		RunE:          runRun, // Default to run command behavior
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "HCL config file with capability defaults")
	root.PersistentFlags().String("log-level", "warn", "Log level: debug, info, warn, error")
	root.PersistentFlags().String("log-format", "console", "Log format: console, json")
	root.PersistentFlags().Bool("no-cache", false, "Disable the WebAssembly compilation cache")

	// Add run-specific flags to root (for default command)
	addRunFlags(root)

	root.AddCommand(
		newRunCmd(),
		newReplCmd(),
		newServeCmd(),
		newCompileCmd(),
		newBuiltinsCmd(),
	)
	return root
}

// parseMount parses virtual:host[:mode]. The mode defaults to ro; when
// present it follows the last colon.
func parseMount(spec string) (hostfunc.Mount, error) {
	virtual, rest, ok := strings.Cut(spec, ":")
	if !ok || virtual == "" || rest == "" {
		return hostfunc.Mount{}, fmt.Errorf("invalid mount spec %q (expected virtual:host:mode)", spec)
	}
	if !strings.HasPrefix(virtual, "/") {
		return hostfunc.Mount{}, fmt.Errorf("invalid mount spec %q: virtual path must be absolute", spec)
	}

	host, modeStr := rest, ""
	if i := strings.LastIndex(rest, ":"); i >= 0 {
		host, modeStr = rest[:i], rest[i+1:]
	}
	if host == "" {
		return hostfunc.Mount{}, fmt.Errorf("invalid mount spec %q (expected virtual:host:mode)", spec)
	}

	mode, err := hostfunc.ParseMountMode(modeStr)
	if err != nil {
		return hostfunc.Mount{}, fmt.Errorf("invalid mount spec %q: %w", spec, err)
	}

	return hostfunc.Mount{
		VirtualPath: virtual,
		HostPath:    host,
		Mode:        mode,
	}, nil
}

func parseMemoryLimit(s string) (uint32, error) {
	pages, ok := config.MemoryPages(s)
	if !ok {
		return 0, fmt.Errorf("invalid memory limit %q (expected 1mb, 16mb, 64mb, 256mb, or 1gb)", s)
	}
	return pages, nil
}

func newLogger(levelStr, formatStr string, w io.Writer) *zap.Logger {
	var level zapcore.Level
	switch levelStr {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if formatStr == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), level))
}
