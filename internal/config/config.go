// Package config loads the optional HCL file that supplies defaults for the
// tjs command line.
//
//	timeout     = "10s"
//	allow_hosts = ["api.example.com"]
//	kv          = true
//	memory      = "64mb"
//
//	mount "/data" {
//	  host = "./input"
//	  mode = "ro"
//	}
//
//	log {
//	  level  = "debug"
//	  format = "json"
//	}
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/caffeineduck/tjs/hostfunc"
)

// Config mirrors the capability flags shared by run, repl and serve.
type Config struct {
	Timeout    string   `hcl:"timeout,optional"`
	AllowHosts []string `hcl:"allow_hosts,optional"`
	KV         bool     `hcl:"kv,optional"`
	OSAccess   bool     `hcl:"os_access,optional"`
	Wasm       bool     `hcl:"wasm,optional"`
	Memory     string   `hcl:"memory,optional"`
	ModuleRoot string   `hcl:"module_root,optional"`

	Mounts []Mount `hcl:"mount,block"`
	Log    *Log    `hcl:"log,block"`
}

type Mount struct {
	Virtual string `hcl:"virtual,label"`
	Host    string `hcl:"host"`
	Mode    string `hcl:"mode,optional"`
}

type Log struct {
	Level  string `hcl:"level,optional"`
	Format string `hcl:"format,optional"`
}

// Load reads and validates an HCL (or HCL-flavoured JSON) file.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return &cfg, nil
}

// Parse decodes src as if it were read from filename. The extension of
// filename selects the syntax.
func Parse(filename string, src []byte) (*Config, error) {
	var cfg Config
	if err := hclsimple.Decode(filename, src, nil, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", filename, err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if _, err := c.TimeoutDuration(); err != nil {
		return err
	}
	if _, err := c.ParsedMounts(); err != nil {
		return err
	}
	if c.Memory != "" {
		if _, ok := MemoryPages(c.Memory); !ok {
			return fmt.Errorf("memory: unknown limit %q (expected 1mb, 16mb, 64mb, 256mb, or 1gb)", c.Memory)
		}
	}
	if c.Log != nil {
		switch c.Log.Level {
		case "", "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
		}
		switch c.Log.Format {
		case "", "console", "json":
		default:
			return fmt.Errorf("log.format: unknown format %q (expected console or json)", c.Log.Format)
		}
	}
	return nil
}

// TimeoutDuration returns zero when no timeout is set.
func (c *Config) TimeoutDuration() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("timeout: must not be negative, got %s", c.Timeout)
	}
	return d, nil
}

func (c *Config) ParsedMounts() ([]hostfunc.Mount, error) {
	mounts := make([]hostfunc.Mount, 0, len(c.Mounts))
	for _, m := range c.Mounts {
		if !strings.HasPrefix(m.Virtual, "/") {
			return nil, fmt.Errorf("mount %q: virtual path must be absolute", m.Virtual)
		}
		mode, err := hostfunc.ParseMountMode(m.Mode)
		if err != nil {
			return nil, fmt.Errorf("mount %q: %w", m.Virtual, err)
		}
		mounts = append(mounts, hostfunc.Mount{
			VirtualPath: m.Virtual,
			HostPath:    m.Host,
			Mode:        mode,
		})
	}
	return mounts, nil
}

// MemoryPages converts a memory limit name into WebAssembly pages.
func MemoryPages(s string) (uint32, bool) {
	switch strings.ToLower(s) {
	case "1mb":
		return 16, true
	case "16mb":
		return 256, true
	case "64mb":
		return 1024, true
	case "256mb":
		return 4096, true
	case "1gb":
		return 16384, true
	default:
		return 0, false
	}
}
