// Command compile turns every .star file in a directory into a module blob
// next to it. It runs under go generate so the builtin table embeds compiled
// programs instead of sources.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caffeineduck/tjs/builtin"
	"github.com/caffeineduck/tjs/bytecode"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintln(os.Stderr, "usage: compile <specifier-prefix> <dir>")
		os.Exit(1)
	}

	prefix, dir := os.Args[1], os.Args[2]

	sources, err := filepath.Glob(filepath.Join(dir, "*.star"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if len(sources) == 0 {
		fmt.Fprintf(os.Stderr, "no .star files in %s\n", dir)
		os.Exit(1)
	}

	for _, src := range sources {
		if err := compile(prefix, src); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
}

func compile(prefix, src string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	name := strings.TrimSuffix(filepath.Base(src), ".star")
	blob, err := bytecode.Compile(prefix+name, data, bytecode.KindModule, builtin.IsPredeclared)
	if err != nil {
		return err
	}

	out := strings.TrimSuffix(src, ".star") + ".tjsb"
	if old, err := os.ReadFile(out); err == nil && string(old) == string(blob) {
		return nil
	}
	return os.WriteFile(out, blob, 0o644)
}
