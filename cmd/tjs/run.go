package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/caffeineduck/tjs/executor"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [file] [args...]",
		Short: "Run a script (stateless execution)",
		Long: `Execute a Starlark script or a compiled .tjsb artifact.

Code can be provided via:
  - File argument: tjs run script.star
  - Compiled file: tjs run script.tjsb
  - Inline flag:   tjs run -c 'print(1+1)'
  - Stdin:         echo 'print(1+1)' | tjs run

Arguments after the file (or all arguments with -c) are exposed to the
script as tjs.args. Modules are loaded relative to the script's directory
unless --module-root is given.`,
		Args: cobra.ArbitraryArgs,
		RunE: runRun,
	}
	addRunFlags(cmd)
	return cmd
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("code", "c", "", "Code to execute")
	addSessionFlags(cmd)
}

type script struct {
	name string
	data []byte
	args []string
	dir  string
}

func (s script) compiled() bool {
	return strings.EqualFold(filepath.Ext(s.name), executor.BlobExt)
}

func readScript(cmd *cobra.Command, args []string) (*script, error) {
	code, _ := cmd.Flags().GetString("code")

	switch {
	case code != "":
		return &script{name: "<cmdline>", data: []byte(code), args: args}, nil
	case len(args) > 0:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return nil, err
		}
		return &script{
			name: filepath.Base(args[0]),
			data: data,
			args: args[1:],
			dir:  filepath.Dir(args[0]),
		}, nil
	}

	in := cmd.InOrStdin()
	// Check if stdin has data (not a terminal)
	if f, ok := in.(*os.File); ok {
		if stat, err := f.Stat(); err == nil && stat.Mode()&os.ModeCharDevice != 0 {
			return nil, nil
		}
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	return &script{name: "<stdin>", data: data}, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	src, err := readScript(cmd, args)
	if err != nil {
		return err
	}
	if src == nil {
		// No piped input, show help
		return cmd.Help()
	}

	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	if s.moduleRoot == "" && src.dir != "" {
		s.moduleRoot = src.dir
	}

	exec, log, err := s.newExecutor(cmd)
	if err != nil {
		return err
	}
	defer exec.Close()
	defer log.Sync()

	opts := append(s.runOptions(), executor.WithName(src.name), executor.WithArgs(src.args))

	var result executor.Result
	if src.compiled() {
		result = exec.RunBlob(cmd.Context(), src.data, opts...)
	} else {
		result = exec.Run(cmd.Context(), string(src.data), opts...)
	}
	log.Debug("script finished",
		zap.String("name", src.name),
		zap.Duration("duration", result.Duration),
		zap.Bool("failed", result.Error != nil),
	)

	fmt.Fprint(cmd.OutOrStdout(), result.Output)
	return result.Error
}
