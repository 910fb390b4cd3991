package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/tjs/builtin"
	"github.com/caffeineduck/tjs/bytecode"
	"github.com/caffeineduck/tjs/executor"
)

func newCompileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile <file>",
		Short: "Compile a script into a .tjsb artifact",
		Long: `Compile a Starlark source file into a .tjsb artifact.

Kinds:
  script    run for its side effects (tjs run file.tjsb)
  function  must define main; tjs run calls it and prints the result
  module    loadable from a module root with load("name", ...)

The output defaults to the input path with its extension replaced by .tjsb.`,
		Args: cobra.ExactArgs(1),
		RunE: runCompile,
	}
	cmd.Flags().String("kind", "script", "Artifact kind: script, function, module")
	cmd.Flags().StringP("output", "o", "", "Output path")
	return cmd
}

func runCompile(cmd *cobra.Command, args []string) error {
	kindName, _ := cmd.Flags().GetString("kind")
	output, _ := cmd.Flags().GetString("output")

	kind, err := bytecode.ParseKind(kindName)
	if err != nil {
		return err
	}

	input := args[0]
	src, err := os.ReadFile(input)
	if err != nil {
		return err
	}

	blob, err := bytecode.Compile(filepath.Base(input), src, kind, builtin.IsPredeclared)
	if err != nil {
		return err
	}

	if output == "" {
		output = strings.TrimSuffix(input, filepath.Ext(input)) + executor.BlobExt
	}
	if err := os.WriteFile(output, blob, 0o644); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s artifact, %d bytes\n", output, kind, len(blob))
	return nil
}
