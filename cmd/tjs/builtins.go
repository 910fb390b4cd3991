package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/tjs/builtin"
)

func newBuiltinsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "builtins [specifier]",
		Short: "List builtin modules or print one's source",
		Long: `List the embedded builtin modules in resolution order with the size of
their compiled form. Given a specifier, print that module's source instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runBuiltins,
	}
}

func runBuiltins(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		src, ok := builtin.Source(args[0])
		if !ok {
			return fmt.Errorf("unknown builtin %q", args[0])
		}
		_, err := out.Write(src)
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, e := range builtin.Default().Entries() {
		fmt.Fprintf(tw, "%s\t%d bytes\n", e.Specifier, e.Size())
	}
	return tw.Flush()
}
