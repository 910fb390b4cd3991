// Command tjs runs Starlark scripts against the embedded builtin modules.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/caffeineduck/tjs/hostfunc"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(exitStatus(err, os.Stderr))
	}
}

// exitStatus reports err and returns the process status for it. A script
// that called exit() gets its own status and no error message.
func exitStatus(err error, w io.Writer) int {
	var exit *hostfunc.ExitError
	if errors.As(err, &exit) {
		return exit.Status
	}
	fmt.Fprintf(w, "Error: %v\n", err)
	return 1
}
