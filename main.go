package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

func main() {
	ctx := shutdownContext(context.Background(), slog.Default())

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if interrupted(ctx) {
			fmt.Fprintln(os.Stderr, "Interrupted")
			os.Exit(interruptExitCode)
		}

		exitOnError(err)
	}
}
