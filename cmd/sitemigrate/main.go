package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"sitemigrate/internal/scheduler"
)

// Exit codes. A second scan of the same stage exits with exitBusy so cron
// wrappers can tell it apart from a failure.
const (
	exitOK       = 0
	exitFailure  = 1
	exitBusy     = 3
	exitCanceled = 130
)

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stderr))
}

func execute(ctx context.Context, args []string, stderr io.Writer) int {
	root := newRootCommand()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		return exitCanceled
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		fmt.Fprintln(stderr, "sitemigrate:", err)
		return exitBusy
	default:
		fmt.Fprintln(stderr, "sitemigrate:", err)
		return exitFailure
	}
}
