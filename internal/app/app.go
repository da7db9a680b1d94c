// Package app wires configuration, the census, client provisioning and output
// into the connprobe command line.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mateo19851/http-client-test/internal/probe"
)

const (
	exitOK = 0
	// exitFailed means a run finished but did not meet its expectation or was
	// stopped before completing.
	exitFailed = 1
	// exitError means no verdict could be reached.
	exitError = 2
)

var (
	version   = "dev"
	commit    = ""
	buildDate = ""
)

// SetVersionBuildCommitString records the values injected at link time.
func SetVersionBuildCommitString(v, c, d string) {
	if v != "" {
		version = v
	}
	commit = c
	buildDate = d
}

func versionString() string {
	s := version
	if commit != "" {
		s += " (" + commit + ")"
	}
	if buildDate != "" {
		s += " built " + buildDate
	}
	return s
}

// verdictError marks a run that completed with a failing verdict. Its message
// has already been rendered by the report.
type verdictError struct {
	err error
}

func (e *verdictError) Error() string { return e.err.Error() }
func (e *verdictError) Unwrap() error { return e.err }

// Execute runs the root command and exits the process.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string) int {
	root := NewRootCommand(os.Stdout, os.Stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	code := exitCode(err)
	if err != nil && code == exitError {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return code
}

func exitCode(err error) int {
	var verdict *verdictError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &verdict), errors.Is(err, probe.ErrStopped):
		return exitFailed
	default:
		return exitError
	}
}
