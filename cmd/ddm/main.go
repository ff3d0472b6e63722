// Package main provides the entry point for the ddm backup tool CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jamesainslie/ddm/pkg/ddm/output"
)

// Exit codes. Semantic codes (differences found, recoverable or
// unrecoverable inconsistencies) come from the subcommands through
// codeError.
const (
	exitOK    = 0
	exitError = 10
	exitUsage = 100
)

func main() {
	os.Exit(run())
}

func run() int {
	err := Execute()
	if err == nil {
		return exitOK
	}
	var code *codeError
	if errors.As(err, &code) {
		return code.code
	}
	var failure *runError
	if errors.As(err, &failure) {
		fmt.Fprintf(os.Stderr, "%s %v\n", output.BadBanner("Error:"), failure.err)
		return exitError
	}
	// Anything cobra rejected before a command ran is a usage error.
	fmt.Fprintln(os.Stderr, err)
	fmt.Fprintln(os.Stderr, "Run 'ddm --help' for usage.")
	return exitUsage
}

// codeError carries a semantic exit code out of a subcommand. The
// diagnostic text was already written by the command itself.
type codeError struct {
	code int
}

func (e *codeError) Error() string { return fmt.Sprintf("exit code %d", e.code) }

// exitCode returns nil for 0 so successful commands report success.
func exitCode(code int) error {
	if code == 0 {
		return nil
	}
	return &codeError{code: code}
}

// runError marks a command failure (bad path, I/O error, parse error) as
// opposed to a usage error.
type runError struct {
	err error
}

func (e *runError) Error() string { return e.err.Error() }
func (e *runError) Unwrap() error { return e.err }

func failed(err error) error {
	if err == nil {
		return nil
	}
	return &runError{err: err}
}
