package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/jamesainslie/ddm/pkg/ddm/element"
	"github.com/spf13/cobra"
)

// echoCmd round-trips metadata lines from stdin through the parser and
// printer. Debugging aid for the line format; hidden from help.
var echoCmd = &cobra.Command{
	Use:    "echo",
	Short:  "Re-print metadata lines read from stdin",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE:   runEcho,
}

func init() {
	rootCmd.AddCommand(echoCmd)
}

func runEcho(_ *cobra.Command, _ []string) error {
	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if sc.Text() == "" {
			fmt.Println()
			continue
		}
		e, err := element.ParseLine(sc.Text(), "stdin", lineNo)
		if err != nil {
			return failed(err)
		}
		fmt.Println(e.String())
	}
	return failed(sc.Err())
}
