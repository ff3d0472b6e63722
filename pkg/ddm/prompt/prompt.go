// Package prompt provides the interactive yes/no decision oracle used by
// scrub and backup before destructive actions. The oracle is an interface
// so tests substitute a scripted decider such as Fixed.
package prompt

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Oracle answers yes/no questions.
type Oracle interface {
	// AskYesNo prints the question and blocks until an answer is
	// available. It returns true for yes.
	AskYesNo(question string) bool
}

// Terminal is the interactive oracle: it writes the question to out and
// reads single-character answers from in until one of y/n appears.
type Terminal struct {
	In  io.Reader
	Out io.Writer
}

// New returns an oracle reading stdin and writing stdout.
func New() *Terminal {
	return &Terminal{In: os.Stdin, Out: os.Stdout}
}

// AskYesNo implements Oracle. Answers may be piped in; a question that
// runs out of input fails closed, so destructive actions need an explicit
// yes.
func (t *Terminal) AskYesNo(question string) bool {
	fmt.Fprintf(t.Out, "%s [y/n]\n", question)
	if f, ok := t.In.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
		fmt.Fprintln(t.Out, "(standard input is not a terminal, reading scripted answer)")
	}
	// Read one byte at a time so that answers to later questions stay in
	// the input instead of in a discarded buffer.
	var c [1]byte
	for {
		n, err := t.In.Read(c[:])
		if n == 1 {
			switch c[0] {
			case 'y', 'Y':
				return true
			case 'n', 'N':
				return false
			}
			continue
		}
		if err != nil {
			return false
		}
	}
}

// Fixed is a non-interactive oracle answering every question the same way.
type Fixed bool

// AskYesNo implements Oracle.
func (f Fixed) AskYesNo(string) bool { return bool(f) }
