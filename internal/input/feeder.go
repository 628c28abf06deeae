// Package input implements the line-source abstraction of spec.md §4.1:
// read one logical line at a time, and when the parser reports that a
// construct (quote, here-doc, compound statement) is still open, keep
// appending further lines until it parses or the source is exhausted.
package input

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"golang.org/x/term"

	"github.com/sush-shell/sush/internal/parser"
)

// LineSource yields one raw line at a time. Implementations: an
// interactive readline-backed prompt, or a plain bufio.Scanner over a
// script file/pipe (spec.md §4.1's two feeder modes).
type LineSource interface {
	// ReadLine returns the next line (without its trailing newline) using
	// prompt as the line's prompt string when the source is interactive.
	ReadLine(prompt string) (string, error)
	Close() error
}

// ErrEOF is returned by ReadLine (and by ReadCommand, below) when the
// input source is exhausted with no partial command pending.
var ErrEOF = io.EOF

// Interactive wraps chzyer/readline for TTY sessions: history, line
// editing, and Ctrl-D/Ctrl-C handling the way an interactive shell's
// users expect.
type Interactive struct {
	rl *readline.Instance
}

// NewInteractive builds an Interactive feeder with the given history
// file path (may be empty to disable persistent history).
func NewInteractive(historyFile string) (*Interactive, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "$ ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, err
	}
	return &Interactive{rl: rl}, nil
}

func (f *Interactive) ReadLine(prompt string) (string, error) {
	f.rl.SetPrompt(prompt)
	line, err := f.rl.Readline()
	if err != nil {
		if errors.Is(err, readline.ErrInterrupt) {
			return "", errInterrupted
		}
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		return "", err
	}
	return line, nil
}

func (f *Interactive) Close() error { return f.rl.Close() }

var errInterrupted = errors.New("input: interrupted")

// IsInterrupted reports whether err is the Ctrl-C sentinel, distinct
// from EOF so the REPL can abandon the current (possibly multi-line)
// command and print a fresh prompt instead of exiting.
func IsInterrupted(err error) bool { return errors.Is(err, errInterrupted) }

// Scripted wraps a bufio.Scanner over a non-interactive source (a script
// file, a pipe, or `-c` string split into lines).
type Scripted struct {
	sc *bufio.Scanner
}

// NewScripted builds a Scripted feeder over r.
func NewScripted(r io.Reader) *Scripted {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Scripted{sc: sc}
}

func (f *Scripted) ReadLine(prompt string) (string, error) {
	if !f.sc.Scan() {
		if err := f.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return f.sc.Text(), nil
}

func (f *Scripted) Close() error { return nil }

// IsTTY reports whether fd (typically os.Stdin.Fd()) is attached to a
// terminal, used by the CLI entry point to choose between Interactive
// and Scripted feeders (spec.md §4.1).
func IsTTY(fd uintptr) bool { return term.IsTerminal(int(fd)) }

// ReadCommand reads and accumulates lines from src, using primary as the
// first line's prompt and continuation as every subsequent line's
// prompt, until parser.Parse succeeds or reports a real syntax error
// (not ErrNeedMore). It returns only the accumulated source text; the
// parsed tree is discarded, so the caller parses the text again.
func ReadCommand(src LineSource, primary, continuation string) (string, error) {
	var buf strings.Builder
	prompt := primary
	for {
		line, err := src.ReadLine(prompt)
		if err != nil {
			if buf.Len() > 0 && errors.Is(err, io.EOF) {
				// Input ended mid-construct: surface the accumulated text so
				// the caller's parse attempt produces the real syntax error
				// rather than masking it behind EOF.
				return buf.String(), nil
			}
			return "", err
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(line)

		_, perr := parser.Parse(buf.String())
		if perr == nil {
			return buf.String(), nil
		}
		if errors.Is(perr, parser.ErrNeedMore) {
			prompt = continuation
			continue
		}
		return buf.String(), nil
	}
}
