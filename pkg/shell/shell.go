// Package shell implements sush's executor and job controller: it walks
// the parse tree the parser package produces, drives the expansion
// engine over every word, forks pipelines, applies redirections, and
// maintains the job table, following the architecture of the teacher's
// original Shell/Executor/RedirectionManager split while generalizing
// it from four builtins and two redirection operators to the whole of
// SPEC_FULL.md.
package shell

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sush-shell/sush/internal/ast"
	"github.com/sush-shell/sush/internal/expand"
	"github.com/sush-shell/sush/internal/glob"
	"github.com/sush-shell/sush/internal/input"
	"github.com/sush-shell/sush/internal/job"
	"github.com/sush-shell/sush/internal/parser"
	"github.com/sush-shell/sush/internal/vars"
)

// ErrExit is returned up through eval/Run when the `exit` builtin
// terminates the shell, carried over from the teacher's exit-signaling
// convention. End of input is signaled separately, by input.ErrEOF.
var ErrExit = errors.New("shell: exit")

// Builtin is a built-in command's implementation: it receives its
// already-expanded argv and the command's I/O bindings, and returns the
// command's exit status.
type Builtin func(s *Shell, args []string, io IOBindings) (int, error)

// Options are the `set`-controlled behavior flags of spec.md §4.8/§9.
type Options struct {
	ErrExit    bool // set -e
	PipeFail   bool // set -o pipefail
	NoUnset    bool // set -u
	Verbose    bool // set -v
	NoGlob     bool // set -f
	ExtGlob    bool // shopt -s extglob
	Noexec     bool // set -n (parse only, do not run) — not wired into Run yet
	Monitor    bool // set -m (job control messages)
}

// Shell is sush's evaluator: one instance per shell process (or
// subshell), holding the variable store, job table, option flags, and
// the redirection/exec collaborators adapted from the teacher.
type Shell struct {
	Store    *vars.Store
	Jobs     *job.Table
	Log      *zap.Logger
	Builtins map[string]Builtin
	Exec     Executor
	Redir    *RedirectionManager
	Opener   FileOpener

	Opts       Options
	LastStatus int
	LastBgPID  int
	ShellOpts  string // textual rendering of active `set -o` flags for "$-"

	funcDepth int
	aliases   map[string]string
}

// New creates a Shell seeded from the process environment (spec.md §6),
// with every standard builtin registered.
func New(logger *zap.Logger) *Shell {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Shell{
		Store:    vars.New(),
		Jobs:     job.New(),
		Log:      logger,
		Builtins: make(map[string]Builtin),
		Exec:     ProcessExecutor{},
		Opener:   DefaultFileOpener{},
		aliases:  make(map[string]string),
	}
	s.Redir = NewRedirectionManager(s.Opener)
	s.registerBuiltins()
	if wd, err := os.Getwd(); err == nil {
		s.Store.Set("PWD", wd)
	}
	if _, ok := s.Store.Get("IFS"); !ok {
		s.Store.Set("IFS", " \t\n")
	}
	return s
}

// RunInteractive drives the REPL over src until EOF/exit, printing
// primary/continuation prompts and reporting background-job completion
// before each new prompt (SPEC_FULL.md §10).
func (s *Shell) RunInteractive(src input.LineSource) int {
	for {
		s.reportDoneJobs(os.Stdout)
		text, err := input.ReadCommand(src, s.prompt1(), s.prompt2())
		if err != nil {
			if errors.Is(err, input.ErrEOF) {
				return s.LastStatus
			}
			if input.IsInterrupted(err) {
				continue
			}
			fmt.Fprintln(os.Stderr, "sush:", err)
			return 1
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		if err := s.RunSource(text); err != nil {
			if errors.Is(err, ErrExit) {
				return s.LastStatus
			}
		}
	}
}

func (s *Shell) prompt1() string {
	if v, ok := s.Store.Get("PS1"); ok && v != "" {
		return v
	}
	return "$ "
}

func (s *Shell) prompt2() string {
	if v, ok := s.Store.Get("PS2"); ok && v != "" {
		return v
	}
	return "> "
}

// RunSource parses and executes one chunk of source text end to end,
// updating s.LastStatus. It is the shared path used by interactive
// input, `-c`, script files, and `source`/`eval`.
func (s *Shell) RunSource(src string) error {
	list, err := parser.Parse(src)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sush: syntax error:", err)
		s.LastStatus = 2
		return nil
	}
	status, ctl, err := s.evalList(list, NewIOBindings())
	s.LastStatus = status
	_ = ctl
	return err
}

// RunCapture implements expand.CommandRunner: it runs src to completion
// in a child variable-store/job-table snapshot and captures its stdout,
// the mechanism `$(...)` and backtick command substitution rely on.
func (s *Shell) RunCapture(src string) (string, error) {
	traceID := uuid.New()
	s.Log.Debug("command substitution", zap.String("trace_id", traceID.String()))

	pr, pw, err := os.Pipe()
	if err != nil {
		return "", err
	}
	sub := s.subshell()
	io := NewIOBindings()
	io.Files[1] = pw

	done := make(chan struct{})
	var out []byte
	go func() {
		defer close(done)
		buf := make([]byte, 4096)
		for {
			n, rerr := pr.Read(buf)
			if n > 0 {
				out = append(out, buf[:n]...)
			}
			if rerr != nil {
				return
			}
		}
	}()

	list, perr := parser.Parse(src)
	if perr != nil {
		pw.Close()
		<-done
		pr.Close()
		return "", perr
	}
	status, _, err := sub.evalList(list, io)
	pw.Close()
	<-done
	pr.Close()
	s.LastStatus = status
	return string(out), err
}

// SetAlias installs a static word-for-word alias loaded from the rc file
// (SPEC_FULL.md §10). Aliases set this way are visible to the `alias`
// builtin and expanded the same way `alias name=value` would register
// them interactively.
func (s *Shell) SetAlias(name, value string) {
	s.aliases[name] = value
}

// subshell returns a Shell sharing this one's builtins/executor/options
// but with a copy-on-write variable store and a fresh job table, the
// isolation spec.md §3 invariant (c) requires for `(...)`/command
// substitution/background pipelines.
func (s *Shell) subshell() *Shell {
	clone := *s
	clone.Store = s.Store.Clone()
	clone.Jobs = job.New()
	return &clone
}

// Lookup searches PATH for an executable named name, the teacher's
// original Lookup generalized to read PATH from the variable store
// (so a script's own `PATH=` assignment takes effect) instead of a
// snapshot captured once at startup.
func (s *Shell) Lookup(name string) (string, bool) {
	if strings.Contains(name, "/") {
		if st, err := os.Stat(name); err == nil && !st.IsDir() && st.Mode()&0111 != 0 {
			return name, true
		}
		return "", false
	}
	path, _ := s.Store.Get("PATH")
	for _, dir := range strings.Split(path, string(os.PathListSeparator)) {
		if dir == "" {
			dir = "."
		}
		candidate := filepath.Join(dir, name)
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() && st.Mode()&0111 != 0 {
			return candidate, true
		}
	}
	return "", false
}

// expandContext builds the expand.Context this evaluation step should
// use, reflecting the shell's current option flags.
func (s *Shell) expandContext() *expand.Context {
	ifs, ok := s.Store.Get("IFS")
	if !ok {
		ifs = " \t\n"
	}
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return &expand.Context{
		Store:      storeAdapter{s.Store},
		Runner:     s,
		IFS:        ifs,
		Glob:       glob.Options{ExtGlobEnabled: s.Opts.ExtGlob, FailGlob: false},
		Dir:        wd,
		NoGlob:     s.Opts.NoGlob,
		ExitStatus: s.LastStatus,
		LastBgPID:  s.LastBgPID,
		ShellPID:   os.Getpid(),
		ShellOpts:  s.ShellOpts,
		Unset: func(name, msg string) error {
			return fmt.Errorf("sush: %s: %s", name, msg)
		},
	}
}

// storeAdapter narrows *vars.Store to expand.Store's smaller surface.
type storeAdapter struct{ st *vars.Store }

func (a storeAdapter) Get(name string) (string, bool)   { return a.st.Get(name) }
func (a storeAdapter) IsSet(name string) bool            { return a.st.IsSet(name) }
func (a storeAdapter) Set(name, value string)            { a.st.Set(name, value) }
func (a storeAdapter) IndexedElements(name string) []string { return a.st.IndexedElements(name) }
func (a storeAdapter) Positional() []string              { return a.st.Positional() }

// expandWords runs the full expansion pipeline over a slice of parsed
// Words and concatenates their resulting fields into one argv.
func (s *Shell) expandWords(words []*ast.Word) ([]string, error) {
	ctx := s.expandContext()
	var out []string
	for _, w := range words {
		fields, err := expand.Word(w.Segments, ctx, false)
		if err != nil {
			return nil, err
		}
		out = append(out, fields...)
	}
	return out, nil
}

// reportDoneJobs prints the "[N]+ Done  command" lines spec.md §10's
// background-job supplement requires before the next prompt.
func (s *Shell) reportDoneJobs(w *os.File) {
	for _, j := range s.Jobs.ReapDone() {
		fmt.Fprintf(w, "[%d]+  Done\t%s\n", j.ID, j.Command)
	}
}
