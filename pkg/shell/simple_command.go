package shell

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sush-shell/sush/internal/ast"
	"github.com/sush-shell/sush/internal/expand"
	"github.com/sush-shell/sush/internal/job"
)

// evalSimpleCommand expands a simple command's assignments/words,
// applies its redirections, and dispatches to a function, builtin, or
// external executable in that precedence order (spec.md §4.8).
func (s *Shell) evalSimpleCommand(n *ast.SimpleCommand, io IOBindings) (int, control, error) {
	ctx := s.expandContext()

	if len(n.Words) == 0 {
		// Assignment-only command: bindings persist in the current scope
		// (spec.md §4.8's "var=val" standalone-assignment case).
		for _, a := range n.Assignments {
			if err := s.doAssignment(a, ctx); err != nil {
				return 1, control{}, err
			}
		}
		return 0, control{}, nil
	}

	argv, err := s.expandWords(n.Words)
	if err != nil {
		fmt.Fprintln(stderrOf(io), "sush:", err)
		return 1, control{}, nil
	}
	if len(argv) == 0 {
		return 0, control{}, nil
	}

	bindings, cleanup, err := s.Redir.ApplyAll(n.Redirections, io, ctx)
	if err != nil {
		fmt.Fprintln(stderrOf(io), "sush:", err)
		return 1, control{}, nil
	}
	if cleanup != nil {
		defer cleanup()
	}

	if expansion, ok := s.aliases[argv[0]]; ok {
		argv = append(strings.Fields(expansion), argv[1:]...)
		if len(argv) == 0 {
			return 0, control{}, nil
		}
	}

	name := argv[0]
	args := argv[1:]

	// Command-prefix assignments are written to the store before the
	// command runs and the prior value is not restored afterward, so they
	// persist past this command like a standalone assignment; they are not
	// confined to the command's own duration or environment.
	for _, a := range n.Assignments {
		if err := s.doAssignment(a, ctx); err != nil {
			return 1, control{}, err
		}
	}

	if body, ok := s.Store.Function(name); ok {
		return s.callFunction(name, body, args, bindings)
	}

	if b, ok := s.Builtins[name]; ok {
		status, err := b(s, args, bindings)
		return s.classifyBuiltinResult(status, err)
	}

	return s.runExternal(name, args, bindings)
}

func stderrOf(io IOBindings) *os.File {
	if f := io.Stderr(); f != nil {
		return f
	}
	return os.Stderr
}

// classifyBuiltinResult turns the break/continue/return sentinel errors
// into control signals instead of ordinary failures.
func (s *Shell) classifyBuiltinResult(status int, err error) (int, control, error) {
	var brk breakSignal
	var cont continueSignal
	var ret returnSignal
	switch {
	case errors.As(err, &brk):
		return 0, control{Kind: ctlBreak, Level: maxInt(brk.level, 1)}, nil
	case errors.As(err, &cont):
		return 0, control{Kind: ctlContinue, Level: maxInt(cont.level, 1)}, nil
	case errors.As(err, &ret):
		return ret.status, control{Kind: ctlReturn}, nil
	case errors.Is(err, ErrExit):
		return status, control{}, ErrExit
	case err != nil:
		fmt.Fprintln(os.Stderr, "sush:", err)
		return 1, control{}, nil
	default:
		return status, control{}, nil
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// callFunction invokes a user-defined function: pushes a local scope,
// rebinds $1.. to args, evaluates the body, and converts a `return`
// control signal into an ordinary status (spec.md §4.7's function-call
// scoping, spec.md §9's explicit guidance to thread return through
// control-flow results).
func (s *Shell) callFunction(name string, body interface{}, args []string, io IOBindings) (int, control, error) {
	node, ok := body.(ast.Node)
	if !ok {
		return 1, control{}, fmt.Errorf("sush: %s: corrupt function body", name)
	}
	s.funcDepth++
	defer func() { s.funcDepth-- }()

	savedPositional := s.Store.Positional()
	s.Store.PushFunctionScope()
	s.Store.SetPositional(args)
	status, ctl, err := s.evalNode(node, io)
	s.Store.PopFunctionScope()
	s.Store.SetPositional(savedPositional)

	if ctl.Kind == ctlReturn {
		return status, control{}, err
	}
	// break/continue escaping a function body is a user error in bash too;
	// sush simply stops propagating it past the function boundary.
	return status, control{}, err
}

// doAssignment performs a `name=value` (or array-element, or `+=`
// append) assignment (spec.md §4.7).
func (s *Shell) doAssignment(a *ast.Assignment, ctx *expand.Context) error {
	var value string
	if a.Value != nil {
		fields, err := expand.Word(a.Value.Segments, ctx, true)
		if err != nil {
			return err
		}
		if len(fields) > 0 {
			value = fields[0]
		}
	}
	if a.Index != nil {
		idxFields, err := expand.Word(a.Index.Segments, ctx, true)
		if err != nil {
			return err
		}
		idx := ""
		if len(idxFields) > 0 {
			idx = idxFields[0]
		}
		if n, err := strconv.Atoi(idx); err == nil {
			s.Store.SetIndexed(a.Name, n, value)
			return nil
		}
		s.Store.SetAssoc(a.Name, idx, value)
		return nil
	}
	if a.Append {
		old, _ := s.Store.Get(a.Name)
		value = old + value
	}
	s.Store.Set(a.Name, value)
	return nil
}

func (s *Shell) runExternal(name string, args []string, io IOBindings) (int, control, error) {
	path, ok := s.Lookup(name)
	if !ok {
		fmt.Fprintf(stderrOf(io), "sush: %s: command not found\n", name)
		return 127, control{}, nil
	}
	pid, wait, err := s.Exec.Execute(context.Background(), path, append([]string{name}, args...), s.Store.Environ(), io)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			fmt.Fprintf(stderrOf(io), "sush: %s: command not found\n", name)
			return 127, control{}, nil
		}
		return 126, control{}, err
	}
	j := s.Jobs.Add(pid, name+" "+strings.Join(args, " "), false, s.Opts.PipeFail)
	j.Procs = append(j.Procs, &job.Proc{PID: pid})
	status, werr := wait()
	s.Jobs.MarkExited(pid, status, false, nil)
	return status, control{}, werr
}
