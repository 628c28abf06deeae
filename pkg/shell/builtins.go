package shell

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// registerBuiltins installs every built-in command sush implements
// directly rather than forking, generalizing the teacher's builtin set
// (echo/exit/type/pwd/cd) to the larger set registered below.
func (s *Shell) registerBuiltins() {
	s.Builtins["echo"] = builtinEcho
	s.Builtins["exit"] = builtinExit
	s.Builtins["pwd"] = builtinPwd
	s.Builtins["cd"] = builtinCd
	s.Builtins["type"] = builtinType
	s.Builtins["true"] = func(*Shell, []string, IOBindings) (int, error) { return 0, nil }
	s.Builtins["false"] = func(*Shell, []string, IOBindings) (int, error) { return 1, nil }
	s.Builtins[":"] = func(*Shell, []string, IOBindings) (int, error) { return 0, nil }
	s.Builtins["export"] = builtinExport
	s.Builtins["unset"] = builtinUnset
	s.Builtins["local"] = builtinLocal
	s.Builtins["shift"] = builtinShift
	s.Builtins["set"] = builtinSet
	s.Builtins["return"] = builtinReturn
	s.Builtins["break"] = builtinBreak
	s.Builtins["continue"] = builtinContinue
	s.Builtins["read"] = builtinRead
	s.Builtins["jobs"] = builtinJobs
	s.Builtins["wait"] = builtinWait
	s.Builtins["eval"] = builtinEval
	s.Builtins["source"] = builtinSource
	s.Builtins["."] = builtinSource
	s.Builtins["alias"] = builtinAlias
	s.Builtins["readonly"] = builtinReadonly
}

func builtinEcho(s *Shell, args []string, io IOBindings) (int, error) {
	newline := true
	i := 0
	for i < len(args) && args[i] == "-n" {
		newline = false
		i++
	}
	fmt.Fprint(io.Stdout(), strings.Join(args[i:], " "))
	if newline {
		fmt.Fprintln(io.Stdout())
	}
	return 0, nil
}

func builtinExit(s *Shell, args []string, io IOBindings) (int, error) {
	status := s.LastStatus
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			status = n
		}
	}
	return status, ErrExit
}

func builtinPwd(s *Shell, args []string, io IOBindings) (int, error) {
	dir, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(io.Stderr(), "pwd:", err)
		return 1, nil
	}
	fmt.Fprintln(io.Stdout(), dir)
	return 0, nil
}

func builtinCd(s *Shell, args []string, io IOBindings) (int, error) {
	target := ""
	if len(args) == 0 {
		target, _ = s.Store.Get("HOME")
	} else {
		target = args[0]
	}
	if target == "-" {
		old, ok := s.Store.Get("OLDPWD")
		if !ok {
			fmt.Fprintln(io.Stderr(), "cd: OLDPWD not set")
			return 1, nil
		}
		target = old
		fmt.Fprintln(io.Stdout(), target)
	}
	cur, _ := os.Getwd()
	if err := os.Chdir(target); err != nil {
		fmt.Fprintf(io.Stderr(), "cd: %s: %v\n", target, err)
		return 1, nil
	}
	newWd, _ := os.Getwd()
	s.Store.Set("OLDPWD", cur)
	s.Store.Set("PWD", newWd)
	return 0, nil
}

func builtinType(s *Shell, args []string, io IOBindings) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	status := 0
	for _, name := range args {
		switch {
		case func() bool { _, ok := s.Store.Function(name); return ok }():
			fmt.Fprintf(io.Stdout(), "%s is a function\n", name)
		case s.Builtins[name] != nil:
			fmt.Fprintf(io.Stdout(), "%s is a shell builtin\n", name)
		default:
			if path, ok := s.Lookup(name); ok {
				fmt.Fprintf(io.Stdout(), "%s is %s\n", name, path)
			} else {
				fmt.Fprintf(io.Stderr(), "%s: not found\n", name)
				status = 1
			}
		}
	}
	return status, nil
}

func builtinExport(s *Shell, args []string, io IOBindings) (int, error) {
	for _, a := range args {
		name, value, has := strings.Cut(a, "=")
		if has {
			s.Store.Set(name, value)
		}
		s.Store.Export(name)
	}
	return 0, nil
}

func builtinReadonly(s *Shell, args []string, io IOBindings) (int, error) {
	for _, a := range args {
		name, value, has := strings.Cut(a, "=")
		if has {
			s.Store.Set(name, value)
		}
		s.Store.SetReadOnly(name)
	}
	return 0, nil
}

func builtinUnset(s *Shell, args []string, io IOBindings) (int, error) {
	for _, name := range args {
		s.Store.Unset(name)
	}
	return 0, nil
}

func builtinLocal(s *Shell, args []string, io IOBindings) (int, error) {
	for _, a := range args {
		name, value, has := strings.Cut(a, "=")
		s.Store.SetLocal(name, value, has)
	}
	return 0, nil
}

func builtinShift(s *Shell, args []string, io IOBindings) (int, error) {
	n := 1
	if len(args) > 0 {
		if v, err := strconv.Atoi(args[0]); err == nil {
			n = v
		}
	}
	pos := s.Store.Positional()
	if n > len(pos) {
		return 1, nil
	}
	s.Store.SetPositional(pos[n:])
	return 0, nil
}

// builtinSet implements the subset of `set` spec.md §4.8/§9 exercises:
// -e/-u/-v/-f/-o pipefail, plus positional-parameter replacement via
// `set -- args...`.
func builtinSet(s *Shell, args []string, io IOBindings) (int, error) {
	i := 0
	for i < len(args) {
		a := args[i]
		switch a {
		case "--":
			s.Store.SetPositional(args[i+1:])
			return 0, nil
		case "-e":
			s.Opts.ErrExit = true
		case "+e":
			s.Opts.ErrExit = false
		case "-u":
			s.Opts.NoUnset = true
		case "+u":
			s.Opts.NoUnset = false
		case "-f":
			s.Opts.NoGlob = true
		case "+f":
			s.Opts.NoGlob = false
		case "-v":
			s.Opts.Verbose = true
		case "-o":
			if i+1 < len(args) {
				i++
				applySetDashO(s, args[i], true)
			}
		case "+o":
			if i+1 < len(args) {
				i++
				applySetDashO(s, args[i], false)
			}
		}
		i++
	}
	return 0, nil
}

func applySetDashO(s *Shell, name string, on bool) {
	switch name {
	case "pipefail":
		s.Opts.PipeFail = on
	case "noglob":
		s.Opts.NoGlob = on
	case "errexit":
		s.Opts.ErrExit = on
	case "nounset":
		s.Opts.NoUnset = on
	case "extglob":
		s.Opts.ExtGlob = on
	}
}

func builtinReturn(s *Shell, args []string, io IOBindings) (int, error) {
	status := s.LastStatus
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			status = n
		}
	}
	return status, returnSignal{status: status}
}

func builtinBreak(s *Shell, args []string, io IOBindings) (int, error) {
	level := 1
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			level = n
		}
	}
	return 0, breakSignal{level: level}
}

func builtinContinue(s *Shell, args []string, io IOBindings) (int, error) {
	level := 1
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			level = n
		}
	}
	return 0, continueSignal{level: level}
}

func builtinRead(s *Shell, args []string, io IOBindings) (int, error) {
	names := args
	if len(names) > 0 && names[0] == "-r" {
		names = names[1:]
	}
	if len(names) == 0 {
		names = []string{"REPLY"}
	}
	// Read one byte at a time so nothing past the newline is consumed and
	// the next read on the same fd starts at the following line.
	var sb strings.Builder
	b := make([]byte, 1)
	var err error
	for {
		var n int
		n, err = io.Stdin().Read(b)
		if n > 0 && b[0] == '\n' {
			break
		}
		if n > 0 {
			sb.WriteByte(b[0])
		}
		if err != nil {
			break
		}
	}
	line := sb.String()
	if err != nil && line == "" {
		return 1, nil
	}
	ifs, _ := s.Store.Get("IFS")
	if ifs == "" {
		ifs = " \t\n"
	}
	fields := strings.FieldsFunc(line, func(r rune) bool { return strings.ContainsRune(ifs, r) })
	for i, name := range names {
		if i < len(fields) {
			if i == len(names)-1 && len(fields) > len(names) {
				s.Store.Set(name, strings.Join(fields[i:], " "))
			} else {
				s.Store.Set(name, fields[i])
			}
		} else {
			s.Store.Set(name, "")
		}
	}
	return 0, nil
}

func builtinJobs(s *Shell, args []string, io IOBindings) (int, error) {
	for _, j := range s.Jobs.List() {
		fmt.Fprintf(io.Stdout(), "[%d]  %s\t%s\n", j.ID, j.State, j.Command)
	}
	return 0, nil
}

func builtinWait(s *Shell, args []string, io IOBindings) (int, error) {
	if len(args) == 0 {
		return s.Jobs.Wait(0, func() bool { return true }), nil
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return 1, nil
	}
	return s.Jobs.Wait(id, func() bool { return true }), nil
}

func builtinEval(s *Shell, args []string, io IOBindings) (int, error) {
	src := strings.Join(args, " ")
	if err := s.RunSource(src); err != nil {
		return s.LastStatus, err
	}
	return s.LastStatus, nil
}

func builtinSource(s *Shell, args []string, io IOBindings) (int, error) {
	if len(args) == 0 {
		fmt.Fprintln(io.Stderr(), "source: filename argument required")
		return 1, nil
	}
	path := args[0]
	if !filepath.IsAbs(path) {
		if wd, err := os.Getwd(); err == nil {
			path = filepath.Join(wd, path)
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(io.Stderr(), "source: %s: %v\n", args[0], err)
		return 1, nil
	}
	if err := s.RunSource(string(data)); err != nil {
		return s.LastStatus, err
	}
	return s.LastStatus, nil
}

func builtinAlias(s *Shell, args []string, io IOBindings) (int, error) {
	if len(args) == 0 {
		for name, val := range s.aliases {
			fmt.Fprintf(io.Stdout(), "alias %s='%s'\n", name, val)
		}
		return 0, nil
	}
	for _, a := range args {
		name, val, has := strings.Cut(a, "=")
		if has {
			s.aliases[name] = val
		} else if v, ok := s.aliases[name]; ok {
			fmt.Fprintf(io.Stdout(), "alias %s='%s'\n", name, v)
		}
	}
	return 0, nil
}
