package shell

import (
	"context"
	"errors"
	"os/exec"
	"sort"
	"syscall"
)

// ErrNotFound is returned when an executable cannot be located on PATH,
// carried over from the teacher's executor.go.
var ErrNotFound = errors.New("not found")

// ProcessExecutor.Execute starts path as a child process bound to io and
// returns its PID immediately plus a wait closure, so the caller (the
// pipeline runner) can fork every stage before waiting on any of them —
// required for pipes to work at all, unlike the teacher's original
// Run-to-completion Execute which only ever ran one command at a time.
func (ProcessExecutor) Execute(ctx context.Context, path string, args []string, env []string, io IOBindings) (int, func() (int, error), error) {
	cmd := exec.CommandContext(ctx, path)
	cmd.Args = args
	cmd.Env = env
	cmd.Stdin = io.Files[0]
	cmd.Stdout = io.Files[1]
	cmd.Stderr = io.Files[2]
	// os/exec maps ExtraFiles[i] to child fd 3+i, so the fd table's keys
	// above 2 must be walked in order for `3>file 4>file2`-style multi-fd
	// redirection to land on the right descriptor in the child.
	extraFDs := make([]int, 0, len(io.Files))
	for fd := range io.Files {
		if fd > 2 {
			extraFDs = append(extraFDs, fd)
		}
	}
	sort.Ints(extraFDs)
	for _, fd := range extraFDs {
		cmd.ExtraFiles = append(cmd.ExtraFiles, io.Files[fd])
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return 0, nil, ErrNotFound
		}
		return 0, nil, err
	}

	wait := func() (int, error) {
		err := cmd.Wait()
		if err == nil {
			return 0, nil
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
				return 128 + int(ws.Signal()), nil
			}
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}

	return cmd.Process.Pid, wait, nil
}
