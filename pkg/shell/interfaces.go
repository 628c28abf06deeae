package shell

import "context"

// Executor starts one external command and returns its PID plus a wait
// closure that reports its exit status, abstracting process creation so
// tests can substitute a fake without forking real processes.
type Executor interface {
	Execute(ctx context.Context, path string, args []string, env []string, io IOBindings) (pid int, wait func() (int, error), err error)
}

// ProcessExecutor is the production Executor: os/exec against the real
// operating system.
type ProcessExecutor struct{}
