// Package job implements the job table and pipeline status bookkeeping
// of spec.md §3/§4.8/§5: process groups, the Running/Stopped/Done state
// machine, pipefail aggregation, and the background-job additions of
// SPEC_FULL.md §10 (`&`, `jobs`, `wait`, `$!`).
package job

import (
	"os"
	"sort"
	"sync"
	"syscall"

	"github.com/google/uuid"
)

// State is a job's lifecycle state.
type State int

const (
	Running State = iota
	Stopped
	Done
)

func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	case Done:
		return "Done"
	default:
		return "Unknown"
	}
}

// Proc is one process within a job's pipeline.
type Proc struct {
	PID      int
	Done     bool
	ExitCode int
	Signaled bool
	Signal   os.Signal
}

// Job is one pipeline launched by the shell, tracked from the moment its
// process group is forked until every member has exited and its status
// has been reaped by `wait` or reported by the prompt (spec.md §3).
type Job struct {
	ID         int
	PGID       int
	Command    string // source text, for `jobs` listing
	Procs      []*Proc
	State      State
	Background bool
	PipeFail   bool
	TraceID    uuid.UUID // correlates this job's log lines across its pipeline stages; never exposed to scripts
	notified   bool      // whether a completed background job's status line was already printed
}

// LastStatus returns the job's aggregate exit status: under pipefail the
// rightmost nonzero status in the pipeline, otherwise the last process's
// status (spec.md §4.8).
func (j *Job) LastStatus() int {
	if len(j.Procs) == 0 {
		return 0
	}
	if j.PipeFail {
		for i := len(j.Procs) - 1; i >= 0; i-- {
			if j.Procs[i].ExitCode != 0 || j.Procs[i].Signaled {
				return statusFor(j.Procs[i])
			}
		}
		return 0
	}
	return statusFor(j.Procs[len(j.Procs)-1])
}

func statusFor(p *Proc) int {
	if p.Signaled {
		if sig, ok := p.Signal.(syscall.Signal); ok {
			return 128 + int(sig)
		}
		return 128
	}
	return p.ExitCode
}

// Done reports whether every process in the job has exited.
func (j *Job) Done() bool {
	for _, p := range j.Procs {
		if !p.Done {
			return false
		}
	}
	return true
}

// Table is the shell's job table (spec.md §4.8), one per shell instance,
// guarded by a mutex so a SIGCHLD handler can update it concurrently with
// the main loop reading it (spec.md §5's only genuine concurrency point).
type Table struct {
	mu     sync.Mutex
	jobs   map[int]*Job
	nextID int
}

// New creates an empty job table.
func New() *Table {
	return &Table{jobs: make(map[int]*Job)}
}

// Add registers a new job and assigns it the next job ID.
func (t *Table) Add(pgid int, command string, background bool, pipefail bool) *Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	j := &Job{ID: t.nextID, PGID: pgid, Command: command, Background: background, PipeFail: pipefail, State: Running, TraceID: uuid.New()}
	t.jobs[j.ID] = j
	return j
}

// Get returns the job with the given ID, or nil.
func (t *Table) Get(id int) *Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.jobs[id]
}

// Current returns the job table's "current job" (`%%`/`%+` in bash): the
// highest-ID job that is not yet Done.
func (t *Table) Current() *Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	var best *Job
	for _, j := range t.jobs {
		if j.State == Done {
			continue
		}
		if best == nil || j.ID > best.ID {
			best = j
		}
	}
	return best
}

// ByPID finds the job owning a given process, used when a SIGCHLD
// handler reaps a PID and needs to update the owning Job/Proc.
func (t *Table) ByPID(pid int) (*Job, *Proc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, j := range t.jobs {
		for _, p := range j.Procs {
			if p.PID == pid {
				return j, p
			}
		}
	}
	return nil, nil
}

// MarkExited records a process's termination status and recomputes the
// owning job's aggregate State.
func (t *Table) MarkExited(pid, exitCode int, signaled bool, sig os.Signal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, j := range t.jobs {
		for _, p := range j.Procs {
			if p.PID == pid {
				p.Done = true
				p.ExitCode = exitCode
				p.Signaled = signaled
				p.Signal = sig
				if j.Done() {
					j.State = Done
				}
				return
			}
		}
	}
}

// Complete marks a whole job Done with the given aggregate status
// directly, for background and/or jobs that run as an in-process
// goroutine rather than a real forked process (spec.md §5's
// single-process execution model for compound commands run via `&`).
func (t *Table) Complete(id int, status int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	if !ok {
		return
	}
	j.Procs = append(j.Procs, &Proc{Done: true, ExitCode: status})
	j.State = Done
}

// List returns all jobs sorted by ID, for the `jobs` builtin.
func (t *Table) List() []*Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Job, 0, len(t.jobs))
	for _, j := range t.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// ReapDone removes jobs whose state is Done and whose completion has
// already been reported, returning the ones still pending notification
// (for the "[N]+ Done  command" line printed before the next prompt).
func (t *Table) ReapDone() []*Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	var pending []*Job
	for id, j := range t.jobs {
		if j.State == Done {
			if !j.notified {
				j.notified = true
				pending = append(pending, j)
			} else {
				delete(t.jobs, id)
			}
		}
	}
	sort.Slice(pending, func(i, k int) bool { return pending[i].ID < pending[k].ID })
	return pending
}

// Wait blocks the caller's view of the job table until the given job ID
// (or every background job, if id==0) reaches Done, by repeatedly calling
// poll while it returns true; if poll returns false first, Wait gives up
// and returns 0. The executor supplies poll, which performs
// the actual blocking waitpid/SIGCHLD wait; Table itself has no
// knowledge of process control.
func (t *Table) Wait(id int, poll func() bool) int {
	for {
		if id != 0 {
			j := t.Get(id)
			if j == nil || j.State == Done {
				if j == nil {
					return 127
				}
				return j.LastStatus()
			}
		} else {
			if t.allBackgroundDone() {
				return 0
			}
		}
		if !poll() {
			return 0
		}
	}
}

func (t *Table) allBackgroundDone() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, j := range t.jobs {
		if j.Background && j.State != Done {
			return false
		}
	}
	return true
}
