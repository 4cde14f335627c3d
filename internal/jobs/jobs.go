package jobs

import (
	"errors"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
)

var (
	ErrNoCurrentJob  = errors.New("no current job")
	ErrNoSuchJob     = errors.New("no such job")
	ErrJobTerminated = errors.New("job has terminated")
)

// Status is the aggregate state of a job, computed from its members.
type Status int

const (
	Running Status = iota
	Done
	Terminated
)

func (s Status) String() string {
	switch s {
	case Running:
		return "Running"
	case Done:
		return "Done"
	case Terminated:
		return "Terminated"
	}
	return "Unknown"
}

// Job is one submitted pipeline.
type Job struct {
	Command    string
	Background bool
	Suspended  bool

	pgid      int
	processes []*Process

	release     chan struct{}
	releaseOnce sync.Once
}

func NewJob(command string, background bool) *Job {
	return &Job{Command: command, Background: background, release: make(chan struct{})}
}

// Spawn starts cmd in the job's process group and adds it as a member.
// Members are not reaped before Launched is called.
func (j *Job) Spawn(cmd *exec.Cmd, closers ...io.Closer) (*Process, error) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	cmd.SysProcAttr.Pgid = j.pgid

	p, err := Start(cmd, j.release, closers...)
	if err != nil {
		return nil, err
	}
	j.Add(p)
	return p, nil
}

// Launched marks the end of spawning and lets the members be reaped.
func (j *Job) Launched() {
	j.releaseOnce.Do(func() { close(j.release) })
}

// Add appends a member. The first member fixes the process group id.
func (j *Job) Add(p *Process) {
	if len(j.processes) == 0 {
		j.pgid = p.Pid
	}
	j.processes = append(j.processes, p)
}

// Pgid is 0 until the first external process is added.
func (j *Job) Pgid() int {
	return j.pgid
}

func (j *Job) ID() string {
	return strconv.Itoa(j.pgid)
}

func (j *Job) Processes() []*Process {
	return j.processes
}

// Status is Running while any member is unresolved, then Terminated if any
// member failed or was signaled, otherwise Done.
func (j *Job) Status() Status {
	for _, p := range j.processes {
		if _, ok := p.Outcome(); !ok {
			return Running
		}
	}

	for _, p := range j.processes {
		if o, _ := p.Outcome(); !o.Success() {
			return Terminated
		}
	}

	return Done
}

// Signal forwards sig to every member. Members that already exited are
// skipped; the first other delivery failure is returned.
func (j *Job) Signal(sig syscall.Signal) error {
	var firstErr error
	for _, p := range j.processes {
		if err := p.Signal(sig); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
