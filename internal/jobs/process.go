package jobs

import (
	"errors"
	"io"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Outcome is how a process ended.
type Outcome struct {
	Code   int
	Signal syscall.Signal
}

// Success reports a zero exit that was not caused by a signal.
func (o Outcome) Success() bool {
	return o.Code == 0 && o.Signal == 0
}

// Process is one spawned member of a job. Its outcome is resolved by a
// single reaper goroutine; everything else only reads it.
type Process struct {
	Pid int

	done    chan struct{}
	outcome Outcome
	closers []io.Closer
}

// Start starts cmd and reaps it in the background once release is closed
// (immediately when release is nil). Holding the reap keeps an exited group
// leader around as a zombie, so later members can still join its group.
// closers are closed once the process has been reaped.
func Start(cmd *exec.Cmd, release <-chan struct{}, closers ...io.Closer) (*Process, error) {
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &Process{
		Pid:     cmd.Process.Pid,
		done:    make(chan struct{}),
		closers: closers,
	}
	go p.reap(cmd, release)

	return p, nil
}

func (p *Process) reap(cmd *exec.Cmd, release <-chan struct{}) {
	if release != nil {
		<-release
	}
	_ = cmd.Wait()
	p.outcome = outcomeOf(cmd)

	for _, c := range p.closers {
		_ = c.Close()
	}
	close(p.done)
}

func outcomeOf(cmd *exec.Cmd) Outcome {
	if cmd.ProcessState == nil {
		return Outcome{Code: -1}
	}

	if ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return Outcome{Code: -1, Signal: ws.Signal()}
	}

	return Outcome{Code: cmd.ProcessState.ExitCode()}
}

// Done is closed once the outcome is resolved.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Outcome returns the resolved outcome, or false while the process runs.
func (p *Process) Outcome() (Outcome, bool) {
	select {
	case <-p.done:
		return p.outcome, true
	default:
		return Outcome{}, false
	}
}

// Signal delivers sig to the process. A process that already exited is not
// an error; its pid may belong to someone else by now.
func (p *Process) Signal(sig syscall.Signal) error {
	if _, ok := p.Outcome(); ok {
		return nil
	}

	err := unix.Kill(p.Pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}
