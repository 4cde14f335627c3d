package jobs

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

const (
	sigInt  = unix.SIGINT
	sigTstp = unix.SIGTSTP
	sigCont = unix.SIGCONT
)

// WaitResult tells why Router.Wait returned.
type WaitResult int

const (
	Finished WaitResult = iota
	Interrupted
	Suspended
)

// Router decides who receives the terminal's interrupt and suspend signals.
// Signal delivery only queues; the control goroutine dequeues in Wait and
// Idle and performs the state transitions.
type Router struct {
	events <-chan os.Signal
	stop   func()
	fg     *Job
	logger *slog.Logger
}

// NewRouter subscribes to SIGINT and SIGTSTP for the lifetime of the router.
func NewRouter(logger *slog.Logger) *Router {
	ch := make(chan os.Signal, 8)
	signal.Notify(ch, sigInt, sigTstp)

	r := NewRouterWithEvents(ch, logger)
	r.stop = func() { signal.Stop(ch) }
	return r
}

// NewRouterWithEvents routes signals read from events instead of the
// process' own signal stream.
func NewRouterWithEvents(events <-chan os.Signal, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Router{events: events, logger: logger}
}

func (r *Router) Close() {
	if r.stop != nil {
		r.stop()
	}
}

// Foreground is the job currently being waited on, if any.
func (r *Router) Foreground() *Job {
	return r.fg
}

// Idle consumes the signals that arrived while no job was in the
// foreground and returns how many there were.
func (r *Router) Idle() int {
	n := 0
	for {
		select {
		case sig := <-r.events:
			r.logger.Debug("signal intercepted by shell", "signal", sig.String())
			n++
		default:
			return n
		}
	}
}

// Wait makes job the foreground job and blocks until every member has
// exited, or an interrupt or suspend arrives. Both are forwarded to every
// member before returning.
func (r *Router) Wait(ctx context.Context, job *Job) (WaitResult, error) {
	r.fg = job
	defer func() { r.fg = nil }()

	for _, p := range job.Processes() {
	wait:
		for {
			select {
			case <-p.Done():
				break wait
			case sig := <-r.events:
				switch sig {
				case sigInt:
					r.forward(job, sigInt)
					return Interrupted, nil
				case sigTstp:
					r.forward(job, sigTstp)
					job.Suspended = true
					job.Background = false
					return Suspended, nil
				}
			case <-ctx.Done():
				return Finished, ctx.Err()
			}
		}
	}

	return Finished, nil
}

// Continue resumes every member of job.
func (r *Router) Continue(job *Job) {
	r.forward(job, sigCont)
}

func (r *Router) forward(job *Job, sig syscall.Signal) {
	r.logger.Info("forwarding signal", "signal", sig.String(), "pgid", job.Pgid())
	if err := job.Signal(sig); err != nil {
		r.logger.Warn("signal delivery failed", "signal", sig.String(), "pgid", job.Pgid(), "error", err)
	}
}
