package jobs

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"rash/internal/slice"
)

const reportHeader = "Position | PGID   | Background | Suspended | Status\n"

// Table holds the jobs of the shell's lifetime in submission order. It is
// only touched by the control goroutine.
type Table struct {
	jobs   []*Job
	logger *slog.Logger
}

func NewTable(logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Table{logger: logger}
}

func (t *Table) Register(j *Job) {
	t.jobs = append(t.jobs, j)
	t.logger.Debug("job registered", "command", j.Command, "background", j.Background, "position", len(t.jobs))
}

func (t *Table) Status(j *Job) Status {
	return j.Status()
}

func (t *Table) Jobs() []*Job {
	return t.jobs
}

func (t *Table) Len() int {
	return len(t.jobs)
}

// Prune drops every job that is no longer running and returns the dropped
// jobs in table order.
func (t *Table) Prune() []*Job {
	var removed []*Job
	t.jobs = slice.Filter(t.jobs, func(j *Job) bool {
		if j.Status() == Running {
			return true
		}
		removed = append(removed, j)
		return false
	})

	for _, j := range removed {
		t.logger.Debug("job pruned", "pgid", j.Pgid(), "status", j.Status().String())
	}
	return removed
}

// Find looks a job up by its process group id.
func (t *Table) Find(pgid string) *Job {
	for _, j := range t.jobs {
		if j.Pgid() != 0 && j.ID() == pgid {
			return j
		}
	}
	return nil
}

// Previous is the second-to-last job. The last one is the job of the
// command asking for it.
func (t *Table) Previous() *Job {
	if len(t.jobs) < 2 {
		return nil
	}
	return t.jobs[len(t.jobs)-2]
}

// Interrupt sends SIGINT to every job that is still running.
func (t *Table) Interrupt() {
	for _, j := range t.jobs {
		if j.Status() != Running {
			continue
		}
		if err := j.Signal(sigInt); err != nil {
			t.logger.Warn("interrupt failed", "pgid", j.Pgid(), "error", err)
		}
	}
}

// Report formats the table for the jobs builtin.
func (t *Table) Report() string {
	var b strings.Builder
	b.WriteString(reportHeader)
	for pos, j := range t.jobs {
		fmt.Fprintf(&b, "%-8d | %-6d | %-10t | %-9t | %s\n", pos+1, j.Pgid(), j.Background, j.Suspended, j.Status())
	}
	return b.String()
}
