package builtins

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"rash/internal/execute"
	"rash/internal/jobs"
)

const helpText = "rash: a simple job-control shell."

var errTooManyArgs = errors.New("too many arguments")

// Builtins are the commands the shell runs in its own process.
type Builtins struct {
	Table  *jobs.Table
	Router *jobs.Router
}

func New(table *jobs.Table, router *jobs.Router) *Builtins {
	return &Builtins{Table: table, Router: router}
}

func (b *Builtins) Lookup(name string) (execute.Builtin, bool) {
	switch name {
	case "fg":
		return b.Fg, true
	case "bg":
		return b.Bg, true
	case "jobs":
		return b.Jobs, true
	case "cd":
		return Cd, true
	case "pwd":
		return Pwd, true
	case "help":
		return Help, true
	case "exit":
		return Exit, true
	}
	return nil, false
}

// resolve finds the job named by args, or the previous job without one.
// Only a running job qualifies.
func (b *Builtins) resolve(args []string) (*jobs.Job, error) {
	var job *jobs.Job
	switch len(args) {
	case 0:
		job = b.Table.Previous()
		if job == nil {
			return nil, jobs.ErrNoCurrentJob
		}
	case 1:
		job = b.Table.Find(args[0])
		if job == nil {
			return nil, fmt.Errorf("%w: %s", jobs.ErrNoSuchJob, args[0])
		}
	default:
		return nil, errTooManyArgs
	}

	if job.Status() != jobs.Running {
		return nil, jobs.ErrJobTerminated
	}
	return job, nil
}

// Bg resumes a job without waiting for it.
func (b *Builtins) Bg(_ context.Context, args []string) (string, error) {
	job, err := b.resolve(args)
	if err != nil {
		return "", fmt.Errorf("bg: %w", err)
	}

	job.Background = true
	job.Suspended = false
	b.Router.Continue(job)

	return fmt.Sprintf("[%s] %s &", job.ID(), job.Command), nil
}

// Fg resumes a job and waits on it as the foreground job.
func (b *Builtins) Fg(ctx context.Context, args []string) (string, error) {
	job, err := b.resolve(args)
	if err != nil {
		return "", fmt.Errorf("fg: %w", err)
	}

	job.Background = false
	job.Suspended = false
	b.Router.Continue(job)

	res, err := b.Router.Wait(ctx, job)
	if err != nil {
		return "", fmt.Errorf("fg: %w", err)
	}

	switch res {
	case jobs.Suspended:
		return job.ID() + " Suspended", nil
	case jobs.Interrupted:
		return "", nil
	}

	if job.Status() == jobs.Terminated {
		return "", fmt.Errorf("fg: %w", jobs.ErrJobTerminated)
	}
	return "", nil
}

func (b *Builtins) Jobs(_ context.Context, _ []string) (string, error) {
	b.Table.Prune()
	return strings.TrimSuffix(b.Table.Report(), "\n"), nil
}

// Cd changes the working directory. No argument and "~" go home.
func Cd(_ context.Context, args []string) (string, error) {
	if len(args) > 1 {
		return "", fmt.Errorf("cd: %w", errTooManyArgs)
	}

	dir := "~"
	if len(args) == 1 {
		dir = args[0]
	}
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cd: %w", err)
		}
		dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
	}

	if err := os.Chdir(dir); err != nil {
		return "", fmt.Errorf("cd: no such file or directory: %s", dir)
	}
	return "", nil
}

func Pwd(_ context.Context, _ []string) (string, error) {
	return os.Getwd()
}

func Help(_ context.Context, _ []string) (string, error) {
	return helpText, nil
}

func Exit(_ context.Context, _ []string) (string, error) {
	return "", execute.ErrExit
}
