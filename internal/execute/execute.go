package execute

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/anmitsu/go-shlex"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"

	"rash/internal/jobs"
	"rash/internal/parser"
)

var (
	// ErrExit is returned by a builtin that wants the shell to stop.
	ErrExit = errors.New("exit")

	// ErrInterrupted aborts a pipeline whose command substitution was
	// interrupted or suspended.
	ErrInterrupted = errors.New("interrupted")
)

// Builtin runs inside the shell process and returns its output.
type Builtin func(ctx context.Context, args []string) (string, error)

type Builtins interface {
	Lookup(name string) (Builtin, bool)
}

// SpawnError reports a stage whose process could not be started.
type SpawnError struct {
	Stage int
	Name  string
	Err   error
}

func (e *SpawnError) Error() string {
	switch {
	case errors.Is(e.Err, exec.ErrNotFound):
		return e.Name + ": command not found"
	case errors.Is(e.Err, fs.ErrPermission):
		return e.Name + ": permission denied"
	}
	return e.Name + ": " + e.Err.Error()
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Spawner turns parsed pipelines into running jobs.
type Spawner struct {
	// Fs resolves wildcard arguments.
	Fs afero.Fs

	// Stdout receives the output of the last stage unless redirected.
	Stdout io.Writer
	Stderr io.Writer

	Builtins Builtins
	Router   *jobs.Router
	Logger   *slog.Logger

	once        sync.Once
	out, errOut io.Writer
}

// writers returns Stdout and Stderr wrapped once for concurrent use by the
// members of every job this spawner starts.
func (s *Spawner) writers() (io.Writer, io.Writer) {
	s.once.Do(func() {
		s.out = SyncWriter(s.Stdout)
		s.errOut = SyncWriter(s.Stderr)
	})
	return s.out, s.errOut
}

// Run launches p as job and waits for it unless it runs in the background.
func (s *Spawner) Run(ctx context.Context, job *jobs.Job, p *parser.Pipeline) (jobs.WaitResult, error) {
	if err := s.Launch(ctx, job, p); err != nil {
		return jobs.Finished, err
	}
	if job.Background {
		return jobs.Finished, nil
	}
	return s.Router.Wait(ctx, job)
}

// Launch starts every stage of p, left to right, as members of job and
// returns without waiting. The first stage that fails to start aborts the
// pipeline: members already running are interrupted.
func (s *Spawner) Launch(ctx context.Context, job *jobs.Job, p *parser.Pipeline) error {
	defer job.Launched()
	defer p.Close()

	wiring, err := Wire(p.Stages)
	if err != nil {
		return err
	}
	defer wiring.Close()

	expander := &Expander{Run: s.Capture}
	for i := range p.Stages {
		err := s.launchStage(ctx, job, wiring, i, &p.Stages[i], expander)
		wiring.Release(i)
		if err == nil {
			continue
		}

		if !errors.Is(err, ErrExit) {
			s.logger().Warn("pipeline aborted", "stage", i, "error", err)
			if serr := job.Signal(unix.SIGINT); serr != nil {
				s.logger().Warn("interrupt failed", "pgid", job.Pgid(), "error", serr)
			}
		}
		return err
	}

	return nil
}

func (s *Spawner) launchStage(ctx context.Context, job *jobs.Job, wiring *Wiring, i int, st *parser.Stage, expander *Expander) error {
	text, err := expander.Expand(ctx, st.Text)
	if err != nil {
		return err
	}

	args, err := shlex.Split(text, true)
	if err != nil {
		return &parser.ParseError{Err: fmt.Errorf("syntax error: %w", err)}
	}
	if len(args) == 0 {
		return nil
	}
	args = ExpandArgs(s.Fs, args)

	if s.Builtins != nil {
		if b, ok := s.Builtins.Lookup(args[0]); ok {
			return s.runBuiltin(ctx, b, wiring, i, st, args)
		}
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdin = s.stdin(wiring, i, st)
	cmd.Stdout = s.stdout(wiring, i, st)
	if _, errOut := s.writers(); errOut != nil {
		cmd.Stderr = errOut
	}

	var closers []io.Closer
	if st.In != nil {
		closers = append(closers, st.In)
	}
	if st.Out != nil {
		closers = append(closers, st.Out)
	}

	proc, err := job.Spawn(cmd, closers...)
	if err != nil {
		return &SpawnError{Stage: i, Name: args[0], Err: err}
	}
	st.In, st.Out = nil, nil

	s.logger().Debug("process started", "pid", proc.Pid, "pgid", job.Pgid(), "stage", i, "args", args)
	return nil
}

func (s *Spawner) stdin(wiring *Wiring, i int, st *parser.Stage) io.Reader {
	switch st.Source {
	case parser.SourceFile:
		return st.In
	case parser.SourcePipe:
		if r := wiring.Reader(i); r != nil {
			return r
		}
	}
	return nil
}

func (s *Spawner) stdout(wiring *Wiring, i int, st *parser.Stage) io.Writer {
	switch st.Sink {
	case parser.SinkTruncate, parser.SinkAppend:
		return st.Out
	case parser.SinkPipe:
		if w := wiring.Writer(i); w != nil {
			return w
		}
		return nil
	}
	out, _ := s.writers()
	return out
}

// runBuiltin runs b in-process and writes its result to the stage's sink.
func (s *Spawner) runBuiltin(ctx context.Context, b Builtin, wiring *Wiring, i int, st *parser.Stage, args []string) error {
	out, err := b(ctx, args[1:])
	if err != nil {
		if errors.Is(err, ErrExit) {
			return err
		}
		s.printErr(err)
	}

	if out != "" && !strings.HasSuffix(out, "\n") {
		out += "\n"
	}

	switch st.Sink {
	case parser.SinkTruncate, parser.SinkAppend:
		if _, err := io.WriteString(st.Out, out); err != nil {
			s.printErr(fmt.Errorf("%s: %w", st.OutFile, err))
		}
	case parser.SinkPipe:
		if w := wiring.TakeWriter(i); w != nil {
			go func() {
				_, _ = io.WriteString(w, out)
				_ = w.Close()
			}()
		}
	default:
		if w, _ := s.writers(); out != "" && w != nil {
			_, _ = io.WriteString(w, out)
		}
	}

	return nil
}

// Capture runs command as an independent foreground pipeline, outside the
// job table, and returns what it wrote to standard output.
func (s *Spawner) Capture(ctx context.Context, command string) (string, error) {
	p, err := parser.Parse(s.Fs, command)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	_, errOut := s.writers()
	inner := &Spawner{
		Fs:       s.Fs,
		Stdout:   &buf,
		Stderr:   errOut,
		Builtins: s.Builtins,
		Router:   s.Router,
		Logger:   s.Logger,
	}

	job := jobs.NewJob(command, false)
	res, err := inner.Run(ctx, job, p)
	if err != nil {
		return "", err
	}

	switch res {
	case jobs.Interrupted:
		return "", ErrInterrupted
	case jobs.Suspended:
		// Nobody could resume it later, so finish it off.
		if err := job.Signal(unix.SIGINT); err != nil {
			s.logger().Warn("interrupt failed", "pgid", job.Pgid(), "error", err)
		}
		s.Router.Continue(job)
		return "", ErrInterrupted
	}

	return buf.String(), nil
}

func (s *Spawner) printErr(err error) {
	if _, errOut := s.writers(); errOut != nil {
		fmt.Fprintln(errOut, err)
	}
}

func (s *Spawner) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s.Logger
}
