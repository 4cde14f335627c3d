package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/abiosoft/readline"
	"github.com/fatih/color"
	"github.com/spf13/afero"
	"golang.org/x/term"

	"rash/internal/builtins"
	"rash/internal/config"
	"rash/internal/execute"
	"rash/internal/jobs"
	"rash/internal/parser"
	"rash/internal/prompt"
)

const completedNotice = "[Process completed]"

// Options configure a Shell. Zero fields fall back to the process' own
// file system, standard streams and signals. Stdout and Stderr may be any
// writer; writes from jobs and from the shell are serialized.
type Options struct {
	Config *config.Configuration
	Fs     afero.Fs
	Stdin  io.ReadCloser
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
	Router *jobs.Router
}

// Shell reads lines, runs them as jobs and keeps the job table tidy.
type Shell struct {
	cfg     *config.Configuration
	fs      afero.Fs
	in      io.ReadCloser
	out     io.Writer
	errOut  io.Writer
	logger  *slog.Logger
	table   *jobs.Table
	router  *jobs.Router
	spawner *execute.Spawner
	colored bool
}

func New(opts Options) *Shell {
	s := &Shell{
		cfg:    opts.Config,
		fs:     opts.Fs,
		in:     opts.Stdin,
		out:    opts.Stdout,
		errOut: opts.Stderr,
		logger: opts.Logger,
		router: opts.Router,
	}
	if s.cfg == nil {
		s.cfg = config.Default()
	}
	if s.fs == nil {
		s.fs = afero.NewOsFs()
	}
	if s.in == nil {
		s.in = os.Stdin
	}
	if s.out == nil {
		s.out = os.Stdout
	}
	if s.errOut == nil {
		s.errOut = os.Stderr
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if s.router == nil {
		s.router = jobs.NewRouter(s.logger)
	}

	// Jobs write to the same streams from their own goroutines.
	s.out = execute.SyncWriter(s.out)
	s.errOut = execute.SyncWriter(s.errOut)

	s.colored = s.cfg.Color && isTerminal(s.out)
	s.table = jobs.NewTable(s.logger)
	s.spawner = &execute.Spawner{
		Fs:       s.fs,
		Stdout:   s.out,
		Stderr:   s.errOut,
		Builtins: builtins.New(s.table, s.router),
		Router:   s.router,
		Logger:   s.logger,
	}

	return s
}

// Table exposes the job table, mostly for inspection.
func (s *Shell) Table() *jobs.Table {
	return s.table
}

// Close stops signal routing.
func (s *Shell) Close() {
	s.router.Close()
}

// Execute runs one input line to completion, or until it is suspended or
// sent to the background. It returns execute.ErrExit once the shell should
// stop; every other failure is reported to the user and swallowed.
func (s *Shell) Execute(ctx context.Context, line string) error {
	s.drainIdle()
	defer s.reap()

	text, background := parser.SplitBackground(strings.TrimSpace(line))
	if text == "" {
		return nil
	}

	p, err := parser.Parse(s.fs, text)
	if err != nil {
		s.logger.Info("parse failed", "line", text, "error", err)
		fmt.Fprintln(s.errOut, err)
		return nil
	}

	job := jobs.NewJob(text, background)
	s.table.Register(job)

	res, err := s.spawner.Run(ctx, job, p)
	switch {
	case errors.Is(err, execute.ErrExit):
		return s.exit()
	case errors.Is(err, execute.ErrInterrupted):
	case err != nil:
		s.logger.Info("job failed", "command", text, "error", err)
		fmt.Fprintln(s.errOut, err)
	case res == jobs.Suspended:
		fmt.Fprintf(s.out, "%s Suspended\n", job.ID())
	case job.Background && job.Pgid() != 0:
		fmt.Fprintf(s.out, "[%d] %d\n", s.table.Len(), job.Pgid())
	}

	return nil
}

// Run reads lines until exit or end of input.
func (s *Shell) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		HistoryFile: s.cfg.HistoryPath(),
		Stdin:       readline.NewCancelableStdin(s.in),
		Stdout:      s.out,
		Stderr:      s.errOut,
		FuncIsTerminal: func() bool {
			return isTerminal(s.in) && isTerminal(s.out)
		},
		// Ctrl-Z at the prompt behaves like Ctrl-C.
		FuncFilterInputRune: func(r rune) (rune, bool) {
			if r == readline.CharCtrlZ {
				return readline.CharInterrupt, true
			}
			return r, true
		},
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	for {
		s.reap()
		rl.SetPrompt(s.prompt())
		line, err := rl.Readline()

		switch {
		case err == io.EOF:
			s.exit()
			return nil
		case err == readline.ErrInterrupt:
			fmt.Fprintln(s.out)
			continue
		case err != nil:
			return err
		}

		if err := s.Execute(ctx, line); errors.Is(err, execute.ErrExit) {
			return nil
		}
		if ctx.Err() != nil {
			s.exit()
			return ctx.Err()
		}
	}
}

func (s *Shell) prompt() string {
	return prompt.Current().Render(s.cfg.Prompt, s.colored)
}

// drainIdle swallows the signals that arrived with no foreground job.
func (s *Shell) drainIdle() {
	if s.router.Idle() > 0 {
		fmt.Fprintln(s.out)
	}
}

// reap prunes finished jobs and announces the background ones.
func (s *Shell) reap() {
	for _, job := range s.table.Prune() {
		if !s.cfg.Notify || !job.Background || job.Pgid() == 0 {
			continue
		}
		fmt.Fprintf(s.out, "[%d] %s  %s\n", job.Pgid(), s.paint(job.Status()), job.Command)
	}
}

func (s *Shell) paint(st jobs.Status) string {
	if !s.colored {
		return st.String()
	}

	c := color.New(color.FgGreen)
	if st == jobs.Terminated {
		c = color.New(color.FgRed)
	}
	c.EnableColor()
	return c.Sprint(st.String())
}

func (s *Shell) exit() error {
	s.table.Interrupt()
	s.table.Prune()
	fmt.Fprintln(s.out, completedNotice)
	s.logger.Info("shell exiting", "remaining", s.table.Len())
	return execute.ErrExit
}

func isTerminal(v any) bool {
	f, ok := v.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}
