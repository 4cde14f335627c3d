package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"rash/internal/config"
	"rash/internal/execute"
	"rash/internal/shell"
)

var (
	cfgPath  string
	logLevel string
	command  string
)

var rootCmd = &cobra.Command{
	Use:           "rash",
	Short:         "A simple job-control shell",
	Long:          `rash runs pipelines as process groups and lets you move them between the foreground and the background.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

// Execute runs the root command and exits non-zero on setup failures.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "rash:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVar(&cfgPath, "config", os.Getenv(config.EnvPath), "config file path")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	rootCmd.Flags().StringVarP(&command, "command", "c", "", "run one line and exit")
}

func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer) error {
	fsys := afero.NewOsFs()

	cfg, err := config.Load(fsys, cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("--log-level: %w", err)
		}
	}

	logOut, err := cfg.OpenLog(fsys)
	if err != nil {
		return fmt.Errorf("opening log: %w", err)
	}
	var logWriter io.Writer = io.Discard
	if logOut != nil {
		defer logOut.Close()
		logWriter = logOut
	}
	logger := setupLogger(logWriter, cfg.Log.SlogLevel())

	in, ok := stdin.(io.ReadCloser)
	if !ok {
		in = io.NopCloser(stdin)
	}
	sh := shell.New(shell.Options{
		Config: cfg,
		Fs:     fsys,
		Stdin:  in,
		Stdout: stdout,
		Stderr: stderr,
		Logger: logger,
	})
	defer sh.Close()

	logger.Info("shell started", "pid", os.Getpid(), "config", cfgPath)

	if command != "" {
		if err := sh.Execute(ctx, command); err != nil && !errors.Is(err, execute.ErrExit) {
			return err
		}
		return nil
	}

	err = sh.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func setupLogger(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("session", uuid.NewString())
}
