package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	JobsFile string
	Database string

	// TickInterval overrides the scheduler tick period (tests).
	TickInterval time.Duration
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <schema-dir>",
		Short: "Start the scheduler loop",
		Long: `Load the entity schema, open the database, register trigger rules
and jobs, then tick the scheduler once per minute until interrupted.

Example:
  praxis run --db ./praxis.db ./config
  praxis run --db ./praxis.db --jobs ./config/jobs.yaml ./config --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoop(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.JobsFile, "jobs", "", "path to YAML job configuration (optional)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runLoop(opts *RunOptions, schemaDir string, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	slog.Info("loading schema", "dir", schemaDir)
	app, err := buildApp(ctx, schemaDir, opts.JobsFile, opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build runtime", err)
	}
	defer func() {
		if closeErr := app.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("runtime ready",
		"entities", len(app.Schemas.Names()),
		"jobs", len(app.Scheduler.Jobs()),
		"db", opts.Database,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	tick := opts.TickInterval
	if tick <= 0 {
		tick = time.Minute
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	fmt.Fprintln(cmd.OutOrStdout(), "Scheduler started. Press Ctrl-C to stop.")

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped gracefully")
			return nil
		case now := <-ticker.C:
			results := app.Scheduler.RunAllDueJobs(ctx, now)
			for _, r := range results {
				if r.Err != nil {
					slog.Error("job run failed", "job", r.Job, "error", r.Err)
				}
			}
		}
	}
}
