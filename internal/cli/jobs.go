package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// JobsOptions holds flags shared by the jobs subcommands.
type JobsOptions struct {
	*RootOptions
	SchemaDir string
	JobsFile  string
	Database  string
}

// NewJobsCommand creates the jobs command group.
func NewJobsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JobsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and run scheduled jobs",
	}
	cmd.PersistentFlags().StringVar(&opts.SchemaDir, "schema", "config", "path to CUE schema directory")
	cmd.PersistentFlags().StringVar(&opts.JobsFile, "jobs", "", "path to YAML job configuration (optional)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	cmd.AddCommand(newJobsListCommand(opts))
	cmd.AddCommand(newJobsRunCommand(opts))
	return cmd
}

type jobInfo struct {
	Name        string `json:"name"`
	Schedule    string `json:"schedule"`
	Description string `json:"description"`
}

func newJobsListCommand(opts *JobsOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List registered jobs and their schedules",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(cmd.Context(), opts.SchemaDir, opts.JobsFile, opts.Database)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to build runtime", err)
			}
			defer app.Close()

			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
			defs := app.Scheduler.Jobs()

			if opts.Format == "json" {
				infos := make([]jobInfo, len(defs))
				for i, d := range defs {
					infos[i] = jobInfo{Name: d.Name, Schedule: d.Schedule, Description: d.Description}
				}
				return formatter.Success(infos)
			}
			for _, d := range defs {
				fmt.Fprintf(cmd.OutOrStdout(), "%-26s %-14s %s\n", d.Name, d.Schedule, d.Description)
			}
			return nil
		},
	}
}

func newJobsRunCommand(opts *JobsOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "run <name>",
		Short:         "Run one job immediately, bypassing its schedule",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(cmd.Context(), opts.SchemaDir, opts.JobsFile, opts.Database)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to build runtime", err)
			}
			defer app.Close()

			result, err := app.Scheduler.RunJobByName(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "job not found", err)
			}
			if result.Err != nil {
				return WrapExitError(ExitFailure, fmt.Sprintf("job %s failed", result.Job), result.Err)
			}

			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
			return formatter.Success(fmt.Sprintf("job %s completed in %s", result.Job, result.Duration))
		},
	}
}
