package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quarrylane/praxis/internal/schema"
)

// ValidationResult holds the outcome of schema validation.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Entities []string `json:"entities,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <schema-dir>",
		Short: "Validate entity schema documents",
		Long: `Load and cross-validate the CUE entity schema documents without
opening a database. Reports unknown field types, dangling references,
parent/child asymmetry, and malformed recreation policies.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, schemaDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	registry, err := schema.Load(schemaDir)
	if err != nil {
		var compileErr *schema.CompileError
		if errors.As(err, &compileErr) {
			formatter.VerboseLog("compile error at %s", compileErr.Pos)
		}
		if f := formatter.Error(err.Error(), nil); f != nil {
			return f
		}
		return NewExitError(ExitFailure, "schema validation failed")
	}

	names := registry.Names()
	formatter.VerboseLog("Loaded %d entities from %s", len(names), schemaDir)

	if opts.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Entities: names})
	}
	return formatter.Success(fmt.Sprintf("Schema valid: %d entities (%s)",
		len(names), strings.Join(names, ", ")))
}
