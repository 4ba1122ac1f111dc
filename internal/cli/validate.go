package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/paysim/paysim/internal/params"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid       bool   `json:"valid"`
	Config      string `json:"config,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Seed        int64  `json:"seed"`
	Steps       int    `json:"steps"`
	Clients     int    `json:"clients"`
	Field       string `json:"field,omitempty"`
	Message     string `json:"message,omitempty"`
}

func (r ValidationResult) renderText(w io.Writer) {
	if !r.Valid {
		if r.Field != "" {
			fmt.Fprintf(w, "  field: %s\n", r.Field)
		}
		return
	}
	source := r.Config
	if source == "" {
		source = "default parameters"
	}
	fmt.Fprintf(w, "✓ %s valid\n", source)
	fmt.Fprintf(w, "  seed %d, %d steps, %d clients\n", r.Seed, r.Steps, r.Clients)
	fmt.Fprintf(w, "  fingerprint: %s\n", r.Fingerprint)
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ParamsOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate simulation parameters",
		Long: `Load simulation parameters, check them against the schema and the
semantic rules, and print their fingerprint. Two parameter sets with the
same fingerprint produce the same stream.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, opts, cmd)
		},
	}

	addParamsFlags(cmd, opts)

	return cmd
}

func runValidate(rootOpts *RootOptions, opts *ParamsOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    rootOpts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   rootOpts.Verbose,
	}

	formatter.VerboseLog("Loading parameters from %q", opts.Config)
	p, err := loadParams(opts, cmd.Flags())
	if err != nil {
		return outputValidateError(formatter, opts.Config, err)
	}

	fingerprint, err := params.Fingerprint(p)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to fingerprint parameters", err)
	}

	return formatter.Success(ValidationResult{
		Valid:       true,
		Config:      opts.Config,
		Fingerprint: fingerprint,
		Seed:        p.Seed,
		Steps:       p.Steps,
		Clients:     p.Clients,
	})
}

// outputValidateError reports invalid parameters. Schema and semantic
// violations are validation failures (exit 1); anything else, such as an
// unreadable file, is a command error (exit 2).
func outputValidateError(formatter *OutputFormatter, config string, err error) error {
	result := ValidationResult{Config: config, Message: err.Error()}
	code := ExitCommandError

	var validationErr *params.ValidationError
	var schemaErr *params.SchemaError
	switch {
	case errors.As(err, &validationErr):
		result.Field = validationErr.Field
		code = ExitFailure
	case errors.As(err, &schemaErr):
		code = ExitFailure
	}

	_ = formatter.Error(ErrCodeParams, err.Error(), result)
	return WrapExitError(code, "validation failed", err)
}
