package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/facets/internal/config"
	"github.com/roach88/facets/internal/store"
)

// ValidationError is one failed check.
type ValidationError struct {
	Source  string `json:"source"`
	Field   string `json:"field,omitempty"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Fixtures int               `json:"fixtures"`
	Errors   []ValidationError `json:"errors,omitempty"`
}

// WriteText implements TextWriter.
func (r ValidationResult) WriteText(w io.Writer) error {
	if r.Valid {
		_, err := fmt.Fprintf(w, "✓ Config and %d fixture(s) valid\n", r.Fixtures)
		return err
	}
	for _, e := range r.Errors {
		loc := e.Source
		if e.Line > 0 {
			loc = fmt.Sprintf("%s:%d", loc, e.Line)
		}
		if e.Field != "" {
			loc += " " + e.Field
		}
		if _, err := fmt.Fprintf(w, "✗ %s: %s\n", loc, e.Message); err != nil {
			return err
		}
	}
	return nil
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [fixture.yaml...]",
		Short: "Validate the config and catalog fixtures",
		Long: `Validate the configuration (file, .env and environment overrides) against
its schema, and check that each fixture parses. Nothing is written.

Example:
  facets validate --config facets.yaml
  facets validate ./catalog.yaml ./more.yaml`,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, fixtures []string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	result := ValidationResult{Fixtures: len(fixtures)}

	source := opts.ConfigPath
	if source == "" {
		source = "config"
	}
	f.VerboseLog("Validating %s", source)
	if _, err := config.Load(opts.ConfigPath); err != nil {
		result.Errors = append(result.Errors, configError(source, err))
	}

	for _, path := range fixtures {
		f.VerboseLog("Validating fixture: %s", path)
		if _, err := store.LoadFixture(path); err != nil {
			result.Errors = append(result.Errors, ValidationError{Source: path, Message: err.Error()})
		}
	}

	result.Valid = len(result.Errors) == 0
	if result.Valid {
		return f.Success(result)
	}

	if f.Format == "json" {
		if err := f.encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    ErrCodeInvalid,
				Message: fmt.Sprintf("%d validation error(s)", len(result.Errors)),
			},
		}); err != nil {
			return err
		}
	} else if err := result.WriteText(f.Writer); err != nil {
		return err
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d validation error(s)", len(result.Errors)))
}

// configError converts a config failure, keeping the schema field and line
// when the schema rejected it.
func configError(source string, err error) ValidationError {
	var cfgErr *config.Error
	if errors.As(err, &cfgErr) {
		ve := ValidationError{Source: source, Field: cfgErr.Field, Message: cfgErr.Message}
		if cfgErr.Pos.IsValid() {
			ve.Line = cfgErr.Pos.Line()
		}
		return ve
	}
	return ValidationError{Source: source, Message: err.Error()}
}
