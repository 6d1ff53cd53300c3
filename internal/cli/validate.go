package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/texgraph/internal/harness"
)

// FileError is one scenario file that failed validation.
type FileError struct {
	File    string `json:"file"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool        `json:"valid"`
	Files  int         `json:"files"`
	Errors []FileError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario-file-or-dir>...",
		Short: "Check scenario files without running them",
		Long: `Check scenario files against the scenario schema and resolve their
node references, without building a graph.

Exit codes:
  0 - All files valid
  1 - One or more files invalid
  2 - Command error (missing paths, etc.)`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	files, err := findScenarioFiles(paths, "")
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			_ = formatter.Error(ErrCodeNotFound, exitErr.Message, nil)
			return exitErr
		}
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	result := ValidationResult{Valid: true, Files: len(files)}
	for _, file := range files {
		formatter.VerboseLog("Validating %s", file)
		if fe := validateFile(file); fe != nil {
			result.Valid = false
			result.Errors = append(result.Errors, *fe)
		}
	}

	if formatter.Format == "json" {
		var cliErr *CLIError
		if !result.Valid {
			cliErr = &CLIError{Code: result.Errors[0].Code, Message: result.Errors[0].Message}
		}
		if err := formatter.Result(result, cliErr); err != nil {
			return err
		}
	} else {
		printValidation(formatter, result)
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
	}
	return nil
}

// validateFile runs the schema check and the full parse, which also checks
// cross references.
func validateFile(file string) *FileError {
	data, err := os.ReadFile(file)
	if err != nil {
		return &FileError{File: file, Code: ErrCodeNotFound, Message: err.Error()}
	}
	if err := harness.ValidateSchema(data); err != nil {
		return &FileError{File: file, Code: ErrCodeSchema, Message: err.Error()}
	}
	if _, err := harness.LoadScenario(file); err != nil {
		return &FileError{File: file, Code: ErrCodeScenario, Message: err.Error()}
	}
	return nil
}

func printValidation(f *OutputFormatter, result ValidationResult) {
	if result.Valid {
		fmt.Fprintf(f.Writer, "✓ %d scenario file(s) valid\n", result.Files)
		return
	}
	fmt.Fprintln(f.Writer, "✗ Validation failed")
	fmt.Fprintln(f.Writer)
	for _, e := range result.Errors {
		fmt.Fprintf(f.Writer, "%s\n  %s: %s\n\n", e.File, e.Code, e.Message)
	}
}
