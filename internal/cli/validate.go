package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aleksaelezovic/graphdbi/pkg/sparql/validate"
)

// ValidationResult holds the verdict for one string.
type ValidationResult struct {
	Valid   bool   `json:"valid"`
	Grammar string `json:"grammar"`
	Error   string `json:"error,omitempty"`
}

// RenderText prints a one-line verdict.
func (r ValidationResult) RenderText(w io.Writer) {
	if r.Valid {
		fmt.Fprintf(w, "✓ valid SPARQL %s\n", r.Grammar)
		return
	}
	fmt.Fprintf(w, "✗ invalid SPARQL %s: %s\n", r.Grammar, r.Error)
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var update bool

	cmd := &cobra.Command{
		Use:   "validate <query|-|@file>",
		Short: "Check a string against the SPARQL 1.1 grammar",
		Long: `Check a query (or, with --update, an update) against the SPARQL 1.1
grammar without contacting a server. Exits 1 when the string is invalid.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd, args[0], update)
		},
	}
	cmd.Flags().BoolVarP(&update, "update", "u", false, "validate against the update grammar")

	return cmd
}

func runValidate(opts *RootOptions, cmd *cobra.Command, arg string, update bool) error {
	formatter := opts.formatter(cmd)

	query, err := readInput(cmd, arg)
	if err != nil {
		return fail(formatter, WrapExitError(ExitCommandError, "read input", err))
	}

	v, release, err := opts.openValidator()
	if err != nil {
		return fail(formatter, err)
	}
	defer release()

	result := ValidationResult{Valid: true, Grammar: validate.GrammarQuery}
	if update {
		result.Grammar = validate.GrammarUpdate
	}
	if err := v.Check(query, update); err != nil {
		result.Valid = false
		result.Error = err.Error()
	}
	if err := formatter.Success(result); err != nil {
		return err
	}
	if !result.Valid {
		exitErr := NewExitError(ExitFailure, "invalid SPARQL "+result.Grammar)
		exitErr.Reported = true
		return exitErr
	}
	return nil
}
