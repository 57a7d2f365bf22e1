package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aleksaelezovic/graphdbi/pkg/sparql/results"
)

// QueryResult is the outcome of a read query.
type QueryResult struct {
	Vars    []string            `json:"vars,omitempty"`
	Rows    []map[string]string `json:"rows,omitempty"`
	Boolean *bool               `json:"boolean,omitempty"`
}

// RenderText prints ASK answers as true/false and solutions as a
// tab-separated table.
func (r QueryResult) RenderText(w io.Writer) {
	if r.Boolean != nil {
		fmt.Fprintln(w, *r.Boolean)
		return
	}
	fmt.Fprintln(w, strings.Join(r.Vars, "\t"))
	for _, row := range r.Rows {
		cells := make([]string, len(r.Vars))
		for i, v := range r.Vars {
			cells[i] = row[v]
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
}

func newQueryResult(resp *results.Response) QueryResult {
	if resp.Boolean != nil {
		return QueryResult{Boolean: resp.Boolean}
	}
	vars := resp.Head.Vars
	if len(vars) == 0 {
		seen := map[string]bool{}
		for _, s := range resp.Solutions() {
			for name := range s {
				if !seen[name] {
					seen[name] = true
					vars = append(vars, name)
				}
			}
		}
		sort.Strings(vars)
	}
	rows := make([]map[string]string, 0, len(resp.Solutions()))
	for _, s := range resp.Solutions() {
		row := make(map[string]string, len(s))
		for name, b := range s {
			row[name] = b.Value
		}
		rows = append(rows, row)
	}
	return QueryResult{Vars: vars, Rows: rows}
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "query <query|-|@file>",
		Short: "Validate and run a SPARQL SELECT or ASK query",
		Long: `Validate a SPARQL query and run it against the configured repository.
The query is not sent when it fails validation.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			query, err := readInput(cmd, args[0])
			if err != nil {
				return fail(formatter, WrapExitError(ExitCommandError, "read input", err))
			}

			c, release, err := rootOpts.newClient(cmd.Context(), true)
			if err != nil {
				return fail(formatter, err)
			}
			defer release()

			resp, err := c.Query(cmd.Context(), query)
			if err != nil {
				return fail(formatter, err)
			}
			return formatter.Success(newQueryResult(resp))
		},
	}
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "update <update|-|@file>",
		Short:         "Validate and run a SPARQL update",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			update, err := readInput(cmd, args[0])
			if err != nil {
				return fail(formatter, WrapExitError(ExitCommandError, "read input", err))
			}

			c, release, err := rootOpts.newClient(cmd.Context(), true)
			if err != nil {
				return fail(formatter, err)
			}
			defer release()

			if err := c.Update(cmd.Context(), update); err != nil {
				return fail(formatter, err)
			}
			return formatter.Success("ok")
		},
	}
}
