package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aleksaelezovic/graphdbi/pkg/graphdb"
)

// RepositoryList is the output of repos.
type RepositoryList []graphdb.Repository

// RenderText prints one repository per line.
func (l RepositoryList) RenderText(w io.Writer) {
	for _, r := range l {
		access := ""
		if r.Readable {
			access += "r"
		}
		if r.Writable {
			access += "w"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Type, r.State, access)
	}
}

// NewReposCommand creates the repos command.
func NewReposCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "repos",
		Short:         "List the repositories of the server",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			c, release, err := rootOpts.newClient(cmd.Context(), false)
			if err != nil {
				return fail(formatter, err)
			}
			defer release()

			repos, err := c.Repositories(cmd.Context())
			if err != nil {
				return fail(formatter, err)
			}
			return formatter.Success(RepositoryList(repos))
		},
	}
}

// Lines renders a string list one item per line in text mode.
type Lines []string

// RenderText prints one entry per line.
func (l Lines) RenderText(w io.Writer) {
	for _, s := range l {
		fmt.Fprintln(w, s)
	}
}
