package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aleksaelezovic/graphdbi/pkg/graphdb"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql/queries"
)

// NewClassesCommand creates the classes command.
func NewClassesCommand(rootOpts *RootOptions) *cobra.Command {
	var full bool
	var ignore []string

	cmd := &cobra.Command{
		Use:           "classes <individual>",
		Short:         "List the OWL classes of an individual",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return remote(rootOpts, cmd, func(ctx context.Context, c *graphdb.Client) (any, error) {
				classes, err := c.ClassesOf(ctx, args[0], ignoredPrefixes(cmd, ignore), !full)
				return Lines(classes), err
			})
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "print full class IRIs instead of local names")
	cmd.Flags().StringSliceVar(&ignore, "ignore", queries.DefaultIgnoredPrefixes, "prefixes whose classes are left out")

	return cmd
}

// NewSubclassCommand creates the subclass command.
func NewSubclassCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "subclass <subclass> <class>",
		Short:         "Check whether rdfs:subClassOf holds between two classes",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return remote(rootOpts, cmd, func(ctx context.Context, c *graphdb.Client) (any, error) {
				return c.IsSubclass(ctx, args[0], args[1])
			})
		},
	}
}
