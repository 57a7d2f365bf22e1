package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aleksaelezovic/graphdbi/pkg/graphdb"
)

// TripleList is the output of triple get.
type TripleList []graphdb.Triple

// RenderText prints one triple per line.
func (l TripleList) RenderText(w io.Writer) {
	for _, t := range l {
		fmt.Fprintf(w, "%v\t%v\t%v\n", t.Subject, t.Predicate, t.Object)
	}
}

// remote runs fn against a connected session and prints its result.
func remote(rootOpts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, c *graphdb.Client) (any, error)) error {
	formatter := rootOpts.formatter(cmd)
	c, release, err := rootOpts.newClient(cmd.Context(), true)
	if err != nil {
		return fail(formatter, err)
	}
	defer release()

	out, err := fn(cmd.Context(), c)
	if err != nil {
		return fail(formatter, err)
	}
	return formatter.Success(out)
}

// NewTripleCommand creates the triple command group.
func NewTripleCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "triple",
		Short: "Add, delete, check, find and update single triples",
	}

	var addLit literalFlags
	addCmd := &cobra.Command{
		Use:           "add <subject> <predicate> <object>",
		Short:         "Insert one triple",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return remote(rootOpts, cmd, func(ctx context.Context, c *graphdb.Client) (any, error) {
				obj, err := addLit.object(args[2])
				if err != nil {
					return nil, err
				}
				return "added", c.TripleAdd(ctx, args[0], args[1], obj)
			})
		},
	}
	addLit.register(addCmd.Flags())
	cmd.AddCommand(addCmd)

	var delLit literalFlags
	var noCheck bool
	delCmd := &cobra.Command{
		Use:           "delete <subject> <predicate> <object>",
		Short:         "Delete one triple",
		Long:          "Delete one triple. Unless --no-check is given, a triple that is not stored is reported and nothing is sent.",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return remote(rootOpts, cmd, func(ctx context.Context, c *graphdb.Client) (any, error) {
				obj, err := delLit.object(args[2])
				if err != nil {
					return nil, err
				}
				return "deleted", c.TripleDelete(ctx, args[0], args[1], obj, !noCheck)
			})
		},
	}
	delLit.register(delCmd.Flags())
	delCmd.Flags().BoolVar(&noCheck, "no-check", false, "skip the existence check")
	cmd.AddCommand(delCmd)

	var existsLit literalFlags
	existsCmd := &cobra.Command{
		Use:           "exists <subject> <predicate> <object>",
		Short:         "Check whether a triple is stored",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return remote(rootOpts, cmd, func(ctx context.Context, c *graphdb.Client) (any, error) {
				obj, err := existsLit.object(args[2])
				if err != nil {
					return nil, err
				}
				return c.TripleExists(ctx, args[0], args[1], obj)
			})
		},
	}
	existsLit.register(existsCmd.Flags())
	cmd.AddCommand(existsCmd)

	var get patternFlags
	getCmd := &cobra.Command{
		Use:   "get",
		Short: "List the triples matching a pattern",
		Long: `List the triples matching a pattern. IRIs bind their position, literals
must equal the object, and any other string matches as a substring.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return remote(rootOpts, cmd, func(ctx context.Context, c *graphdb.Client) (any, error) {
				pat, err := get.pattern()
				if err != nil {
					return nil, err
				}
				triples, err := c.TriplesGet(ctx, pat)
				return TripleList(triples), err
			})
		},
	}
	get.register(getCmd.Flags(), false)
	cmd.AddCommand(getCmd)

	var upd patternFlags
	var updNoCheck bool
	updCmd := &cobra.Command{
		Use:   "update",
		Short: "Replace parts of a stored triple",
		Long: `Replace the subject, predicate or object of a stored triple. Without
--object every object of the subject and predicate is replaced.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return remote(rootOpts, cmd, func(ctx context.Context, c *graphdb.Client) (any, error) {
				old, err := upd.pattern()
				if err != nil {
					return nil, err
				}
				repl, err := upd.replacement()
				if err != nil {
					return nil, err
				}
				return "updated", c.TripleUpdate(ctx, old, repl, !updNoCheck)
			})
		},
	}
	upd.register(updCmd.Flags(), true)
	updCmd.Flags().BoolVar(&updNoCheck, "no-check", false, "skip the existence check")
	cmd.AddCommand(updCmd)

	return cmd
}
