package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aleksaelezovic/graphdbi/pkg/graphdb"
)

// contentTypes maps file extensions to graph store media types.
var contentTypes = map[string]string{
	".nt":     graphdb.MediaNTriples,
	".nq":     graphdb.MediaNQuads,
	".ttl":    graphdb.MediaTurtle,
	".jsonld": graphdb.MediaJSONLD,
	".rdf":    "application/rdf+xml",
	".owl":    "application/rdf+xml",
	".trig":   "application/trig",
}

// NewGraphsCommand creates the graphs command group.
func NewGraphsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graphs",
		Short: "List and manage named graphs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "list",
		Short:         "List the named graphs holding at least one triple",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			c, release, err := rootOpts.newClient(cmd.Context(), true)
			if err != nil {
				return fail(formatter, err)
			}
			defer release()

			graphs, err := c.NamedGraphs(cmd.Context())
			if err != nil {
				return fail(formatter, err)
			}
			return formatter.Success(Lines(graphs))
		},
	})

	var contentType string
	putCmd := &cobra.Command{
		Use:   "put <graph> <file>",
		Short: "Replace the content of a named graph with a file",
		Long: `Replace the content of a named graph with an RDF file. The media type is
taken from --content-type or the file extension. JSON-LD files are converted
to N-Triples first; N-Triples and N-Quads files are syntax-checked.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			graph, path := args[0], args[1]

			ct := contentType
			if ct == "" {
				ct = contentTypes[strings.ToLower(filepath.Ext(path))]
			}
			if ct == "" {
				return fail(formatter, NewExitError(ExitCommandError, "cannot infer the media type of "+path+"; use --content-type"))
			}
			payload, err := os.ReadFile(path)
			if err != nil {
				return fail(formatter, WrapExitError(ExitCommandError, "read file", err))
			}

			c, release, err := rootOpts.newClient(cmd.Context(), true)
			if err != nil {
				return fail(formatter, err)
			}
			defer release()

			if ct == graphdb.MediaJSONLD {
				n, err := c.ImportJSONLD(cmd.Context(), graph, payload)
				if err != nil {
					return fail(formatter, err)
				}
				formatter.VerboseLog("sent %d statements", n)
			} else if err := c.PutGraph(cmd.Context(), graph, ct, payload); err != nil {
				return fail(formatter, err)
			}
			return formatter.Success("replaced " + graph)
		},
	}
	putCmd.Flags().StringVarP(&contentType, "content-type", "t", "", "media type of the file")
	cmd.AddCommand(putCmd)

	cmd.AddCommand(&cobra.Command{
		Use:           "import <graph> <file.jsonld|->",
		Short:         "Convert a JSON-LD document to N-Triples and load it into a named graph",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			src := args[1]
			if src != "-" {
				src = "@" + src
			}
			doc, err := readInput(cmd, src)
			if err != nil {
				return fail(formatter, WrapExitError(ExitCommandError, "read input", err))
			}

			c, release, err := rootOpts.newClient(cmd.Context(), true)
			if err != nil {
				return fail(formatter, err)
			}
			defer release()

			n, err := c.ImportJSONLD(cmd.Context(), args[0], []byte(doc))
			if err != nil {
				return fail(formatter, err)
			}
			return formatter.Success(fmt.Sprintf("imported %d statements into %s", n, args[0]))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "delete <graph>",
		Short:         "Drop a named graph",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			c, release, err := rootOpts.newClient(cmd.Context(), true)
			if err != nil {
				return fail(formatter, err)
			}
			defer release()

			if err := c.DeleteGraph(cmd.Context(), args[0]); err != nil {
				return fail(formatter, err)
			}
			return formatter.Success("deleted " + args[0])
		},
	})

	return cmd
}
