package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aleksaelezovic/graphdbi/pkg/rdf"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql/builder"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql/queries"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql/token"
)

// RenderResult is a validated query ready to send.
type RenderResult struct {
	Form   string `json:"form"`
	Update bool   `json:"update"`
	Query  string `json:"query"`
}

// RenderText prints the query text only.
func (r RenderResult) RenderText(w io.Writer) {
	fmt.Fprintln(w, r.Query)
}

// literalFlags turn a raw object argument into a typed or tagged literal.
type literalFlags struct {
	datatype string
	lang     string
}

func (l *literalFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&l.datatype, "datatype", "", "datatype IRI of a literal object")
	fs.StringVar(&l.lang, "lang", "", "language tag of a literal object")
}

func (l *literalFlags) object(raw string) (any, error) {
	switch {
	case l.datatype != "" && l.lang != "":
		return nil, fmt.Errorf("--datatype and --lang are mutually exclusive")
	case l.datatype != "":
		return rdf.NewLiteralWithDatatype(raw, rdf.NewNamedNode(token.StripDelimiters(l.datatype))), nil
	case l.lang != "":
		return rdf.NewLiteralWithLanguage(raw, l.lang), nil
	default:
		return raw, nil
	}
}

// patternFlags describe an old triple and its replacement.
type patternFlags struct {
	literalFlags
	subject, predicate, object          string
	newSubject, newPredicate, newObject string
}

func (p *patternFlags) register(fs *pflag.FlagSet, replacement bool) {
	p.literalFlags.register(fs)
	fs.StringVarP(&p.subject, "subject", "s", "", "subject IRI")
	fs.StringVarP(&p.predicate, "predicate", "p", "", "predicate IRI")
	fs.StringVarP(&p.object, "object", "o", "", "object IRI, literal or filter string")
	if replacement {
		fs.StringVar(&p.newSubject, "new-subject", "", "replacement subject IRI")
		fs.StringVar(&p.newPredicate, "new-predicate", "", "replacement predicate IRI")
		fs.StringVar(&p.newObject, "new-object", "", "replacement object (--datatype and --lang apply)")
	}
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// pattern returns the old triple. The literal flags apply to its object only
// when there is no replacement object.
func (p *patternFlags) pattern() (queries.Pattern, error) {
	pat := queries.Pattern{Subject: optional(p.subject), Predicate: optional(p.predicate), Object: optional(p.object)}
	if p.object != "" && p.newObject == "" {
		obj, err := p.literalFlags.object(p.object)
		if err != nil {
			return pat, err
		}
		pat.Object = obj
	}
	return pat, nil
}

func (p *patternFlags) replacement() (queries.Pattern, error) {
	pat := queries.Pattern{Subject: optional(p.newSubject), Predicate: optional(p.newPredicate)}
	if p.newObject != "" {
		obj, err := p.literalFlags.object(p.newObject)
		if err != nil {
			return pat, err
		}
		pat.Object = obj
	}
	return pat, nil
}

// NewRenderCommand creates the render command.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the validated SPARQL for an operation without sending it",
		Long: `Render the query or update an operation would send, using the configured
prefixes, named graph and reasoning scope. Nothing is sent to a server.`,
	}

	var lit literalFlags
	triple := func(use, short string, build func(s, p, o any, opts ...builder.Option) (*builder.Query, error)) *cobra.Command {
		c := &cobra.Command{
			Use:           use + " <subject> <predicate> <object>",
			Short:         short,
			Args:          cobra.ExactArgs(3),
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runRender(rootOpts, cmd, func(opts []builder.Option) (*builder.Query, error) {
					obj, err := lit.object(args[2])
					if err != nil {
						return nil, err
					}
					return build(args[0], args[1], obj, opts...)
				})
			},
		}
		lit.register(c.Flags())
		return c
	}
	cmd.AddCommand(triple("add", "Render INSERT DATA for one triple", queries.TripleAdd))
	cmd.AddCommand(triple("delete", "Render DELETE DATA for one triple", queries.TripleDelete))
	cmd.AddCommand(triple("exists", "Render the ASK for one triple", queries.TripleExists))

	var get patternFlags
	getCmd := &cobra.Command{
		Use:           "get",
		Short:         "Render the SELECT matching a triple pattern",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(rootOpts, cmd, func(opts []builder.Option) (*builder.Query, error) {
				pat, err := get.pattern()
				if err != nil {
					return nil, err
				}
				return queries.TriplesGet(pat, opts...)
			})
		},
	}
	get.register(getCmd.Flags(), false)
	cmd.AddCommand(getCmd)

	var upd patternFlags
	updCmd := &cobra.Command{
		Use:           "update",
		Short:         "Render the DELETE/INSERT replacing a triple",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(rootOpts, cmd, func(opts []builder.Option) (*builder.Query, error) {
				old, err := upd.pattern()
				if err != nil {
					return nil, err
				}
				repl, err := upd.replacement()
				if err != nil {
					return nil, err
				}
				return queries.TripleUpdate(old, repl, opts...)
			})
		},
	}
	upd.register(updCmd.Flags(), true)
	cmd.AddCommand(updCmd)

	var ignore []string
	classesCmd := &cobra.Command{
		Use:           "classes <individual>",
		Short:         "Render the SELECT for the OWL classes of an individual",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(rootOpts, cmd, func(opts []builder.Option) (*builder.Query, error) {
				return queries.ClassesOf(args[0], ignoredPrefixes(cmd, ignore), opts...)
			})
		},
	}
	classesCmd.Flags().StringSliceVar(&ignore, "ignore", queries.DefaultIgnoredPrefixes, "prefixes whose classes are left out")
	cmd.AddCommand(classesCmd)

	cmd.AddCommand(&cobra.Command{
		Use:           "graphs",
		Short:         "Render the SELECT listing named graphs",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(rootOpts, cmd, func(opts []builder.Option) (*builder.Query, error) {
				return queries.NamedGraphs(opts...)
			})
		},
	})

	return cmd
}

// ignoredPrefixes returns nil for the default so callers share
// DefaultIgnoredPrefixes, and an empty slice for --ignore "".
func ignoredPrefixes(cmd *cobra.Command, ignore []string) []string {
	if !cmd.Flags().Changed("ignore") {
		return nil
	}
	out := []string{}
	for _, p := range ignore {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runRender(opts *RootOptions, cmd *cobra.Command, build func([]builder.Option) (*builder.Query, error)) error {
	formatter := opts.formatter(cmd)

	v, release, err := opts.openValidator()
	if err != nil {
		return fail(formatter, err)
	}
	defer release()

	bopts, err := opts.builderOptions(v)
	if err != nil {
		return fail(formatter, err)
	}
	q, err := build(bopts)
	if err != nil {
		return fail(formatter, err)
	}
	return formatter.Success(RenderResult{Form: q.Form().String(), Update: q.IsUpdate(), Query: q.Text()})
}
