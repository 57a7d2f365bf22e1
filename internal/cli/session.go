package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aleksaelezovic/graphdbi/internal/cache"
	"github.com/aleksaelezovic/graphdbi/internal/config"
	"github.com/aleksaelezovic/graphdbi/pkg/graphdb"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql/builder"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql/validate"
)

// openValidator returns the validator for this run, backed by the verdict
// cache when it is enabled. The returned func releases the cache.
func (o *RootOptions) openValidator() (*validate.Validator, func(), error) {
	vopts := []validate.Option{validate.WithDiagnostics(o.Logger)}
	if !o.Config.Cache.Enabled {
		return validate.New(vopts...), func() {}, nil
	}

	verdicts, err := cache.Open(cache.Options{
		Dir:  o.Config.Cache.Dir,
		TTL:  o.Config.Cache.TTL,
		Diag: o.Logger,
	})
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "open verdict cache", err)
	}
	closer := func() {
		if err := verdicts.Close(); err != nil {
			o.Logger.Warn("closing verdict cache failed", "error", err)
		}
	}
	return validate.New(append(vopts, validate.WithCache(verdicts))...), closer, nil
}

// builderOptions scopes offline rendering the way a client session would.
func (o *RootOptions) builderOptions(v *validate.Validator) ([]builder.Option, error) {
	prefixes, err := o.Config.PrefixMap()
	if err != nil {
		return nil, err
	}
	return []builder.Option{
		builder.WithPrefixes(prefixes),
		builder.WithNamedGraph(o.Config.NamedGraph),
		builder.WithScope(o.Config.IncludeExplicit, o.Config.IncludeImplicit),
		builder.WithDiagnostics(o.Logger),
		builder.WithValidator(v),
	}, nil
}

func authMode(m config.AuthMode) graphdb.AuthMode {
	switch m {
	case config.AuthToken:
		return graphdb.AuthToken
	case config.AuthBasic:
		return graphdb.AuthBasic
	default:
		return graphdb.AuthNone
	}
}

// newClient connects a session. With checkRepository the configured
// repository must be listed by the server.
func (o *RootOptions) newClient(ctx context.Context, checkRepository bool) (*graphdb.Client, func(), error) {
	cfg := o.Config
	tr, err := graphdb.NewHTTPTransport(graphdb.HTTPConfig{
		BaseURL:  cfg.BaseURL,
		Auth:     authMode(cfg.ResolvedAuth()),
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  cfg.Timeout,
		Retries:  cfg.Retries,
		Diag:     o.Logger,
	})
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "configure transport", err)
	}

	v, release, err := o.openValidator()
	if err != nil {
		return nil, nil, err
	}
	prefixes, err := cfg.PrefixMap()
	if err != nil {
		release()
		return nil, nil, err
	}

	c := graphdb.NewClient(tr,
		graphdb.WithPrefixes(prefixes),
		graphdb.WithNamedGraph(cfg.NamedGraph),
		graphdb.WithScope(cfg.IncludeExplicit, cfg.IncludeImplicit),
		graphdb.WithDiagnostics(o.Logger),
		graphdb.WithValidator(v),
	)

	if checkRepository {
		if cfg.Repository == "" {
			release()
			return nil, nil, WrapExitError(ExitCommandError, "no repository configured",
				fmt.Errorf("set repository in the config file or %s", config.EnvRepository))
		}
		if err := c.SetRepository(ctx, cfg.Repository); err != nil {
			release()
			return nil, nil, err
		}
		o.Logger.Debug("using repository", "repository", cfg.Repository, "user", cfg.Username)
	}
	return c, release, nil
}

// readInput returns arg itself, stdin for "-", or a file's content for
// "@path".
func readInput(cmd *cobra.Command, arg string) (string, error) {
	switch {
	case arg == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		return string(data), err
	case strings.HasPrefix(arg, "@"):
		data, err := os.ReadFile(arg[1:])
		return string(data), err
	default:
		return arg, nil
	}
}

// fail prints err in the configured format and maps it to an exit code.
func fail(f *OutputFormatter, err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		_ = f.Error(ErrCodeGeneric, err.Error(), nil)
		exitErr.Reported = true
		return err
	}

	code, exit := ErrCodeGeneric, ExitCommandError
	var details any
	var qerr *sparql.InvalidQueryError
	var serr *graphdb.StatusError
	switch {
	case errors.As(err, &qerr):
		code, exit = ErrCodeInvalidQuery, ExitFailure
		details = qerr.Query
	case errors.Is(err, sparql.ErrInvalidIRI), errors.Is(err, sparql.ErrInvalidInput):
		code = ErrCodeInvalidInput
	case errors.Is(err, graphdb.ErrTripleNotFound), errors.Is(err, graphdb.ErrUnknownRepository):
		code, exit = ErrCodeNotFound, ExitFailure
	case errors.As(err, &serr):
		code = ErrCodeServer
		details = map[string]any{"status": serr.StatusCode, "request_id": serr.RequestID}
	case errors.Is(err, graphdb.ErrLogin), errors.Is(err, graphdb.ErrNoRepository):
		code = ErrCodeServer
	}
	_ = f.Error(code, err.Error(), details)
	exitErr = WrapExitError(exit, code, err)
	exitErr.Reported = true
	return exitErr
}
