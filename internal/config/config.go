// Package config loads client settings from a YAML file and the GRAPHDB_*
// environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aleksaelezovic/graphdbi/pkg/sparql/prefix"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql/token"
)

// Environment variables that override file settings.
const (
	EnvURL        = "GRAPHDB_URL"
	EnvUser       = "GRAPHDB_USER"
	EnvPassword   = "GRAPHDB_PASSWORD"
	EnvRepository = "GRAPHDB_REPOSITORY"
)

// AuthMode selects how requests authenticate.
type AuthMode string

const (
	// AuthAuto uses token authentication when a username is set and none
	// otherwise.
	AuthAuto  AuthMode = ""
	AuthToken AuthMode = "token"
	AuthBasic AuthMode = "basic"
	AuthNone  AuthMode = "none"
)

// Config is the full client configuration.
type Config struct {
	BaseURL    string        `yaml:"base_url"`
	Repository string        `yaml:"repository"`
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	Auth       AuthMode      `yaml:"auth"`
	Timeout    time.Duration `yaml:"timeout"`
	Retries    int           `yaml:"retries"`

	NamedGraph      string   `yaml:"named_graph"`
	Prefixes        Prefixes `yaml:"prefixes"`
	IncludeExplicit bool     `yaml:"include_explicit"`
	IncludeImplicit bool     `yaml:"include_implicit"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Cache CacheConfig `yaml:"cache"`
}

// CacheConfig configures the validation verdict cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Dir     string        `yaml:"dir"`
	TTL     time.Duration `yaml:"ttl"`
}

// Prefixes keeps the declaration order of the YAML mapping.
type Prefixes []prefix.Entry

// UnmarshalYAML decodes a mapping of prefix name to namespace IRI.
func (p *Prefixes) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: prefixes must be a mapping", node.Line)
	}
	entries := make(Prefixes, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: prefix %q must map to an IRI", v.Line, k.Value)
		}
		entries = append(entries, prefix.Entry{Name: k.Value, IRI: v.Value})
	}
	*p = entries
	return nil
}

// MarshalYAML encodes the entries as an ordered mapping.
func (p Prefixes) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range p {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: e.Name},
			&yaml.Node{Kind: yaml.ScalarNode, Value: e.IRI},
		)
	}
	return node, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		BaseURL:         "http://localhost:7200",
		Auth:            AuthAuto,
		Timeout:         30 * time.Second,
		Retries:         2,
		IncludeExplicit: true,
		IncludeImplicit: true,
		LogLevel:        "info",
		LogFormat:       "text",
		Cache: CacheConfig{
			TTL: 24 * time.Hour,
		},
	}
}

// Load reads path (if not empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := cfg.Decode(f); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode overlays YAML from r. Unknown keys are an error.
func (c *Config) Decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// ApplyEnv overrides connection settings from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvURL); ok && v != "" {
		c.BaseURL = v
	}
	if v, ok := lookup(EnvUser); ok && v != "" {
		c.Username = v
	}
	if v, ok := lookup(EnvPassword); ok && v != "" {
		c.Password = v
	}
	if v, ok := lookup(EnvRepository); ok && v != "" {
		c.Repository = v
	}
}

// ResolvedAuth turns AuthAuto into a concrete mode.
func (c *Config) ResolvedAuth() AuthMode {
	if c.Auth != AuthAuto {
		return c.Auth
	}
	if c.Username != "" {
		return AuthToken
	}
	return AuthNone
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base_url %q must be an http or https URL", c.BaseURL)
	}

	switch c.Auth {
	case AuthAuto, AuthNone:
	case AuthToken, AuthBasic:
		if c.Username == "" || c.Password == "" {
			return fmt.Errorf("auth %q needs username and password", c.Auth)
		}
	default:
		return fmt.Errorf("auth must be one of token, basic, none; got %q", c.Auth)
	}
	if c.ResolvedAuth() == AuthToken && c.Password == "" {
		return fmt.Errorf("username %q is set without a password", c.Username)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must not be negative, got %d", c.Retries)
	}
	if c.NamedGraph != "" && !token.IsIRI(c.NamedGraph) {
		return fmt.Errorf("named_graph %q is not an absolute IRI", c.NamedGraph)
	}
	if _, err := c.PrefixMap(); err != nil {
		return err
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative, got %s", c.Cache.TTL)
	}
	return nil
}

// PrefixMap returns the built-in prefixes followed by the configured ones.
func (c *Config) PrefixMap() (*prefix.Map, error) {
	m := prefix.New()
	for _, e := range c.Prefixes {
		if err := m.Add(e.Name, e.IRI); err != nil {
			return nil, fmt.Errorf("prefix %q: %w", e.Name, err)
		}
	}
	return m, nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("log_level must be debug, info, warn or error, got %q", s)
	}
	return l, nil
}

// Marshal renders the configuration as YAML with the password masked.
func (c *Config) Marshal() ([]byte, error) {
	masked := *c
	if masked.Password != "" {
		masked.Password = "********"
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&masked); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
