// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for cloudexplorer. Values flow through a
// four-layer override chain (defaults -> config file -> environment -> CLI
// flags). Accounts are declared as [[account]] tables, each bound to one
// storage provider.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Sentinel errors for account selection.
var (
	ErrNoAccounts      = errors.New("config: no accounts configured")
	ErrAccountRequired = errors.New("config: several accounts configured, choose one with --account")
	ErrUnknownAccount  = errors.New("config: unknown account")
)

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Logging  LoggingConfig `toml:"logging"`
	Network  NetworkConfig `toml:"network"`
	Walk     WalkConfig    `toml:"walk"`
	Accounts []Account     `toml:"account"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	LogLevel string `toml:"log_level"`
}

// NetworkConfig controls HTTP client behavior.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	UserAgent      string `toml:"user_agent"`
	// MaxRetries caps retries of transient failures. Negative disables
	// retrying.
	MaxRetries int `toml:"max_retries"`
}

// WalkConfig controls recursive listings.
type WalkConfig struct {
	ParallelListings int `toml:"parallel_listings"`
}

// Account binds a name to a provider and its endpoint.
type Account struct {
	Name     string `toml:"name"`
	Provider string `toml:"provider"`
	// URL is the WebDav endpoint, or a Graph base URL override for OneDrive.
	URL      string `toml:"url"`
	Username string `toml:"username"`
	ReadOnly bool   `toml:"read_only"`
	// Color overrides the provider's branding color, as "#rrggbb".
	Color string `toml:"color"`
}

// CLIOverrides holds values from CLI flags. Empty strings mean "not
// specified".
type CLIOverrides struct {
	ConfigPath string // --config
	Account    string // --account
	LogLevel   string // --verbose / --debug / --quiet
}

// Timeouts returns the parsed network timeouts. Values that fail to parse
// fall back to the defaults; Validate reports them.
func (n *NetworkConfig) Timeouts() (connect, data time.Duration) {
	connect, err := time.ParseDuration(n.ConnectTimeout)
	if err != nil {
		connect, _ = time.ParseDuration(defaultConnectTimeout)
	}

	data, err = time.ParseDuration(n.DataTimeout)
	if err != nil {
		data, _ = time.ParseDuration(defaultDataTimeout)
	}

	return connect, data
}

// AccountNames returns the configured account names, sorted.
func (c *Config) AccountNames() []string {
	names := make([]string, 0, len(c.Accounts))
	for i := range c.Accounts {
		names = append(names, c.Accounts[i].Name)
	}

	sort.Strings(names)

	return names
}

// Account returns the named account. An empty name selects the only
// configured account.
func (c *Config) Account(name string) (*Account, error) {
	if len(c.Accounts) == 0 {
		return nil, ErrNoAccounts
	}

	if name == "" {
		if len(c.Accounts) > 1 {
			return nil, fmt.Errorf("%w (have %s)", ErrAccountRequired, strings.Join(c.AccountNames(), ", "))
		}

		return &c.Accounts[0], nil
	}

	for i := range c.Accounts {
		if c.Accounts[i].Name == name {
			return &c.Accounts[i], nil
		}
	}

	if s := closestMatch(name, c.AccountNames()); s != "" {
		return nil, fmt.Errorf("%w %q, did you mean %q?", ErrUnknownAccount, name, s)
	}

	return nil, fmt.Errorf("%w %q", ErrUnknownAccount, name)
}
