package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tonimelisma/cloudexplorer/internal/provider"
)

// Validation range constants.
const (
	minConnectTimeout   = 1 * time.Second
	minDataTimeout      = 5 * time.Second
	maxRetries          = 10
	minParallelListings = 1
	maxParallelListings = 64
	maxAccountNameLen   = 64
)

// Validate checks all configuration values and returns all errors found,
// so users can fix every issue in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateLogLevel(cfg.Logging.LogLevel)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateWalk(&cfg.Walk)...)
	errs = append(errs, validateAccounts(cfg.Accounts)...)

	return errors.Join(errs...)
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDurationMin("data_timeout", n.DataTimeout, minDataTimeout)...)

	if n.MaxRetries > maxRetries {
		errs = append(errs, fmt.Errorf("max_retries: must be <= %d, got %d", maxRetries, n.MaxRetries))
	}

	return errs
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}

func validateWalk(w *WalkConfig) []error {
	if w.ParallelListings < minParallelListings || w.ParallelListings > maxParallelListings {
		return []error{fmt.Errorf("parallel_listings: must be between %d and %d, got %d",
			minParallelListings, maxParallelListings, w.ParallelListings)}
	}

	return nil
}

func validateAccounts(accounts []Account) []error {
	var errs []error

	registry := provider.Default(provider.Settings{})
	seen := make(map[string]bool, len(accounts))

	for i := range accounts {
		a := &accounts[i]
		field := fmt.Sprintf("account[%d]", i)

		if a.Name != "" {
			field = fmt.Sprintf("account %q", a.Name)
		}

		errs = append(errs, validateAccountName(field, a.Name)...)

		if seen[a.Name] {
			errs = append(errs, fmt.Errorf("%s: duplicate account name", field))
		}

		seen[a.Name] = true

		errs = append(errs, validateAccountProvider(field, a, registry)...)

		if a.Color != "" {
			if _, err := provider.ParseColor(a.Color); err != nil {
				errs = append(errs, fmt.Errorf("%s: color: %w", field, err))
			}
		}
	}

	return errs
}

// validateAccountName rejects names that cannot serve as token file names.
func validateAccountName(field, name string) []error {
	switch {
	case name == "":
		return []error{fmt.Errorf("%s: name must not be empty", field)}
	case len(name) > maxAccountNameLen:
		return []error{fmt.Errorf("%s: name must be at most %d characters", field, maxAccountNameLen)}
	case strings.HasPrefix(name, "."):
		return []error{fmt.Errorf("%s: name must not start with a dot", field)}
	case strings.ContainsAny(name, `/\:*?"<>|`):
		return []error{fmt.Errorf("%s: name must not contain path or shell special characters", field)}
	}

	return nil
}

func validateAccountProvider(field string, a *Account, registry *provider.Registry) []error {
	p, err := registry.Lookup(a.Provider)
	if err != nil {
		return []error{fmt.Errorf("%s: provider: %w", field, err)}
	}

	if a.URL == "" {
		if p.Name() != provider.NameOneDrive {
			return []error{fmt.Errorf("%s: url is required for %s", field, p.Name())}
		}

		return nil
	}

	u, err := url.Parse(a.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return []error{fmt.Errorf("%s: url must be an absolute http(s) URL, got %q", field, a.URL)}
	}

	return nil
}
