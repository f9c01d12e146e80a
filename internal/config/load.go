package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal, with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with default values and no accounts.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolved is a loaded config together with the choices made by the
// override chain.
type Resolved struct {
	*Config
	// Path is the config file that was consulted, whether or not it exists.
	Path string
	// AccountName is the requested account; empty selects the only one.
	AccountName string
}

// SelectedAccount returns the account chosen by the override chain.
func (r *Resolved) SelectedAccount() (*Account, error) {
	return r.Account(r.AccountName)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	if env.LogLevel != "" {
		cfg.Logging.LogLevel = env.LogLevel
	}

	if cli.LogLevel != "" {
		cfg.Logging.LogLevel = cli.LogLevel
	}

	if errs := validateLogLevel(cfg.Logging.LogLevel); len(errs) > 0 {
		return nil, fmt.Errorf("config validation: %w", errors.Join(errs...))
	}

	account := env.Account
	if cli.Account != "" {
		account = cli.Account
	}

	return &Resolved{Config: cfg, Path: cfgPath, AccountName: account}, nil
}
