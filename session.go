package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/cloudexplorer/internal/auth"
	"github.com/tonimelisma/cloudexplorer/internal/config"
	"github.com/tonimelisma/cloudexplorer/internal/filesystem"
	"github.com/tonimelisma/cloudexplorer/internal/provider"
)

// Session is an authenticated file system for one configured account.
type Session struct {
	Account  *config.Account
	Provider provider.Provider
	FS       filesystem.FileSystem
}

// newRegistry builds the provider registry with the configured network
// settings.
func newRegistry(cc *CLIContext) *provider.Registry {
	return provider.Default(provider.Settings{
		HTTPClient: newHTTPClient(&cc.Cfg.Network),
		Logger:     cc.Logger,
		UserAgent:  cc.Cfg.Network.UserAgent,
		MaxRetries: cc.Cfg.Network.MaxRetries,
	})
}

// accountProvider returns the provider for a, bound to its endpoint and
// branding.
func accountProvider(reg *provider.Registry, a *config.Account) (provider.Provider, error) {
	p, err := reg.Lookup(a.Provider)
	if err != nil {
		return nil, fmt.Errorf("account %q: %w", a.Name, err)
	}

	p, err = provider.ForAccount(p, a.URL)
	if err != nil {
		return nil, fmt.Errorf("account %q: %w", a.Name, err)
	}

	if a.Color != "" {
		c, err := provider.ParseColor(a.Color)
		if err != nil {
			return nil, fmt.Errorf("account %q: %w", a.Name, err)
		}

		p = provider.WithColor(p, c)
	}

	return p, nil
}

// usesOAuth reports whether accounts of p sign in through Microsoft.
func usesOAuth(p provider.Provider) bool {
	return p.Name() == provider.NameOneDrive
}

// newOAuth returns the OAuth manager for a.
func newOAuth(a *config.Account, logger *slog.Logger) (*auth.OAuth, error) {
	path, err := tokenPath(a)
	if err != nil {
		return nil, err
	}

	return &auth.OAuth{TokenPath: path, Provider: provider.NameOneDrive, Logger: logger}, nil
}

func tokenPath(a *config.Account) (string, error) {
	path := config.TokenPath(a.Name)
	if path == "" {
		return "", fmt.Errorf("cannot determine credential path for account %q", a.Name)
	}

	return path, nil
}

// authManager loads the saved credentials for a.
func authManager(ctx context.Context, cc *CLIContext, a *config.Account, p provider.Provider) (filesystem.AuthenticationManager, error) {
	if usesOAuth(p) {
		o, err := newOAuth(a, cc.Logger)
		if err != nil {
			return nil, err
		}

		ts, err := o.TokenSource(ctx)
		if err != nil {
			return nil, notLoggedIn(a, err)
		}

		return auth.NewBearer(ts, cc.Logger), nil
	}

	path, err := tokenPath(a)
	if err != nil {
		return nil, err
	}

	b, err := auth.LoadBasic(path)
	if err != nil {
		return nil, notLoggedIn(a, err)
	}

	return b, nil
}

func notLoggedIn(a *config.Account, err error) error {
	if errors.Is(err, auth.ErrNotLoggedIn) {
		return fmt.Errorf("account %q is not logged in, run 'cloudexplorer login --account %s': %w", a.Name, a.Name, err)
	}

	return err
}

// openSession selects the account, loads its credentials and builds a
// fresh file system. Read-only accounts get the read-only wrapper.
func openSession(ctx context.Context, cc *CLIContext) (*Session, error) {
	a, err := cc.Cfg.SelectedAccount()
	if err != nil {
		return nil, err
	}

	p, err := accountProvider(newRegistry(cc), a)
	if err != nil {
		return nil, err
	}

	am, err := authManager(ctx, cc, a, p)
	if err != nil {
		return nil, err
	}

	fs := p.CreateFileSystem(am)
	if a.ReadOnly {
		fs = filesystem.ReadOnly(fs)
	}

	cc.Logger.Debug("session opened",
		slog.String("account", a.Name),
		slog.String("provider", p.Name()),
		slog.Bool("read_only", a.ReadOnly),
	)

	return &Session{Account: a, Provider: p, FS: fs}, nil
}
