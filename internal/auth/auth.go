// Package auth provides the authentication managers file systems consult
// before every request: HTTP basic credentials for WebDav and Sharepoint,
// and OAuth2 bearer tokens for OneDrive.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tonimelisma/cloudexplorer/internal/filesystem"
)

// ErrNotLoggedIn is returned when no saved credentials exist for an account.
var ErrNotLoggedIn = errors.New("auth: not logged in")

// Basic authenticates requests with a fixed username and password.
type Basic struct {
	Username string
	Password string
}

// Authenticate sets the Authorization header. An empty username is treated
// as revoked credentials.
func (b *Basic) Authenticate(_ context.Context, req *http.Request) error {
	if b == nil || b.Username == "" {
		return fmt.Errorf("%w: no username configured", filesystem.ErrAuthentication)
	}

	req.SetBasicAuth(b.Username, b.Password)

	return nil
}

// TokenSource provides OAuth2 bearer tokens. Implementations must be safe
// for concurrent use.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token returns the token.
func (s StaticToken) Token() (string, error) {
	if s == "" {
		return "", ErrNotLoggedIn
	}

	return string(s), nil
}

// Bearer authenticates requests with tokens obtained from a TokenSource.
// A fresh token is fetched for every request; the source decides whether
// to reuse or refresh it.
type Bearer struct {
	source TokenSource
	logger *slog.Logger
}

// NewBearer creates a bearer authentication manager.
func NewBearer(source TokenSource, logger *slog.Logger) *Bearer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Bearer{source: source, logger: logger}
}

// Authenticate sets the Authorization header. A token source failure
// (revoked refresh token, no saved login) is reported as
// filesystem.ErrAuthentication.
func (b *Bearer) Authenticate(_ context.Context, req *http.Request) error {
	if b.source == nil {
		return fmt.Errorf("%w: %w", filesystem.ErrAuthentication, ErrNotLoggedIn)
	}

	tok, err := b.source.Token()
	if err != nil {
		b.logger.Warn("bearer token unavailable", slog.String("error", err.Error()))
		return fmt.Errorf("%w: %w", filesystem.ErrAuthentication, err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)

	return nil
}
