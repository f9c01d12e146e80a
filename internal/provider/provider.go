// Package provider describes the storage backend families a user can
// connect to. A Provider carries display branding and builds file systems;
// the Registry is the single place new backends are added.
package provider

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/tonimelisma/cloudexplorer/internal/filesystem"
)

// Color is an RGB branding color.
type Color struct {
	R, G, B uint8
}

// Hex returns the color as "#rrggbb".
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ErrInvalidColor is returned by ParseColor for anything but "#rrggbb".
var ErrInvalidColor = errors.New("provider: invalid color")

// ParseColor parses a "#rrggbb" string (case-insensitive).
func ParseColor(s string) (Color, error) {
	hex, ok := strings.CutPrefix(strings.TrimSpace(s), "#")
	if !ok || len(hex) != 6 {
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}

	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// Provider describes one backend family. Implementations are immutable;
// CreateFileSystem returns a new file system on every call.
type Provider interface {
	Name() string
	Color() Color
	CreateFileSystem(auth filesystem.AuthenticationManager) filesystem.FileSystem
}

// EndpointProvider is implemented by providers whose file systems are
// rooted at a user-supplied URL.
type EndpointProvider interface {
	Provider
	WithEndpoint(url string) Provider
}

// Settings carries the process-wide knobs every file system is built with.
type Settings struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
	UserAgent  string
	MaxRetries int
	// UploadChunkSize tunes OneDrive upload sessions; zero keeps the default.
	UploadChunkSize int64
}

// ForAccount returns p bound to endpoint. An empty endpoint returns p
// unchanged; a non-empty one requires p to accept endpoints.
func ForAccount(p Provider, endpoint string) (Provider, error) {
	if endpoint == "" {
		return p, nil
	}

	ep, ok := p.(EndpointProvider)
	if !ok {
		return nil, fmt.Errorf("provider %s does not take an endpoint URL", p.Name())
	}

	return ep.WithEndpoint(endpoint), nil
}

type recolored struct {
	Provider
	color Color
}

func (r recolored) Color() Color { return r.color }

// WithColor returns p with its branding color replaced.
func WithColor(p Provider, c Color) Provider {
	if r, ok := p.(recolored); ok {
		p = r.Provider
	}

	return recolored{Provider: p, color: c}
}
