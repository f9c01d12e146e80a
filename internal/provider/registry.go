package provider

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrDuplicateProvider is returned when a second provider claims a name.
	ErrDuplicateProvider = errors.New("provider: duplicate name")
	// ErrUnknownProvider is returned by Lookup for an unregistered name.
	ErrUnknownProvider = errors.New("provider: unknown")
)

// Registry holds the known providers keyed by case-insensitive name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Default returns a registry holding the WebDav, OneDrive and Sharepoint
// providers built with s.
func Default(s Settings) *Registry {
	r := NewRegistry()

	for _, p := range []Provider{NewWebDav(s), NewOneDrive(s), NewSharepoint(s)} {
		// Names are distinct constants.
		_ = r.Register(p)
	}

	return r
}

// Register adds p. Names must be unique ignoring case.
func (r *Registry) Register(p Provider) error {
	key := strings.ToLower(p.Name())
	if key == "" {
		return errors.New("provider: empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.providers[key]; ok {
		return fmt.Errorf("%w: %q already registered as %q", ErrDuplicateProvider, p.Name(), existing.Name())
	}

	r.providers[key] = p

	return nil
}

// Lookup returns the provider registered under name, ignoring case.
func (r *Registry) Lookup(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownProvider, name, strings.Join(r.namesLocked(), ", "))
	}

	return p, nil
}

// Providers returns every registered provider sorted by name.
func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name()) < strings.ToLower(out[j].Name())
	})

	return out
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		names = append(names, p.Name())
	}

	sort.Strings(names)

	return names
}
