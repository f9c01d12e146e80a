// Package tokenfile stores per-account credentials on disk: an OAuth2 token
// for OneDrive accounts or a username/password pair for WebDav and
// Sharepoint accounts. It is a leaf package shared by auth/ and the CLI.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// FilePerms restricts credential files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the tokens directory.
const DirPerms = 0o700

// ErrNoCredentials is returned by Save and Load when a file carries neither
// a token nor basic credentials.
var ErrNoCredentials = errors.New("tokenfile: no credentials")

// BasicCredentials is a username/password pair for HTTP basic auth.
type BasicCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// File is the on-disk format. Exactly one of Token and Basic is set.
// Meta carries cached, non-secret account details (display name, drive id).
type File struct {
	Provider string            `json:"provider"`
	Token    *oauth2.Token     `json:"token,omitempty"`
	Basic    *BasicCredentials `json:"basic,omitempty"`
	Meta     map[string]string `json:"meta,omitempty"`
}

func (f *File) validate() error {
	if f.Token == nil && f.Basic == nil {
		return ErrNoCredentials
	}

	if f.Token != nil && f.Basic != nil {
		return errors.New("tokenfile: both token and basic credentials set")
	}

	return nil
}

// Load reads a credential file. Returns (nil, nil) if the file does not exist.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var tf File
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	if err := tf.validate(); err != nil {
		return nil, fmt.Errorf("%w in %s (re-login required)", err, path)
	}

	return &tf, nil
}

// Save writes a credential file atomically (write-to-temp + rename) with
// 0600 permissions. Never logs secrets.
func Save(path string, tf *File) error {
	if tf == nil {
		return ErrNoCredentials
	}

	if err := tf.validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, mkErr)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}

// Remove deletes the credential file. A missing file is not an error; the
// returned bool reports whether anything was removed.
func Remove(path string) (bool, error) {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("tokenfile: removing %s: %w", path, err)
	}

	return true, nil
}
