package auth

import (
	"fmt"

	"github.com/tonimelisma/cloudexplorer/internal/tokenfile"
)

// SaveBasic stores a username/password pair for provider at path.
func SaveBasic(path, provider string, b *Basic) error {
	if b == nil || b.Username == "" {
		return fmt.Errorf("auth: username is required")
	}

	return tokenfile.Save(path, &tokenfile.File{
		Provider: provider,
		Basic:    &tokenfile.BasicCredentials{Username: b.Username, Password: b.Password},
	})
}

// LoadBasic reads the credentials saved by SaveBasic. Returns
// ErrNotLoggedIn when the file is missing or holds an OAuth token instead.
func LoadBasic(path string) (*Basic, error) {
	tf, err := tokenfile.Load(path)
	if err != nil {
		return nil, err
	}

	if tf == nil || tf.Basic == nil {
		return nil, ErrNotLoggedIn
	}

	return &Basic{Username: tf.Basic.Username, Password: tf.Basic.Password}, nil
}

// RemoveCredentials deletes whatever credentials are saved at path and
// reports whether a file was removed.
func RemoveCredentials(path string) (bool, error) {
	return tokenfile.Remove(path)
}
