package main

import (
	"errors"

	"github.com/tonimelisma/cloudexplorer/internal/auth"
	"github.com/tonimelisma/cloudexplorer/internal/config"
	"github.com/tonimelisma/cloudexplorer/internal/filesystem"
)

// errorHints maps sentinels to advice shown after the error text. The
// first match wins.
var errorHints = []struct {
	err  error
	hint string
}{
	{auth.ErrNotLoggedIn, "run 'cloudexplorer login' for this account"},
	{filesystem.ErrAuthentication, "the server rejected the credentials; run 'cloudexplorer login' again"},
	{filesystem.ErrReadOnly, "the entry or account is read-only"},
	{filesystem.ErrConflict, "an entry with that name already exists"},
	{filesystem.ErrNotFound, "check the path with 'cloudexplorer ls'"},
	{config.ErrNoAccounts, "add an [[account]] table to the config file"},
}

// describeError returns the message printed for a failed command.
func describeError(err error) string {
	msg := err.Error()

	for _, h := range errorHints {
		if errors.Is(err, h.err) {
			return msg + "\n  hint: " + h.hint
		}
	}

	return msg
}
