// Package filesystem defines the backend-neutral contract every remote
// storage backend implements, the authentication hook each request passes
// through, and the error taxonomy callers match with errors.Is.
package filesystem

import (
	"errors"
	"fmt"

	"github.com/tonimelisma/cloudexplorer/internal/entity"
)

// Sentinel errors. Backends wrap one of these in an *Error so callers can
// use errors.Is(err, filesystem.ErrNotFound) regardless of the wire protocol.
var (
	ErrNotFound       = errors.New("filesystem: not found")
	ErrAuthentication = errors.New("filesystem: authentication failed")
	ErrConflict       = errors.New("filesystem: name conflict")
	ErrTransport      = errors.New("filesystem: transport failure")
	ErrParse          = errors.New("filesystem: malformed response")
	ErrInvalidName    = errors.New("filesystem: invalid entry name")

	// ErrReadOnly is shared with the entity package so a rejected in-memory
	// field edit and a rejected remote mutation match the same sentinel.
	ErrReadOnly = entity.ErrReadOnly
)

// Error describes a failed file-system operation. Err is always one of the
// package sentinels.
type Error struct {
	Op         string // "list", "mkdir", "put", "delete", "move", "rename", "update", "stat"
	Path       string
	StatusCode int    // 0 when no HTTP response was received
	RequestID  string // server-assigned request id, when the backend sends one
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)

	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d", e.StatusCode)
		if e.RequestID != "" {
			msg += ", request-id: " + e.RequestID
		}

		msg += ")"
	}

	if e.Message != "" {
		msg += ": " + e.Message
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError is a shorthand for errors raised before any request is sent.
func newError(op, p string, sentinel error, msg string) *Error {
	return &Error{Op: op, Path: p, Err: sentinel, Message: msg}
}

// ReadOnlyError builds the error returned when a mutation targets a
// read-only entry or container.
func ReadOnlyError(op, p string) error {
	return newError(op, p, ErrReadOnly, "")
}
