package webdav

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tonimelisma/cloudexplorer/internal/filesystem"
	"github.com/tonimelisma/cloudexplorer/internal/transport"
)

// Operation names used in errors and logs.
const (
	opList   = "list"
	opStat   = "stat"
	opMkdir  = "mkdir"
	opPut    = "put"
	opUpdate = "update"
	opDelete = "delete"
	opMove   = "move"
	opRename = "rename"
)

func isMutation(op string) bool {
	return op != opList && op != opStat
}

// statusSentinel maps a WebDav status code to a filesystem sentinel. The
// meaning of 405, 409 and 412 depends on the method (RFC 4918 §9).
func statusSentinel(op string, code int) error {
	switch code {
	case http.StatusUnauthorized:
		return filesystem.ErrAuthentication
	case http.StatusForbidden, http.StatusLocked:
		if isMutation(op) {
			return filesystem.ErrReadOnly
		}

		return filesystem.ErrAuthentication
	case http.StatusNotFound, http.StatusGone:
		return filesystem.ErrNotFound
	case http.StatusMethodNotAllowed:
		if op == opMkdir {
			return filesystem.ErrConflict
		}
	case http.StatusConflict:
		// Missing intermediate collection.
		if op == opMkdir || op == opPut || op == opMove || op == opRename {
			return filesystem.ErrNotFound
		}
	case http.StatusPreconditionFailed:
		if op == opPut || op == opMove || op == opRename {
			return filesystem.ErrConflict
		}
	}

	return filesystem.ErrTransport
}

// classify turns a transport error into a *filesystem.Error. Errors that
// never reached the server already wrap a sentinel (or a context error)
// and only gain the operation context.
func classify(op, p string, err error) error {
	var se *transport.StatusError
	if !errors.As(err, &se) {
		return fmt.Errorf("webdav: %s %s: %w", op, p, err)
	}

	return &filesystem.Error{
		Op:         op,
		Path:       p,
		StatusCode: se.StatusCode,
		RequestID:  se.RequestID,
		Message:    se.Message,
		Err:        statusSentinel(op, se.StatusCode),
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, filesystem.ErrNotFound)
}
