package onedrive

import (
	"encoding/json"
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

// statusSentinel maps a Graph status code to a filesystem sentinel.
func statusSentinel(op string, code int) error {
	switch code {
	case http.StatusUnauthorized:
		return filesystem.ErrAuthentication
	case http.StatusForbidden:
		if isMutation(op) {
			return filesystem.ErrReadOnly
		}

		return filesystem.ErrAuthentication
	case http.StatusNotFound, http.StatusGone:
		return filesystem.ErrNotFound
	case http.StatusConflict, http.StatusPreconditionFailed:
		return filesystem.ErrConflict
	case http.StatusLocked:
		return filesystem.ErrReadOnly
	default:
		return filesystem.ErrTransport
	}
}

// graphErrorBody is the JSON error envelope Graph returns on failure.
type graphErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// graphMessage extracts "code: message" from a Graph error body, falling
// back to the raw text.
func graphMessage(raw string) string {
	var body graphErrorBody
	if err := json.Unmarshal([]byte(raw), &body); err != nil || body.Error.Code == "" {
		return raw
	}

	if body.Error.Message == "" {
		return body.Error.Code
	}

	return body.Error.Code + ": " + body.Error.Message
}

// classify turns a transport error into a *filesystem.Error.
func classify(op, p string, err error) error {
	var se *transport.StatusError
	if !errors.As(err, &se) {
		return fmt.Errorf("onedrive: %s %s: %w", op, p, err)
	}

	return &filesystem.Error{
		Op:         op,
		Path:       p,
		StatusCode: se.StatusCode,
		RequestID:  se.RequestID,
		Message:    graphMessage(se.Message),
		Err:        statusSentinel(op, se.StatusCode),
	}
}

func parseError(op, p, msg string) error {
	return &filesystem.Error{Op: op, Path: p, Err: filesystem.ErrParse, Message: msg}
}
