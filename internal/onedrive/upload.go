package onedrive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"net/http"

	"github.com/tonimelisma/cloudexplorer/internal/entity"
	"github.com/tonimelisma/cloudexplorer/internal/filesystem"
	"github.com/tonimelisma/cloudexplorer/internal/transport"
	"github.com/tonimelisma/cloudexplorer/pkg/quickxorhash"
)

// chunkAlignment is the required alignment for upload chunk sizes (320 KiB).
// All chunks except the final one must be a multiple of this value.
const chunkAlignment = 320 * 1024

// simpleUploadMaxSize is the largest file sent with a single PUT (4 MiB).
const simpleUploadMaxSize = 4 * 1024 * 1024

// DefaultChunkSize is the upload session fragment size (10 MiB).
const DefaultChunkSize = 32 * chunkAlignment

type createUploadSessionRequest struct {
	Item uploadSessionItem `json:"item"`
}

type uploadSessionItem struct {
	ConflictBehavior string `json:"@microsoft.graph.conflictBehavior"` //nolint:tagliatelle // Graph API annotation key
}

type uploadSessionResponse struct {
	UploadURL string `json:"uploadUrl"`
}

// CreateFile uploads content as a new file named name inside parent. An
// existing entry with the same name is reported as filesystem.ErrConflict.
// A negative size means unknown; the content is then buffered first. The
// QuickXorHash the server reports is checked against the bytes sent.
func (fs *FileSystem) CreateFile(
	ctx context.Context, parent, name string, content io.Reader, size int64,
) (*entity.File, error) {
	if err := filesystem.ValidateName(name); err != nil {
		return nil, err
	}

	parent = filesystem.Clean(parent)
	target := filesystem.Join(parent, name)

	if err := writable(opPut, parent); err != nil {
		return nil, err
	}

	if err := checkReserved(opPut, parent, name); err != nil {
		return nil, err
	}

	if size < 0 {
		data, err := io.ReadAll(content)
		if err != nil {
			return nil, fmt.Errorf("onedrive: put %s: reading content: %w", target, err)
		}

		content, size = bytes.NewReader(data), int64(len(data))
	}

	fs.logger.Info("uploading file",
		slog.String("path", target),
		slog.Int64("size", size),
	)

	hasher := quickxorhash.New()

	var (
		item *driveItem
		err  error
	)

	if size <= fs.simpleUploadMax {
		item, err = fs.simpleUpload(ctx, target, content, size, hasher)
	} else {
		item, err = fs.sessionUpload(ctx, target, content, size, hasher)
	}

	if err != nil {
		return nil, err
	}

	if err := verifyHash(target, item, hasher); err != nil {
		return nil, err
	}

	e, err := item.toEntry(opPut, target, false)
	if err != nil {
		return nil, err
	}

	f, ok := entity.AsFile(e)
	if !ok {
		return nil, parseError(opPut, target, "uploaded item is not a file")
	}

	return f, nil
}

func (fs *FileSystem) simpleUpload(
	ctx context.Context, target string, content io.Reader, size int64, hasher hash.Hash,
) (*driveItem, error) {
	data, err := readExactly(content, size)
	if err != nil {
		return nil, fmt.Errorf("onedrive: put %s: %w", target, err)
	}

	_, _ = hasher.Write(data)

	resp, err := fs.client.Do(ctx, &transport.Request{
		Method: http.MethodPut,
		Path:   location{path: target}.itemPath() + "/content?@microsoft.graph.conflictBehavior=fail",
		Header: http.Header{"Content-Type": []string{"application/octet-stream"}},
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return nil, classify(opPut, target, err)
	}
	defer resp.Body.Close()

	var item driveItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, parseError(opPut, target, "decoding upload response: "+err.Error())
	}

	return &item, nil
}

// sessionUpload sends content in chunkSize fragments through a resumable
// upload session. The session is canceled if any fragment fails.
func (fs *FileSystem) sessionUpload(
	ctx context.Context, target string, content io.Reader, size int64, hasher hash.Hash,
) (*driveItem, error) {
	var session uploadSessionResponse
	if err := fs.sendJSON(ctx, opPut, target, http.MethodPost,
		location{path: target}.itemPath()+"/createUploadSession",
		createUploadSessionRequest{Item: uploadSessionItem{ConflictBehavior: "fail"}}, &session); err != nil {
		return nil, err
	}

	if session.UploadURL == "" {
		return nil, parseError(opPut, target, "upload session has no upload URL")
	}

	fs.logger.Debug("upload session created", slog.String("path", target))

	item, err := fs.uploadChunks(ctx, target, session.UploadURL, content, size, hasher)
	if err != nil {
		fs.cancelSession(context.WithoutCancel(ctx), target, session.UploadURL)
		return nil, err
	}

	return item, nil
}

func (fs *FileSystem) uploadChunks(
	ctx context.Context, target, uploadURL string, content io.Reader, size int64, hasher hash.Hash,
) (*driveItem, error) {
	buf := make([]byte, min(fs.chunkSize, size))

	for offset := int64(0); offset < size; {
		n := min(fs.chunkSize, size-offset)

		if _, err := io.ReadFull(content, buf[:n]); err != nil {
			return nil, fmt.Errorf("onedrive: put %s: reading content at offset %d: %w", target, offset, err)
		}

		_, _ = hasher.Write(buf[:n])

		fs.logger.Debug("uploading chunk",
			slog.String("path", target),
			slog.Int64("offset", offset),
			slog.Int64("length", n),
			slog.Int64("total", size),
		)

		resp, err := fs.client.Do(ctx, &transport.Request{
			Method: http.MethodPut,
			Path:   uploadURL,
			Header: http.Header{
				"Content-Range": []string{fmt.Sprintf("bytes %d-%d/%d", offset, offset+n-1, size)},
				"Content-Type":  []string{"application/octet-stream"},
			},
			Body: bytes.NewReader(buf[:n]),
			// Upload URLs are pre-authorized; Graph rejects a bearer token on them.
			SkipAuth: true,
		})
		if err != nil {
			return nil, classify(opPut, target, err)
		}

		offset += n

		item, err := chunkResult(target, resp, offset == size)
		if err != nil || item != nil {
			return item, err
		}
	}

	return nil, parseError(opPut, target, "upload session ended without an item")
}

// chunkResult interprets a fragment response: 202 means more data is
// expected; 200 or 201 carries the finished item.
func chunkResult(target string, resp *http.Response, last bool) (*driveItem, error) {
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		_, _ = io.Copy(io.Discard, resp.Body)

		if last {
			return nil, parseError(opPut, target, "server still expects data after the final chunk")
		}

		return nil, nil
	}

	var item driveItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, parseError(opPut, target, "decoding final chunk response: "+err.Error())
	}

	return &item, nil
}

// cancelSession deletes an abandoned upload session. Failures are logged.
func (fs *FileSystem) cancelSession(ctx context.Context, target, uploadURL string) {
	resp, err := fs.client.Do(ctx, &transport.Request{
		Method:   http.MethodDelete,
		Path:     uploadURL,
		SkipAuth: true,
	})
	if err != nil {
		fs.logger.Warn("canceling upload session failed",
			slog.String("path", target),
			slog.String("error", err.Error()),
		)

		return
	}
	resp.Body.Close()

	fs.logger.Debug("upload session canceled", slog.String("path", target))
}

// verifyHash compares the server's QuickXorHash with the bytes sent. Items
// without a reported hash are accepted.
func verifyHash(target string, item *driveItem, hasher hash.Hash) error {
	remote := item.quickXorHash()
	if remote == "" {
		return nil
	}

	if local := quickxorhash.Base64(hasher); remote != local {
		return &filesystem.Error{
			Op:      opPut,
			Path:    target,
			Err:     filesystem.ErrTransport,
			Message: fmt.Sprintf("quickXorHash mismatch: sent %s, server has %s", local, remote),
		}
	}

	return nil
}

// readExactly reads size bytes, failing if content ends early.
func readExactly(content io.Reader, size int64) ([]byte, error) {
	data := make([]byte, size)
	if _, err := io.ReadFull(content, data); err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}

	return data, nil
}
