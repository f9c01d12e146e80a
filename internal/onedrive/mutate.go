package onedrive

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tonimelisma/cloudexplorer/internal/entity"
	"github.com/tonimelisma/cloudexplorer/internal/filesystem"
)

// writable rejects paths inside the virtual shared directory, which is
// read-only along with everything below it.
func writable(op, p string) error {
	if isShared(p) {
		return filesystem.ReadOnlyError(op, p)
	}

	return nil
}

// checkReserved rejects a root-level entry that would collide with the
// virtual shared directory.
func checkReserved(op, parent, name string) error {
	if filesystem.IsRoot(parent) && name == SharedWithMeName {
		return &filesystem.Error{Op: op, Path: filesystem.Join(parent, name), Err: filesystem.ErrConflict, Message: "name is reserved"}
	}

	return nil
}

// CreateDirectory creates the folder name inside parent. An existing entry
// with the same name is reported as filesystem.ErrConflict.
func (fs *FileSystem) CreateDirectory(ctx context.Context, parent, name string) (*entity.Directory, error) {
	if err := filesystem.ValidateName(name); err != nil {
		return nil, err
	}

	parent = filesystem.Clean(parent)
	target := filesystem.Join(parent, name)

	if err := writable(opMkdir, parent); err != nil {
		return nil, err
	}

	if err := checkReserved(opMkdir, parent, name); err != nil {
		return nil, err
	}

	fs.logger.Info("creating directory", slog.String("path", target))

	var item driveItem
	if err := fs.sendJSON(ctx, opMkdir, target, http.MethodPost, location{path: parent}.itemPath()+"/children",
		createFolderRequest{Name: name, ConflictBehavior: "fail"}, &item); err != nil {
		return nil, err
	}

	e, err := item.toEntry(opMkdir, target, false)
	if err != nil {
		return nil, err
	}

	d, ok := entity.AsDirectory(e)
	if !ok {
		return nil, parseError(opMkdir, target, "created item is not a folder")
	}

	return d, nil
}

// Update persists the editable fields of a file. Directories carry none and
// are returned unchanged.
func (fs *FileSystem) Update(ctx context.Context, e entity.Entry) (entity.Entry, error) {
	p := filesystem.Clean(e.FullPath())

	if err := writable(opUpdate, p); err != nil {
		return nil, err
	}

	if e.IsReadOnly() {
		return nil, filesystem.ReadOnlyError(opUpdate, p)
	}

	f, ok := entity.AsFile(e)
	if !ok {
		return e, nil
	}

	description, err := f.Field(entity.FieldDescription)
	if err != nil {
		return nil, fmt.Errorf("onedrive: update %s: %w", p, err)
	}

	fs.logger.Info("updating file metadata", slog.String("path", p))

	var item driveItem
	if err := fs.sendJSON(ctx, opUpdate, p, http.MethodPatch, location{path: p}.itemPath(),
		patchItemRequest{Description: &description}, &item); err != nil {
		return nil, err
	}

	return item.toEntry(opUpdate, p, false)
}

// Delete removes the entry at p. Folders are removed with their contents.
func (fs *FileSystem) Delete(ctx context.Context, p string) error {
	p = filesystem.Clean(p)
	if filesystem.IsRoot(p) {
		return filesystem.ReadOnlyError(opDelete, p)
	}

	if err := writable(opDelete, p); err != nil {
		return err
	}

	fs.logger.Info("deleting entry", slog.String("path", p))

	return fs.sendJSON(ctx, opDelete, p, http.MethodDelete, location{path: p}.itemPath(), nil, nil)
}

// Move relocates the entry at p into newParent, keeping its name.
func (fs *FileSystem) Move(ctx context.Context, p, newParent string) (entity.Entry, error) {
	p = filesystem.Clean(p)
	newParent = filesystem.Clean(newParent)
	_, name := filesystem.Split(p)
	dest := filesystem.Join(newParent, name)

	if filesystem.IsRoot(p) {
		return nil, filesystem.ReadOnlyError(opMove, p)
	}

	if err := writable(opMove, p); err != nil {
		return nil, err
	}

	if err := writable(opMove, newParent); err != nil {
		return nil, err
	}

	if dest == p {
		return fs.Stat(ctx, p)
	}

	if filesystem.HasPrefix(newParent, p) {
		return nil, &filesystem.Error{Op: opMove, Path: p, Err: filesystem.ErrConflict, Message: "destination is inside the source"}
	}

	if err := checkReserved(opMove, newParent, name); err != nil {
		return nil, err
	}

	var target driveItem
	if err := fs.getJSON(ctx, opMove, newParent, location{path: newParent}.itemPath(), &target); err != nil {
		return nil, err
	}

	if !target.isFolder() {
		return nil, &filesystem.Error{Op: opMove, Path: newParent, Err: filesystem.ErrNotFound, Message: "not a directory"}
	}

	fs.logger.Info("moving entry",
		slog.String("from", p),
		slog.String("to", dest),
	)

	var item driveItem
	if err := fs.sendJSON(ctx, opMove, p, http.MethodPatch, location{path: p}.itemPath(),
		patchItemRequest{ParentReference: &parentRef{ID: target.ID}}, &item); err != nil {
		return nil, err
	}

	return item.toEntry(opMove, dest, false)
}

// Rename gives the entry at p a new name in the same directory.
func (fs *FileSystem) Rename(ctx context.Context, p, newName string) (entity.Entry, error) {
	if err := filesystem.ValidateName(newName); err != nil {
		return nil, err
	}

	p = filesystem.Clean(p)
	parent, name := filesystem.Split(p)
	dest := filesystem.Join(parent, newName)

	if filesystem.IsRoot(p) {
		return nil, filesystem.ReadOnlyError(opRename, p)
	}

	if err := writable(opRename, p); err != nil {
		return nil, err
	}

	if name == newName {
		return fs.Stat(ctx, p)
	}

	if err := checkReserved(opRename, parent, newName); err != nil {
		return nil, err
	}

	fs.logger.Info("renaming entry",
		slog.String("path", p),
		slog.String("name", newName),
	)

	var item driveItem
	if err := fs.sendJSON(ctx, opRename, p, http.MethodPatch, location{path: p}.itemPath(),
		patchItemRequest{Name: newName}, &item); err != nil {
		return nil, err
	}

	return item.toEntry(opRename, dest, false)
}
