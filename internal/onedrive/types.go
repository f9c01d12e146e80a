package onedrive

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/cloudexplorer/internal/entity"
)

// driveItem mirrors the Graph driveItem JSON. Unexported: callers only see
// entities built by toEntry.
type driveItem struct {
	ID                   string       `json:"id"`
	Name                 string       `json:"name"`
	Size                 int64        `json:"size"`
	ETag                 string       `json:"eTag"`
	Description          *string      `json:"description"`
	CreatedDateTime      string       `json:"createdDateTime"`
	LastModifiedDateTime string       `json:"lastModifiedDateTime"`
	ParentReference      *parentRef   `json:"parentReference"`
	File                 *fileFacet   `json:"file"`
	Folder               *folderFacet `json:"folder"`
	RemoteItem           *remoteItem  `json:"remoteItem"`
}

type parentRef struct {
	ID      string `json:"id,omitempty"`
	DriveID string `json:"driveId,omitempty"`
	Path    string `json:"path,omitempty"`
}

type fileFacet struct {
	MimeType string     `json:"mimeType"`
	Hashes   *hashFacet `json:"hashes"`
}

type hashFacet struct {
	QuickXorHash string `json:"quickXorHash"`
}

type folderFacet struct {
	ChildCount int `json:"childCount"`
}

// remoteItem points at an item living in another user's drive.
type remoteItem struct {
	ID              string       `json:"id"`
	ParentReference *parentRef   `json:"parentReference"`
	File            *fileFacet   `json:"file"`
	Folder          *folderFacet `json:"folder"`
}

type listResponse struct {
	Value    []driveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink"` //nolint:tagliatelle // OData annotation key
}

type createFolderRequest struct {
	Name             string      `json:"name"`
	Folder           folderFacet `json:"folder"`
	ConflictBehavior string      `json:"@microsoft.graph.conflictBehavior"` //nolint:tagliatelle // Graph API annotation key
}

type patchItemRequest struct {
	Name            string     `json:"name,omitempty"`
	Description     *string    `json:"description,omitempty"`
	ParentReference *parentRef `json:"parentReference,omitempty"`
}

func (d *driveItem) isFolder() bool {
	return d.Folder != nil || (d.RemoteItem != nil && d.RemoteItem.Folder != nil)
}

func (d *driveItem) quickXorHash() string {
	if d.File != nil && d.File.Hashes != nil {
		return d.File.Hashes.QuickXorHash
	}

	return ""
}

// displayName returns the NFC-normalized item name.
func (d *driveItem) displayName() string {
	return norm.NFC.String(d.Name)
}

// remoteRef returns the drive and item id addressing a shared item.
func (d *driveItem) remoteRef() (driveID, itemID string) {
	if d.RemoteItem == nil {
		if d.ParentReference != nil {
			return d.ParentReference.DriveID, d.ID
		}

		return "", d.ID
	}

	if d.RemoteItem.ParentReference != nil {
		driveID = d.RemoteItem.ParentReference.DriveID
	}

	return driveID, d.RemoteItem.ID
}

// toEntry converts a driveItem into an entity at fullPath. An empty
// timestamp leaves the field unset; a malformed one is an error.
func (d *driveItem) toEntry(op, fullPath string, readOnly bool) (entity.Entry, error) {
	opts := []entity.Option{entity.WithReadOnly(readOnly)}

	if fullPath == "/" {
		opts = append(opts, entity.WithName("/"))
	} else {
		opts = append(opts, entity.WithName(d.displayName()))
	}

	for _, ts := range []struct {
		field string
		raw   string
		opt   func(time.Time) entity.Option
	}{
		{"createdDateTime", d.CreatedDateTime, entity.WithCreatedAt},
		{"lastModifiedDateTime", d.LastModifiedDateTime, entity.WithModifiedAt},
	} {
		raw := strings.TrimSpace(ts.raw)
		if raw == "" {
			continue
		}

		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, parseError(op, fullPath, fmt.Sprintf("malformed %s %q: %v", ts.field, raw, err))
		}

		opts = append(opts, ts.opt(t))
	}

	if d.isFolder() {
		return entity.NewDirectory(d.ID, fullPath, opts...), nil
	}

	var description string
	if d.Description != nil {
		description = *d.Description
	}

	opts = append(opts,
		entity.WithSize(d.Size),
		entity.WithETag(d.ETag),
		entity.WithField(entity.FieldDescription, description),
	)

	if d.File != nil {
		opts = append(opts, entity.WithContentType(d.File.MimeType))
	}

	return entity.NewFile(d.ID, fullPath, opts...), nil
}
