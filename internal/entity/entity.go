// Package entity defines the typed directory and file entries that every
// file-system backend returns. Entries are plain values built either by
// parsing a protocol response or synthetically (virtual roots); their
// identity (ID and FullPath) never changes after construction.
package entity

import (
	"errors"
	"maps"
	"path"
	"slices"
	"time"
)

// Kind tags the entry variant.
type Kind int

const (
	// KindDirectory is a container entry.
	KindDirectory Kind = iota + 1
	// KindFile is a leaf entry with content.
	KindFile
)

// String returns a lowercase name for the kind.
func (k Kind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

// Field is the semantic name of a backend-specific mutable field. Display
// labels are resolved by the presentation layer, never here.
type Field string

// FieldDescription is the free-text description OneDrive keeps on files.
const FieldDescription Field = "description"

var (
	// ErrUnsupportedField is returned when reading or writing a field the
	// entry variant does not carry.
	ErrUnsupportedField = errors.New("field not supported by this entry")

	// ErrReadOnly is returned when mutating a read-only entry.
	ErrReadOnly = errors.New("entry is read-only")
)

// Entry is the capability set shared by directories and files.
type Entry interface {
	ID() string
	Name() string
	FullPath() string
	Kind() Kind
	IsDir() bool
	IsReadOnly() bool
	CreatedAt() (time.Time, bool)
	ModifiedAt() (time.Time, bool)
}

// common holds the identity and timestamps shared by both variants.
type common struct {
	id       string
	name     string
	fullPath string
	created  *time.Time
	modified *time.Time
	readOnly bool
}

func (c *common) ID() string       { return c.id }
func (c *common) Name() string     { return c.name }
func (c *common) FullPath() string { return c.fullPath }
func (c *common) IsReadOnly() bool { return c.readOnly }

// CreatedAt returns the creation time and whether the backend supplied one.
func (c *common) CreatedAt() (time.Time, bool) {
	if c.created == nil {
		return time.Time{}, false
	}

	return *c.created, true
}

// ModifiedAt returns the last modification time and whether the backend
// supplied one.
func (c *common) ModifiedAt() (time.Time, bool) {
	if c.modified == nil {
		return time.Time{}, false
	}

	return *c.modified, true
}

// settings collects constructor options for both variants. File-only
// options are ignored when building a directory.
type settings struct {
	name        string
	created     *time.Time
	modified    *time.Time
	readOnly    bool
	size        int64
	etag        string
	contentType string
	fields      map[Field]string
}

// Option configures an entry at construction.
type Option func(*settings)

// WithName overrides the display name derived from the full path.
func WithName(name string) Option {
	return func(s *settings) { s.name = name }
}

// WithCreatedAt sets the creation timestamp.
func WithCreatedAt(t time.Time) Option {
	return func(s *settings) { s.created = &t }
}

// WithModifiedAt sets the last modification timestamp.
func WithModifiedAt(t time.Time) Option {
	return func(s *settings) { s.modified = &t }
}

// WithReadOnly marks the entry read-only.
func WithReadOnly(readOnly bool) Option {
	return func(s *settings) { s.readOnly = readOnly }
}

// WithSize sets the content length of a file.
func WithSize(n int64) Option {
	return func(s *settings) { s.size = n }
}

// WithETag sets the entity tag of a file.
func WithETag(etag string) Option {
	return func(s *settings) { s.etag = etag }
}

// WithContentType sets the MIME type of a file.
func WithContentType(ct string) Option {
	return func(s *settings) { s.contentType = ct }
}

// WithField declares that a file carries the given mutable field and sets
// its initial value.
func WithField(f Field, value string) Option {
	return func(s *settings) {
		if s.fields == nil {
			s.fields = make(map[Field]string)
		}

		s.fields[f] = value
	}
}

func apply(fullPath string, opts []Option) (settings, common) {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}

	name := s.name
	if name == "" {
		name = path.Base(fullPath)
	}

	return s, common{
		name:     name,
		fullPath: fullPath,
		created:  s.created,
		modified: s.modified,
		readOnly: s.readOnly,
	}
}

// Directory is a container entry.
type Directory struct {
	common
}

// NewDirectory builds a directory. The name defaults to the last segment
// of fullPath.
func NewDirectory(id, fullPath string, opts ...Option) *Directory {
	_, c := apply(fullPath, opts)
	c.id = id

	return &Directory{common: c}
}

// NewVirtualDirectory builds a synthetic read-only directory that has no
// backend counterpart, such as a "shared with me" root. The path doubles as
// the identifier.
func NewVirtualDirectory(name, fullPath string) *Directory {
	return NewDirectory(fullPath, fullPath, WithName(name), WithReadOnly(true))
}

// Kind reports KindDirectory.
func (d *Directory) Kind() Kind { return KindDirectory }

// IsDir reports true.
func (d *Directory) IsDir() bool { return true }

// File is a leaf entry. Backend-specific mutable fields live in a table
// keyed by Field; only declared fields may be read or written.
type File struct {
	common
	size        int64
	etag        string
	contentType string
	fields      map[Field]string
}

// NewFile builds a file. The name defaults to the last segment of fullPath.
func NewFile(id, fullPath string, opts ...Option) *File {
	s, c := apply(fullPath, opts)
	c.id = id

	return &File{
		common:      c,
		size:        s.size,
		etag:        s.etag,
		contentType: s.contentType,
		fields:      s.fields,
	}
}

// Kind reports KindFile.
func (f *File) Kind() Kind { return KindFile }

// IsDir reports false.
func (f *File) IsDir() bool { return false }

// Size returns the content length in bytes.
func (f *File) Size() int64 { return f.size }

// ETag returns the entity tag, or "" when the backend supplied none.
func (f *File) ETag() string { return f.etag }

// ContentType returns the MIME type, or "" when unknown.
func (f *File) ContentType() string { return f.contentType }

// Fields returns the mutable fields this file carries, sorted.
func (f *File) Fields() []Field {
	out := make([]Field, 0, len(f.fields))
	for k := range f.fields {
		out = append(out, k)
	}

	slices.Sort(out)

	return out
}

// HasField reports whether the file carries the given field.
func (f *File) HasField(field Field) bool {
	_, ok := f.fields[field]
	return ok
}

// Field returns the current value of a backend-specific field.
func (f *File) Field(field Field) (string, error) {
	v, ok := f.fields[field]
	if !ok {
		return "", ErrUnsupportedField
	}

	return v, nil
}

// SetField changes a backend-specific field in memory. Pushing the change
// to the backend is the file system's job.
func (f *File) SetField(field Field, value string) error {
	if _, ok := f.fields[field]; !ok {
		return ErrUnsupportedField
	}

	if f.readOnly {
		return ErrReadOnly
	}

	f.fields[field] = value

	return nil
}

// AsFile returns e as a *File when it is the file variant.
func AsFile(e Entry) (*File, bool) {
	f, ok := e.(*File)
	return f, ok
}

// AsDirectory returns e as a *Directory when it is the directory variant.
func AsDirectory(e Entry) (*Directory, bool) {
	d, ok := e.(*Directory)
	return d, ok
}

// AsReadOnly returns a copy of e that reports IsReadOnly and rejects
// SetField. e itself is not modified.
func AsReadOnly(e Entry) Entry {
	switch v := e.(type) {
	case *Directory:
		c := *v
		c.readOnly = true

		return &c
	case *File:
		c := *v
		c.readOnly = true
		c.fields = maps.Clone(v.fields)

		return &c
	default:
		return e
	}
}
