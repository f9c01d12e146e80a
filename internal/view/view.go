// Package view wraps entries in editable view models. Each view exposes the
// form template identifiers the UI resolves and an edit session over the
// fields it lets the user change.
package view

import (
	"context"
	"fmt"

	"github.com/tonimelisma/cloudexplorer/internal/editsession"
	"github.com/tonimelisma/cloudexplorer/internal/entity"
)

// Form template identifiers. The UI maps them to concrete templates.
const (
	FormDirectory     = "DirectoryForm"
	FormFile          = "FileForm"
	FormDescribedFile = "DescribedFileForm"

	NewFormDirectory = "NewDirectoryForm"
	NewFormFile      = "NewFileForm"
)

// View is the capability set the UI binds to.
type View interface {
	editsession.Session
	Entry() entity.Entry
	FormTemplate() string
	NewFormTemplate() string
	// Fields lists the semantic fields the view edits.
	Fields() []entity.Field
	ChangedFields() []string
	Commit()
}

// Entry is the base view over any entry. Generic entries have no editable
// fields; views built on top register theirs through Tracker.
type Entry struct {
	entry   entity.Entry
	tracker editsession.Tracker
}

// NewEntry wraps e.
func NewEntry(e entity.Entry) *Entry {
	return &Entry{entry: e}
}

// Entry returns the wrapped entry.
func (v *Entry) Entry() entity.Entry { return v.entry }

// FormTemplate returns the template for viewing the entry.
func (v *Entry) FormTemplate() string {
	if v.entry.IsDir() {
		return FormDirectory
	}

	return FormFile
}

// NewFormTemplate returns the template for creating an entry of this kind.
func (v *Entry) NewFormTemplate() string {
	if v.entry.IsDir() {
		return NewFormDirectory
	}

	return NewFormFile
}

// Fields returns nil.
func (v *Entry) Fields() []entity.Field { return nil }

func (v *Entry) BeginChanging()          { v.tracker.BeginChanging() }
func (v *Entry) HasChanges() bool        { return v.tracker.HasChanges() }
func (v *Entry) UndoChanges()            { v.tracker.UndoChanges() }
func (v *Entry) ChangedFields() []string { return v.tracker.ChangedFields() }
func (v *Entry) Commit()                 { v.tracker.Commit() }

// Tracker returns the base session tracker.
func (v *Entry) Tracker() *editsession.Tracker { return &v.tracker }

// State returns the base session state.
func (v *Entry) State() editsession.State { return v.tracker.State() }

// DescribedFile is the view over a file that carries a description.
type DescribedFile struct {
	base *Entry
	file *entity.File
	own  editsession.Tracker
}

// NewDescribedFile wraps f. It fails if f has no description field.
func NewDescribedFile(f *entity.File) (*DescribedFile, error) {
	if !f.HasField(entity.FieldDescription) {
		return nil, fmt.Errorf("view: %s: %w", f.FullPath(), entity.ErrUnsupportedField)
	}

	v := &DescribedFile{base: NewEntry(f), file: f}
	editsession.Track(&v.own, string(entity.FieldDescription), v.Description, func(s string) {
		// The value came from the file, so writing it back cannot fail.
		_ = f.SetField(entity.FieldDescription, s)
	})

	return v, nil
}

// Description returns the current description.
func (v *DescribedFile) Description() string {
	d, _ := v.file.Field(entity.FieldDescription)
	return d
}

// SetDescription stages a new description. It fails on read-only files.
func (v *DescribedFile) SetDescription(s string) error {
	return v.file.SetField(entity.FieldDescription, s)
}

// Entry returns the wrapped file.
func (v *DescribedFile) Entry() entity.Entry { return v.file }

// FormTemplate returns FormDescribedFile.
func (v *DescribedFile) FormTemplate() string { return FormDescribedFile }

// NewFormTemplate returns NewFormFile.
func (v *DescribedFile) NewFormTemplate() string { return v.base.NewFormTemplate() }

// Fields returns the description field.
func (v *DescribedFile) Fields() []entity.Field {
	return []entity.Field{entity.FieldDescription}
}

// BeginChanging snapshots the description and the base fields.
func (v *DescribedFile) BeginChanging() {
	v.own.BeginChanging()
	v.base.BeginChanging()
}

// HasChanges reports own changes or the base's.
func (v *DescribedFile) HasChanges() bool {
	return v.own.HasChanges() || v.base.HasChanges()
}

// UndoChanges restores own fields and the base's.
func (v *DescribedFile) UndoChanges() {
	v.own.UndoChanges()
	v.base.UndoChanges()
}

// ChangedFields lists own changed fields followed by the base's.
func (v *DescribedFile) ChangedFields() []string {
	return append(v.own.ChangedFields(), v.base.ChangedFields()...)
}

// Commit drops both snapshots.
func (v *DescribedFile) Commit() {
	v.own.Commit()
	v.base.Commit()
}

// State returns Editing if either session is editing.
func (v *DescribedFile) State() editsession.State {
	if v.own.State() == editsession.Editing {
		return editsession.Editing
	}

	return v.base.State()
}

// For returns the most specific view for e.
func For(e entity.Entry) View {
	if f, ok := entity.AsFile(e); ok && f.HasField(entity.FieldDescription) {
		if v, err := NewDescribedFile(f); err == nil {
			return v
		}
	}

	return NewEntry(e)
}

// Updater persists an edited entry.
type Updater interface {
	Update(ctx context.Context, e entity.Entry) (entity.Entry, error)
}

// Save pushes staged changes through u and commits the session. With no
// changes it commits without a request. On failure the session stays in
// Editing so the caller may UndoChanges.
func Save(ctx context.Context, u Updater, v View) (entity.Entry, error) {
	if !v.HasChanges() {
		v.Commit()
		return v.Entry(), nil
	}

	updated, err := u.Update(ctx, v.Entry())
	if err != nil {
		return nil, err
	}

	v.Commit()

	return updated, nil
}
