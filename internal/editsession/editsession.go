// Package editsession tracks in-progress edits to a set of fields so a UI
// can detect changes and roll them back.
//
// A Tracker is a two-state machine. BeginChanging snapshots every tracked
// field and moves Clean to Editing; UndoChanges restores the snapshot and
// returns to Clean. Leaving a session in Editing without calling
// UndoChanges keeps the edits: there is no mandatory commit. Commit exists
// to drop the snapshot explicitly once the edits have been saved.
//
// Trackers are owned by a single goroutine.
package editsession

// Session is the lifecycle a view exposes to its UI.
type Session interface {
	BeginChanging()
	HasChanges() bool
	UndoChanges()
}

// State is the tracker's lifecycle state.
type State int

const (
	// Clean means no snapshot is held.
	Clean State = iota
	// Editing means a snapshot was captured by BeginChanging.
	Editing
)

// String returns "clean" or "editing".
func (s State) String() string {
	if s == Editing {
		return "editing"
	}

	return "clean"
}

type field interface {
	fieldName() string
	capture()
	changed() bool
	restore()
}

// Tracker holds the trackable fields of one view.
type Tracker struct {
	fields []field
	state  State
}

// BeginChanging snapshots every field. Calling it again while editing
// replaces the snapshot.
func (t *Tracker) BeginChanging() {
	for _, f := range t.fields {
		f.capture()
	}

	t.state = Editing
}

// HasChanges reports whether any field differs from its snapshot. It is
// false outside an editing session.
func (t *Tracker) HasChanges() bool {
	if t.state != Editing {
		return false
	}

	for _, f := range t.fields {
		if f.changed() {
			return true
		}
	}

	return false
}

// ChangedFields lists the names of fields that differ from the snapshot,
// in registration order.
func (t *Tracker) ChangedFields() []string {
	if t.state != Editing {
		return nil
	}

	var out []string

	for _, f := range t.fields {
		if f.changed() {
			out = append(out, f.fieldName())
		}
	}

	return out
}

// UndoChanges restores every field to its snapshot and ends the session.
// Outside an editing session it does nothing.
func (t *Tracker) UndoChanges() {
	if t.state != Editing {
		return
	}

	for _, f := range t.fields {
		f.restore()
	}

	t.state = Clean
}

// Commit keeps the current values and drops the snapshot.
func (t *Tracker) Commit() {
	t.state = Clean
}

// State returns the lifecycle state.
func (t *Tracker) State() State {
	return t.state
}

type tracked[T comparable] struct {
	name string
	get  func() T
	set  func(T)
	snap T
}

func (f *tracked[T]) fieldName() string { return f.name }
func (f *tracked[T]) capture()          { f.snap = f.get() }
func (f *tracked[T]) changed() bool     { return f.get() != f.snap }
func (f *tracked[T]) restore()          { f.set(f.snap) }

// Track registers a field stored elsewhere, read through get and restored
// through set.
func Track[T comparable](t *Tracker, name string, get func() T, set func(T)) {
	t.fields = append(t.fields, &tracked[T]{name: name, get: get, set: set})
}

// Value is a trackable value owned by the tracker's view.
type Value[T comparable] struct {
	v T
}

// NewValue registers a value field with an initial value.
func NewValue[T comparable](t *Tracker, name string, initial T) *Value[T] {
	v := &Value[T]{v: initial}
	Track(t, name, v.Get, v.Set)

	return v
}

// Get returns the current value.
func (v *Value[T]) Get() T { return v.v }

// Set replaces the current value.
func (v *Value[T]) Set(x T) { v.v = x }
