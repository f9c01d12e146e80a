package editsession

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type profile struct {
	tracker Tracker
	name    *Value[string]
	size    int
}

func newProfile() *profile {
	p := &profile{size: 10}
	p.name = NewValue(&p.tracker, "name", "draft")
	Track(&p.tracker, "size", func() int { return p.size }, func(v int) { p.size = v })

	return p
}

func TestHasChanges_FalseRightAfterBegin(t *testing.T) {
	p := newProfile()
	p.tracker.BeginChanging()

	assert.Equal(t, Editing, p.tracker.State())
	assert.False(t, p.tracker.HasChanges())
	assert.Empty(t, p.tracker.ChangedFields())
}

func TestMutateThenUndo(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*profile)
		changed []string
	}{
		{"owned value", func(p *profile) { p.name.Set("final") }, []string{"name"}},
		{"external field", func(p *profile) { p.size = 42 }, []string{"size"}},
		{"both", func(p *profile) { p.name.Set("x"); p.size = 0 }, []string{"name", "size"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newProfile()
			p.tracker.BeginChanging()
			tc.mutate(p)

			assert.True(t, p.tracker.HasChanges())
			assert.Equal(t, tc.changed, p.tracker.ChangedFields())

			p.tracker.UndoChanges()

			assert.False(t, p.tracker.HasChanges())
			assert.Equal(t, Clean, p.tracker.State())
			assert.Equal(t, "draft", p.name.Get())
			assert.Equal(t, 10, p.size)
		})
	}
}

func TestChangeBackIsNoChange(t *testing.T) {
	p := newProfile()
	p.tracker.BeginChanging()
	p.name.Set("other")
	p.name.Set("draft")

	assert.False(t, p.tracker.HasChanges())
}

func TestBeginChangingAgainReplacesSnapshot(t *testing.T) {
	p := newProfile()
	p.tracker.BeginChanging()
	p.name.Set("second")
	p.tracker.BeginChanging()

	assert.False(t, p.tracker.HasChanges())

	p.tracker.UndoChanges()
	assert.Equal(t, "second", p.name.Get())
}

func TestImplicitCommit(t *testing.T) {
	p := newProfile()
	p.tracker.BeginChanging()
	p.name.Set("kept")

	// Walking away without UndoChanges keeps the edit.
	assert.Equal(t, "kept", p.name.Get())

	p.tracker.Commit()
	assert.Equal(t, Clean, p.tracker.State())
	assert.False(t, p.tracker.HasChanges())

	p.tracker.UndoChanges()
	assert.Equal(t, "kept", p.name.Get(), "undo after commit is a no-op")
}

func TestOutsideSession(t *testing.T) {
	p := newProfile()
	p.name.Set("changed")

	assert.False(t, p.tracker.HasChanges())
	assert.Nil(t, p.tracker.ChangedFields())

	p.tracker.UndoChanges()
	assert.Equal(t, "changed", p.name.Get())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "clean", Clean.String())
	assert.Equal(t, "editing", Editing.String())
}
