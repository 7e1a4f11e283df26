// Package collabclient is the editor-side half of the collaboration engine.
// A Session joins a project over a Transport, keeps the local buffer of the
// current section in sync with peers, honours section locks, and carries
// comments and the activity feed. When the socket cannot be reached the
// session keeps working locally and routes writes through a Fallback.
package collabclient

import (
	"errors"
	"time"

	"novelsync-be/internal/entity"
)

var (
	ErrTransportUnavailable = errors.New("collaboration transport unavailable")
	ErrSelectionRequired    = errors.New("select some text to comment on")
	ErrEmptyComment         = errors.New("comment text is empty")
	ErrLockConflict         = errors.New("passage is locked by another collaborator")
	ErrThreadNotFound       = errors.New("thread not found")
)

// Identity is the signed-in user the session acts for.
type Identity struct {
	UserID   string
	UserName string
	Email    string
}

// TextBuffer is the editor surface a session drives. Offsets are rune
// offsets into Content.
type TextBuffer interface {
	Content() string
	// SetContent replaces the whole text. Editors usually report the change
	// back through Session.LocalEdit; the session ignores that echo.
	SetContent(content string)
	SelectedRange() (entity.Range, bool)
	ReplaceSelectedText(text string)
	InsertTextAtCursor(text string)
	HighlightRange(r entity.Range)
	ViewportPositionOf(r entity.Range) (x, y int, ok bool)
}

type Config struct {
	ProjectID      string
	SectionID      string
	SyncTimeout    time.Duration
	RenewInterval  time.Duration
	DebounceWindow time.Duration
	// ActivityCapacity bounds the local activity feed.
	ActivityCapacity int
}

func (c Config) withDefaults() Config {
	if c.SyncTimeout <= 0 {
		c.SyncTimeout = 5 * time.Second
	}
	if c.RenewInterval <= 0 {
		c.RenewInterval = 15 * time.Second
	}
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = 350 * time.Millisecond
	}
	return c
}
