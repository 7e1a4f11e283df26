package collabclient

import (
	"sync"

	"github.com/google/uuid"

	"novelsync-be/internal/entity"
)

type NoticeKind string

const (
	NoticeLockConflict  NoticeKind = "lock_conflict"
	NoticeMention       NoticeKind = "mention"
	NoticeMergeConflict NoticeKind = "merge_conflict"
	NoticeOffline       NoticeKind = "offline"
	NoticeError         NoticeKind = "error"
)

// Notice is a dismissible message for the user.
type Notice struct {
	ID        string
	Kind      NoticeKind
	Message   string
	CommentID string
	ThreadID  string
	Lock      *entity.SectionLock
}

// noticeBoard holds the notices that have not been dismissed yet.
type noticeBoard struct {
	mu        sync.Mutex
	active    []Notice
	listeners []func(Notice)
}

func (b *noticeBoard) raise(n Notice) Notice {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	b.mu.Lock()
	b.active = append(b.active, n)
	listeners := append([]func(Notice){}, b.listeners...)
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(n)
	}
	return n
}

func (b *noticeBoard) dismiss(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, n := range b.active {
		if n.ID == id {
			b.active = append(b.active[:i], b.active[i+1:]...)
			return true
		}
	}
	return false
}

func (b *noticeBoard) list() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Notice{}, b.active...)
}

func (b *noticeBoard) subscribe(fn func(Notice)) {
	b.mu.Lock()
	b.listeners = append(b.listeners, fn)
	b.mu.Unlock()
}
