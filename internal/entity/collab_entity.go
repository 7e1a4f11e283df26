package entity

import (
	"sort"
	"time"
)

// Participant is a connected collaborator of a project.
type Participant struct {
	UserID       string    `json:"userId"`
	DisplayName  string    `json:"displayName"`
	Email        string    `json:"email,omitempty"`
	Color        string    `json:"color"`
	Handle       string    `json:"handle"`
	SectionID    string    `json:"sectionId"`
	ConnectionID string    `json:"connectionId"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// Range is a half-open [Start, End) span of character offsets into a
// section's plain text. A collapsed range (caret) overlaps any range that
// strictly contains its offset.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (r Range) Normalize() Range {
	if r.Start > r.End {
		r.Start, r.End = r.End, r.Start
	}
	if r.Start < 0 {
		r.Start = 0
	}
	return r
}

func (r Range) Empty() bool {
	return r.Start == r.End
}

func (r Range) Overlaps(o Range) bool {
	a, b := r.Normalize(), o.Normalize()
	switch {
	case a.Empty() && b.Empty():
		return a.Start == b.Start
	case a.Empty():
		return a.Start > b.Start && a.Start < b.End
	case b.Empty():
		return b.Start > a.Start && b.Start < a.End
	}
	return a.Start < b.End && b.Start < a.End
}

func (r Range) Contains(o Range) bool {
	a, b := r.Normalize(), o.Normalize()
	return a.Start <= b.Start && b.End <= a.End
}

// SectionLock is an exclusive, expiring claim over a range of a section.
type SectionLock struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	SectionID string    `json:"sectionId"`
	Range     Range     `json:"range"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (l SectionLock) Active(now time.Time) bool {
	return now.Before(l.ExpiresAt)
}

// Section is the relay's copy of one addressable unit of the document.
type Section struct {
	ProjectID string    `json:"projectId"`
	SectionID string    `json:"sectionId"`
	Content   string    `json:"content"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Selection anchors a comment to the text it was written about.
type Selection struct {
	Start     int    `json:"start"`
	End       int    `json:"end"`
	Text      string `json:"text"`
	SectionID string `json:"sectionId"`
}

func (s Selection) Empty() bool {
	return s.Start == s.End && s.Text == ""
}

func (s Selection) Range() Range {
	return Range{Start: s.Start, End: s.End}
}

const (
	CommentFormatPlain = "plain"
	CommentFormatRich  = "rich"

	CommentStatusOpen     = "open"
	CommentStatusResolved = "resolved"
)

type Comment struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	ThreadID  string    `json:"threadId"`
	ParentID  *string   `json:"parentId"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Text      string    `json:"text"`
	Format    string    `json:"format"`
	Selection Selection `json:"selection"`
	Mentions  []string  `json:"mentions"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

func (c *Comment) IsRoot() bool {
	return c.ParentID == nil || *c.ParentID == ""
}

func (c *Comment) MentionsHandle(handle string) bool {
	for _, m := range c.Mentions {
		if m == handle {
			return true
		}
	}
	return false
}

// Thread is derived from comments sharing a ThreadID; it is never stored.
type Thread struct {
	ThreadID string     `json:"threadId"`
	Root     *Comment   `json:"root"`
	Replies  []*Comment `json:"replies"`
	Status   string     `json:"status"`
}

// GroupThreads groups comments by thread, orders each thread by creation
// time and picks as root the comment without a parent (the earliest one if
// several qualify, or the earliest comment if none does). Threads are
// returned oldest root first.
func GroupThreads(comments []*Comment) []Thread {
	byThread := make(map[string][]*Comment)
	var order []string
	for _, c := range comments {
		if _, ok := byThread[c.ThreadID]; !ok {
			order = append(order, c.ThreadID)
		}
		byThread[c.ThreadID] = append(byThread[c.ThreadID], c)
	}

	threads := make([]Thread, 0, len(order))
	for _, id := range order {
		members := byThread[id]
		sort.SliceStable(members, func(i, j int) bool {
			return members[i].CreatedAt.Before(members[j].CreatedAt)
		})

		rootIdx := 0
		for i, c := range members {
			if c.IsRoot() {
				rootIdx = i
				break
			}
		}

		t := Thread{ThreadID: id, Root: members[rootIdx]}
		for i, c := range members {
			if i != rootIdx {
				t.Replies = append(t.Replies, c)
			}
		}
		t.Status = t.Root.Status
		threads = append(threads, t)
	}

	sort.SliceStable(threads, func(i, j int) bool {
		return threads[i].Root.CreatedAt.Before(threads[j].Root.CreatedAt)
	})
	return threads
}

const (
	ActivityParticipantJoined = "participant_joined"
	ActivityParticipantLeft   = "participant_left"
	ActivityCommentAdded      = "comment_added"
	ActivityCommentReplied    = "comment_replied"
	ActivityCommentResolved   = "comment_resolved"
	ActivityCommentReopened   = "comment_reopened"
	ActivitySectionChanged    = "section_changed"
	ActivityLockConflict      = "lock_conflict"
	ActivityMergeConflict     = "merge_conflict"
)

type Activity struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Type      string    `json:"type"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	ThreadID  string    `json:"threadId,omitempty"`
	CommentID string    `json:"commentId,omitempty"`
	SectionID string    `json:"sectionId,omitempty"`
	Text      string    `json:"text,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ActivityKey is the de-duplication key used by activity feeds.
func ActivityKey(a Activity) string {
	return a.ID
}
