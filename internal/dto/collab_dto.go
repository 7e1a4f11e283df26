package dto

import (
	"encoding/json"

	"novelsync-be/internal/entity"
)

// Real-time event names exchanged over the collaboration socket.
const (
	EventJoin           = "collab:join"
	EventSync           = "collab:sync"
	EventContentUpdate  = "collab:content-update"
	EventSectionChange  = "collab:section-change"
	EventLockRequest    = "collab:lock-request"
	EventLockGranted    = "collab:lock-granted"
	EventLockRejected   = "collab:lock-rejected"
	EventLockRenew      = "collab:lock-renew"
	EventLockRelease    = "collab:lock-release"
	EventLockReleased   = "collab:lock-released"
	EventCommentAdd     = "collab:comment-add"
	EventCommentAdded   = "collab:comment-added"
	EventCommentUpdate  = "collab:comment-update"
	EventCommentUpdated = "collab:comment-updated"
	EventCursor         = "collab:cursor"
	EventActivity       = "collab:activity"
	EventParticipants   = "collab:participants"
	EventMention        = "collab:mention"
	EventError          = "collab:error"
)

// Envelope is the wire frame: {"type": "...", "data": {...}}.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func NewEnvelope(eventType string, data interface{}) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: eventType, Data: raw}, nil
}

// Encode marshals an event into a wire frame.
func Encode(eventType string, data interface{}) ([]byte, error) {
	env, err := NewEnvelope(eventType, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

func (e Envelope) Decode(v interface{}) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

type JoinPayload struct {
	ProjectID string `json:"projectId" validate:"required"`
	UserID    string `json:"userId" validate:"required"`
	UserName  string `json:"userName"`
	UserEmail string `json:"userEmail,omitempty"`
	SectionID string `json:"sectionId" validate:"required"`
	Content   string `json:"content"`
}

type SyncPayload struct {
	Participants []entity.Participant `json:"participants"`
	Comments     []*entity.Comment    `json:"comments"`
	Activities   []entity.Activity    `json:"activities"`
	Locks        []entity.SectionLock `json:"locks"`
	Content      string               `json:"content"`
	SectionID    string               `json:"sectionId"`
	// Self is the participant record the relay created for this connection.
	Self entity.Participant `json:"self"`
}

type ContentUpdatePayload struct {
	ProjectID string `json:"projectId" validate:"required"`
	SectionID string `json:"sectionId" validate:"required"`
	Patch     string `json:"patch"`
	Content   string `json:"content"`
	UserID    string `json:"userId,omitempty"`
}

type SectionChangePayload struct {
	ProjectID string `json:"projectId" validate:"required"`
	SectionID string `json:"sectionId" validate:"required"`
	UserID    string `json:"userId,omitempty"`
	// Content is only set towards the relay and on its stale-copy reply.
	Content string `json:"content,omitempty"`
}

type LockRequestPayload struct {
	ProjectID string       `json:"projectId" validate:"required"`
	SectionID string       `json:"sectionId" validate:"required"`
	Range     entity.Range `json:"range"`
	UserID    string       `json:"userId"`
	UserName  string       `json:"userName"`
}

type LockGrantedPayload struct {
	Lock entity.SectionLock `json:"lock"`
}

type LockRejectedPayload struct {
	Reason    string              `json:"reason"`
	Conflict  *entity.SectionLock `json:"conflict,omitempty"`
	SectionID string              `json:"sectionId"`
	Range     entity.Range        `json:"range"`
}

type LockRenewPayload struct {
	ProjectID string `json:"projectId" validate:"required"`
	LockID    string `json:"lockId" validate:"required"`
}

type LockReleasePayload struct {
	ProjectID string `json:"projectId" validate:"required"`
	LockID    string `json:"lockId" validate:"required"`
}

type LockReleasedPayload struct {
	LockID    string `json:"lockId"`
	SectionID string `json:"sectionId"`
	UserID    string `json:"userId"`
}

type CommentAddPayload struct {
	ProjectID string           `json:"projectId" validate:"required"`
	Text      string           `json:"text" validate:"required"`
	Format    string           `json:"format,omitempty"`
	Selection entity.Selection `json:"selection"`
	UserID    string           `json:"userId"`
	UserName  string           `json:"userName"`
	Mentions  []string         `json:"mentions"`
	ThreadID  string           `json:"threadId,omitempty"`
	ParentID  string           `json:"parentId,omitempty"`
	// ID lets the author propose the comment ID so its optimistic copy and
	// the relay echo share a key. Ignored unless it is a UUID.
	ID string `json:"id,omitempty"`
}

type CommentUpdatePayload struct {
	ProjectID string `json:"projectId" validate:"required"`
	CommentID string `json:"commentId" validate:"required"`
	Status    string `json:"status" validate:"required,oneof=open resolved"`
	UserID    string `json:"userId"`
}

type CursorPayload struct {
	ProjectID string        `json:"projectId"`
	UserID    string        `json:"userId"`
	SectionID string        `json:"sectionId"`
	Range     *entity.Range `json:"range"`
}

type ParticipantsPayload struct {
	Participants []entity.Participant `json:"participants"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

// CreateActivityRequest is the REST fallback for activity entries written
// while the socket was unavailable.
type CreateActivityRequest struct {
	ID        string `json:"id" validate:"omitempty,uuid"`
	Type      string `json:"type" validate:"required"`
	UserName  string `json:"userName"`
	ThreadID  string `json:"threadId,omitempty"`
	CommentID string `json:"commentId,omitempty"`
	SectionID string `json:"sectionId,omitempty"`
	Text      string `json:"text,omitempty"`
}

type ThreadsResponse struct {
	Threads []entity.Thread `json:"threads"`
	Total   int             `json:"total"`
}

// MentionPayload is pushed to a mentioned collaborator.
type MentionPayload struct {
	ProjectID string `json:"projectId"`
	CommentID string `json:"commentId"`
	ThreadID  string `json:"threadId"`
	SectionID string `json:"sectionId,omitempty"`
	Handle    string `json:"handle"`
	ActorID   string `json:"actorId"`
	ActorName string `json:"actorName"`
	Text      string `json:"text"`
}
