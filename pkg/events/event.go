// Package events defines what travels on the collaboration bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	TypeCommentMention = "COMMENT_MENTION"
)

// Event is anything that can be published on the bus.
type Event interface {
	EventType() string
	// DedupKey identifies the event so a retried publish is stored once.
	DedupKey() string
}

// Handler processes one delivered message. Returning an error asks the bus
// to redeliver it.
type Handler func(ctx context.Context, msg Message) error

// Message is an event as a subscriber receives it.
type Message struct {
	Type        string
	Body        json.RawMessage
	PublishedAt time.Time
}

// Decode unmarshals the body into the concrete event.
func (m Message) Decode(v interface{}) error {
	if err := json.Unmarshal(m.Body, v); err != nil {
		return fmt.Errorf("decode %s: %w", m.Type, err)
	}
	return nil
}

// NewMessage wraps an event for in-process delivery.
func NewMessage(e Event) (Message, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s: %w", e.EventType(), err)
	}
	return Message{Type: e.EventType(), Body: body, PublishedAt: time.Now()}, nil
}

// CommentMention is published once per handle a comment addresses.
type CommentMention struct {
	ProjectID  string    `json:"project_id"`
	CommentID  string    `json:"comment_id"`
	ThreadID   string    `json:"thread_id"`
	SectionID  string    `json:"section_id,omitempty"`
	Handle     string    `json:"handle"`
	ActorID    string    `json:"actor_id"`
	ActorName  string    `json:"actor_name"`
	Excerpt    string    `json:"excerpt"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e CommentMention) EventType() string { return TypeCommentMention }

func (e CommentMention) DedupKey() string { return e.CommentID + ":" + e.Handle }
