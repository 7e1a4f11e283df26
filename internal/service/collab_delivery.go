package service

import (
	"errors"

	"novelsync-be/internal/dto"
)

var (
	ErrLockConflict      = errors.New("range is locked by another collaborator")
	ErrLockNotFound      = errors.New("lock not found or expired")
	ErrLockNotOwned      = errors.New("lock is held by another collaborator")
	ErrSelectionRequired = errors.New("a selection is required to start a comment thread")
	ErrEmptyComment      = errors.New("comment text is required")
	ErrParentNotFound    = errors.New("parent comment not found")
	ErrCommentNotFound   = errors.New("comment not found")
	ErrInvalidStatus     = errors.New("status must be open or resolved")
	ErrNotJoined         = errors.New("connection has not joined a project")
)

// CollabDelivery pushes frames to connected collaborators.
// Typically implemented by the WebSocket Hub.
type CollabDelivery interface {
	SendToProject(projectID string, frame []byte, exceptConnID string)
	SendToConnection(connID string, frame []byte)
	SendToUser(userID string, frame []byte)
}

// emitProject encodes an event and fans it out to a project room. A nil
// delivery is allowed so services work without a hub (tests, CLI tools).
func emitProject(d CollabDelivery, projectID, exceptConnID, event string, data interface{}) {
	if d == nil {
		return
	}
	frame, err := dto.Encode(event, data)
	if err != nil {
		return
	}
	d.SendToProject(projectID, frame, exceptConnID)
}

func emitConnection(d CollabDelivery, connID, event string, data interface{}) {
	if d == nil {
		return
	}
	frame, err := dto.Encode(event, data)
	if err != nil {
		return
	}
	d.SendToConnection(connID, frame)
}

func emitUser(d CollabDelivery, userID, event string, data interface{}) {
	if d == nil {
		return
	}
	frame, err := dto.Encode(event, data)
	if err != nil {
		return
	}
	d.SendToUser(userID, frame)
}
