package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"novelsync-be/internal/dto"
	"novelsync-be/internal/entity"
	"novelsync-be/internal/pkg/logger"
	"novelsync-be/internal/pkg/serverutils"
	"novelsync-be/internal/tracer"
	"novelsync-be/internal/websocket"
)

// ICollabService routes socket frames to the collaboration services.
type ICollabService interface {
	HandleMessage(ctx context.Context, peer websocket.Peer, raw []byte)
	HandleDisconnect(ctx context.Context, peer websocket.Peer)
	Join(ctx context.Context, peer websocket.Peer, payload dto.JoinPayload) (*dto.SyncPayload, error)
}

type collabService struct {
	presence   IPresenceService
	locks      ILockService
	sections   ISectionService
	comments   ICommentService
	activities IActivityService
	delivery   CollabDelivery
	logger     logger.ILogger
}

func NewCollabService(
	presence IPresenceService,
	locks ILockService,
	sections ISectionService,
	comments ICommentService,
	activities IActivityService,
	delivery CollabDelivery,
	log logger.ILogger,
) ICollabService {
	return &collabService{
		presence:   presence,
		locks:      locks,
		sections:   sections,
		comments:   comments,
		activities: activities,
		delivery:   delivery,
		logger:     log,
	}
}

func (s *collabService) HandleMessage(ctx context.Context, peer websocket.Peer, raw []byte) {
	var env dto.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.fail(peer, "", errors.New("malformed frame"))
		return
	}

	if env.Type != dto.EventJoin && peer.ProjectID() == "" {
		s.fail(peer, env.Type, ErrNotJoined)
		return
	}

	ctx, span := tracer.StartEventSpan(ctx, env.Type, peer.ProjectID(), peer.ConnectionID())
	var err error
	defer func() { tracer.EndEventSpan(span, err) }()

	switch env.Type {
	case dto.EventJoin:
		var p dto.JoinPayload
		if err = env.Decode(&p); err == nil {
			_, err = s.Join(ctx, peer, p)
		}
	case dto.EventContentUpdate:
		err = s.handleContentUpdate(ctx, peer, env)
	case dto.EventSectionChange:
		err = s.handleSectionChange(ctx, peer, env)
	case dto.EventLockRequest:
		err = s.handleLockRequest(ctx, peer, env)
	case dto.EventLockRenew:
		err = s.handleLockRenew(ctx, peer, env)
	case dto.EventLockRelease:
		err = s.handleLockRelease(ctx, peer, env)
	case dto.EventCommentAdd:
		err = s.handleCommentAdd(ctx, peer, env)
	case dto.EventCommentUpdate:
		err = s.handleCommentUpdate(ctx, peer, env)
	case dto.EventCursor:
		err = s.handleCursor(peer, env)
	case dto.EventActivity:
		err = s.handleActivity(ctx, peer, env)
	default:
		err = fmt.Errorf("unknown event %q", env.Type)
	}

	if err != nil {
		s.logger.Warn("CollabService", "Event failed", map[string]interface{}{
			"event":         env.Type,
			"connection_id": peer.ConnectionID(),
			"error":         err.Error(),
		})
		s.fail(peer, env.Type, err)
	}
}

// fail answers the sender only. Domain errors never close the socket.
func (s *collabService) fail(peer websocket.Peer, event string, err error) {
	emitConnection(s.delivery, peer.ConnectionID(), dto.EventError, dto.ErrorPayload{
		Message: err.Error(),
		Event:   event,
	})
}

func (s *collabService) identity(peer websocket.Peer, fallbackID, fallbackName string) (string, string) {
	userID := peer.UserID()
	if userID == "" {
		userID = fallbackID
	}
	name := fallbackName
	if name == "" {
		name = peer.UserName()
	}
	return userID, name
}

func (s *collabService) displayName(peer websocket.Peer) string {
	if p, ok := s.presence.Lookup(peer.ProjectID(), peer.ConnectionID()); ok {
		return p.DisplayName
	}
	return peer.UserName()
}

func (s *collabService) broadcastParticipants(projectID string) {
	emitProject(s.delivery, projectID, "", dto.EventParticipants, dto.ParticipantsPayload{
		Participants: s.presence.Participants(projectID),
	})
}

func (s *collabService) broadcastReleased(projectID string, locks []entity.SectionLock) {
	for _, l := range locks {
		emitProject(s.delivery, projectID, "", dto.EventLockReleased, dto.LockReleasedPayload{
			LockID:    l.ID,
			SectionID: l.SectionID,
			UserID:    l.UserID,
		})
	}
}

func (s *collabService) Join(ctx context.Context, peer websocket.Peer, payload dto.JoinPayload) (*dto.SyncPayload, error) {
	if payload.UserID == "" {
		payload.UserID = peer.UserID()
	}
	if err := serverutils.ValidateRequest(payload); err != nil {
		return nil, err
	}

	// Joining another project (or the same one again) leaves the old room.
	if peer.ProjectID() != "" {
		s.HandleDisconnect(ctx, peer)
	}

	userID, userName := s.identity(peer, payload.UserID, payload.UserName)
	email := payload.UserEmail
	if email == "" {
		email = peer.Email()
	}

	self, alone := s.presence.Join(JoinInput{
		ProjectID:    payload.ProjectID,
		SectionID:    payload.SectionID,
		ConnectionID: peer.ConnectionID(),
		UserID:       userID,
		UserName:     userName,
		UserEmail:    email,
	})
	peer.Bind(payload.ProjectID)

	stored, err := s.sections.Get(ctx, payload.ProjectID, payload.SectionID)
	if err != nil {
		return nil, err
	}
	content := payload.Content
	switch {
	case stored == nil, alone && stored.Content != payload.Content:
		if _, err := s.sections.Seed(ctx, payload.ProjectID, payload.SectionID, payload.Content, userID); err != nil {
			return nil, err
		}
	default:
		content = stored.Content
	}

	comments, err := s.comments.List(ctx, payload.ProjectID)
	if err != nil {
		return nil, err
	}
	locks, err := s.locks.Active(ctx, payload.ProjectID)
	if err != nil {
		return nil, err
	}

	sync := &dto.SyncPayload{
		Participants: s.presence.Participants(payload.ProjectID),
		Comments:     comments,
		Activities:   s.activities.Recent(ctx, payload.ProjectID, 0),
		Locks:        locks,
		Content:      content,
		SectionID:    payload.SectionID,
		Self:         self,
	}
	emitConnection(s.delivery, peer.ConnectionID(), dto.EventSync, sync)
	s.broadcastParticipants(payload.ProjectID)

	s.activities.Record(ctx, entity.Activity{
		ProjectID: payload.ProjectID,
		Type:      entity.ActivityParticipantJoined,
		UserID:    userID,
		UserName:  self.DisplayName,
		SectionID: payload.SectionID,
	})

	s.logger.Info("CollabService", "Participant joined", map[string]interface{}{
		"project_id":    payload.ProjectID,
		"section_id":    payload.SectionID,
		"user_id":       userID,
		"connection_id": peer.ConnectionID(),
		"authoritative": alone,
	})
	return sync, nil
}

func (s *collabService) HandleDisconnect(ctx context.Context, peer websocket.Peer) {
	projectID := peer.ProjectID()
	if projectID == "" {
		return
	}
	peer.Bind("")

	participant, ok := s.presence.Leave(projectID, peer.ConnectionID())
	if !ok {
		return
	}

	released, err := s.locks.ReleaseAllForUser(ctx, projectID, participant.UserID)
	if err != nil {
		s.logger.Error("CollabService", "Failed to release locks on leave", map[string]interface{}{
			"project_id": projectID,
			"user_id":    participant.UserID,
			"error":      err.Error(),
		})
	}
	s.broadcastReleased(projectID, released)
	s.broadcastParticipants(projectID)

	s.activities.Record(ctx, entity.Activity{
		ProjectID: projectID,
		Type:      entity.ActivityParticipantLeft,
		UserID:    participant.UserID,
		UserName:  participant.DisplayName,
		SectionID: participant.SectionID,
	})
}

func (s *collabService) handleContentUpdate(ctx context.Context, peer websocket.Peer, env dto.Envelope) error {
	var p dto.ContentUpdatePayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	p.ProjectID = peer.ProjectID()
	p.UserID = peer.UserID()
	if err := serverutils.ValidateRequest(p); err != nil {
		return err
	}

	if _, err := s.sections.ApplyUpdate(ctx, SectionUpdateInput{
		ProjectID: p.ProjectID,
		SectionID: p.SectionID,
		Patch:     p.Patch,
		Content:   p.Content,
		UserID:    p.UserID,
	}); err != nil {
		return err
	}

	// Peers receive the original patch; the sender already has the text.
	emitProject(s.delivery, p.ProjectID, peer.ConnectionID(), dto.EventContentUpdate, p)
	return nil
}

func (s *collabService) handleSectionChange(ctx context.Context, peer websocket.Peer, env dto.Envelope) error {
	var p dto.SectionChangePayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	p.ProjectID = peer.ProjectID()
	p.UserID = peer.UserID()
	if err := serverutils.ValidateRequest(p); err != nil {
		return err
	}

	participant, previous, ok := s.presence.ChangeSection(p.ProjectID, peer.ConnectionID(), p.SectionID)
	if !ok {
		return ErrNotJoined
	}

	if previous != p.SectionID {
		released, err := s.locks.ReleaseInSection(ctx, p.ProjectID, previous, p.UserID)
		if err != nil {
			return err
		}
		s.broadcastReleased(p.ProjectID, released)
	}

	stored, err := s.sections.Get(ctx, p.ProjectID, p.SectionID)
	if err != nil {
		return err
	}
	if stored == nil {
		if _, err := s.sections.Seed(ctx, p.ProjectID, p.SectionID, p.Content, p.UserID); err != nil {
			return err
		}
	} else if stored.Content != p.Content {
		// The viewer's copy is stale; hand back the relay's text.
		emitConnection(s.delivery, peer.ConnectionID(), dto.EventSectionChange, dto.SectionChangePayload{
			ProjectID: p.ProjectID,
			SectionID: p.SectionID,
			Content:   stored.Content,
			UserID:    stored.UpdatedBy,
		})
	}

	// Peers only learn where the viewer went; its copy may be stale.
	emitProject(s.delivery, p.ProjectID, peer.ConnectionID(), dto.EventSectionChange, dto.SectionChangePayload{
		ProjectID: p.ProjectID,
		SectionID: p.SectionID,
		UserID:    p.UserID,
	})
	s.broadcastParticipants(p.ProjectID)

	s.activities.Record(ctx, entity.Activity{
		ProjectID: p.ProjectID,
		Type:      entity.ActivitySectionChanged,
		UserID:    p.UserID,
		UserName:  participant.DisplayName,
		SectionID: p.SectionID,
	})
	return nil
}

func (s *collabService) handleLockRequest(ctx context.Context, peer websocket.Peer, env dto.Envelope) error {
	var p dto.LockRequestPayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	p.ProjectID = peer.ProjectID()
	if err := serverutils.ValidateRequest(p); err != nil {
		return err
	}
	userID, _ := s.identity(peer, p.UserID, p.UserName)
	userName := s.displayName(peer)

	result, err := s.locks.Request(ctx, LockRequest{
		ProjectID: p.ProjectID,
		SectionID: p.SectionID,
		Range:     p.Range,
		UserID:    userID,
		UserName:  userName,
	})
	if err != nil {
		return err
	}

	if !result.Granted {
		emitConnection(s.delivery, peer.ConnectionID(), dto.EventLockRejected, dto.LockRejectedPayload{
			Reason:    result.Reason,
			Conflict:  result.Conflict,
			SectionID: p.SectionID,
			Range:     p.Range,
		})
		s.activities.Record(ctx, entity.Activity{
			ProjectID: p.ProjectID,
			Type:      entity.ActivityLockConflict,
			UserID:    userID,
			UserName:  userName,
			SectionID: p.SectionID,
			Text:      result.Reason,
		})
		return nil
	}

	emitProject(s.delivery, p.ProjectID, "", dto.EventLockGranted, dto.LockGrantedPayload{Lock: *result.Lock})
	return nil
}

func (s *collabService) handleLockRenew(ctx context.Context, peer websocket.Peer, env dto.Envelope) error {
	var p dto.LockRenewPayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	p.ProjectID = peer.ProjectID()
	if err := serverutils.ValidateRequest(p); err != nil {
		return err
	}

	lock, err := s.locks.Renew(ctx, p.ProjectID, p.LockID, peer.UserID())
	if errors.Is(err, ErrLockNotFound) {
		// Expired under the holder; tell it so it stops renewing.
		emitConnection(s.delivery, peer.ConnectionID(), dto.EventLockReleased, dto.LockReleasedPayload{
			LockID: p.LockID,
			UserID: peer.UserID(),
		})
		return nil
	}
	if err != nil {
		return err
	}

	emitProject(s.delivery, p.ProjectID, "", dto.EventLockGranted, dto.LockGrantedPayload{Lock: *lock})
	return nil
}

func (s *collabService) handleLockRelease(ctx context.Context, peer websocket.Peer, env dto.Envelope) error {
	var p dto.LockReleasePayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	p.ProjectID = peer.ProjectID()
	if err := serverutils.ValidateRequest(p); err != nil {
		return err
	}

	lock, err := s.locks.Release(ctx, p.ProjectID, p.LockID, peer.UserID())
	if errors.Is(err, ErrLockNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	s.broadcastReleased(p.ProjectID, []entity.SectionLock{*lock})
	return nil
}

func (s *collabService) handleCommentAdd(ctx context.Context, peer websocket.Peer, env dto.Envelope) error {
	var p dto.CommentAddPayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	userID, _ := s.identity(peer, p.UserID, p.UserName)

	_, err := s.comments.Add(ctx, AddCommentInput{
		ProjectID: peer.ProjectID(),
		UserID:    userID,
		UserName:  s.displayName(peer),
		Text:      p.Text,
		Format:    p.Format,
		Selection: p.Selection,
		Mentions:  p.Mentions,
		ThreadID:  p.ThreadID,
		ParentID:  p.ParentID,
		ID:        p.ID,
	})
	return err
}

func (s *collabService) handleCommentUpdate(ctx context.Context, peer websocket.Peer, env dto.Envelope) error {
	var p dto.CommentUpdatePayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	p.ProjectID = peer.ProjectID()
	if err := serverutils.ValidateRequest(p); err != nil {
		return err
	}
	userID, _ := s.identity(peer, p.UserID, "")

	_, err := s.comments.UpdateStatus(ctx, p.ProjectID, p.CommentID, p.Status, userID, s.displayName(peer))
	return err
}

func (s *collabService) handleCursor(peer websocket.Peer, env dto.Envelope) error {
	var p dto.CursorPayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	p.ProjectID = peer.ProjectID()
	p.UserID = peer.UserID()
	emitProject(s.delivery, p.ProjectID, peer.ConnectionID(), dto.EventCursor, p)
	return nil
}

func (s *collabService) handleActivity(ctx context.Context, peer websocket.Peer, env dto.Envelope) error {
	var a entity.Activity
	if err := env.Decode(&a); err != nil {
		return err
	}
	if a.Type == "" {
		return errors.New("activity type is required")
	}
	a.ProjectID = peer.ProjectID()
	a.UserID = peer.UserID()
	if a.UserName == "" {
		a.UserName = s.displayName(peer)
	}
	s.activities.Record(ctx, a)
	return nil
}
