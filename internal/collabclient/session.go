package collabclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"novelsync-be/internal/dto"
	"novelsync-be/internal/entity"
	"novelsync-be/internal/pkg/logger"
	"novelsync-be/pkg/activity"
	"novelsync-be/pkg/mention"
	"novelsync-be/pkg/merge"
	"novelsync-be/pkg/patch"
)

const module = "CollabClient"

type syncState int

const (
	stateIdle syncState = iota
	stateApplyingRemote
	stateBroadcastingLocal
)

func (s syncState) String() string {
	switch s {
	case stateApplyingRemote:
		return "applying_remote"
	case stateBroadcastingLocal:
		return "broadcasting_local"
	}
	return "idle"
}

var allowedTransitions = map[syncState][]syncState{
	stateIdle:              {stateApplyingRemote, stateBroadcastingLocal},
	stateApplyingRemote:    {stateIdle},
	stateBroadcastingLocal: {stateIdle},
}

type connState int

const (
	connIdle connState = iota
	connConnecting
	connOnline
	connOffline
	connClosed
)

// Session is one user's live view of a project. It is safe for concurrent
// use; frames from the relay are handled on a single read goroutine.
type Session struct {
	cfg       Config
	self      Identity
	buffer    TextBuffer
	transport Transport
	fallback  Fallback
	logger    logger.ILogger

	// applyMu serializes the two paths that move the agreed base:
	// folding in remote updates and flushing local ones.
	applyMu sync.Mutex

	mu                   sync.Mutex
	state                syncState
	conn                 connState
	handle               string
	sectionID            string
	base                 string
	local                string
	participants         []entity.Participant
	participantListeners []func([]entity.Participant)
	comments             map[string]*entity.Comment
	cursors              map[string]dto.CursorPayload
	mentioned            map[string]bool
	composing            *mention.Snapshot
	outbox               []pendingWrite
	cancel               context.CancelFunc

	scheduler *patch.Scheduler
	merger    *merge.Merger
	locks     *LockManager
	activity  *activity.Log[entity.Activity]
	notices   noticeBoard

	synced   chan struct{}
	syncOnce sync.Once
	now      func() time.Time
}

// NewSession prepares a session for cfg.ProjectID. transport and fallback
// may be nil; without a transport the session runs offline.
func NewSession(cfg Config, self Identity, buffer TextBuffer, transport Transport, fallback Fallback, log logger.ILogger) *Session {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logger.NewNopLogger()
	}
	log = log.With(map[string]interface{}{"project_id": cfg.ProjectID, "user_id": self.UserID})

	content := buffer.Content()
	s := &Session{
		cfg:       cfg,
		self:      self,
		buffer:    buffer,
		transport: transport,
		fallback:  fallback,
		logger:    log,
		handle:    mention.DeriveHandle(self.UserName, self.Email),
		sectionID: cfg.SectionID,
		base:      content,
		local:     content,
		comments:  make(map[string]*entity.Comment),
		cursors:   make(map[string]dto.CursorPayload),
		mentioned: make(map[string]bool),
		merger:    merge.NewMerger(merge.PreferLocal),
		activity:  activity.New[entity.Activity](cfg.ActivityCapacity, entity.ActivityKey),
		synced:    make(chan struct{}),
		now:       time.Now,
	}
	s.participants = []entity.Participant{s.localParticipant()}
	s.scheduler = patch.NewScheduler(cfg.DebounceWindow, s.flushUpdate)
	s.locks = newLockManager(cfg.ProjectID, self, cfg.RenewInterval, s.sendEvent, s.notices.raise)
	return s
}

func (s *Session) localParticipant() entity.Participant {
	return entity.Participant{
		UserID:      s.self.UserID,
		DisplayName: s.self.UserName,
		Email:       s.self.Email,
		Handle:      s.handle,
		SectionID:   s.sectionID,
		JoinedAt:    time.Now(),
	}
}

// transition moves the sync state machine. Callers hold s.mu.
func (s *Session) transition(from, to syncState) error {
	if s.state != from {
		return fmt.Errorf("sync state is %s, not %s", s.state, from)
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			s.state = to
			return nil
		}
	}
	return fmt.Errorf("illegal sync transition %s -> %s", from, to)
}

// Connect joins the project and waits for the relay's snapshot. Any failure
// leaves the session offline but usable; the returned error only says why.
func (s *Session) Connect(ctx context.Context) error {
	if s.transport == nil {
		s.goOffline(ErrTransportUnavailable)
		return ErrTransportUnavailable
	}

	readCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.conn = connConnecting
	s.cancel = cancel
	join := dto.JoinPayload{
		ProjectID: s.cfg.ProjectID,
		UserID:    s.self.UserID,
		UserName:  s.self.UserName,
		UserEmail: s.self.Email,
		SectionID: s.sectionID,
		Content:   s.local,
	}
	s.mu.Unlock()

	go s.readLoop(readCtx)

	if err := s.sendEvent(ctx, dto.EventJoin, join); err != nil {
		cancel()
		s.goOffline(err)
		return err
	}

	timer := time.NewTimer(s.cfg.SyncTimeout)
	defer timer.Stop()

	var err error
	select {
	case <-s.synced:
		s.logger.Info(module, "Joined project", map[string]interface{}{
			"project_id": s.cfg.ProjectID,
			"section_id": s.SectionID(),
		})
		return nil
	case <-timer.C:
		err = fmt.Errorf("%w: no sync within %s", ErrTransportUnavailable, s.cfg.SyncTimeout)
	case <-ctx.Done():
		err = ctx.Err()
	}

	cancel()
	s.goOffline(err)
	return err
}

// Disconnect sends what is still pending, gives up held locks and closes
// the transport.
func (s *Session) Disconnect() error {
	s.scheduler.FlushAll()
	s.locks.ReleaseAll(context.Background())
	s.locks.stop()
	s.scheduler.CancelAll()

	s.mu.Lock()
	wasOpen := s.conn == connOnline || s.conn == connConnecting
	s.conn = connClosed
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if s.transport != nil && wasOpen {
		return s.transport.Close()
	}
	return nil
}

// Offline reports whether collaboration is local-only.
func (s *Session) Offline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn == connOffline || s.conn == connIdle
}

func (s *Session) online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn == connOnline || s.conn == connConnecting
}

func (s *Session) goOffline(cause error) {
	s.mu.Lock()
	if s.conn == connOffline || s.conn == connClosed {
		s.mu.Unlock()
		return
	}
	s.conn = connOffline
	s.participants = []entity.Participant{s.localParticipant()}
	roster := s.participantsLocked()
	listeners := append([]func([]entity.Participant){}, s.participantListeners...)
	s.mu.Unlock()

	s.scheduler.CancelAll()
	s.locks.reset(nil)

	details := map[string]interface{}{"project_id": s.cfg.ProjectID}
	if cause != nil {
		details["error"] = cause.Error()
	}
	s.logger.Warn(module, "Collaboration unavailable, working locally", details)
	s.notices.raise(Notice{Kind: NoticeOffline, Message: "Collaboration is unavailable. Your changes stay on this device."})

	for _, fn := range listeners {
		fn(roster)
	}
}

func (s *Session) sendEvent(ctx context.Context, eventType string, data interface{}) error {
	if s.transport == nil || !s.online() {
		return ErrTransportUnavailable
	}
	frame, err := dto.Encode(eventType, data)
	if err != nil {
		return err
	}
	return s.transport.Send(ctx, frame)
}

func (s *Session) readLoop(ctx context.Context) {
	for {
		frame, err := s.transport.Receive(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.goOffline(err)
			}
			return
		}
		s.handleFrame(frame)
	}
}

func (s *Session) handleFrame(raw []byte) {
	var env dto.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.logger.Warn(module, "Dropping malformed frame", map[string]interface{}{"error": err.Error()})
		return
	}

	var err error
	switch env.Type {
	case dto.EventSync:
		var p dto.SyncPayload
		if err = env.Decode(&p); err == nil {
			s.handleSync(p)
		}
	case dto.EventParticipants:
		var p dto.ParticipantsPayload
		if err = env.Decode(&p); err == nil {
			s.setParticipants(p.Participants)
		}
	case dto.EventContentUpdate:
		var p dto.ContentUpdatePayload
		if err = env.Decode(&p); err == nil {
			s.applyRemoteUpdate(p)
		}
	case dto.EventSectionChange:
		var p dto.SectionChangePayload
		if err = env.Decode(&p); err == nil {
			s.handleSectionChange(p)
		}
	case dto.EventLockGranted:
		var p dto.LockGrantedPayload
		if err = env.Decode(&p); err == nil {
			s.locks.granted(p.Lock)
		}
	case dto.EventLockRejected:
		var p dto.LockRejectedPayload
		if err = env.Decode(&p); err == nil {
			s.locks.rejected(p)
		}
	case dto.EventLockReleased:
		var p dto.LockReleasedPayload
		if err = env.Decode(&p); err == nil {
			s.locks.released(p.LockID)
		}
	case dto.EventCommentAdded:
		var c entity.Comment
		if err = env.Decode(&c); err == nil {
			s.handleCommentAdded(&c)
		}
	case dto.EventCommentUpdated:
		var c entity.Comment
		if err = env.Decode(&c); err == nil {
			s.storeComment(&c)
		}
	case dto.EventActivity:
		var a entity.Activity
		if err = env.Decode(&a); err == nil {
			s.activity.Append(a)
		}
	case dto.EventMention:
		var p dto.MentionPayload
		if err = env.Decode(&p); err == nil {
			s.raiseMention(p.CommentID, p.ThreadID, p.ActorName)
		}
	case dto.EventCursor:
		var p dto.CursorPayload
		if err = env.Decode(&p); err == nil {
			s.mu.Lock()
			s.cursors[p.UserID] = p
			s.mu.Unlock()
		}
	case dto.EventError:
		var p dto.ErrorPayload
		if err = env.Decode(&p); err == nil {
			s.notices.raise(Notice{Kind: NoticeError, Message: p.Message})
		}
	default:
		s.logger.Debug(module, "Ignoring event", map[string]interface{}{"type": env.Type})
	}

	if err != nil {
		s.logger.Warn(module, "Failed to decode event", map[string]interface{}{
			"type":  env.Type,
			"error": err.Error(),
		})
	}
}

func (s *Session) handleSync(p dto.SyncPayload) {
	s.applyMu.Lock()

	s.mu.Lock()
	s.conn = connOnline
	if p.Self.Handle != "" {
		s.handle = p.Self.Handle
	}
	for _, c := range p.Comments {
		s.comments[c.ID] = c
		// Mentions that predate this join were already delivered.
		s.mentioned[c.ID] = true
	}
	changed := false
	if p.SectionID == s.sectionID && p.Content != s.local {
		changed = true
		s.state = stateApplyingRemote
	}
	if p.SectionID == s.sectionID {
		s.base = p.Content
		s.local = p.Content
	}
	s.mu.Unlock()

	if changed {
		s.buffer.SetContent(p.Content)
		s.mu.Lock()
		s.state = stateIdle
		s.mu.Unlock()
	}
	s.applyMu.Unlock()

	for i := len(p.Activities) - 1; i >= 0; i-- {
		s.activity.Append(p.Activities[i])
	}
	s.locks.reset(p.Locks)
	s.setParticipants(p.Participants)

	s.syncOnce.Do(func() { close(s.synced) })
	s.flushOutbox(context.Background())
}

// SectionID is the section the local buffer shows.
func (s *Session) SectionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sectionID
}

// Handle is the mention handle of the local user.
func (s *Session) Handle() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Notices returns the notices that have not been dismissed.
func (s *Session) Notices() []Notice {
	return s.notices.list()
}

func (s *Session) DismissNotice(id string) bool {
	return s.notices.dismiss(id)
}

func (s *Session) OnNotice(fn func(Notice)) {
	s.notices.subscribe(fn)
}

// Cursors returns the last known cursor of every peer.
func (s *Session) Cursors() []dto.CursorPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]dto.CursorPayload, 0, len(s.cursors))
	for _, c := range s.cursors {
		out = append(out, c)
	}
	return out
}
