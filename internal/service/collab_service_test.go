package service

import (
	"context"
	"testing"
	"time"

	"novelsync-be/internal/dto"
	"novelsync-be/internal/entity"
	"novelsync-be/internal/pkg/logger"
	"novelsync-be/internal/repository/memory"
	"novelsync-be/internal/repository/unitofwork"
	"novelsync-be/pkg/patch"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collabFixture struct {
	svc        ICollabService
	sections   ISectionService
	locks      ILockService
	activities IActivityService
	delivery   *recordingDelivery
}

func newCollabFixture(t *testing.T) *collabFixture {
	t.Helper()

	nop := logger.NewNopLogger()
	delivery := &recordingDelivery{}
	presence := NewPresenceService()
	locks := NewLockService(memory.NewLockStore(), 30*time.Second, nop)
	sections := NewSectionService(memory.NewSectionStore(), nop)
	activityRepo := memory.NewActivityRepository()
	activities := NewActivityService(activityRepo, nil, "", 0, delivery, nop)
	uow := unitofwork.NewStaticRepositoryFactory(memory.NewCommentRepository(), activityRepo)
	comments := NewCommentService(uow, presence, activities, nil, delivery, nop)

	return &collabFixture{
		svc:        NewCollabService(presence, locks, sections, comments, activities, delivery, nop),
		sections:   sections,
		locks:      locks,
		activities: activities,
		delivery:   delivery,
	}
}

func (f *collabFixture) join(t *testing.T, peer *fakePeer, sectionID, content string) *dto.SyncPayload {
	t.Helper()
	sync, err := f.svc.Join(context.Background(), peer, dto.JoinPayload{
		ProjectID: "novel",
		SectionID: sectionID,
		UserName:  peer.UserName(),
		Content:   content,
	})
	require.NoError(t, err)
	return sync
}

func (f *collabFixture) send(peer *fakePeer, eventType string, data interface{}) {
	f.svc.HandleMessage(context.Background(), peer, mustFrame(eventType, data))
}

const chapterZero = "Once upon a time there was a lighthouse."

func TestCollab_JoinSeedsAndSyncs(t *testing.T) {
	ctx := context.Background()
	f := newCollabFixture(t)
	alice := newPeer("conn-a", "user-a", "Alice")
	bob := newPeer("conn-b", "user-b", "Bob")

	sync := f.join(t, alice, "0", chapterZero)
	assert.Equal(t, "novel", alice.ProjectID())
	assert.Equal(t, chapterZero, sync.Content)
	assert.Equal(t, "user-a", sync.Self.UserID)

	stored, err := f.sections.Get(ctx, "novel", "0")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, chapterZero, stored.Content)

	// Bob arrives with a stale copy; Alice already views the section so the
	// relay's text wins.
	sync = f.join(t, bob, "0", "Once upon a time.")
	assert.Equal(t, chapterZero, sync.Content)
	assert.Len(t, sync.Participants, 2)

	syncFrames := f.delivery.ofType(dto.EventSync)
	require.Len(t, syncFrames, 2)
	assert.Equal(t, "conn-b", syncFrames[1].Target)

	assert.NotEmpty(t, f.delivery.ofType(dto.EventParticipants))
	recent := f.activities.Recent(ctx, "novel", 0)
	require.Len(t, recent, 2)
	assert.Equal(t, entity.ActivityParticipantJoined, recent[0].Type)
	assert.Equal(t, "Bob", recent[0].UserName)
}

func TestCollab_SoleViewerIsAuthoritative(t *testing.T) {
	ctx := context.Background()
	f := newCollabFixture(t)
	alice := newPeer("conn-a", "user-a", "Alice")

	f.join(t, alice, "0", chapterZero)
	f.svc.HandleDisconnect(ctx, alice)
	assert.Empty(t, alice.ProjectID())

	// Nobody else views the section, so the returning copy replaces the relay's.
	sync := f.join(t, alice, "0", chapterZero+" Edited offline.")
	assert.Equal(t, chapterZero+" Edited offline.", sync.Content)
}

func TestCollab_RequiresJoin(t *testing.T) {
	f := newCollabFixture(t)
	stranger := newPeer("conn-x", "user-x", "Xavier")

	f.send(stranger, dto.EventLockRequest, dto.LockRequestPayload{SectionID: "0", Range: entity.Range{Start: 0, End: 3}})

	errs := f.delivery.ofType(dto.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "conn-x", errs[0].Target)

	var payload dto.ErrorPayload
	require.NoError(t, errs[0].decode(&payload))
	assert.Equal(t, ErrNotJoined.Error(), payload.Message)
	assert.Equal(t, dto.EventLockRequest, payload.Event)

	f.svc.HandleMessage(context.Background(), stranger, []byte("{not json"))
	assert.Len(t, f.delivery.ofType(dto.EventError), 2)
}

func TestCollab_LockScenario(t *testing.T) {
	ctx := context.Background()
	f := newCollabFixture(t)
	alice := newPeer("conn-a", "user-a", "Alice")
	bob := newPeer("conn-b", "user-b", "Bob")
	f.join(t, alice, "0", chapterZero)
	f.join(t, bob, "0", chapterZero)
	f.delivery.reset()

	f.send(alice, dto.EventLockRequest, dto.LockRequestPayload{SectionID: "0", Range: entity.Range{Start: 0, End: 4}})
	granted := f.delivery.ofType(dto.EventLockGranted)
	require.Len(t, granted, 1)
	assert.Equal(t, "project", granted[0].Scope)

	var grant dto.LockGrantedPayload
	require.NoError(t, granted[0].decode(&grant))
	assert.Equal(t, "user-a", grant.Lock.UserID)
	assert.Equal(t, "Alice", grant.Lock.UserName)

	f.send(bob, dto.EventLockRequest, dto.LockRequestPayload{SectionID: "0", Range: entity.Range{Start: 2, End: 6}})
	rejected := f.delivery.ofType(dto.EventLockRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, "conn-b", rejected[0].Target)

	var reject dto.LockRejectedPayload
	require.NoError(t, rejected[0].decode(&reject))
	assert.Equal(t, "Alice is editing this passage", reject.Reason)

	recent := f.activities.Recent(ctx, "novel", 1)
	require.Len(t, recent, 1)
	assert.Equal(t, entity.ActivityLockConflict, recent[0].Type)

	// Bob cannot release Alice's lock.
	f.send(bob, dto.EventLockRelease, dto.LockReleasePayload{LockID: grant.Lock.ID})
	assert.Len(t, f.delivery.ofType(dto.EventError), 1)

	f.send(alice, dto.EventLockRelease, dto.LockReleasePayload{LockID: grant.Lock.ID})
	assert.Len(t, f.delivery.ofType(dto.EventLockReleased), 1)

	f.send(bob, dto.EventLockRequest, dto.LockRequestPayload{SectionID: "0", Range: entity.Range{Start: 2, End: 6}})
	assert.Len(t, f.delivery.ofType(dto.EventLockGranted), 2)
}

func TestCollab_RenewExpiredLockTellsHolder(t *testing.T) {
	f := newCollabFixture(t)
	alice := newPeer("conn-a", "user-a", "Alice")
	f.join(t, alice, "0", chapterZero)
	f.delivery.reset()

	f.send(alice, dto.EventLockRenew, dto.LockRenewPayload{LockID: "gone"})

	released := f.delivery.ofType(dto.EventLockReleased)
	require.Len(t, released, 1)
	assert.Equal(t, "connection", released[0].Scope)
	assert.Empty(t, f.delivery.ofType(dto.EventError))
}

func TestCollab_DisconnectReleasesLocks(t *testing.T) {
	ctx := context.Background()
	f := newCollabFixture(t)
	alice := newPeer("conn-a", "user-a", "Alice")
	bob := newPeer("conn-b", "user-b", "Bob")
	f.join(t, alice, "0", chapterZero)
	f.join(t, bob, "0", chapterZero)

	f.send(alice, dto.EventLockRequest, dto.LockRequestPayload{SectionID: "0", Range: entity.Range{Start: 0, End: 4}})
	f.delivery.reset()

	f.svc.HandleDisconnect(ctx, alice)

	released := f.delivery.ofType(dto.EventLockReleased)
	require.Len(t, released, 1)

	active, err := f.locks.Active(ctx, "novel")
	require.NoError(t, err)
	assert.Empty(t, active)

	participants := f.delivery.ofType(dto.EventParticipants)
	require.NotEmpty(t, participants)
	var roster dto.ParticipantsPayload
	require.NoError(t, participants[len(participants)-1].decode(&roster))
	require.Len(t, roster.Participants, 1)
	assert.Equal(t, "user-b", roster.Participants[0].UserID)

	recent := f.activities.Recent(ctx, "novel", 1)
	assert.Equal(t, entity.ActivityParticipantLeft, recent[0].Type)
}

func TestCollab_ContentUpdateRelaysPatch(t *testing.T) {
	ctx := context.Background()
	f := newCollabFixture(t)
	alice := newPeer("conn-a", "user-a", "Alice")
	bob := newPeer("conn-b", "user-b", "Bob")
	f.join(t, alice, "0", chapterZero)
	f.join(t, bob, "0", chapterZero)
	f.delivery.reset()

	next := "Once upon a time there was a tall lighthouse."
	f.send(alice, dto.EventContentUpdate, dto.ContentUpdatePayload{
		SectionID: "0",
		Patch:     patch.Make(chapterZero, next),
		Content:   next,
	})

	stored, err := f.sections.Get(ctx, "novel", "0")
	require.NoError(t, err)
	assert.Equal(t, next, stored.Content)

	updates := f.delivery.ofType(dto.EventContentUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, "conn-a", updates[0].Except)

	var relayed dto.ContentUpdatePayload
	require.NoError(t, updates[0].decode(&relayed))
	assert.Equal(t, "user-a", relayed.UserID)
	assert.Equal(t, "novel", relayed.ProjectID)
}

func TestCollab_SectionChange(t *testing.T) {
	ctx := context.Background()
	f := newCollabFixture(t)
	alice := newPeer("conn-a", "user-a", "Alice")
	bob := newPeer("conn-b", "user-b", "Bob")
	f.join(t, alice, "0", chapterZero)
	f.join(t, bob, "1", "Chapter one, relay copy.")

	f.send(alice, dto.EventLockRequest, dto.LockRequestPayload{SectionID: "0", Range: entity.Range{Start: 0, End: 4}})
	f.delivery.reset()

	f.send(alice, dto.EventSectionChange, dto.SectionChangePayload{SectionID: "1", Content: "Chapter one, stale."})

	// Moving away drops the locks held in the old section.
	assert.Len(t, f.delivery.ofType(dto.EventLockReleased), 1)
	active, err := f.locks.Active(ctx, "novel")
	require.NoError(t, err)
	assert.Empty(t, active)

	changes := f.delivery.ofType(dto.EventSectionChange)
	require.Len(t, changes, 2)
	assert.Equal(t, "connection", changes[0].Scope)
	var fresh dto.SectionChangePayload
	require.NoError(t, changes[0].decode(&fresh))
	assert.Equal(t, "Chapter one, relay copy.", fresh.Content)
	assert.Equal(t, "project", changes[1].Scope)

	recent := f.activities.Recent(ctx, "novel", 1)
	assert.Equal(t, entity.ActivitySectionChanged, recent[0].Type)
}

func TestCollab_CommentsOverSocket(t *testing.T) {
	f := newCollabFixture(t)
	alice := newPeer("conn-a", "user-a", "Alice")
	f.join(t, alice, "0", chapterZero)
	f.delivery.reset()

	f.send(alice, dto.EventCommentAdd, dto.CommentAddPayload{Text: "Needs a hook"})
	errs := f.delivery.ofType(dto.EventError)
	require.Len(t, errs, 1)
	var payload dto.ErrorPayload
	require.NoError(t, errs[0].decode(&payload))
	assert.Equal(t, ErrSelectionRequired.Error(), payload.Message)

	f.send(alice, dto.EventCommentAdd, dto.CommentAddPayload{
		Text:      "Needs a hook",
		Selection: entity.Selection{Start: 0, End: 4, Text: "Once", SectionID: "0"},
	})
	added := f.delivery.ofType(dto.EventCommentAdded)
	require.Len(t, added, 1)

	var comment entity.Comment
	require.NoError(t, added[0].decode(&comment))
	assert.Equal(t, "Alice", comment.UserName)

	f.send(alice, dto.EventCommentUpdate, dto.CommentUpdatePayload{CommentID: comment.ID, Status: entity.CommentStatusResolved})
	updated := f.delivery.ofType(dto.EventCommentUpdated)
	require.Len(t, updated, 1)
	var resolved entity.Comment
	require.NoError(t, updated[0].decode(&resolved))
	assert.Equal(t, entity.CommentStatusResolved, resolved.Status)
}

func TestCollab_CursorAndClientActivity(t *testing.T) {
	ctx := context.Background()
	f := newCollabFixture(t)
	alice := newPeer("conn-a", "user-a", "Alice")
	f.join(t, alice, "0", chapterZero)
	f.delivery.reset()

	f.send(alice, dto.EventCursor, dto.CursorPayload{SectionID: "0", Range: &entity.Range{Start: 3, End: 3}})
	cursors := f.delivery.ofType(dto.EventCursor)
	require.Len(t, cursors, 1)
	assert.Equal(t, "conn-a", cursors[0].Except)

	f.send(alice, dto.EventActivity, entity.Activity{Type: entity.ActivityMergeConflict, Text: "kept local wording"})
	recent := f.activities.Recent(ctx, "novel", 1)
	require.Len(t, recent, 1)
	assert.Equal(t, entity.ActivityMergeConflict, recent[0].Type)
	assert.Equal(t, "user-a", recent[0].UserID)
	assert.Equal(t, "Alice", recent[0].UserName)

	f.send(alice, "collab:unknown", nil)
	assert.Len(t, f.delivery.ofType(dto.EventError), 1)
}
