package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPresence() *presenceService {
	svc := NewPresenceService().(*presenceService)
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	svc.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	return svc
}

func TestPresence_JoinReportsSoleViewer(t *testing.T) {
	svc := newTestPresence()

	alice, alone := svc.Join(JoinInput{ProjectID: "p", SectionID: "0", ConnectionID: "c1", UserID: "a", UserName: "Alice Smith"})
	assert.True(t, alone)
	assert.Equal(t, "alicesmith", alice.Handle)
	assert.Equal(t, participantColors[0], alice.Color)

	_, alone = svc.Join(JoinInput{ProjectID: "p", SectionID: "0", ConnectionID: "c2", UserID: "b", UserName: "Bob"})
	assert.False(t, alone, "Alice already views section 0")

	_, alone = svc.Join(JoinInput{ProjectID: "p", SectionID: "3", ConnectionID: "c3", UserID: "c", UserName: "Carol"})
	assert.True(t, alone)

	participants := svc.Participants("p")
	require.Len(t, participants, 3)
	assert.Equal(t, []string{"c1", "c2", "c3"}, []string{
		participants[0].ConnectionID, participants[1].ConnectionID, participants[2].ConnectionID,
	})
}

func TestPresence_Colors(t *testing.T) {
	svc := newTestPresence()

	a, _ := svc.Join(JoinInput{ProjectID: "p", SectionID: "0", ConnectionID: "c1", UserID: "a", UserName: "Alice"})
	b, _ := svc.Join(JoinInput{ProjectID: "p", SectionID: "0", ConnectionID: "c2", UserID: "b", UserName: "Bob"})
	assert.NotEqual(t, a.Color, b.Color)

	// A second tab of the same user keeps its color.
	a2, _ := svc.Join(JoinInput{ProjectID: "p", SectionID: "1", ConnectionID: "c3", UserID: "a", UserName: "Alice"})
	assert.Equal(t, a.Color, a2.Color)
	assert.Equal(t, 2, svc.ConnectionsOf("p", "a"))

	// Leaving frees the color for the next joiner.
	_, ok := svc.Leave("p", "c2")
	require.True(t, ok)
	c, _ := svc.Join(JoinInput{ProjectID: "p", SectionID: "0", ConnectionID: "c4", UserID: "c", UserName: "Carol"})
	assert.Equal(t, b.Color, c.Color)
}

func TestPresence_Handles(t *testing.T) {
	svc := newTestPresence()

	svc.Join(JoinInput{ProjectID: "p", SectionID: "0", ConnectionID: "c1", UserID: "a", UserName: "Sam"})
	svc.Join(JoinInput{ProjectID: "p", SectionID: "0", ConnectionID: "c2", UserID: "a", UserName: "Sam"})
	svc.Join(JoinInput{ProjectID: "p", SectionID: "0", ConnectionID: "c3", UserID: "b", UserName: "sam!"})
	svc.Join(JoinInput{ProjectID: "p", SectionID: "0", ConnectionID: "c4", UserID: "c", UserEmail: "jo.ng@example.com"})
	svc.Join(JoinInput{ProjectID: "other", SectionID: "0", ConnectionID: "c5", UserID: "d", UserName: "Dee"})

	assert.Equal(t, []string{"jong", "sam"}, svc.Handles("p"))

	matches := svc.ByHandle("p", "@SAM")
	assert.Len(t, matches, 2, "one entry per user sharing the handle")

	assert.Empty(t, svc.ByHandle("p", "dee"))
}

func TestPresence_LeaveAndChangeSection(t *testing.T) {
	svc := newTestPresence()

	svc.Join(JoinInput{ProjectID: "p", SectionID: "0", ConnectionID: "c1", UserID: "a", UserName: "Alice"})

	moved, previous, ok := svc.ChangeSection("p", "c1", "2")
	require.True(t, ok)
	assert.Equal(t, "0", previous)
	assert.Equal(t, "2", moved.SectionID)

	p, ok := svc.Lookup("p", "c1")
	require.True(t, ok)
	assert.Equal(t, "2", p.SectionID)

	_, _, ok = svc.ChangeSection("p", "unknown", "1")
	assert.False(t, ok)

	left, ok := svc.Leave("p", "c1")
	require.True(t, ok)
	assert.Equal(t, "a", left.UserID)
	assert.Empty(t, svc.Participants("p"))

	_, ok = svc.Leave("p", "c1")
	assert.False(t, ok)
}
