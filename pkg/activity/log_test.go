package activity

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	ID   string
	Text string
}

func newLog(capacity int) *Log[entry] {
	return New(capacity, func(e entry) string { return e.ID })
}

func TestAppendDeduplicates(t *testing.T) {
	l := newLog(10)

	assert.True(t, l.Append(entry{ID: "a1", Text: "optimistic"}))
	assert.False(t, l.Append(entry{ID: "a1", Text: "echo"}))
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, "optimistic", l.Entries()[0].Text)
}

func TestCapEvictsOldestFirst(t *testing.T) {
	l := newLog(DefaultCapacity)

	for i := 0; i < 201; i++ {
		require.True(t, l.Append(entry{ID: fmt.Sprintf("act-%d", i)}))
	}

	entries := l.Entries()
	assert.Len(t, entries, 200)
	assert.Equal(t, "act-200", entries[0].ID)
	assert.Equal(t, "act-1", entries[len(entries)-1].ID)
	assert.False(t, l.Has("act-0"))
	assert.True(t, l.Has("act-1"))
}

func TestEntriesMostRecentFirst(t *testing.T) {
	l := newLog(3)
	for _, id := range []string{"a", "b", "c", "d"} {
		l.Append(entry{ID: id})
	}

	var ids []string
	for _, e := range l.Entries() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"d", "c", "b"}, ids)

	recent := l.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "d", recent[0].ID)
	assert.Len(t, l.Recent(0), 3)
}

func TestHasDoesNotRefreshAge(t *testing.T) {
	l := newLog(2)
	l.Append(entry{ID: "a"})
	l.Append(entry{ID: "b"})

	// Looking an entry up must not keep it alive past its turn.
	assert.True(t, l.Has("a"))
	assert.False(t, l.Append(entry{ID: "a", Text: "echo"}))
	l.Append(entry{ID: "c"})

	assert.False(t, l.Has("a"))
	assert.True(t, l.Has("b"))
	assert.True(t, l.Has("c"))
}
