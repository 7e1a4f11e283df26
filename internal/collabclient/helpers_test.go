package collabclient

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"novelsync-be/internal/dto"
	"novelsync-be/internal/entity"
)

var (
	alice = entity.Participant{UserID: "user-a", DisplayName: "Alice", Handle: "alice", SectionID: "0", ConnectionID: "conn-a"}
	bob   = entity.Participant{UserID: "user-b", DisplayName: "Bob", Handle: "bob", SectionID: "0", ConnectionID: "conn-b"}
)

type fakeTransport struct {
	mu        sync.Mutex
	sent      []dto.Envelope
	in        chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	autoSync  func(dto.JoinPayload) dto.SyncPayload
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) Send(ctx context.Context, frame []byte) error {
	select {
	case <-f.closed:
		return io.ErrClosedPipe
	default:
	}

	var env dto.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, env)
	autoSync := f.autoSync
	f.mu.Unlock()

	if env.Type == dto.EventJoin && autoSync != nil {
		var join dto.JoinPayload
		if err := env.Decode(&join); err != nil {
			return err
		}
		frame, err := dto.Encode(dto.EventSync, autoSync(join))
		if err != nil {
			return err
		}
		f.in <- frame
	}
	return nil
}

func (f *fakeTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-f.in:
		return frame, nil
	case <-f.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) ofType(eventType string) []dto.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []dto.Envelope
	for _, env := range f.sent {
		if env.Type == eventType {
			out = append(out, env)
		}
	}
	return out
}

func (f *fakeTransport) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, env := range f.sent {
		out[i] = env.Type
	}
	return out
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

type fakeBuffer struct {
	mu          sync.Mutex
	content     string
	sel         entity.Range
	hasSel      bool
	highlighted []entity.Range
	onChange    func(string)
}

func newFakeBuffer(content string) *fakeBuffer {
	return &fakeBuffer{content: content}
}

func (b *fakeBuffer) Content() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.content
}

// SetContent behaves like an editor and reports the change back.
func (b *fakeBuffer) SetContent(content string) {
	b.mu.Lock()
	b.content = content
	cb := b.onChange
	b.mu.Unlock()
	if cb != nil {
		cb(content)
	}
}

func (b *fakeBuffer) watch(fn func(string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

func (b *fakeBuffer) highlights() []entity.Range {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]entity.Range{}, b.highlighted...)
}

// typeText replaces the text as the user would, without the change callback.
func (b *fakeBuffer) typeText(content string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.content = content
}

func (b *fakeBuffer) selectRange(start, end int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sel = entity.Range{Start: start, End: end}
	b.hasSel = true
}

func (b *fakeBuffer) SelectedRange() (entity.Range, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sel, b.hasSel
}

func (b *fakeBuffer) ReplaceSelectedText(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	runes := []rune(b.content)
	r := b.sel.Normalize()
	b.content = string(runes[:r.Start]) + text + string(runes[r.End:])
	caret := r.Start + len([]rune(text))
	b.sel = entity.Range{Start: caret, End: caret}
}

func (b *fakeBuffer) InsertTextAtCursor(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	runes := []rune(b.content)
	at := b.sel.Normalize().End
	b.content = string(runes[:at]) + text + string(runes[at:])
	caret := at + len([]rune(text))
	b.sel = entity.Range{Start: caret, End: caret}
}

func (b *fakeBuffer) HighlightRange(r entity.Range) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.highlighted = append(b.highlighted, r)
}

func (b *fakeBuffer) ViewportPositionOf(r entity.Range) (int, int, bool) {
	return r.Start * 8, 20, true
}

type fakeFallback struct {
	mu         sync.Mutex
	err        error
	comments   []dto.CommentAddPayload
	statuses   []string
	activities []dto.CreateActivityRequest
}

func (f *fakeFallback) AddComment(ctx context.Context, req dto.CommentAddPayload) (*entity.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.comments = append(f.comments, req)
	return &entity.Comment{
		ID:        req.ID,
		ProjectID: req.ProjectID,
		ThreadID:  req.ID,
		UserID:    req.UserID,
		UserName:  req.UserName,
		Text:      req.Text,
		Selection: req.Selection,
		Mentions:  req.Mentions,
		Status:    entity.CommentStatusOpen,
		CreatedAt: time.Now(),
	}, nil
}

func (f *fakeFallback) UpdateCommentStatus(ctx context.Context, projectID, commentID, status string) (*entity.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.statuses = append(f.statuses, commentID+":"+status)
	return nil, nil
}

func (f *fakeFallback) RecordActivity(ctx context.Context, projectID string, req dto.CreateActivityRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.activities = append(f.activities, req)
	return nil
}

func (f *fakeFallback) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func testConfig() Config {
	return Config{
		ProjectID:      "novel",
		SectionID:      "0",
		SyncTimeout:    time.Second,
		RenewInterval:  time.Hour,
		DebounceWindow: time.Hour,
	}
}

var aliceIdentity = Identity{UserID: "user-a", UserName: "Alice", Email: "alice@example.com"}

var bobIdentity = Identity{UserID: "user-b", UserName: "Bob"}

// connectedSession joins a project whose relay answers with content as the
// section text. Debounced updates only go out on an explicit flush.
func connectedSession(t *testing.T, content string) (*Session, *fakeTransport, *fakeBuffer) {
	t.Helper()
	return connectedSessionAs(t, aliceIdentity, alice, content)
}

func connectedSessionAs(t *testing.T, id Identity, self entity.Participant, content string) (*Session, *fakeTransport, *fakeBuffer) {
	t.Helper()

	tr := newFakeTransport()
	tr.autoSync = func(join dto.JoinPayload) dto.SyncPayload {
		return dto.SyncPayload{
			Participants: []entity.Participant{alice, bob},
			SectionID:    join.SectionID,
			Content:      join.Content,
			Self:         self,
		}
	}
	buf := newFakeBuffer(content)
	s := NewSession(testConfig(), id, buf, tr, nil, nil)
	buf.watch(func(c string) { s.LocalEdit(c) })

	require.NoError(t, s.Connect(context.Background()))
	t.Cleanup(func() { s.Disconnect() })
	tr.reset()
	return s, tr, buf
}

// relayUpdates hands every content update from sent to the receiving
// session, as the relay would, and reports how many there were.
func relayUpdates(t *testing.T, from *fakeTransport, to *Session) int {
	t.Helper()
	updates := from.ofType(dto.EventContentUpdate)
	from.reset()
	for _, env := range updates {
		var p dto.ContentUpdatePayload
		require.NoError(t, env.Decode(&p))
		to.handleFrame(mustFrame(t, dto.EventContentUpdate, p))
	}
	return len(updates)
}

func mustFrame(t *testing.T, eventType string, data interface{}) []byte {
	t.Helper()
	frame, err := dto.Encode(eventType, data)
	require.NoError(t, err)
	return frame
}

func kinds(notices []Notice) []NoticeKind {
	out := make([]NoticeKind, len(notices))
	for i, n := range notices {
		out[i] = n.Kind
	}
	return out
}
