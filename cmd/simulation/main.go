package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"

	"novelsync-be/internal/collabclient"
	"novelsync-be/internal/entity"
)

const chapterZero = "It was a dark and stormy night. The lighthouse keeper climbed the stairs."

// memoryBuffer stands in for an editor.
type memoryBuffer struct {
	mu       sync.Mutex
	content  string
	sel      entity.Range
	onChange func(string)
}

func (b *memoryBuffer) Content() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.content
}

func (b *memoryBuffer) SetContent(content string) {
	b.mu.Lock()
	b.content = content
	cb := b.onChange
	b.mu.Unlock()
	if cb != nil {
		cb(content)
	}
}

func (b *memoryBuffer) SelectedRange() (entity.Range, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sel, true
}

func (b *memoryBuffer) ReplaceSelectedText(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	runes := []rune(b.content)
	r := b.sel.Normalize()
	b.content = string(runes[:r.Start]) + text + string(runes[r.End:])
	b.sel = entity.Range{Start: r.Start + len([]rune(text)), End: r.Start + len([]rune(text))}
}

func (b *memoryBuffer) InsertTextAtCursor(text string) {
	b.mu.Lock()
	b.sel = entity.Range{Start: b.sel.End, End: b.sel.End}
	b.mu.Unlock()
	b.ReplaceSelectedText(text)
}

func (b *memoryBuffer) HighlightRange(r entity.Range) {}

func (b *memoryBuffer) ViewportPositionOf(r entity.Range) (int, int, bool) {
	return 0, r.Start / 80, true
}

func (b *memoryBuffer) selectRange(start, end int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sel = entity.Range{Start: start, End: end}
}

type client struct {
	name    string
	buffer  *memoryBuffer
	session *collabclient.Session
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func signToken(secret, userID, name, email string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"name":    name,
		"email":   email,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	return token.SignedString([]byte(secret))
}

func connect(ctx context.Context, apiURL, wsURL, secret, projectID string, id collabclient.Identity) (*client, error) {
	token, err := signToken(secret, id.UserID, id.UserName, id.Email)
	if err != nil {
		return nil, err
	}

	buf := &memoryBuffer{content: chapterZero}

	// A failed dial still yields a usable, offline session.
	var transport collabclient.Transport
	if ws, err := collabclient.Dial(ctx, wsURL, token); err == nil {
		transport = ws
	} else {
		color.Red("[%s] dial failed: %v", id.UserName, err)
	}

	session := collabclient.NewSession(collabclient.Config{
		ProjectID:      projectID,
		SectionID:      "0",
		DebounceWindow: 100 * time.Millisecond,
	}, id, buf, transport, collabclient.NewRESTFallback(apiURL, token), nil)
	buf.onChange = func(content string) { session.LocalEdit(content) }

	session.OnNotice(func(n collabclient.Notice) {
		color.Magenta("[%s] notice (%s): %s", id.UserName, n.Kind, n.Message)
	})

	if err := session.Connect(ctx); err != nil {
		color.Red("[%s] working offline: %v", id.UserName, err)
	} else {
		color.Green("[%s] joined with %d participant(s)", id.UserName, len(session.Participants()))
	}
	return &client{name: id.UserName, buffer: buf, session: session}, nil
}

func settle() {
	time.Sleep(400 * time.Millisecond)
}

func main() {
	_ = godotenv.Load()

	apiURL := getEnv("SIM_API_URL", "http://localhost:3000/api")
	wsURL := getEnv("SIM_WS_URL", "ws://localhost:3000/api/collab/v1/ws")
	secret := getEnv("JWT_SECRET", "")
	projectID := getEnv("SIM_PROJECT_ID", fmt.Sprintf("sim-%d", time.Now().Unix()))

	if secret == "" {
		color.Red("JWT_SECRET is not set")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	color.Cyan("=== Collaboration Simulation (project %s) ===\n", projectID)

	alice, err := connect(ctx, apiURL, wsURL, secret, projectID, collabclient.Identity{
		UserID: "sim-alice", UserName: "Alice", Email: "alice@example.com",
	})
	if err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
	defer alice.session.Disconnect()

	bob, err := connect(ctx, apiURL, wsURL, secret, projectID, collabclient.Identity{
		UserID: "sim-bob", UserName: "Bob", Email: "bob@example.com",
	})
	if err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
	defer bob.session.Disconnect()
	settle()

	color.Yellow("\n1. Alice selects the opening sentence")
	alice.buffer.selectRange(0, 31)
	alice.session.Select(ctx, entity.Range{Start: 0, End: 31})
	settle()

	color.Yellow("\n2. Bob tries to select inside it")
	if bob.session.Select(ctx, entity.Range{Start: 10, End: 20}) {
		color.Red("Bob was allowed in (lock not visible yet)")
	} else {
		color.Green("Bob was kept out")
	}

	color.Yellow("\n3. Alice rewrites her passage")
	alice.session.ReplaceSelection("It was a bright and silent morning.")
	settle()
	color.White("Alice: %s", alice.buffer.Content())
	color.White("Bob:   %s", bob.buffer.Content())

	color.Yellow("\n4. Both edit different words before either update is sent")
	alice.session.Select(ctx, entity.Range{})
	settle()
	edit := func(c *client, from, to string) {
		next := strings.Replace(c.buffer.Content(), from, to, 1)
		c.buffer.mu.Lock()
		c.buffer.content = next
		c.buffer.mu.Unlock()
		c.session.LocalEdit(next)
	}
	edit(alice, "keeper", "old keeper")
	edit(bob, "stairs", "winding stairs")
	time.Sleep(time.Second)
	color.White("Alice: %s", alice.buffer.Content())
	color.White("Bob:   %s", bob.buffer.Content())
	if alice.buffer.Content() == bob.buffer.Content() {
		color.Green("Copies converged")
	} else {
		color.Red("Copies differ")
	}

	color.Yellow("\n5. Alice asks Bob about the lighthouse")
	alice.buffer.selectRange(40, 50)
	if _, err := alice.session.AddComment(ctx, collabclient.CommentDraft{Text: "@bob should this be the lamp room?"}); err != nil && !errors.Is(err, collabclient.ErrTransportUnavailable) {
		color.Red("Failed: %v", err)
	}
	settle()

	for _, th := range bob.session.Threads() {
		color.White("Thread %s by %s: %q on %q", th.ThreadID[:8], th.Root.UserName, th.Root.Text, th.Root.Selection.Text)
	}

	color.Yellow("\n6. Activity as Bob sees it")
	for _, a := range bob.session.Activities() {
		color.White("- %s %s %s", a.CreatedAt.Format("15:04:05"), a.UserName, a.Type)
	}
}
