package service

import (
	"encoding/json"
	"sync"

	"novelsync-be/internal/dto"
)

type sentFrame struct {
	Scope  string // project, connection or user
	Target string
	Except string
	Type   string
	Data   json.RawMessage
}

func (f sentFrame) decode(v interface{}) error {
	return json.Unmarshal(f.Data, v)
}

// recordingDelivery captures every frame the services emit.
type recordingDelivery struct {
	mu     sync.Mutex
	frames []sentFrame
}

func (d *recordingDelivery) record(scope, target, except string, frame []byte) {
	var env dto.Envelope
	_ = json.Unmarshal(frame, &env)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = append(d.frames, sentFrame{
		Scope:  scope,
		Target: target,
		Except: except,
		Type:   env.Type,
		Data:   env.Data,
	})
}

func (d *recordingDelivery) SendToProject(projectID string, frame []byte, exceptConnID string) {
	d.record("project", projectID, exceptConnID, frame)
}

func (d *recordingDelivery) SendToConnection(connID string, frame []byte) {
	d.record("connection", connID, "", frame)
}

func (d *recordingDelivery) SendToUser(userID string, frame []byte) {
	d.record("user", userID, "", frame)
}

func (d *recordingDelivery) ofType(eventType string) []sentFrame {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []sentFrame
	for _, f := range d.frames {
		if f.Type == eventType {
			out = append(out, f)
		}
	}
	return out
}

func (d *recordingDelivery) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = nil
}

// fakePeer stands in for a socket client.
type fakePeer struct {
	mu        sync.Mutex
	connID    string
	userID    string
	userName  string
	email     string
	projectID string
}

func newPeer(connID, userID, userName string) *fakePeer {
	return &fakePeer{connID: connID, userID: userID, userName: userName}
}

func (p *fakePeer) ConnectionID() string { return p.connID }
func (p *fakePeer) UserID() string       { return p.userID }
func (p *fakePeer) UserName() string     { return p.userName }
func (p *fakePeer) Email() string        { return p.email }

func (p *fakePeer) ProjectID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.projectID
}

func (p *fakePeer) Bind(projectID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.projectID = projectID
}

func mustFrame(eventType string, data interface{}) []byte {
	raw, err := dto.Encode(eventType, data)
	if err != nil {
		panic(err)
	}
	return raw
}
