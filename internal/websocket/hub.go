package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"novelsync-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const clusterChannel = "collab_events"

// MessageHandler receives decoded-later frames and disconnects from the
// read pumps.
type MessageHandler interface {
	HandleMessage(ctx context.Context, peer Peer, raw []byte)
	HandleDisconnect(ctx context.Context, peer Peer)
}

// clusterMessage is relayed between instances over Redis. Exactly one of
// ProjectID, ConnectionID or UserID addresses the frame.
type clusterMessage struct {
	Origin       string          `json:"origin"`
	ProjectID    string          `json:"project_id,omitempty"`
	ConnectionID string          `json:"connection_id,omitempty"`
	UserID       string          `json:"user_id,omitempty"`
	Except       string          `json:"except,omitempty"`
	Message      json.RawMessage `json:"message"`
}

type Hub struct {
	// All live connections by connection ID.
	clients map[string]*Client

	// Project rooms: projectID -> set of clients
	rooms map[string]map[*Client]bool

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed when Run returns.
	done chan struct{}

	// Lock for safe map access
	mu sync.RWMutex

	// Redis connection for cross-instance communication
	rdb *redis.Client

	// instanceID tags our own cluster messages so we skip them on receipt.
	instanceID string

	handler MessageHandler

	// Dedicated Logger
	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[*Client]bool),
		rdb:        rdb,
		instanceID: uuid.NewString(),
		logger:     log,
	}
}

// SetHandler must be called before Run.
func (h *Hub) SetHandler(handler MessageHandler) {
	h.handler = handler
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	// Start Redis Subscriber if Redis is available
	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.connID] = client
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{
				"user_id":       client.UserID(),
				"connection_id": client.connID,
			})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.connID]; ok {
				delete(h.clients, client.connID)
				h.leaveRoomLocked(client)
				close(client.Send)
				h.logger.Info("Hub", "Client unregistered", map[string]interface{}{
					"user_id":       client.UserID(),
					"connection_id": client.connID,
				})
			}
			h.mu.Unlock()
		}
	}
}

// join hands client to Run. It reports false once the hub has stopped.
func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// leave hands client to Run for removal. It gives up once Run has returned.
func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) bind(client *Client, projectID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// An unregistered client has a closed Send and must not rejoin a room.
	if h.clients[client.connID] != client {
		h.logger.Debug("Hub", "Ignoring bind of unregistered client", map[string]interface{}{
			"connection_id": client.connID,
			"project_id":    projectID,
		})
		return
	}
	h.leaveRoomLocked(client)
	client.projectID = projectID
	if projectID == "" {
		return
	}
	room, ok := h.rooms[projectID]
	if !ok {
		room = make(map[*Client]bool)
		h.rooms[projectID] = room
	}
	room[client] = true
}

func (h *Hub) leaveRoomLocked(client *Client) {
	if client.projectID == "" {
		return
	}
	if room, ok := h.rooms[client.projectID]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, client.projectID)
		}
	}
}

// deliver must be called with at least a read lock held. A client whose
// buffer is full is dropped; its read pump notices the closed socket.
func (h *Hub) deliver(client *Client, data []byte) {
	select {
	case client.Send <- data:
	default:
		h.logger.Warn("Hub", "Client Send buffer full, dropping connection", map[string]interface{}{
			"connection_id": client.connID,
		})
		go h.leave(client)
	}
}

func (h *Hub) localToProject(projectID string, data []byte, exceptConnID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.rooms[projectID] {
		if client.connID != exceptConnID {
			h.deliver(client, data)
		}
	}
}

func (h *Hub) localToConnection(connID string, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[connID]
	if ok {
		h.deliver(client, data)
	}
	return ok
}

func (h *Hub) localToUser(userID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.UserID() == userID {
			h.deliver(client, data)
		}
	}
}

// SendToProject fans a frame out to a project room on every instance.
func (h *Hub) SendToProject(projectID string, frame []byte, exceptConnID string) {
	h.localToProject(projectID, frame, exceptConnID)
	h.publish(clusterMessage{ProjectID: projectID, Except: exceptConnID, Message: frame})
}

func (h *Hub) SendToConnection(connID string, frame []byte) {
	if h.localToConnection(connID, frame) {
		return
	}
	h.publish(clusterMessage{ConnectionID: connID, Message: frame})
}

// SendToUser reaches every device of the user (multi-device).
func (h *Hub) SendToUser(userID string, frame []byte) {
	h.localToUser(userID, frame)
	h.publish(clusterMessage{UserID: userID, Message: frame})
}

func (h *Hub) publish(msg clusterMessage) {
	if h.rdb == nil {
		return
	}
	msg.Origin = h.instanceID
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := h.rdb.Publish(context.Background(), clusterChannel, payload).Err(); err != nil {
		h.logger.Warn("Hub", "Cluster publish failed", map[string]interface{}{"error": err.Error()})
	}
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	// Every instance subscribes to the one channel and keeps what it can
	// deliver locally.
	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	go func() {
		<-ctx.Done()
		pubsub.Close()
	}()

	for msg := range pubsub.Channel() {
		var payload clusterMessage
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			h.logger.Warn("Hub", "Cluster message parse error", map[string]interface{}{"error": err.Error()})
			continue
		}
		if payload.Origin == h.instanceID {
			continue
		}
		h.dispatchCluster(payload)
	}
}

func (h *Hub) dispatchCluster(payload clusterMessage) {
	switch {
	case payload.ProjectID != "":
		h.localToProject(payload.ProjectID, payload.Message, payload.Except)
	case payload.ConnectionID != "":
		h.localToConnection(payload.ConnectionID, payload.Message)
	case payload.UserID != "":
		h.localToUser(payload.UserID, payload.Message)
	}
}

// Connections returns how many sockets this instance serves.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
