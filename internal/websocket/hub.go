package websocket

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
)

// Event names pushed to dashboards and citizen apps.
const (
	EventNewComplaint     = "newComplaint"
	EventComplaintUpdate  = "complaintUpdate"
	EventNewWithdrawal    = "newWithdrawal"
	EventWithdrawalUpdate = "withdrawalUpdate"
	EventConfigUpdate     = "configUpdate"
)

// RoomAdmins is joined by every admin connection.
const RoomAdmins = "admins"

// UserRoom is the private room of one citizen.
func UserRoom(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}

// Message is one realtime event.
type Message struct {
	Event string `json:"event"`
	ID    int64  `json:"id,omitempty"`
	Data  any    `json:"data,omitempty"`
}

func NewMessage(event string, id int64, data any) Message {
	return Message{Event: event, ID: id, Data: data}
}

// Hub tracks connected clients by room and fans messages out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client and joins it to its rooms.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = struct{}{}
	for _, room := range c.rooms {
		members, ok := h.rooms[room]
		if !ok {
			members = make(map[*Client]struct{})
			h.rooms[room] = members
		}
		members[c] = struct{}{}
	}
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	for _, room := range c.rooms {
		members := h.rooms[room]
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	close(c.send)
}

// Publish sends msg to every client in room. A client whose buffer is full
// misses the message rather than block the publisher, and is disconnected
// after missing too many.
func (h *Hub) Publish(room string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal publish", "room", room, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[room] {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("client buffer full, dropping message", "room", room, "event", msg.Event)
			if c.missed() {
				h.logger.Warn("disconnecting slow client", "room", room)
				c.disconnect()
			}
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of clients joined to room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
