package partymodule

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
)

// Hub owns every live room on this server.
type Hub struct {
	logger hclog.Logger

	mu    sync.RWMutex
	rooms map[string]*Room

	upgrader websocket.Upgrader
}

// NewHub creates an empty room registry.
func NewHub(logger hclog.Logger) *Hub {
	return &Hub{
		logger: logger.Named("party-hub"),
		rooms:  make(map[string]*Room),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// CreateRoom opens a new room. The returned room's host ID is the only
// participant ID with transport authority.
func (h *Hub) CreateRoom() *Room {
	room := newRoom(uuid.New().String(), uuid.New().String(), h, h.logger)

	h.mu.Lock()
	h.rooms[room.ID] = room
	h.mu.Unlock()

	h.logger.Info("room created", "room_id", room.ID)
	return room
}

// GetRoom looks a room up by ID.
func (h *Hub) GetRoom(id string) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room, ok := h.rooms[id]
	return room, ok
}

// RoomCount returns the number of live rooms.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	delete(h.rooms, id)
	h.mu.Unlock()
	h.logger.Info("room removed", "room_id", id)
}

// CloseAll shuts every room down, e.g. at server shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.RUnlock()

	for _, r := range rooms {
		r.close()
	}
}

// ServeWS upgrades an HTTP request into a room participant connection and
// starts its pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, req *http.Request, room *Room, clientID, name string) {
	conn, err := h.upgrader.Upgrade(w, req, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "room_id", room.ID, "error", err)
		return
	}

	c := &client{
		id:   clientID,
		name: name,
		room: room,
		conn: conn,
		send: make(chan []byte, 64),
	}
	room.register(c)

	go c.writePump()
	go c.readPump()
}
