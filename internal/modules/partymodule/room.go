package partymodule

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// client is one websocket participant in a room.
type client struct {
	id   string
	name string
	room *Room
	conn *websocket.Conn
	send chan []byte
}

// Room is one watch party on the server side. The host's transport state is
// cached here so late joiners and sync requests can be answered without a
// round trip to the host.
type Room struct {
	ID     string
	hostID string

	logger hclog.Logger
	hub    *Hub

	mu         sync.Mutex
	clients    map[*client]bool
	assetID    string
	mediaTitle string
	positionMs int64
	isPaused   bool
	queue      []string
	closed     bool
}

func newRoom(id, hostID string, hub *Hub, logger hclog.Logger) *Room {
	return &Room{
		ID:      id,
		hostID:  hostID,
		logger:  logger.With("room_id", id),
		hub:     hub,
		clients: make(map[*client]bool),
	}
}

// HostID returns the participant ID that owns transport authority.
func (r *Room) HostID() string {
	return r.hostID
}

func (r *Room) register(c *client) {
	r.mu.Lock()
	r.clients[c] = true
	r.mu.Unlock()
	r.logger.Info("participant connected", "client_id", c.id, "name", c.name)
	r.broadcastState()
}

// drop removes a departed client. A departing host takes the room with it.
func (r *Room) drop(c *client) {
	r.mu.Lock()
	if _, ok := r.clients[c]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.clients, c)
	close(c.send)
	hostLeft := c.id == r.hostID && !r.closed
	r.mu.Unlock()

	r.logger.Info("participant disconnected", "client_id", c.id)
	if hostLeft {
		r.close()
		return
	}
	r.broadcastState()
}

// close shuts the room down and evicts everyone.
func (r *Room) close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	remaining := make([]*client, 0, len(r.clients))
	for c := range r.clients {
		remaining = append(remaining, c)
	}
	r.clients = make(map[*client]bool)
	r.mu.Unlock()

	r.logger.Info("closing room")
	data, _ := EncodeMessage(&Message{Type: KindRoomClosed})
	for _, c := range remaining {
		select {
		case c.send <- data:
		default:
		}
		close(c.send)
	}
	r.hub.remove(r.ID)
}

// Kick evicts one participant at the host's request.
func (r *Room) Kick(participantID, reason string) bool {
	r.mu.Lock()
	var target *client
	for c := range r.clients {
		if c.id == participantID {
			target = c
			break
		}
	}
	r.mu.Unlock()
	if target == nil || participantID == r.hostID {
		return false
	}

	data, _ := EncodeMessage(&Message{Type: KindKicked, Reason: reason})
	select {
	case target.send <- data:
	default:
	}
	// The client closes its side on kicked; force the issue shortly after
	// in case it does not.
	time.AfterFunc(writeWait, func() { _ = target.conn.Close() })
	return true
}

// handle processes one inbound message from a participant. Transport and
// curation kinds are host-only; a follower attempting them gets an error
// frame back and the room state is untouched.
func (r *Room) handle(c *client, msg *Message) {
	isHost := c.id == r.hostID

	switch msg.Type {
	case KindJoin:
		r.mu.Lock()
		c.name = msg.Name
		r.mu.Unlock()
		r.broadcastState()

	case KindLeave:
		_ = c.conn.Close()

	case KindPlay, KindPause, KindSeek:
		if !isHost {
			r.sendError(c, "only the host controls playback")
			return
		}
		r.mu.Lock()
		r.positionMs = msg.PositionMs
		r.isPaused = msg.Type == KindPause
		r.mu.Unlock()
		r.broadcastExcept(c, msg)

	case KindSyncRequest:
		r.mu.Lock()
		reply := &Message{
			Type:       KindSyncResponse,
			PositionMs: r.positionMs,
			IsPaused:   r.isPaused,
			AssetID:    r.assetID,
		}
		r.mu.Unlock()
		r.sendTo(c, reply)

	case KindSyncResponse:
		if !isHost {
			return
		}
		r.mu.Lock()
		r.positionMs = msg.PositionMs
		r.isPaused = msg.IsPaused
		if msg.AssetID != "" {
			r.assetID = msg.AssetID
		}
		r.mu.Unlock()
		r.broadcastExcept(c, msg)

	case KindMediaChange:
		if !isHost {
			r.sendError(c, "only the host changes media")
			return
		}
		r.mu.Lock()
		r.assetID = msg.AssetID
		r.mediaTitle = msg.MediaTitle
		r.positionMs = 0
		r.mu.Unlock()
		r.broadcastExcept(c, msg)

	case KindNavigate, KindNextEpisode:
		if !isHost {
			r.sendError(c, "only the host changes media")
			return
		}
		r.broadcastExcept(c, msg)

	case KindQueueAdd:
		if !isHost {
			r.sendError(c, "only the host curates the queue")
			return
		}
		r.mu.Lock()
		r.queue = append(r.queue, msg.AssetID)
		r.mu.Unlock()
		r.broadcastState()

	case KindQueueRemove:
		if !isHost {
			r.sendError(c, "only the host curates the queue")
			return
		}
		r.mu.Lock()
		if msg.Index >= 0 && msg.Index < len(r.queue) {
			r.queue = append(r.queue[:msg.Index], r.queue[msg.Index+1:]...)
		}
		r.mu.Unlock()
		r.broadcastState()

	case KindBuffering, KindReady:
		r.broadcastExcept(c, msg)
	}
}

// stateMessage builds a room_state snapshot. Callers must not hold the lock.
func (r *Room) stateMessage() *Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	participants := make([]Participant, 0, len(r.clients))
	for c := range r.clients {
		participants = append(participants, Participant{
			ID:   c.id,
			Name: c.name,
			Host: c.id == r.hostID,
		})
	}
	queue := make([]string, len(r.queue))
	copy(queue, r.queue)

	return &Message{
		Type:         KindRoomState,
		AssetID:      r.assetID,
		MediaTitle:   r.mediaTitle,
		PositionMs:   r.positionMs,
		IsPaused:     r.isPaused,
		Participants: participants,
		EpisodeQueue: queue,
	}
}

func (r *Room) broadcastState() {
	r.broadcastExcept(nil, r.stateMessage())
}

// broadcastExcept fans a message out to every connected client but one.
// Slow consumers are skipped rather than blocking the room.
func (r *Room) broadcastExcept(skip *client, msg *Message) {
	data, err := EncodeMessage(msg)
	if err != nil {
		r.logger.Error("failed to encode broadcast", "type", msg.Type, "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.clients {
		if c == skip {
			continue
		}
		select {
		case c.send <- data:
		default:
			r.logger.Warn("dropping frame for slow participant", "client_id", c.id)
		}
	}
}

func (r *Room) sendTo(c *client, msg *Message) {
	data, err := EncodeMessage(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (r *Room) sendError(c *client, text string) {
	r.sendTo(c, &Message{Type: KindError, ErrorMessage: text})
}

func (c *client) readPump() {
	defer func() {
		c.room.drop(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		msg, ok := DecodeMessage(data)
		if !ok {
			continue
		}
		c.room.handle(c, msg)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
