package partymodule

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// Handler exposes room management and the websocket endpoint.
type Handler struct {
	logger hclog.Logger
	hub    *Hub
}

// NewHandler creates a party HTTP handler backed by a hub.
func NewHandler(logger hclog.Logger, hub *Hub) *Handler {
	return &Handler{logger: logger, hub: hub}
}

// CreateRoom opens a new watch party room. The caller becomes its host and
// must present the returned host_id as its client_id when connecting.
func (h *Handler) CreateRoom(c *gin.Context) {
	room := h.hub.CreateRoom()
	c.JSON(http.StatusCreated, gin.H{
		"room_id": room.ID,
		"host_id": room.HostID(),
	})
}

// GetRoom returns a room's current state snapshot.
func (h *Handler) GetRoom(c *gin.Context) {
	room, ok := h.hub.GetRoom(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.JSON(http.StatusOK, room.stateMessage())
}

// Connect upgrades the request into a room participant websocket.
func (h *Handler) Connect(c *gin.Context) {
	room, ok := h.hub.GetRoom(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	clientID := c.Query("client_id")
	if clientID == "" {
		clientID = uuid.New().String()
	}
	name := c.Query("name")

	h.hub.ServeWS(c.Writer, c.Request, room, clientID, name)
}

type kickRequest struct {
	HostID        string `json:"host_id" binding:"required"`
	ParticipantID string `json:"participant_id" binding:"required"`
	Reason        string `json:"reason"`
}

// Kick removes a participant from a room. Only the host may do this.
func (h *Handler) Kick(c *gin.Context) {
	room, ok := h.hub.GetRoom(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	var req kickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if req.HostID != room.HostID() {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the host can remove participants"})
		return
	}
	if !room.Kick(req.ParticipantID, req.Reason) {
		c.JSON(http.StatusNotFound, gin.H{"error": "participant not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"kicked": req.ParticipantID})
}
