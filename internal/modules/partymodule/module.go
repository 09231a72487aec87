package partymodule

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/mantonx/watchparty/internal/logger"
	"github.com/mantonx/watchparty/internal/modules/modulemanager"
)

// Auto-register the module when imported
func init() {
	Register()
}

const (
	ModuleID   = "system.party"
	ModuleName = "Watch Party"
)

// Module hosts watch party rooms and their websocket endpoint.
type Module struct {
	id          string
	name        string
	core        bool
	logger      hclog.Logger
	initialized bool

	hub     *Hub
	handler *Handler
}

// Register registers this module with the module system
func Register() {
	partyModule := &Module{
		id:   ModuleID,
		name: ModuleName,
		core: true,
	}
	modulemanager.Register(partyModule)
}

// ID returns the module ID
func (m *Module) ID() string {
	return m.id
}

// Name returns the module name
func (m *Module) Name() string {
	return m.name
}

// Core returns whether this is a core module
func (m *Module) Core() bool {
	return m.core
}

// Migrate handles database schema migrations
func (m *Module) Migrate(db *gorm.DB) error {
	// Rooms are ephemeral and live in memory only.
	return nil
}

// Init initializes the party module
func (m *Module) Init() error {
	if m.initialized {
		return nil
	}
	m.logger = logger.Named("partymodule")
	m.hub = NewHub(m.logger)
	m.handler = NewHandler(m.logger, m.hub)
	m.initialized = true
	return nil
}

// RegisterRoutes registers API routes for party rooms
func (m *Module) RegisterRoutes(router *gin.Engine) {
	if !m.initialized {
		return
	}

	api := router.Group("/api/v1/party")
	{
		api.POST("/rooms", m.handler.CreateRoom)
		api.GET("/rooms/:id", m.handler.GetRoom)
		api.GET("/rooms/:id/ws", m.handler.Connect)
		api.POST("/rooms/:id/kick", m.handler.Kick)
	}
}

// Shutdown closes every live room.
func (m *Module) Shutdown(ctx context.Context) error {
	if m.hub != nil {
		m.hub.CloseAll()
	}
	return nil
}

// Hub exposes the room registry, e.g. for health reporting.
func (m *Module) Hub() *Hub {
	return m.hub
}
