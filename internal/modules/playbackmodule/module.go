package playbackmodule

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/watchparty/internal/logger"
	"github.com/mantonx/watchparty/internal/modules/modulemanager"
)

// Auto-register the module when imported
func init() {
	Register()
}

const (
	ModuleID   = "system.playback"
	ModuleName = "Playback Planning"
)

// Module exposes the stream planner over HTTP so clients can ask how an
// asset should be played before opening a session.
type Module struct {
	id          string
	name        string
	core        bool
	logger      hclog.Logger
	initialized bool

	handler *Handler
}

// Register registers this module with the module system
func Register() {
	playbackModule := &Module{
		id:   ModuleID,
		name: ModuleName,
		core: true,
	}
	modulemanager.Register(playbackModule)
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
	// The planner is stateless; nothing to migrate.
	return nil
}

// Init initializes the playback module
func (m *Module) Init() error {
	if m.initialized {
		return nil
	}
	m.logger = logger.Named("playbackmodule")
	m.handler = NewHandler(m.logger)
	m.initialized = true
	return nil
}

// RegisterRoutes registers API routes for playback planning
func (m *Module) RegisterRoutes(router *gin.Engine) {
	if !m.initialized {
		return
	}

	api := router.Group("/api/v1/playback")
	{
		api.GET("/decide", m.handler.Decide)
		api.GET("/capabilities", m.handler.Capabilities)
	}
}
