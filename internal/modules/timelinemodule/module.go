package timelinemodule

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/mantonx/watchparty/internal/database"
	"github.com/mantonx/watchparty/internal/logger"
	"github.com/mantonx/watchparty/internal/modules/modulemanager"
)

// Auto-register the module when imported
func init() {
	Register()
}

const (
	ModuleID   = "system.timeline"
	ModuleName = "Timeline Progress"
)

// Module persists playback positions so sessions can resume where they
// stopped.
type Module struct {
	id          string
	name        string
	core        bool
	logger      hclog.Logger
	db          *gorm.DB
	initialized bool

	store   *Store
	handler *Handler
}

// Register registers this module with the module system
func Register() {
	timelineModule := &Module{
		id:   ModuleID,
		name: ModuleName,
		core: true,
	}
	modulemanager.Register(timelineModule)
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

// Migrate handles database schema migrations for playback progress
func (m *Module) Migrate(db *gorm.DB) error {
	m.db = db
	return NewStore(db).Migrate()
}

// Init initializes the timeline module
func (m *Module) Init() error {
	if m.initialized {
		return nil
	}

	if m.db == nil {
		m.db = database.GetDB()
	}
	if m.db == nil {
		return fmt.Errorf("database not initialized")
	}

	m.logger = logger.Named("timelinemodule")
	m.store = NewStore(m.db)
	m.handler = NewHandler(m.logger, m.store)
	m.initialized = true
	return nil
}

// RegisterRoutes registers API routes for timeline progress
func (m *Module) RegisterRoutes(router *gin.Engine) {
	if !m.initialized {
		return
	}

	api := router.Group("/api/v1/timeline")
	{
		api.POST("/", m.handler.Report)
		api.GET("/:assetId", m.handler.GetProgress)
		api.DELETE("/:assetId", m.handler.DeleteProgress)
	}
}

// Store exposes the progress store for in-process collaborators.
func (m *Module) Store() *Store {
	return m.store
}
