// Package modulemanager provides the registry that wires feature modules
// into the database and HTTP router at startup.
package modulemanager

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mantonx/watchparty/internal/logger"
)

// Module defines the interface that all modules must implement
type Module interface {
	ID() string                // Unique identifier for the module
	Name() string              // Display name for the module
	Core() bool                // Whether this is a core module (cannot be disabled)
	Migrate(db *gorm.DB) error // Run database migrations
	Init() error               // Initialize the module
}

// RouteRegistrar is an optional interface for modules that register routes
type RouteRegistrar interface {
	RegisterRoutes(router *gin.Engine)
}

// Shutdowner is an optional interface for modules with teardown work
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// ModuleRegistry manages module registration and initialization
type ModuleRegistry struct {
	mu          sync.RWMutex
	modules     map[string]Module
	initialized bool
}

// Registry is the global module registry
var Registry = &ModuleRegistry{
	modules: make(map[string]Module),
}

// Register adds a module to the global registry
func Register(m Module) {
	Registry.Register(m)
}

// Register adds a module to the registry
func (r *ModuleRegistry) Register(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		logger.Named("modulemanager").Warn("module registered after initialization", "module", m.ID())
	}
	r.modules[m.ID()] = m
}

// LoadAll migrates and initializes all registered modules
func LoadAll(db *gorm.DB) error {
	return Registry.LoadAll(db)
}

// LoadAll migrates and initializes all registered modules in a stable order
func (r *ModuleRegistry) LoadAll(db *gorm.DB) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	log := logger.Named("modulemanager")
	if r.initialized {
		log.Warn("module system already initialized")
		return nil
	}

	for _, m := range r.ordered() {
		if err := m.Migrate(db); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", m.Name(), err)
		}
		if err := m.Init(); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", m.Name(), err)
		}
		log.Info("module loaded", "module", m.ID())
	}

	r.initialized = true
	return nil
}

// RegisterRoutes registers routes for all modules that implement RouteRegistrar
func RegisterRoutes(router *gin.Engine) {
	Registry.RegisterRoutes(router)
}

// RegisterRoutes registers routes for all modules that implement RouteRegistrar
func (r *ModuleRegistry) RegisterRoutes(router *gin.Engine) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.ordered() {
		if rr, ok := m.(RouteRegistrar); ok {
			rr.RegisterRoutes(router)
		}
	}
}

// ShutdownAll tears down modules that implement Shutdowner
func ShutdownAll(ctx context.Context) {
	Registry.ShutdownAll(ctx)
}

// ShutdownAll tears down modules that implement Shutdowner
func (r *ModuleRegistry) ShutdownAll(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.ordered() {
		if s, ok := m.(Shutdowner); ok {
			if err := s.Shutdown(ctx); err != nil {
				logger.Named("modulemanager").Error("module shutdown failed", "module", m.ID(), "error", err)
			}
		}
	}
}

// GetModule returns a module by ID
func GetModule(id string) (Module, bool) {
	return Registry.GetModule(id)
}

// GetModule returns a module by ID
func (r *ModuleRegistry) GetModule(id string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[id]
	return m, ok
}

// ListModules returns all registered modules
func ListModules() []Module {
	return Registry.ListModules()
}

// ListModules returns all registered modules
func (r *ModuleRegistry) ListModules() []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ordered()
}

// ordered returns modules sorted by ID so startup is deterministic.
// Callers must hold at least a read lock.
func (r *ModuleRegistry) ordered() []Module {
	ids := make([]string, 0, len(r.modules))
	for id := range r.modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]Module, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.modules[id])
	}
	return out
}
