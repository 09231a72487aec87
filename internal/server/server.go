// Package server builds the gin router and wires the module system into it.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mantonx/watchparty/internal/config"
	"github.com/mantonx/watchparty/internal/database"
	"github.com/mantonx/watchparty/internal/events"
	"github.com/mantonx/watchparty/internal/logger"
	"github.com/mantonx/watchparty/internal/modules/modulemanager"

	// Import all modules to trigger their registration
	_ "github.com/mantonx/watchparty/internal/modules/partymodule"
	_ "github.com/mantonx/watchparty/internal/modules/playbackmodule"
	_ "github.com/mantonx/watchparty/internal/modules/timelinemodule"
)

var moduleInitialized bool

// SetupRouter configures and returns the main router.
func SetupRouter(cfg *config.Config) (*gin.Engine, error) {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())
	if cfg.Server.EnableCORS {
		r.Use(corsMiddleware())
	}

	if err := initializeModules(); err != nil {
		return nil, err
	}

	r.GET("/api/health", healthHandler)
	modulemanager.RegisterRoutes(r)
	return r, nil
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	log := logger.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// initializeModules sets up the module system and loads all modules.
func initializeModules() error {
	if moduleInitialized {
		return nil
	}

	db := database.GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	if events.GetGlobalEventBus() == nil {
		bus := events.NewEventBus(logger.Named("events"), 256)
		if err := bus.Start(context.Background()); err != nil {
			return fmt.Errorf("failed to start event bus: %w", err)
		}
		events.SetGlobalEventBus(bus)
	}

	if err := modulemanager.LoadAll(db); err != nil {
		return err
	}

	moduleInitialized = true
	logger.Named("server").Info("module system initialized", "modules", len(modulemanager.ListModules()))
	return nil
}
