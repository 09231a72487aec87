// Package logger owns the process-wide hclog root logger.
package logger

import (
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"
)

var (
	mu   sync.RWMutex
	root hclog.Logger = hclog.New(&hclog.LoggerOptions{
		Name:  "watchparty",
		Level: hclog.Info,
	})
)

// Setup rebuilds the root logger from configuration. Call once at startup
// before any component grabs a named logger.
func Setup(level string, jsonFormat bool) {
	mu.Lock()
	defer mu.Unlock()

	root = hclog.New(&hclog.LoggerOptions{
		Name:       "watchparty",
		Level:      hclog.LevelFromString(level),
		JSONFormat: jsonFormat,
		Output:     os.Stderr,
	})
}

// Root returns the root logger.
func Root() hclog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Named returns a child logger for a component.
func Named(name string) hclog.Logger {
	return Root().Named(name)
}
