package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/mantonx/watchparty/internal/modules/modulemanager"
)

var startTime = time.Now()

// healthHandler reports process health plus basic host stats.
func healthHandler(c *gin.Context) {
	health := gin.H{
		"status":    "ok",
		"uptime":    time.Since(startTime).String(),
		"timestamp": time.Now().UTC(),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		health["memory_used_percent"] = vm.UsedPercent
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		health["cpu_percent"] = percents[0]
	}

	modules := modulemanager.ListModules()
	ids := make([]string, 0, len(modules))
	for _, m := range modules {
		ids = append(ids, m.ID())
	}
	health["modules"] = ids

	c.JSON(http.StatusOK, health)
}
