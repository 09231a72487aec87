package timelinemodule

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
)

// Handler exposes the progress store over HTTP.
type Handler struct {
	logger hclog.Logger
	store  *Store
}

// NewHandler creates a timeline HTTP handler.
func NewHandler(logger hclog.Logger, store *Store) *Handler {
	return &Handler{logger: logger, store: store}
}

type reportRequest struct {
	AssetID    string `json:"asset_id" binding:"required"`
	PositionMs int64  `json:"position_ms"`
	DurationMs int64  `json:"duration_ms"`
	Event      string `json:"event"`
}

// Report stores one playback position update.
func (h *Handler) Report(c *gin.Context) {
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	if err := h.store.Upsert(req.AssetID, req.PositionMs, req.DurationMs, req.Event); err != nil {
		h.logger.Error("failed to store progress", "asset_id", req.AssetID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store progress"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stored": req.AssetID})
}

// GetProgress returns the saved position for an asset.
func (h *Handler) GetProgress(c *gin.Context) {
	assetID := c.Param("assetId")
	progress, err := h.store.Get(assetID)
	if err != nil {
		h.logger.Error("failed to load progress", "asset_id", assetID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load progress"})
		return
	}
	if progress == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no progress for asset"})
		return
	}
	c.JSON(http.StatusOK, progress)
}

// DeleteProgress clears the saved position for an asset.
func (h *Handler) DeleteProgress(c *gin.Context) {
	assetID := c.Param("assetId")
	if err := h.store.Delete(assetID); err != nil {
		h.logger.Error("failed to delete progress", "asset_id", assetID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete progress"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": assetID})
}
