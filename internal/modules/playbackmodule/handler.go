package playbackmodule

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
)

// Handler serves planner decisions over HTTP.
type Handler struct {
	logger hclog.Logger
}

// NewHandler creates a playback planning handler.
func NewHandler(logger hclog.Logger) *Handler {
	return &Handler{logger: logger}
}

// Decide returns the playback strategy for a set of codec facts.
func (h *Handler) Decide(c *gin.Context) {
	video := c.Query("video")
	audio := c.Query("audio")
	container := c.Query("container")
	if video == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "video codec is required"})
		return
	}

	decision := DecideStream(video, audio, container)
	h.logger.Debug("planner decision",
		"video_codec", video,
		"audio_codec", audio,
		"container", container,
		"mode", decision.Mode)

	c.JSON(http.StatusOK, decision)
}

// Capabilities lists the media the planner treats as directly playable.
func (h *Handler) Capabilities(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"video_codecs": supportedVideoCodecs,
		"audio_codecs": supportedAudioCodecs,
		"containers":   supportedContainers,
	})
}
