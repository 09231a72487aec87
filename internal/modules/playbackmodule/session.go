package playbackmodule

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/watchparty/internal/config"
	"github.com/mantonx/watchparty/internal/events"
)

// Session is the mutable record of one playback attempt. At most one live
// session exists per Controller.
type Session struct {
	ID               string
	Asset            MediaDescriptor
	Quality          Quality
	Status           SessionStatus
	Decision         StreamDecision
	ResumePositionMs int64

	ctx       context.Context
	cancel    context.CancelFunc
	segmented SegmentedSession
}

// Controller owns the lifecycle of the active playback session. It is the
// sole writer of the playback surface; the coordinator and reporter only
// observe it or hand it transport intents.
type Controller struct {
	logger   hclog.Logger
	surface  PlaybackSurface
	resolver StreamResolver
	bus      events.EventBus
	cfg      config.PlaybackConfig

	mu              sync.Mutex
	session         *Session
	transitioning   bool
	savedPositionMs int64
}

// NewController creates a session controller bound to one playback surface.
func NewController(logger hclog.Logger, surface PlaybackSurface, resolver StreamResolver, bus events.EventBus, cfg config.PlaybackConfig) *Controller {
	return &Controller{
		logger:   logger.Named("session-controller"),
		surface:  surface,
		resolver: resolver,
		bus:      bus,
		cfg:      cfg,
	}
}

// Start begins playback of an asset, tearing down any previous session
// first. A Start superseded by a newer one never mutates shared state once
// its completion arrives.
func (c *Controller) Start(ctx context.Context, asset MediaDescriptor, quality Quality) error {
	c.mu.Lock()
	c.teardownLocked()

	sessCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		ID:      uuid.New().String(),
		Asset:   asset,
		Quality: quality,
		Status:  StatusLoading,
		ctx:     sessCtx,
		cancel:  cancel,
	}
	s.ResumePositionMs = c.savedPositionMs
	if asset.ResumeOffsetMs > s.ResumePositionMs {
		s.ResumePositionMs = asset.ResumeOffsetMs
	}

	req, decision := c.buildRequest(asset, quality)
	s.Decision = decision
	c.session = s
	c.transitioning = true
	c.mu.Unlock()

	c.publish(events.EventSessionLoading, s)
	c.logger.Info("starting session",
		"session_id", s.ID,
		"asset_id", asset.AssetID,
		"quality", quality,
		"decision", decision.Mode,
		"resume_ms", s.ResumePositionMs)

	src, err := c.resolver.Resolve(sessCtx, req)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != s || sessCtx.Err() != nil {
		// Superseded while loading; the winner owns the surface now.
		c.logger.Debug("discarding superseded session completion", "session_id", s.ID)
		return nil
	}
	if err != nil {
		s.Status = StatusError
		c.transitioning = false
		c.publish(events.EventSessionError, s)
		return fmt.Errorf("failed to resolve stream for %s: %w", asset.AssetID, err)
	}

	if err := c.attachLocked(s, src); err != nil {
		s.Status = StatusError
		c.transitioning = false
		c.publish(events.EventSessionError, s)
		return fmt.Errorf("failed to attach stream for %s: %w", asset.AssetID, err)
	}

	s.Status = StatusActive
	c.transitioning = false
	c.publish(events.EventSessionActive, s)
	return nil
}

// buildRequest maps the requested quality to a stream request. Automatic
// quality consults the planner; any explicit quality always transcodes at
// that resolution.
func (c *Controller) buildRequest(asset MediaDescriptor, quality Quality) (StreamRequest, StreamDecision) {
	if quality != QualityAutomatic {
		return StreamRequest{
				AssetID: asset.AssetID,
				Quality: quality,
			}, StreamDecision{
				Mode:   DecisionTranscode,
				Reason: fmt.Sprintf("explicit quality %s requested", quality),
			}
	}

	decision := DecideStream(asset.VideoCodec, asset.AudioCodec, asset.Container)
	req := StreamRequest{AssetID: asset.AssetID, Quality: QualityAutomatic}
	switch decision.Mode {
	case DecisionDirect:
		req.DirectPlay = true
		req.DirectStream = true
	case DecisionDirectStream:
		req.DirectStream = true
	case DecisionTranscode:
		req.Quality = Quality(c.cfg.TranscodeCapResolution)
	}
	return req, decision
}

// attachLocked binds the resolved stream to the surface. Segmented streams
// go through the surface's segmented loader when it has one; otherwise the
// resume position is applied directly before playback starts.
func (c *Controller) attachLocked(s *Session, src *StreamSource) error {
	if src.WireFormat == WireSegmented {
		if loader, ok := c.surface.(SegmentedLoader); ok {
			seg, err := loader.LoadSegmented(src.URL, s.ResumePositionMs)
			if err != nil {
				return err
			}
			s.segmented = seg
			return nil
		}
		c.logger.Debug("surface lacks segmented support, attaching plain URL", "session_id", s.ID)
	}

	if err := c.surface.Load(src.URL); err != nil {
		return err
	}
	if s.ResumePositionMs > 0 {
		c.surface.SeekTo(s.ResumePositionMs)
	}
	return nil
}

// HandleSegmentError reacts to a segment-level failure in the active
// session. Network failures retry in place, decode failures recover in
// place, anything else escalates.
func (c *Controller) HandleSegmentError(kind SegmentErrorKind) {
	c.mu.Lock()
	s := c.session
	if s == nil || s.Status != StatusActive {
		c.mu.Unlock()
		return
	}

	switch kind {
	case SegmentErrorNetwork:
		c.logger.Warn("transient segment error, retrying in place", "session_id", s.ID)
		if s.segmented != nil {
			seg := s.segmented
			c.mu.Unlock()
			seg.Restart()
			return
		}
		c.mu.Unlock()
		return
	case SegmentErrorDecode:
		if s.segmented != nil {
			seg := s.segmented
			c.mu.Unlock()
			if err := seg.Recover(); err == nil {
				c.logger.Warn("recovered from decode error in place", "session_id", s.ID)
				return
			}
			c.mu.Lock()
		}
	}

	c.escalateLocked()
}

// HandleSurfaceError reacts to a playback-surface-level error. Errors that
// arrive mid-transition belong to the session being replaced and are
// ignored; that guard is what makes escalation one-shot.
func (c *Controller) HandleSurfaceError() {
	c.mu.Lock()
	if c.transitioning || c.session == nil {
		c.mu.Unlock()
		return
	}
	c.escalateLocked()
}

// escalateLocked restarts an automatic-quality session at the fixed degraded
// resolution. Explicit-quality sessions have nowhere to fall back to and go
// to the error state. Releases the lock.
func (c *Controller) escalateLocked() {
	s := c.session
	if s == nil {
		c.mu.Unlock()
		return
	}
	if s.Quality != QualityAutomatic {
		s.Status = StatusError
		c.publish(events.EventSessionError, s)
		c.mu.Unlock()
		c.logger.Error("playback failed with no remaining fallback", "session_id", s.ID, "quality", s.Quality)
		return
	}

	asset := s.Asset
	degraded := Quality(c.cfg.DegradedResolution)
	c.mu.Unlock()

	c.logger.Warn("escalating to degraded resolution", "session_id", s.ID, "resolution", degraded)
	c.publish(events.EventSessionEscalated, s)

	if err := c.Start(context.Background(), asset, degraded); err != nil {
		c.logger.Error("degraded restart failed", "asset_id", asset.AssetID, "error", err)
	}
}

// ApplyTransport applies a transport intent from the party coordinator to
// the surface.
func (c *Controller) ApplyTransport(intent TransportIntent) {
	switch intent.Kind {
	case TransportPlay:
		if intent.PositionMs > 0 {
			c.surface.SeekTo(intent.PositionMs)
		}
		c.surface.Play()
	case TransportPause:
		if intent.PositionMs > 0 {
			c.surface.SeekTo(intent.PositionMs)
		}
		c.surface.Pause()
	case TransportSeek:
		c.surface.SeekTo(intent.PositionMs)
	}
}

// SavePosition records the position to resume from on the next Start.
func (c *Controller) SavePosition(positionMs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.savedPositionMs = positionMs
}

// Session returns a snapshot of the active session, or nil.
func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	snapshot := *c.session
	return &snapshot
}

// Stop tears down the active session and captures the resume position.
// Idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return
	}
	c.savedPositionMs = c.surface.PositionMs()
	c.teardownLocked()
}

// teardownLocked cancels in-flight work and releases the previous session's
// resources. The surface must be fully released before a new session may
// begin loading.
func (c *Controller) teardownLocked() {
	s := c.session
	if s == nil {
		return
	}
	s.cancel()
	if s.segmented != nil {
		s.segmented.Close()
		s.segmented = nil
	}
	if s.Status != StatusError {
		s.Status = StatusClosed
	}
	c.session = nil
	c.transitioning = false
	c.publish(events.EventSessionClosed, s)
}

func (c *Controller) publish(eventType events.EventType, s *Session) {
	if c.bus == nil {
		return
	}
	c.bus.PublishAsync(events.NewEvent(eventType, "playbackmodule", map[string]interface{}{
		"session_id": s.ID,
		"asset_id":   s.Asset.AssetID,
		"decision":   string(s.Decision.Mode),
	}))
}
