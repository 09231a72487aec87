// Package engine ties the playback pieces together behind one facade: the
// session controller, the timeline reporter, the party coordinator with its
// channel, and the seek-thumbnail index.
package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/watchparty/internal/bif"
	"github.com/mantonx/watchparty/internal/config"
	"github.com/mantonx/watchparty/internal/events"
	"github.com/mantonx/watchparty/internal/modules/partymodule"
	"github.com/mantonx/watchparty/internal/modules/playbackmodule"
)

// maxSeekIndexBytes bounds how much of a seek-index blob we will pull into
// memory.
const maxSeekIndexBytes = 64 << 20

// RoomRef identifies the party room this engine belongs to. It survives
// reconnects and is cleared only when the user leaves or the room ends.
type RoomRef struct {
	RoomID string `json:"room_id"`
	SelfID string `json:"self_id"`
	HostID string `json:"host_id"`
	Name   string `json:"name"`
	WSURL  string `json:"ws_url"`
}

// Engine is the embedding application's single entry point into playback
// coordination. One engine drives one playback surface.
type Engine struct {
	logger hclog.Logger
	cfg    *config.Config
	bus    events.EventBus

	controller  *playbackmodule.Controller
	reporter    *playbackmodule.Reporter
	coordinator *partymodule.Coordinator

	http *http.Client

	mu       sync.Mutex
	channel  *partymodule.Channel
	roomRef  *RoomRef
	index    *bif.Index
	indexBuf []byte
	asset    *playbackmodule.MediaDescriptor
}

// New assembles an engine around a playback surface and the two external
// collaborators.
func New(logger hclog.Logger, cfg *config.Config, surface playbackmodule.PlaybackSurface, resolver playbackmodule.StreamResolver, timeline playbackmodule.TimelineService, bus events.EventBus) *Engine {
	log := logger.Named("engine")

	controller := playbackmodule.NewController(log, surface, resolver, bus, cfg.Playback)
	reporter := playbackmodule.NewReporter(log, timeline, surface, cfg.Timeline)
	coordinator := partymodule.NewCoordinator(log, cfg.Party, surface, controller, bus)

	e := &Engine{
		logger:      log,
		cfg:         cfg,
		bus:         bus,
		controller:  controller,
		reporter:    reporter,
		coordinator: coordinator,
		http:        &http.Client{Timeout: 30 * time.Second},
	}
	coordinator.SetRoomGoneHandler(e.onRoomGone)
	return e
}

// Coordinator exposes the party coordinator, e.g. to install a notifier.
func (e *Engine) Coordinator() *partymodule.Coordinator {
	return e.coordinator
}

// Play starts playback of an asset and begins timeline reporting for it.
// Any previous session is torn down first.
func (e *Engine) Play(ctx context.Context, asset playbackmodule.MediaDescriptor, quality playbackmodule.Quality) error {
	e.mu.Lock()
	e.asset = &asset
	e.index = nil
	e.indexBuf = nil
	e.mu.Unlock()

	if err := e.controller.Start(ctx, asset, quality); err != nil {
		return err
	}
	e.reporter.Start(ctx, asset)

	// When hosting, the whole room follows us onto the new asset. A no-op
	// for followers and solo playback.
	e.coordinator.AnnounceMediaChange(partymodule.MediaChange{
		AssetID:    asset.AssetID,
		DurationMs: asset.DurationMs,
	})
	return nil
}

// StopPlayback tears the session down. The reporter sends its final stopped
// report without blocking.
func (e *Engine) StopPlayback() {
	e.reporter.Stop()
	e.controller.Stop()
}

// RequestTransport is a user transport action. Inside a party it goes
// through the coordinator, which enforces host authority; outside one it
// applies directly. Honored actions are reported to the timeline.
func (e *Engine) RequestTransport(intent playbackmodule.TransportIntent) {
	inRoom := e.InRoom()
	if inRoom {
		e.coordinator.RequestTransport(intent)
		if e.coordinator.Role() != partymodule.RoleHost {
			return
		}
	} else {
		e.controller.ApplyTransport(intent)
	}

	var event playbackmodule.TimelineEvent
	switch intent.Kind {
	case playbackmodule.TransportPlay:
		event = playbackmodule.TimelinePlay
	case playbackmodule.TransportPause:
		event = playbackmodule.TimelinePause
	case playbackmodule.TransportSeek:
		event = playbackmodule.TimelineSeek
	default:
		return
	}
	e.reporter.ReportEvent(context.Background(), event)
}

// HandleSegmentError forwards a segment failure to the session controller.
func (e *Engine) HandleSegmentError(kind playbackmodule.SegmentErrorKind) {
	e.controller.HandleSegmentError(kind)
}

// HandleSurfaceError forwards a surface failure to the session controller.
func (e *Engine) HandleSurfaceError() {
	e.controller.HandleSurfaceError()
}

// Session returns a snapshot of the active playback session, or nil.
func (e *Engine) Session() *playbackmodule.Session {
	return e.controller.Session()
}

// JoinRoom connects to a party room and remembers it as the persisted room
// reference.
func (e *Engine) JoinRoom(ctx context.Context, ref RoomRef) {
	e.mu.Lock()
	if e.channel != nil {
		e.channel.Disconnect()
	}
	channel := partymodule.NewChannel(e.logger, e.cfg.Party, e.coordinator.HandleMessage, e.onChannelState)
	e.channel = channel
	e.roomRef = &ref
	e.mu.Unlock()

	channel.Connect(ctx, ref.WSURL)
	e.coordinator.Join(ctx, channel, ref.RoomID, ref.SelfID, ref.HostID, ref.Name)
	e.logger.Info("joined party room", "room_id", ref.RoomID)
}

// LeaveRoom exits the party gracefully and clears the room reference.
func (e *Engine) LeaveRoom() {
	e.coordinator.Leave()
	e.clearRoom()
}

// RoomRef returns the persisted room reference, or nil when not in a party.
func (e *Engine) RoomRef() *RoomRef {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.roomRef == nil {
		return nil
	}
	ref := *e.roomRef
	return &ref
}

// InRoom reports whether the engine currently belongs to a party room.
func (e *Engine) InRoom() bool {
	return e.RoomRef() != nil
}

// onRoomGone runs when the room closed or we were kicked; either way the
// persisted reference must not survive, or we would rejoin a dead room.
func (e *Engine) onRoomGone(reason string) {
	e.logger.Info("party room ended", "reason", reason)
	e.clearRoom()
}

func (e *Engine) clearRoom() {
	e.mu.Lock()
	channel := e.channel
	e.channel = nil
	e.roomRef = nil
	e.mu.Unlock()
	if channel != nil {
		channel.Disconnect()
	}
}

func (e *Engine) onChannelState(state partymodule.ChannelState) {
	if state != partymodule.ChannelReconnecting || e.bus == nil {
		return
	}
	e.bus.PublishAsync(events.NewEvent(events.EventPartyReconnecting, "engine", nil))
}

// LoadSeekIndex fetches and decodes the seek-thumbnail index for the current
// asset. An unreachable or malformed index only disables scrub previews;
// playback is unaffected.
func (e *Engine) LoadSeekIndex(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build seek index request: %w", err)
	}

	resp, err := e.http.Do(req)
	if err != nil {
		e.logger.Warn("seek index fetch failed, previews disabled", "url", url, "error", err)
		return fmt.Errorf("seek index fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		e.logger.Warn("seek index fetch failed, previews disabled", "url", url, "status", resp.StatusCode)
		return fmt.Errorf("seek index endpoint returned %d", resp.StatusCode)
	}

	buf, err := io.ReadAll(io.LimitReader(resp.Body, maxSeekIndexBytes))
	if err != nil {
		return fmt.Errorf("failed to read seek index: %w", err)
	}

	index := bif.Decode(buf)
	if index == nil {
		e.logger.Warn("seek index undecodable, previews disabled", "url", url, "bytes", len(buf))
		return nil
	}

	e.mu.Lock()
	e.index = index
	e.indexBuf = buf
	e.mu.Unlock()

	e.logger.Info("seek index loaded", "url", url, "entries", len(index.Entries))
	return nil
}

// ScrubPreview returns the thumbnail image covering a timeline position, or
// nil when no index is loaded or the position precedes the first entry.
func (e *Engine) ScrubPreview(timeMs int64) []byte {
	e.mu.Lock()
	index := e.index
	buf := e.indexBuf
	e.mu.Unlock()

	if index == nil {
		return nil
	}
	entry := index.AtOrBefore(timeMs)
	if entry == nil {
		return nil
	}
	return bif.Image(buf, entry)
}

// Close shuts the engine down: leaves any room and stops playback.
func (e *Engine) Close() {
	if e.InRoom() {
		e.LeaveRoom()
	}
	e.StopPlayback()
}
