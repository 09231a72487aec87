package partymodule

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/watchparty/internal/config"
	"github.com/mantonx/watchparty/internal/events"
	"github.com/mantonx/watchparty/internal/modules/playbackmodule"
)

// Role is the party role of the local participant.
type Role string

const (
	RoleHost     Role = "host"
	RoleFollower Role = "follower"
)

// Transport is the outbound half of a party connection. *Channel satisfies
// it; tests substitute a recorder.
type Transport interface {
	Send(msg *Message)
}

// TransportApplier receives transport intents the coordinator decides to
// honor. The session controller implements it.
type TransportApplier interface {
	ApplyTransport(intent playbackmodule.TransportIntent)
}

// MediaChange is a host-initiated media switch as seen by a follower. Route
// is set for navigate messages, the media fields for media_change.
type MediaChange struct {
	AssetID    string
	Title      string
	DurationMs int64
	Route      string
}

// syncRef is the host's last announced transport state, the reference the
// follower drift loop steers toward. Last received wins.
type syncRef struct {
	positionMs int64
	isPaused   bool
	assetID    string
	receivedAt time.Time
}

// Coordinator applies party semantics on top of a channel: the host is the
// single source of transport truth, followers converge on it by nudging
// their playback rate and hard-seeking only when far adrift.
type Coordinator struct {
	logger  hclog.Logger
	cfg     config.PartyConfig
	surface playbackmodule.PlaybackSurface
	applier TransportApplier
	bus     events.EventBus

	// notify surfaces a local-only notice to the user, e.g. when a
	// follower tries to control playback.
	notify func(notice string)
	// onRoomGone runs when the room ends for this participant (closed or
	// kicked) so the embedder can clear any persisted room reference.
	onRoomGone func(reason string)
	// onMediaChange runs on a follower when the host switches media, so
	// the embedder can restart playback on the new asset.
	onMediaChange func(change MediaChange)
	// onNextEpisode runs on a follower when the host advances the queue.
	onNextEpisode func()

	now func() time.Time

	mu           sync.Mutex
	transport    Transport
	roomID       string
	selfID       string
	hostID       string
	name         string
	ref          *syncRef
	participants []Participant
	queue        []string
	currentRate  float64
	cancel       context.CancelFunc
}

// NewCoordinator creates a coordinator bound to one playback surface.
func NewCoordinator(logger hclog.Logger, cfg config.PartyConfig, surface playbackmodule.PlaybackSurface, applier TransportApplier, bus events.EventBus) *Coordinator {
	return &Coordinator{
		logger:      logger.Named("party-coordinator"),
		cfg:         cfg,
		surface:     surface,
		applier:     applier,
		bus:         bus,
		now:         time.Now,
		currentRate: 1.0,
	}
}

// SetNotifier installs the local notice callback.
func (co *Coordinator) SetNotifier(fn func(notice string)) {
	co.mu.Lock()
	defer co.mu.Unlock()
	co.notify = fn
}

// SetRoomGoneHandler installs the callback for room closure and kicks.
func (co *Coordinator) SetRoomGoneHandler(fn func(reason string)) {
	co.mu.Lock()
	defer co.mu.Unlock()
	co.onRoomGone = fn
}

// SetMediaChangeHandler installs the callback for host media switches.
func (co *Coordinator) SetMediaChangeHandler(fn func(change MediaChange)) {
	co.mu.Lock()
	defer co.mu.Unlock()
	co.onMediaChange = fn
}

// SetNextEpisodeHandler installs the callback for host queue advances.
func (co *Coordinator) SetNextEpisodeHandler(fn func()) {
	co.mu.Lock()
	defer co.mu.Unlock()
	co.onNextEpisode = fn
}

// Join enters a room over an established transport. The local role is
// derived from the host ID, never stored independently: whoever the room
// names as host is host.
func (co *Coordinator) Join(ctx context.Context, transport Transport, roomID, selfID, hostID, name string) {
	co.mu.Lock()
	if co.cancel != nil {
		co.cancel()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	co.transport = transport
	co.roomID = roomID
	co.selfID = selfID
	co.hostID = hostID
	co.name = name
	co.ref = nil
	co.cancel = cancel
	co.mu.Unlock()

	transport.Send(&Message{Type: KindJoin, Name: name})
	co.publish(events.EventPartyJoined, map[string]interface{}{"room_id": roomID, "role": string(co.Role())})
	co.logger.Info("joined room", "room_id", roomID, "role", co.Role())

	if co.Role() == RoleHost {
		go co.syncLoop(loopCtx)
	} else {
		transport.Send(&Message{Type: KindSyncRequest})
		go co.driftLoop(loopCtx)
	}
}

// Role derives the local role from the room's host ID.
func (co *Coordinator) Role() Role {
	co.mu.Lock()
	defer co.mu.Unlock()
	if co.selfID != "" && co.selfID == co.hostID {
		return RoleHost
	}
	return RoleFollower
}

// RequestTransport is the user's attempt to control playback. The host
// applies it locally and broadcasts; a follower's attempt goes nowhere and
// produces a local notice instead.
func (co *Coordinator) RequestTransport(intent playbackmodule.TransportIntent) {
	if !co.requireHost("only the host controls playback") {
		return
	}

	co.applier.ApplyTransport(intent)

	msg := &Message{PositionMs: intent.PositionMs}
	switch intent.Kind {
	case playbackmodule.TransportPlay:
		msg.Type = KindPlay
	case playbackmodule.TransportPause:
		msg.Type = KindPause
	case playbackmodule.TransportSeek:
		msg.Type = KindSeek
	default:
		return
	}
	co.send(msg)
}

// AnnounceMediaChange broadcasts the host's media switch to the room. Media
// selection is host authority; on a follower this is a silent no-op since
// followers switch media in reaction to the host, never on their own
// initiative.
func (co *Coordinator) AnnounceMediaChange(change MediaChange) {
	if co.Role() != RoleHost {
		return
	}
	co.SetCurrentAsset(change.AssetID)
	co.send(&Message{
		Type:       KindMediaChange,
		AssetID:    change.AssetID,
		MediaTitle: change.Title,
		DurationMs: change.DurationMs,
	})
}

// RequestQueueAdd appends an asset to the room's episode queue. Queue
// curation is host authority; a follower's attempt only produces a local
// notice.
func (co *Coordinator) RequestQueueAdd(assetID string) {
	if !co.requireHost("only the host curates the queue") {
		return
	}
	co.send(&Message{Type: KindQueueAdd, AssetID: assetID})
}

// RequestQueueRemove removes the queue entry at an index. Host only.
func (co *Coordinator) RequestQueueRemove(index int) {
	if !co.requireHost("only the host curates the queue") {
		return
	}
	co.send(&Message{Type: KindQueueRemove, Index: index})
}

// RequestNextEpisode advances the room to the next queued episode. Host
// only.
func (co *Coordinator) RequestNextEpisode() {
	if !co.requireHost("only the host curates the queue") {
		return
	}
	co.send(&Message{Type: KindNextEpisode})
}

// requireHost gates a host-only user action, surfacing a local notice to
// followers.
func (co *Coordinator) requireHost(notice string) bool {
	if co.Role() == RoleHost {
		return true
	}
	co.mu.Lock()
	notify := co.notify
	co.mu.Unlock()
	co.logger.Debug("rejecting host-only request from follower")
	if notify != nil {
		notify(notice)
	}
	return false
}

// HandleMessage processes one inbound room message. Wire it as the
// channel's message callback.
func (co *Coordinator) HandleMessage(msg *Message) {
	switch msg.Type {
	case KindPlay:
		co.applyFromHost(playbackmodule.TransportIntent{Kind: playbackmodule.TransportPlay, PositionMs: msg.PositionMs})
	case KindPause:
		co.applyFromHost(playbackmodule.TransportIntent{Kind: playbackmodule.TransportPause, PositionMs: msg.PositionMs})
	case KindSeek:
		co.applyFromHost(playbackmodule.TransportIntent{Kind: playbackmodule.TransportSeek, PositionMs: msg.PositionMs})
	case KindSyncRequest:
		if co.Role() == RoleHost {
			co.sendSync()
		}
	case KindSyncResponse:
		co.mu.Lock()
		if co.transport == nil {
			// Stale frame from a room we already left.
			co.mu.Unlock()
			return
		}
		co.ref = &syncRef{
			positionMs: msg.PositionMs,
			isPaused:   msg.IsPaused,
			assetID:    msg.AssetID,
			receivedAt: co.now(),
		}
		co.mu.Unlock()
	case KindMediaChange:
		co.handleMediaChange(MediaChange{
			AssetID:    msg.AssetID,
			Title:      msg.MediaTitle,
			DurationMs: msg.DurationMs,
		})
	case KindNavigate:
		co.handleMediaChange(MediaChange{AssetID: msg.AssetID, Route: msg.Route})
	case KindNextEpisode:
		if co.Role() == RoleHost {
			return
		}
		co.mu.Lock()
		handler := co.onNextEpisode
		co.mu.Unlock()
		if handler != nil {
			handler()
		}
	case KindRoomState:
		co.mu.Lock()
		co.participants = msg.Participants
		co.queue = msg.EpisodeQueue
		co.mu.Unlock()
	case KindRoomClosed:
		co.roomGone("room closed")
	case KindKicked:
		reason := msg.Reason
		if reason == "" {
			reason = "removed from room"
		}
		co.publish(events.EventPartyKicked, map[string]interface{}{"reason": reason})
		co.roomGone(reason)
	case KindError:
		co.logger.Warn("room error", "message", msg.ErrorMessage)
	}
}

// handleMediaChange reacts to a host media switch on a follower. The host
// ignores echoes of its own announcements.
func (co *Coordinator) handleMediaChange(change MediaChange) {
	if co.Role() == RoleHost {
		return
	}
	co.mu.Lock()
	if co.ref != nil {
		co.ref.assetID = change.AssetID
	}
	handler := co.onMediaChange
	co.mu.Unlock()

	co.logger.Info("host switched media", "asset_id", change.AssetID, "route", change.Route)
	co.publish(events.EventPartyMediaChanged, map[string]interface{}{
		"asset_id": change.AssetID,
		"title":    change.Title,
		"route":    change.Route,
	})
	if handler != nil {
		handler(change)
	}
}

// applyFromHost applies a host-originated transport message. The host
// ignores echoes of its own broadcasts.
func (co *Coordinator) applyFromHost(intent playbackmodule.TransportIntent) {
	if co.Role() == RoleHost {
		return
	}
	co.applier.ApplyTransport(intent)
}

// syncLoop periodically broadcasts the host's transport state.
func (co *Coordinator) syncLoop(ctx context.Context) {
	ticker := time.NewTicker(co.cfg.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			co.sendSync()
		}
	}
}

func (co *Coordinator) sendSync() {
	co.mu.Lock()
	assetID := ""
	if co.ref != nil {
		assetID = co.ref.assetID
	}
	co.mu.Unlock()

	co.send(&Message{
		Type:       KindSyncResponse,
		PositionMs: co.surface.PositionMs(),
		IsPaused:   !co.surface.Playing(),
		AssetID:    assetID,
	})
}

// SetCurrentAsset records the asset the host is playing so sync snapshots
// can carry it.
func (co *Coordinator) SetCurrentAsset(assetID string) {
	co.mu.Lock()
	defer co.mu.Unlock()
	if co.ref == nil {
		co.ref = &syncRef{receivedAt: co.now()}
	}
	co.ref.assetID = assetID
}

// driftLoop periodically steers the follower toward the host's reference
// position.
func (co *Coordinator) driftLoop(ctx context.Context) {
	ticker := time.NewTicker(co.cfg.DriftInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			co.driftTick()
		}
	}
}

// driftTick compares local position against the extrapolated host position
// and corrects: a hard seek beyond the hard limit, a gentle rate nudge
// between the limits, normal rate inside the soft band.
func (co *Coordinator) driftTick() {
	co.mu.Lock()
	ref := co.ref
	var expected int64
	if ref != nil {
		expected = ref.positionMs
		if !ref.isPaused {
			expected += co.now().Sub(ref.receivedAt).Milliseconds()
		}
	}
	co.mu.Unlock()

	// Only a playing surface can drift; a paused follower stays put.
	if ref == nil || !co.surface.Playing() {
		return
	}

	drift := co.surface.PositionMs() - expected

	switch {
	case drift > co.cfg.DriftHardLimitMs || drift < -co.cfg.DriftHardLimitMs:
		co.logger.Info("hard drift correction", "drift_ms", drift)
		co.surface.SeekTo(expected)
		co.setRate(1.0)
	case drift > co.cfg.DriftSoftLimitMs:
		co.setRate(co.cfg.SlowRate)
	case drift < -co.cfg.DriftSoftLimitMs:
		co.setRate(co.cfg.FastRate)
	default:
		co.setRate(1.0)
	}
}

func (co *Coordinator) setRate(rate float64) {
	co.mu.Lock()
	changed := co.currentRate != rate
	co.currentRate = rate
	co.mu.Unlock()
	if changed {
		co.logger.Debug("adjusting playback rate", "rate", rate)
		co.surface.SetRate(rate)
	}
}

// Participants returns the last known room membership.
func (co *Coordinator) Participants() []Participant {
	co.mu.Lock()
	defer co.mu.Unlock()
	out := make([]Participant, len(co.participants))
	copy(out, co.participants)
	return out
}

// Queue returns the room's episode queue.
func (co *Coordinator) Queue() []string {
	co.mu.Lock()
	defer co.mu.Unlock()
	out := make([]string, len(co.queue))
	copy(out, co.queue)
	return out
}

// Leave exits the room gracefully, restoring normal playback rate.
func (co *Coordinator) Leave() {
	co.mu.Lock()
	transport := co.transport
	name := co.name
	roomID := co.roomID
	co.mu.Unlock()
	if transport != nil {
		transport.Send(&Message{Type: KindLeave, Name: name})
	}
	co.publish(events.EventPartyLeft, map[string]interface{}{"room_id": roomID})
	co.teardown()
}

// roomGone handles the room ending out from under us.
func (co *Coordinator) roomGone(reason string) {
	co.mu.Lock()
	handler := co.onRoomGone
	co.mu.Unlock()

	co.logger.Info("room gone", "reason", reason)
	co.publish(events.EventPartyRoomClosed, map[string]interface{}{"reason": reason})
	co.teardown()
	if handler != nil {
		handler(reason)
	}
}

func (co *Coordinator) teardown() {
	co.mu.Lock()
	if co.cancel != nil {
		co.cancel()
		co.cancel = nil
	}
	co.transport = nil
	co.ref = nil
	co.roomID = ""
	co.hostID = ""
	co.mu.Unlock()

	// A follower may have been nudged off normal speed; always restore.
	co.setRate(1.0)
}

func (co *Coordinator) send(msg *Message) {
	co.mu.Lock()
	transport := co.transport
	co.mu.Unlock()
	if transport != nil {
		transport.Send(msg)
	}
}

func (co *Coordinator) publish(eventType events.EventType, data map[string]interface{}) {
	if co.bus == nil {
		return
	}
	co.bus.PublishAsync(events.NewEvent(eventType, "partymodule", data))
}
