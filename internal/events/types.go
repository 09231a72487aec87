package events

import (
	"time"
)

// EventType identifies a category of event flowing through the bus.
type EventType string

// Playback engine events
const (
	EventSessionLoading   EventType = "playback.session.loading"
	EventSessionActive    EventType = "playback.session.active"
	EventSessionError     EventType = "playback.session.error"
	EventSessionClosed    EventType = "playback.session.closed"
	EventSessionEscalated EventType = "playback.session.escalated"
)

// Party events
const (
	EventPartyJoined       EventType = "party.joined"
	EventPartyLeft         EventType = "party.left"
	EventPartyRoomClosed   EventType = "party.room.closed"
	EventPartyKicked       EventType = "party.kicked"
	EventPartyReconnecting EventType = "party.reconnecting"
	EventPartyNotice       EventType = "party.notice"
	EventPartyMediaChanged EventType = "party.media.changed"
)

// Event is a single bus message.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventHandler processes a delivered event.
type EventHandler func(Event)

// Subscription ties a handler to a set of event types. Delivery stops once
// the subscription is passed to Unsubscribe.
type Subscription struct {
	ID      string
	Types   []EventType
	handler EventHandler
}

// NewEvent builds an event with the timestamp set.
func NewEvent(eventType EventType, source string, data map[string]interface{}) Event {
	return Event{
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now(),
		Data:      data,
	}
}
