package partymodule

import "encoding/json"

// Kind identifies a party protocol message.
type Kind string

const (
	KindJoin         Kind = "join"
	KindLeave        Kind = "leave"
	KindPlay         Kind = "play"
	KindPause        Kind = "pause"
	KindSeek         Kind = "seek"
	KindSyncRequest  Kind = "sync_request"
	KindSyncResponse Kind = "sync_response"
	KindNavigate     Kind = "navigate"
	KindMediaChange  Kind = "media_change"
	KindQueueAdd     Kind = "queue_add"
	KindQueueRemove  Kind = "queue_remove"
	KindNextEpisode  Kind = "next_episode"
	KindRoomState    Kind = "room_state"
	KindRoomClosed   Kind = "room_closed"
	KindKicked       Kind = "kicked"
	KindBuffering    Kind = "buffering"
	KindReady        Kind = "ready"
	KindError        Kind = "error"
)

var knownKinds = map[Kind]bool{
	KindJoin:         true,
	KindLeave:        true,
	KindPlay:         true,
	KindPause:        true,
	KindSeek:         true,
	KindSyncRequest:  true,
	KindSyncResponse: true,
	KindNavigate:     true,
	KindMediaChange:  true,
	KindQueueAdd:     true,
	KindQueueRemove:  true,
	KindNextEpisode:  true,
	KindRoomState:    true,
	KindRoomClosed:   true,
	KindKicked:       true,
	KindBuffering:    true,
	KindReady:        true,
	KindError:        true,
}

// Known reports whether a kind belongs to the protocol. Unknown kinds are
// dropped silently so peers can speak newer dialects.
func (k Kind) Known() bool {
	return knownKinds[k]
}

// Participant is one member of a room as seen in room_state.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Host bool   `json:"host"`
}

// Message is the tagged union carried over the party socket. Only the fields
// relevant to a given kind are populated.
type Message struct {
	Type         Kind          `json:"type"`
	Name         string        `json:"name,omitempty"`
	PositionMs   int64         `json:"position_ms,omitempty"`
	IsPaused     bool          `json:"is_paused,omitempty"`
	AssetID      string        `json:"asset_id,omitempty"`
	Route        string        `json:"route,omitempty"`
	MediaTitle   string        `json:"media_title,omitempty"`
	DurationMs   int64         `json:"duration_ms,omitempty"`
	Index        int           `json:"index,omitempty"`
	Participants []Participant `json:"participants,omitempty"`
	EpisodeQueue []string      `json:"episode_queue,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	ErrorMessage string        `json:"message,omitempty"`
}

// DecodeMessage parses a wire frame. Malformed payloads and unknown kinds
// return (nil, false); a bad frame must never take the channel down.
func DecodeMessage(data []byte) (*Message, bool) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, false
	}
	if !msg.Type.Known() {
		return nil, false
	}
	return &msg, true
}

// EncodeMessage serializes a message for the wire.
func EncodeMessage(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}
