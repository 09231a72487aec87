package playbackmodule

import (
	"context"
)

// Quality is either QualityAutomatic or an explicit resolution like "720p".
type Quality string

// QualityAutomatic lets the planner pick the playback strategy.
const QualityAutomatic Quality = "automatic"

// DecisionMode is the planner's chosen playback strategy.
type DecisionMode string

const (
	// DecisionDirect serves the original file unmodified.
	DecisionDirect DecisionMode = "direct"
	// DecisionDirectStream remuxes the container and re-encodes only audio.
	DecisionDirectStream DecisionMode = "directstream"
	// DecisionTranscode fully re-encodes video and audio.
	DecisionTranscode DecisionMode = "transcode"
)

// StreamDecision is derived from codec facts, never stored.
type StreamDecision struct {
	Mode   DecisionMode `json:"mode"`
	Reason string       `json:"reason,omitempty"`
}

// MediaDescriptor captures the immutable facts about one asset. Replaced
// wholesale when the user switches assets.
type MediaDescriptor struct {
	AssetID        string `json:"asset_id"`
	VideoCodec     string `json:"video_codec"`
	AudioCodec     string `json:"audio_codec"`
	Container      string `json:"container"`
	DurationMs     int64  `json:"duration_ms"`
	ResumeOffsetMs int64  `json:"resume_offset_ms"`
}

// WireFormat describes how a resolved stream arrives.
type WireFormat string

const (
	WireDirect       WireFormat = "direct"
	WireSegmented    WireFormat = "segmented"
	WireDirectStream WireFormat = "directstream"
)

// StreamRequest is the narrow contract with the stream resolver collaborator.
type StreamRequest struct {
	AssetID      string  `json:"asset_id"`
	Quality      Quality `json:"quality"`
	DirectPlay   bool    `json:"direct_play"`
	DirectStream bool    `json:"direct_stream"`
}

// MediaFacts carries the codec facts the resolver reports for a stream.
type MediaFacts struct {
	VideoCodec string `json:"video_codec"`
	AudioCodec string `json:"audio_codec"`
	Container  string `json:"container"`
	DurationMs int64  `json:"duration_ms"`
}

// StreamSource is a playable stream returned by the resolver.
type StreamSource struct {
	URL        string     `json:"url"`
	WireFormat WireFormat `json:"wire_format"`
	Facts      MediaFacts `json:"media_facts"`
}

// StreamResolver resolves an asset and quality to a playable URL.
type StreamResolver interface {
	Resolve(ctx context.Context, req StreamRequest) (*StreamSource, error)
}

// PlaybackSurface is the rendering surface the engine drives. The embedding
// application supplies the implementation; the engine is its only writer.
type PlaybackSurface interface {
	Load(url string) error
	Play()
	Pause()
	SeekTo(positionMs int64)
	PositionMs() int64
	Playing() bool
	SetRate(rate float64)
}

// SegmentedSession is an adaptive (segmented) playback session bound to a
// surface, e.g. an MSE-backed player.
type SegmentedSession interface {
	// Restart re-requests segments after a transient network failure.
	Restart()
	// Recover attempts in-place recovery from a decode failure.
	Recover() error
	Close()
}

// SegmentedLoader is implemented by surfaces that can play segmented streams
// natively. Surfaces without it receive the plain URL instead.
type SegmentedLoader interface {
	LoadSegmented(url string, startPositionMs int64) (SegmentedSession, error)
}

// SessionStatus is the session state machine's state.
type SessionStatus string

const (
	StatusIdle    SessionStatus = "idle"
	StatusLoading SessionStatus = "loading"
	StatusActive  SessionStatus = "active"
	StatusError   SessionStatus = "error"
	StatusClosed  SessionStatus = "closed"
)

// SegmentErrorKind classifies a segment-level failure.
type SegmentErrorKind string

const (
	SegmentErrorNetwork SegmentErrorKind = "network"
	SegmentErrorDecode  SegmentErrorKind = "decode"
	SegmentErrorFatal   SegmentErrorKind = "fatal"
)

// TransportKind is a transport-changing action.
type TransportKind string

const (
	TransportPlay  TransportKind = "play"
	TransportPause TransportKind = "pause"
	TransportSeek  TransportKind = "seek"
)

// TransportIntent is one transport action with its target position.
type TransportIntent struct {
	Kind       TransportKind `json:"kind"`
	PositionMs int64         `json:"position_ms"`
}

// TimelineEvent labels what triggered a timeline report.
type TimelineEvent string

const (
	TimelinePlay       TimelineEvent = "play"
	TimelinePause      TimelineEvent = "pause"
	TimelineSeek       TimelineEvent = "seek"
	TimelineTimeupdate TimelineEvent = "timeupdate"
	TimelineStopped    TimelineEvent = "stopped"
)

// TimelineReport is one position update for the timeline collaborator.
type TimelineReport struct {
	AssetID    string        `json:"asset_id"`
	PositionMs int64         `json:"position_ms"`
	DurationMs int64         `json:"duration_ms"`
	Event      TimelineEvent `json:"event"`
}

// TimelineService accepts position updates.
type TimelineService interface {
	Report(ctx context.Context, report TimelineReport) error
}
