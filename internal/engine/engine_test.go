package engine

import (
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/watchparty/internal/config"
	"github.com/mantonx/watchparty/internal/modules/partymodule"
	"github.com/mantonx/watchparty/internal/modules/playbackmodule"
)

type stubSurface struct {
	mu       sync.Mutex
	position int64
	playing  bool
	loads    []string
	seeks    []int64
}

func (s *stubSurface) Load(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads = append(s.loads, url)
	return nil
}

func (s *stubSurface) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = true
}

func (s *stubSurface) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
}

func (s *stubSurface) SeekTo(positionMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seeks = append(s.seeks, positionMs)
	s.position = positionMs
}

func (s *stubSurface) PositionMs() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

func (s *stubSurface) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *stubSurface) SetRate(float64) {}

type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, req playbackmodule.StreamRequest) (*playbackmodule.StreamSource, error) {
	return &playbackmodule.StreamSource{
		URL:        "http://media.local/" + req.AssetID,
		WireFormat: playbackmodule.WireDirect,
	}, nil
}

type stubTimeline struct {
	mu      sync.Mutex
	reports []playbackmodule.TimelineReport
}

func (s *stubTimeline) Report(_ context.Context, report playbackmodule.TimelineReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report)
	return nil
}

func (s *stubTimeline) events() []playbackmodule.TimelineEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]playbackmodule.TimelineEvent, len(s.reports))
	for i, r := range s.reports {
		out[i] = r.Event
	}
	return out
}

func newTestEngine(t *testing.T) (*Engine, *stubSurface, *stubTimeline) {
	t.Helper()
	cfg := config.Default()
	surface := &stubSurface{}
	timeline := &stubTimeline{}
	e := New(hclog.NewNullLogger(), cfg, surface, stubResolver{}, timeline, nil)
	return e, surface, timeline
}

// seekIndexBlob builds a minimal index: header plus two entries whose
// payloads are "AAAA" and "BB".
func seekIndexBlob() []byte {
	header := make([]byte, 64)
	copy(header, []byte{0x89, 'B', 'I', 'F'})
	binary.LittleEndian.PutUint32(header[12:], 2)

	dataStart := uint32(64 + 2*8)
	entries := make([]byte, 16)
	binary.LittleEndian.PutUint32(entries[0:], 0)
	binary.LittleEndian.PutUint32(entries[4:], dataStart)
	binary.LittleEndian.PutUint32(entries[8:], 10)
	binary.LittleEndian.PutUint32(entries[12:], dataStart+4)

	blob := append(header, entries...)
	blob = append(blob, []byte("AAAABB")...)
	return blob
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

func TestEngine_PlayAndTransport(t *testing.T) {
	e, surface, timeline := newTestEngine(t)

	err := e.Play(context.Background(), playbackmodule.MediaDescriptor{
		AssetID:    "ep-1",
		VideoCodec: "h264",
		AudioCodec: "aac",
		Container:  "mp4",
		DurationMs: 60_000,
	}, playbackmodule.QualityAutomatic)
	require.NoError(t, err)

	session := e.Session()
	require.NotNil(t, session)
	assert.Equal(t, playbackmodule.StatusActive, session.Status)

	e.RequestTransport(playbackmodule.TransportIntent{Kind: playbackmodule.TransportPlay, PositionMs: 1000})
	assert.True(t, surface.Playing())
	assert.Equal(t, []playbackmodule.TimelineEvent{playbackmodule.TimelinePlay}, timeline.events())

	e.StopPlayback()
	assert.Nil(t, e.Session())
}

func TestEngine_ScrubPreview(t *testing.T) {
	blob := seekIndexBlob()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(blob)
	}))
	defer srv.Close()

	e, _, _ := newTestEngine(t)
	require.NoError(t, e.LoadSeekIndex(context.Background(), srv.URL))

	assert.Equal(t, []byte("AAAA"), e.ScrubPreview(0))
	assert.Equal(t, []byte("AAAA"), e.ScrubPreview(9_999))
	assert.Equal(t, []byte("BB"), e.ScrubPreview(10_000))
	assert.Nil(t, e.ScrubPreview(-1))
}

func TestEngine_BadSeekIndexDisablesPreviews(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("this is not an index"))
	}))
	defer srv.Close()

	e, _, _ := newTestEngine(t)
	require.NoError(t, e.LoadSeekIndex(context.Background(), srv.URL))
	assert.Nil(t, e.ScrubPreview(0))
}

func TestEngine_SeekIndexFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	e, _, _ := newTestEngine(t)
	assert.Error(t, e.LoadSeekIndex(context.Background(), srv.URL))
	assert.Nil(t, e.ScrubPreview(0))
}

func TestEngine_RoomRefClearedWhenRoomEnds(t *testing.T) {
	e, _, _ := newTestEngine(t)

	// Dial target never answers; the channel just retries in the
	// background, which is fine for reference bookkeeping.
	e.JoinRoom(testContext(t), RoomRef{
		RoomID: "room-1",
		SelfID: "u2",
		HostID: "u1",
		Name:   "ben",
		WSURL:  "ws://127.0.0.1:1/party",
	})

	ref := e.RoomRef()
	require.NotNil(t, ref)
	assert.Equal(t, "room-1", ref.RoomID)
	assert.True(t, e.InRoom())

	e.Coordinator().HandleMessage(&partymodule.Message{Type: partymodule.KindRoomClosed})

	require.Eventually(t, func() bool {
		return !e.InRoom()
	}, time.Second, 10*time.Millisecond)
}

func TestEngine_LeaveRoomClearsRef(t *testing.T) {
	e, _, _ := newTestEngine(t)

	e.JoinRoom(testContext(t), RoomRef{RoomID: "room-1", SelfID: "u1", HostID: "u1", Name: "amy", WSURL: "ws://127.0.0.1:1/party"})
	require.True(t, e.InRoom())

	e.LeaveRoom()
	assert.False(t, e.InRoom())
	assert.Nil(t, e.RoomRef())
}

type frameRecorder struct {
	mu   sync.Mutex
	sent []partymodule.Message
}

func (f *frameRecorder) Send(msg *partymodule.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, *msg)
}

func (f *frameRecorder) kinds() []partymodule.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]partymodule.Kind, len(f.sent))
	for i, m := range f.sent {
		out[i] = m.Type
	}
	return out
}

func TestEngine_HostPlayAnnouncesMediaChange(t *testing.T) {
	e, _, _ := newTestEngine(t)

	recorder := &frameRecorder{}
	e.Coordinator().Join(testContext(t), recorder, "room-1", "u1", "u1", "amy")
	defer e.Coordinator().Leave()

	err := e.Play(context.Background(), playbackmodule.MediaDescriptor{
		AssetID:    "ep-2",
		VideoCodec: "h264",
		AudioCodec: "aac",
		Container:  "mp4",
		DurationMs: 1_440_000,
	}, playbackmodule.QualityAutomatic)
	require.NoError(t, err)
	defer e.StopPlayback()

	kinds := recorder.kinds()
	require.Contains(t, kinds, partymodule.KindMediaChange)
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	for _, m := range recorder.sent {
		if m.Type == partymodule.KindMediaChange {
			assert.Equal(t, "ep-2", m.AssetID)
			assert.Equal(t, int64(1_440_000), m.DurationMs)
		}
	}
}

func TestEngine_FollowerTransportNotReported(t *testing.T) {
	e, _, timeline := newTestEngine(t)

	e.JoinRoom(testContext(t), RoomRef{RoomID: "room-1", SelfID: "u2", HostID: "u1", Name: "ben", WSURL: "ws://127.0.0.1:1/party"})
	defer e.LeaveRoom()

	e.RequestTransport(playbackmodule.TransportIntent{Kind: playbackmodule.TransportSeek, PositionMs: 500})
	assert.Empty(t, timeline.events())
}
