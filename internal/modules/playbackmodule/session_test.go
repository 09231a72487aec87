package playbackmodule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/watchparty/internal/config"
)

type fakeSurface struct {
	mu       sync.Mutex
	loads    []string
	seeks    []int64
	position int64
	playing  bool
	rate     float64
	loadErr  error
}

func (f *fakeSurface) Load(url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return f.loadErr
	}
	f.loads = append(f.loads, url)
	return nil
}

func (f *fakeSurface) Play() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = true
}

func (f *fakeSurface) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = false
}

func (f *fakeSurface) SeekTo(positionMs int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks = append(f.seeks, positionMs)
	f.position = positionMs
}

func (f *fakeSurface) PositionMs() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position
}

func (f *fakeSurface) Playing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

func (f *fakeSurface) SetRate(rate float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rate = rate
}

func (f *fakeSurface) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.loads)
}

type fakeSegmentedSession struct {
	mu       sync.Mutex
	restarts int
	recovers int
	closes   int

	recoverErr error
}

func (f *fakeSegmentedSession) Restart() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts++
}

func (f *fakeSegmentedSession) Recover() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recovers++
	return f.recoverErr
}

func (f *fakeSegmentedSession) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
}

// segmentedSurface additionally supports segmented playback.
type segmentedSurface struct {
	fakeSurface
	sessions []*fakeSegmentedSession
	startMs  []int64
}

func (s *segmentedSurface) LoadSegmented(url string, startPositionMs int64) (SegmentedSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := &fakeSegmentedSession{}
	s.sessions = append(s.sessions, sess)
	s.startMs = append(s.startMs, startPositionMs)
	return sess, nil
}

type fakeResolver struct {
	mu       sync.Mutex
	requests []StreamRequest
	src      *StreamSource
	err      error

	// When set, the call whose ordinal (1-based) matches blockCall waits
	// for cancellation and returns the context error.
	blockCall int
	started   chan struct{}
	calls     int
}

func (r *fakeResolver) Resolve(ctx context.Context, req StreamRequest) (*StreamSource, error) {
	r.mu.Lock()
	r.calls++
	call := r.calls
	r.requests = append(r.requests, req)
	started := r.started
	r.mu.Unlock()

	if started != nil && call == 1 {
		close(started)
	}
	if call == r.blockCall {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if r.src != nil {
		src := *r.src
		return &src, nil
	}
	return &StreamSource{URL: "http://example/stream/" + req.AssetID, WireFormat: WireDirect}, nil
}

func (r *fakeResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *fakeResolver) request(i int) StreamRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests[i]
}

func testPlaybackConfig() config.PlaybackConfig {
	return config.PlaybackConfig{
		TranscodeCapResolution: "1080p",
		DegradedResolution:     "720p",
	}
}

func directAsset() MediaDescriptor {
	return MediaDescriptor{
		AssetID:    "asset-1",
		VideoCodec: "h264",
		AudioCodec: "aac",
		Container:  "mp4",
		DurationMs: 3_600_000,
	}
}

func newTestController(surface PlaybackSurface, resolver StreamResolver) *Controller {
	return NewController(hclog.NewNullLogger(), surface, resolver, nil, testPlaybackConfig())
}

func TestController_StartDirectPlay(t *testing.T) {
	surface := &fakeSurface{}
	resolver := &fakeResolver{}
	c := newTestController(surface, resolver)

	asset := directAsset()
	asset.ResumeOffsetMs = 5000
	require.NoError(t, c.Start(context.Background(), asset, QualityAutomatic))

	req := resolver.request(0)
	assert.True(t, req.DirectPlay)
	assert.True(t, req.DirectStream)
	assert.Equal(t, QualityAutomatic, req.Quality)

	s := c.Session()
	require.NotNil(t, s)
	assert.Equal(t, StatusActive, s.Status)
	assert.Equal(t, DecisionDirect, s.Decision.Mode)
	assert.Equal(t, int64(5000), s.ResumePositionMs)

	require.Len(t, surface.loads, 1)
	assert.Equal(t, []int64{5000}, surface.seeks)
}

func TestController_AutomaticTranscodeIsCapped(t *testing.T) {
	surface := &fakeSurface{}
	resolver := &fakeResolver{}
	c := newTestController(surface, resolver)

	asset := directAsset()
	asset.VideoCodec = "hevc"
	require.NoError(t, c.Start(context.Background(), asset, QualityAutomatic))

	req := resolver.request(0)
	assert.False(t, req.DirectPlay)
	assert.False(t, req.DirectStream)
	assert.Equal(t, Quality("1080p"), req.Quality)
	assert.Equal(t, DecisionTranscode, c.Session().Decision.Mode)
}

func TestController_ExplicitQualityBypassesPlanner(t *testing.T) {
	surface := &fakeSurface{}
	resolver := &fakeResolver{}
	c := newTestController(surface, resolver)

	// Fully direct-playable asset, but the user forced a resolution.
	require.NoError(t, c.Start(context.Background(), directAsset(), Quality("480p")))

	req := resolver.request(0)
	assert.Equal(t, Quality("480p"), req.Quality)
	assert.False(t, req.DirectPlay)
	assert.False(t, req.DirectStream)
	assert.Equal(t, DecisionTranscode, c.Session().Decision.Mode)
}

func TestController_NewStartSupersedesInFlight(t *testing.T) {
	surface := &fakeSurface{}
	resolver := &fakeResolver{blockCall: 1, started: make(chan struct{})}
	c := newTestController(surface, resolver)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- c.Start(context.Background(), directAsset(), QualityAutomatic)
	}()

	select {
	case <-resolver.started:
	case <-time.After(time.Second):
		t.Fatal("first resolve never started")
	}

	second := directAsset()
	second.AssetID = "asset-2"
	require.NoError(t, c.Start(context.Background(), second, QualityAutomatic))

	select {
	case err := <-firstDone:
		// The superseded start must not report an error or touch state.
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("superseded start never returned")
	}

	s := c.Session()
	require.NotNil(t, s)
	assert.Equal(t, "asset-2", s.Asset.AssetID)
	assert.Equal(t, StatusActive, s.Status)

	require.Equal(t, 1, surface.loadCount())
	assert.Contains(t, surface.loads[0], "asset-2")
}

func TestController_SegmentedAttachUsesLoader(t *testing.T) {
	surface := &segmentedSurface{}
	resolver := &fakeResolver{src: &StreamSource{URL: "http://example/master.m3u8", WireFormat: WireSegmented}}
	c := newTestController(surface, resolver)

	asset := directAsset()
	asset.ResumeOffsetMs = 42_000
	require.NoError(t, c.Start(context.Background(), asset, QualityAutomatic))

	require.Len(t, surface.sessions, 1)
	assert.Equal(t, []int64{42_000}, surface.startMs)
	// The loader owns positioning; no direct seek happens.
	assert.Empty(t, surface.seeks)
}

func TestController_SegmentedFallsBackWithoutLoader(t *testing.T) {
	surface := &fakeSurface{}
	resolver := &fakeResolver{src: &StreamSource{URL: "http://example/master.m3u8", WireFormat: WireSegmented}}
	c := newTestController(surface, resolver)

	require.NoError(t, c.Start(context.Background(), directAsset(), QualityAutomatic))
	assert.Equal(t, 1, surface.loadCount())
}

func TestController_SegmentErrorHandling(t *testing.T) {
	surface := &segmentedSurface{}
	resolver := &fakeResolver{src: &StreamSource{URL: "http://example/master.m3u8", WireFormat: WireSegmented}}
	c := newTestController(surface, resolver)

	require.NoError(t, c.Start(context.Background(), directAsset(), QualityAutomatic))
	require.Len(t, surface.sessions, 1)
	seg := surface.sessions[0]

	c.HandleSegmentError(SegmentErrorNetwork)
	assert.Equal(t, 1, seg.restarts)
	assert.Equal(t, 1, resolver.callCount())

	c.HandleSegmentError(SegmentErrorDecode)
	assert.Equal(t, 1, seg.recovers)
	assert.Equal(t, 1, resolver.callCount())
}

func TestController_FailedDecodeRecoveryEscalates(t *testing.T) {
	surface := &segmentedSurface{}
	resolver := &fakeResolver{src: &StreamSource{URL: "http://example/master.m3u8", WireFormat: WireSegmented}}
	c := newTestController(surface, resolver)

	require.NoError(t, c.Start(context.Background(), directAsset(), QualityAutomatic))
	surface.mu.Lock()
	surface.sessions[0].recoverErr = errors.New("decode wedged")
	surface.mu.Unlock()

	c.HandleSegmentError(SegmentErrorDecode)

	// Escalation restarted the session at the degraded resolution.
	require.Equal(t, 2, resolver.callCount())
	assert.Equal(t, Quality("720p"), resolver.request(1).Quality)
	assert.Equal(t, Quality("720p"), c.Session().Quality)
}

func TestController_SurfaceErrorEscalatesOnce(t *testing.T) {
	surface := &fakeSurface{}
	resolver := &fakeResolver{}
	c := newTestController(surface, resolver)

	require.NoError(t, c.Start(context.Background(), directAsset(), QualityAutomatic))

	c.HandleSurfaceError()
	require.Equal(t, 2, resolver.callCount())
	assert.Equal(t, Quality("720p"), resolver.request(1).Quality)

	// The degraded session's quality is explicit, so a second surface
	// error cannot escalate again.
	c.HandleSurfaceError()
	assert.Equal(t, 2, resolver.callCount())
	assert.Equal(t, StatusError, c.Session().Status)
}

func TestController_SurfaceErrorIgnoredMidTransition(t *testing.T) {
	surface := &fakeSurface{}
	resolver := &fakeResolver{blockCall: 1, started: make(chan struct{})}
	c := newTestController(surface, resolver)

	done := make(chan error, 1)
	go func() {
		done <- c.Start(context.Background(), directAsset(), QualityAutomatic)
	}()
	select {
	case <-resolver.started:
	case <-time.After(time.Second):
		t.Fatal("resolve never started")
	}

	c.HandleSurfaceError()
	assert.Equal(t, 1, resolver.callCount())

	c.Stop()
	<-done
}

func TestController_StopIsIdempotentAndCapturesPosition(t *testing.T) {
	surface := &fakeSurface{}
	resolver := &fakeResolver{}
	c := newTestController(surface, resolver)

	require.NoError(t, c.Start(context.Background(), directAsset(), QualityAutomatic))
	surface.SeekTo(123_000)

	c.Stop()
	assert.Nil(t, c.Session())
	c.Stop()

	// The captured position feeds the next session's resume point.
	require.NoError(t, c.Start(context.Background(), directAsset(), QualityAutomatic))
	assert.Equal(t, int64(123_000), c.Session().ResumePositionMs)
}

func TestController_StopClosesSegmentedSession(t *testing.T) {
	surface := &segmentedSurface{}
	resolver := &fakeResolver{src: &StreamSource{URL: "http://example/master.m3u8", WireFormat: WireSegmented}}
	c := newTestController(surface, resolver)

	require.NoError(t, c.Start(context.Background(), directAsset(), QualityAutomatic))
	c.Stop()

	assert.Equal(t, 1, surface.sessions[0].closes)
}

func TestController_ApplyTransport(t *testing.T) {
	surface := &fakeSurface{}
	c := newTestController(surface, &fakeResolver{})

	c.ApplyTransport(TransportIntent{Kind: TransportPlay, PositionMs: 9000})
	assert.True(t, surface.Playing())
	assert.Equal(t, int64(9000), surface.PositionMs())

	c.ApplyTransport(TransportIntent{Kind: TransportPause, PositionMs: 10_000})
	assert.False(t, surface.Playing())
	assert.Equal(t, int64(10_000), surface.PositionMs())

	c.ApplyTransport(TransportIntent{Kind: TransportSeek, PositionMs: 0})
	assert.Equal(t, int64(0), surface.PositionMs())
}
