package playbackmodule

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/watchparty/internal/config"
)

// Reporter pushes playback positions to the timeline service. It reports on
// a fixed interval while a session runs, immediately on explicit transport
// events, and once more when the session is torn down.
type Reporter struct {
	logger  hclog.Logger
	service TimelineService
	surface PlaybackSurface
	cfg     config.TimelineConfig

	now func() time.Time

	mu           sync.Mutex
	asset        *MediaDescriptor
	lastExplicit time.Time
	cancel       context.CancelFunc
}

// NewReporter creates a timeline reporter for one playback surface.
func NewReporter(logger hclog.Logger, service TimelineService, surface PlaybackSurface, cfg config.TimelineConfig) *Reporter {
	return &Reporter{
		logger:  logger.Named("timeline-reporter"),
		service: service,
		surface: surface,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Start begins periodic reporting for an asset, replacing any previous one.
func (r *Reporter) Start(ctx context.Context, asset MediaDescriptor) {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	r.asset = &asset
	r.cancel = cancel
	r.lastExplicit = time.Time{}
	r.mu.Unlock()

	go r.loop(loopCtx)
}

func (r *Reporter) loop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick sends a periodic timeupdate unless the surface is paused or an
// explicit report landed recently enough to make it redundant.
func (r *Reporter) tick(ctx context.Context) {
	r.mu.Lock()
	asset := r.asset
	suppressed := r.now().Sub(r.lastExplicit) < r.cfg.SuppressWindow
	r.mu.Unlock()

	if asset == nil || suppressed || !r.surface.Playing() {
		return
	}
	r.send(ctx, *asset, TimelineTimeupdate)
}

// ReportEvent sends an immediate report for an explicit transport action and
// opens the suppression window for the periodic loop.
func (r *Reporter) ReportEvent(ctx context.Context, event TimelineEvent) {
	r.mu.Lock()
	asset := r.asset
	r.lastExplicit = r.now()
	r.mu.Unlock()

	if asset == nil {
		return
	}
	r.send(ctx, *asset, event)
}

// Stop ends periodic reporting and sends a final fire-and-forget stopped
// report. The caller never waits on, or learns the outcome of, that report.
func (r *Reporter) Stop() {
	r.mu.Lock()
	asset := r.asset
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.asset = nil
	r.mu.Unlock()

	if asset == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		r.send(ctx, *asset, TimelineStopped)
	}()
}

func (r *Reporter) send(ctx context.Context, asset MediaDescriptor, event TimelineEvent) {
	report := TimelineReport{
		AssetID:    asset.AssetID,
		PositionMs: r.surface.PositionMs(),
		DurationMs: asset.DurationMs,
		Event:      event,
	}
	if err := r.service.Report(ctx, report); err != nil {
		// Reporting is best-effort; playback never stalls on it.
		r.logger.Debug("timeline report failed", "asset_id", asset.AssetID, "event", event, "error", err)
	}
}
