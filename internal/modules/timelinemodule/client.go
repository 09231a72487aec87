package timelinemodule

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/watchparty/internal/modules/playbackmodule"
)

// Client reports playback positions to a remote timeline endpoint. It
// implements playbackmodule.TimelineService for engines that run apart from
// the server.
type Client struct {
	logger   hclog.Logger
	endpoint string
	http     *http.Client
}

// NewClient creates a timeline client for an endpoint URL.
func NewClient(logger hclog.Logger, endpoint string) *Client {
	return &Client{
		logger:   logger.Named("timeline-client"),
		endpoint: endpoint,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Report posts one timeline report.
func (c *Client) Report(ctx context.Context, report playbackmodule.TimelineReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode timeline report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build timeline request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("timeline request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("timeline endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// LocalService adapts a Store to playbackmodule.TimelineService so an engine
// embedded in the server can skip the HTTP hop.
type LocalService struct {
	store *Store
}

// NewLocalService wraps a store as a timeline service.
func NewLocalService(store *Store) *LocalService {
	return &LocalService{store: store}
}

// Report persists one timeline report directly.
func (s *LocalService) Report(_ context.Context, report playbackmodule.TimelineReport) error {
	return s.store.Upsert(report.AssetID, report.PositionMs, report.DurationMs, string(report.Event))
}
