package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/statlens/statlens-worker/internal/models"
)

// Snapshot is the host application's raw payload: the recent sample window
// plus the optional pre-aggregated summary.
type Snapshot struct {
	Metrics []models.Sample `json:"metrics"`
	Summary *models.Summary `json:"summary,omitempty"`
}

// MetricsClient fetches performance snapshots from the host application.
type MetricsClient struct {
	baseURL      string
	snapshotPath string
	httpClient   *http.Client
}

// NewMetricsClient constructs a client targeting the configured host.
func NewMetricsClient(baseURL, snapshotPath string, timeout time.Duration) *MetricsClient {
	return &MetricsClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		snapshotPath: snapshotPath,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchSnapshot retrieves the current sample window and summary.
func (c *MetricsClient) FetchSnapshot(ctx context.Context) (Snapshot, error) {
	if c == nil {
		return Snapshot{}, fmt.Errorf("metrics client not initialised")
	}
	if c.baseURL == "" {
		return Snapshot{}, fmt.Errorf("metrics base URL not configured")
	}

	var snap Snapshot
	if err := c.getJSON(ctx, c.snapshotURL(), &snap); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot request failed: %w", err)
	}
	if len(snap.Metrics) == 0 {
		return Snapshot{}, fmt.Errorf("snapshot contained no samples")
	}
	return snap, nil
}

func (c *MetricsClient) snapshotURL() string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + c.snapshotPath
	}
	u.Path = path.Join(u.Path, c.snapshotPath)
	return u.String()
}

func (c *MetricsClient) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, rawURL)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
