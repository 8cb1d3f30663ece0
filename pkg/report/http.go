package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/koyakei/wind-meter-server/internal/httpc"
)

// HTTPReporter PATCHes readings to a remote endpoint as
// {"<station key>":{"speed_string":"<display>"}}.
type HTTPReporter struct {
	url        string
	stationKey string
	client     *http.Client
}

// NewHTTPReporter creates a reporter for the given endpoint URL and
// station payload key (e.g., "wind_speed_hayama").
func NewHTTPReporter(url, stationKey string) *HTTPReporter {
	return &HTTPReporter{
		url:        url,
		stationKey: stationKey,
		client:     httpc.Client,
	}
}

type speedPayload struct {
	SpeedString string `json:"speed_string"`
}

// Report delivers one display string.
func (r *HTTPReporter) Report(ctx context.Context, display string) error {
	body, err := json.Marshal(map[string]speedPayload{
		r.stationKey: {SpeedString: display},
	})
	if err != nil {
		return fmt.Errorf("report: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("report: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("report: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}
	return nil
}

// Ensure HTTPReporter implements Reporter.
var _ Reporter = (*HTTPReporter)(nil)
