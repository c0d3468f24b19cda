package timeref

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// timeResponse is the wire format of the time endpoint.
type timeResponse struct {
	ServerTimeMS int64 `json:"server_time_ms"`
}

// HTTPTimeSource probes an HTTP endpoint that returns the authoritative server
// time as epoch milliseconds. The call is idempotent and safe to retry.
type HTTPTimeSource struct {
	url    string
	client *http.Client
}

// NewHTTPTimeSource creates a source for the given time endpoint URL.
func NewHTTPTimeSource(url string) *HTTPTimeSource {
	return &HTTPTimeSource{
		url: url,
		// Timeout is handled by the caller's context; the client timeout is a
		// backstop for contexts without deadlines.
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// ServerTime fetches the current authoritative time.
func (s *HTTPTimeSource) ServerTime(ctx context.Context) (time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to build time request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to reach time source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return time.Time{}, fmt.Errorf("time source returned status %d", resp.StatusCode)
	}

	var body timeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return time.Time{}, fmt.Errorf("failed to decode time response: %w", err)
	}

	return time.UnixMilli(body.ServerTimeMS), nil
}

// SourceFunc adapts a function to the TimeSource interface.
type SourceFunc func(ctx context.Context) (time.Time, error)

// ServerTime implements TimeSource.
func (f SourceFunc) ServerTime(ctx context.Context) (time.Time, error) {
	return f(ctx)
}
