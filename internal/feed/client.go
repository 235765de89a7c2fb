package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Default configuration values.
const (
	DefaultTimeout    = 15 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = 1 * time.Second
	DefaultMaxDelay   = 10 * time.Second

	DefaultLeaderboardURL = "https://biggamesapi.io/api/clans?page=1&pageSize=250&sort=Points&sortOrder=desc"
	DefaultTimingURL      = "https://ps99.biggamesapi.io/api/activeClanBattle"
)

// HTTPClient implements LeaderboardFeed and TimingFeed over the upstream
// HTTP API.
type HTTPClient struct {
	leaderboardURL string
	timingURL      string
	client         *http.Client
	maxRetries     int
	retryDelay     time.Duration
	maxDelay       time.Duration
}

var (
	_ LeaderboardFeed = (*HTTPClient)(nil)
	_ TimingFeed      = (*HTTPClient)(nil)
)

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithLeaderboardURL overrides the leaderboard endpoint.
func WithLeaderboardURL(url string) ClientOption {
	return func(c *HTTPClient) {
		c.leaderboardURL = url
	}
}

// WithTimingURL overrides the active battle endpoint.
func WithTimingURL(url string) ClientOption {
	return func(c *HTTPClient) {
		c.timingURL = url
	}
}

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a feed client for the upstream game API.
func NewHTTPClient(opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		leaderboardURL: DefaultLeaderboardURL,
		timingURL:      DefaultTimingURL,
		client:         &http.Client{Timeout: DefaultTimeout},
		maxRetries:     DefaultMaxRetries,
		retryDelay:     DefaultRetryDelay,
		maxDelay:       DefaultMaxDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// leaderboardResponse is the upstream clans payload.
type leaderboardResponse struct {
	Status string         `json:"status"`
	Data   []ClanStanding `json:"data"`
}

// activeBattleResponse is the upstream active battle payload. Start and
// finish are Unix seconds.
type activeBattleResponse struct {
	Status string `json:"status"`
	Data   struct {
		ConfigName string `json:"configName"`
		ConfigData struct {
			StartTime  int64 `json:"StartTime"`
			FinishTime int64 `json:"FinishTime"`
		} `json:"configData"`
	} `json:"data"`
}

// Leaderboard fetches the current top clan standings, sorted by points
// descending upstream.
func (c *HTTPClient) Leaderboard(ctx context.Context) ([]ClanStanding, error) {
	var resp leaderboardResponse
	if err := c.get(ctx, c.leaderboardURL, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "ok" {
		return nil, fmt.Errorf("leaderboard status %q: %w", resp.Status, ErrUnavailable)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("leaderboard payload empty: %w", ErrUnavailable)
	}
	return resp.Data, nil
}

// ActiveBattle fetches the active battle window.
func (c *HTTPClient) ActiveBattle(ctx context.Context) (*BattleTiming, error) {
	var resp activeBattleResponse
	if err := c.get(ctx, c.timingURL, &resp); err != nil {
		return nil, err
	}
	if resp.Data.ConfigName == "" || resp.Data.ConfigData.FinishTime == 0 {
		return nil, fmt.Errorf("active battle payload missing timing fields: %w", ErrUnavailable)
	}
	return &BattleTiming{
		BattleID: resp.Data.ConfigName,
		Start:    time.Unix(resp.Data.ConfigData.StartTime, 0).UTC(),
		Finish:   time.Unix(resp.Data.ConfigData.FinishTime, 0).UTC(),
	}, nil
}

// get performs a GET with retries and exponential backoff.
func (c *HTTPClient) get(ctx context.Context, url string, result any) error {
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		// Only rate limits and server errors are worth retrying; other
		// client errors mean the request itself is wrong.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return fmt.Errorf("client error %d: %s: %w", resp.StatusCode, string(body), ErrUnavailable)
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
			continue
		}

		if err := json.Unmarshal(body, result); err != nil {
			// Malformed payloads are not retried
			return fmt.Errorf("unmarshal response: %v: %w", err, ErrUnavailable)
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %v: %w", lastErr, ErrUnavailable)
}
