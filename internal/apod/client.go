// Package apod fetches and normalizes daily astronomy metadata records.
package apod

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/skywatch/apod-pipeline/internal/domain"
	"github.com/skywatch/apod-pipeline/internal/logger"
)

// maxResponseBodyBytes limits the size of fetched responses.
const maxResponseBodyBytes = 1 * 1024 * 1024 // 1 MB

// apodPath is the metadata endpoint path under the API base URL.
const apodPath = "/planetary/apod"

// RawRecord is the wire shape of one metadata API response.
// Fields the normalizer does not select are intentionally absent.
type RawRecord struct {
	Date        string `json:"date"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Explanation string `json:"explanation"`
	MediaType   string `json:"media_type"`
	HDURL       string `json:"hdurl,omitempty"`
	Copyright   string `json:"copyright,omitempty"`
}

// ClientConfig configures the metadata API client.
type ClientConfig struct {
	// BaseURL is the API root, e.g. https://api.nasa.gov.
	BaseURL string
	// APIKey is the access credential sent with every request.
	APIKey string
	// Timeout bounds each request.
	Timeout time.Duration
	// RawDumpPath, when non-empty, receives a copy of each raw response.
	RawDumpPath string
}

// Client fetches one date's record from the metadata endpoint.
// Fetch has no side effects beyond the optional raw dump and is safe to call
// repeatedly for the same date.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	rawDumpPath string
	log         logger.Logger
	now         func() time.Time
}

// NewClient creates a new metadata API client.
func NewClient(cfg ClientConfig, log logger.Logger) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		rawDumpPath: cfg.RawDumpPath,
		log:         log,
		now:         time.Now,
	}
}

// Fetch retrieves the record for the given calendar date.
// Network failures, timeouts, 429 and 5xx responses are transient; other
// non-2xx responses, undecodable bodies and input contract violations are
// permanent.
func (c *Client) Fetch(ctx context.Context, date time.Time) (*RawRecord, error) {
	if c.apiKey == "" {
		return nil, &FetchError{Kind: KindPermanent, Err: errors.New("empty API credential")}
	}
	if date.After(c.now().AddDate(0, 0, 1)) {
		// The endpoint publishes at most one day ahead of UTC midnight.
		return nil, &FetchError{
			Kind: KindPermanent,
			Err:  fmt.Errorf("date %s is in the future", date.Format(domain.DateFormat)),
		}
	}

	reqURL := c.requestURL(date)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, &FetchError{Kind: KindPermanent, Err: fmt.Errorf("build request: %w", err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and connection errors are retryable by contract.
		return nil, &FetchError{Kind: KindTransient, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return nil, &FetchError{Kind: KindTransient, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp.StatusCode)
	}

	var raw RawRecord
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &FetchError{Kind: KindPermanent, Err: fmt.Errorf("decode response: %w", err)}
	}

	if c.rawDumpPath != "" {
		c.dumpRaw(body)
	}

	c.log.Debug("Fetched metadata record",
		logger.String("date", raw.Date),
		logger.String("media_type", raw.MediaType),
	)

	return &raw, nil
}

// requestURL builds the endpoint URL for the given date.
func (c *Client) requestURL(date time.Time) string {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("date", date.Format(domain.DateFormat))
	return c.baseURL + apodPath + "?" + q.Encode()
}

// statusError maps a non-2xx status code to a typed fetch error.
func (c *Client) statusError(status int) *FetchError {
	kind := KindPermanent
	if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		kind = KindTransient
	}
	return &FetchError{
		Kind:       kind,
		StatusCode: status,
		Err:        fmt.Errorf("unexpected status %d", status),
	}
}

// dumpRaw writes the raw response body for debugging. Failures are logged
// and never fail the fetch.
func (c *Client) dumpRaw(body []byte) {
	if err := os.MkdirAll(filepath.Dir(c.rawDumpPath), 0o755); err != nil {
		c.log.Warn("Failed to create raw dump directory", logger.Error(err))
		return
	}
	if err := os.WriteFile(c.rawDumpPath, body, 0o644); err != nil {
		c.log.Warn("Failed to write raw dump", logger.Error(err))
	}
}
