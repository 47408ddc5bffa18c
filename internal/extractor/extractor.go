// Package extractor resolves a share page URL into a direct media URL via
// an external extraction API (tikwm-compatible).
package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrExtractionFailed means the extraction service never returned a usable
// media URL within the retry budget. Terminal for the task.
var ErrExtractionFailed = errors.New("extractor: no usable media url")

// Media is the extraction result: a directly fetchable media URL plus
// whatever metadata the service volunteered.
type Media struct {
	URL   string
	Title string
	Size  int64
}

// Client queries the extraction endpoint with bounded retries.
type Client struct {
	logger   *slog.Logger
	http     *http.Client
	endpoint string
	attempts int
	delay    time.Duration
	jitter   time.Duration
}

func New(log *slog.Logger, endpoint string, attempts int, delay, jitter time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	if attempts <= 0 {
		attempts = 1
	}
	return &Client{
		logger:   log.With(slog.String("component", "extractor")),
		http:     &http.Client{Timeout: 30 * time.Second},
		endpoint: endpoint,
		attempts: attempts,
		delay:    delay,
		jitter:   jitter,
	}
}

// apiResponse mirrors the tikwm envelope. Only data.play matters; a response
// without it counts as a retryable miss, never a fatal one.
type apiResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Play  string `json:"play"`
		Title string `json:"title"`
		Size  int64  `json:"size"`
	} `json:"data"`
}

// DirectURL asks the extraction service for pageURL's direct media URL,
// retrying transient failures up to the attempt budget.
func (c *Client) DirectURL(ctx context.Context, pageURL string) (Media, error) {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		media, err := c.fetch(ctx, pageURL)
		if err == nil {
			return media, nil
		}
		lastErr = err
		c.logger.Debug("extraction attempt failed",
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
		if attempt < c.attempts {
			if err := c.wait(ctx); err != nil {
				return Media{}, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
			}
		}
	}
	return Media{}, fmt.Errorf("%w after %d attempts: %w", ErrExtractionFailed, c.attempts, lastErr)
}

func (c *Client) fetch(ctx context.Context, pageURL string) (Media, error) {
	endpoint := c.endpoint
	if strings.Contains(endpoint, "?") {
		endpoint += "&url=" + url.QueryEscape(pageURL)
	} else {
		endpoint += "?url=" + url.QueryEscape(pageURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Media{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Media{}, fmt.Errorf("call extraction api: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Media{}, fmt.Errorf("read extraction response: %w", err)
	}
	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Media{}, fmt.Errorf("decode extraction response: %w", err)
	}
	play := strings.TrimSpace(parsed.Data.Play)
	if play == "" {
		return Media{}, fmt.Errorf("response has no media url (code=%d msg=%q)", parsed.Code, parsed.Msg)
	}
	return Media{URL: play, Title: parsed.Data.Title, Size: parsed.Data.Size}, nil
}

// wait sleeps the configured inter-attempt delay plus jitter, or returns
// early when ctx is done.
func (c *Client) wait(ctx context.Context) error {
	delay := c.delay
	if c.jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(c.jitter)))
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
