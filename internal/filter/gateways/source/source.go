// Package source fetches the remote rule artifacts: the bulk account list and
// the bulk keyword list. Each artifact is independently fetchable and
// independently retried; a source exhausting its retries is reported to the
// caller, who degrades to whatever rule data is already loaded.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/axssbug/twitter-plugin/internal/filter/common/log"
)

const (
	defaultAttempts = 3
	defaultDelay    = 1 * time.Second
	defaultTimeout  = 30 * time.Second
)

// Options configures a Client.
type Options struct {
	AccountURL string
	KeywordURL string
	Attempts   int           // bounded retry count per fetch, default 3
	Delay      time.Duration // base delay; attempt i waits i×Delay, default 1s
	HTTPClient *http.Client
	Logger     log.Logger
}

// Client fetches and decodes the remote artifacts. Outbound requests share a
// rate limiter so retry bursts across sources stay polite.
type Client struct {
	accountURL string
	keywordURL string
	attempts   int
	delay      time.Duration
	http       *http.Client
	limiter    *rate.Limiter
	logger     log.Logger
}

// NewClient constructs a Client, applying defaults for unset options.
func NewClient(opts Options) *Client {
	c := &Client{
		accountURL: opts.AccountURL,
		keywordURL: opts.KeywordURL,
		attempts:   opts.Attempts,
		delay:      opts.Delay,
		http:       opts.HTTPClient,
		limiter:    rate.NewLimiter(rate.Every(500*time.Millisecond), 2),
		logger:     opts.Logger,
	}
	if c.attempts <= 0 {
		c.attempts = defaultAttempts
	}
	if c.delay <= 0 {
		c.delay = defaultDelay
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultTimeout}
	}
	if c.logger == nil {
		c.logger = log.GetLogger()
	}
	return c
}

// accountArtifact mirrors the account feed: {"dataList":[{"twAccount":"..."}]}.
type accountArtifact struct {
	DataList []struct {
		TwAccount string `json:"twAccount"`
	} `json:"dataList"`
}

// keywordArtifact mirrors the keyword feed: {"dataList":[{"text":"..."}]}.
type keywordArtifact struct {
	DataList []struct {
		Text string `json:"text"`
	} `json:"dataList"`
}

// FetchAccounts retrieves the account artifact with bounded retry.
func (c *Client) FetchAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	err := c.withRetry(ctx, "accounts", func() error {
		body, err := c.get(ctx, c.accountURL)
		if err != nil {
			return err
		}
		var art accountArtifact
		if err := json.Unmarshal(body, &art); err != nil {
			return fmt.Errorf("decoding account artifact: %w", err)
		}
		accounts = accounts[:0]
		for _, item := range art.DataList {
			if item.TwAccount != "" {
				accounts = append(accounts, item.TwAccount)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// FetchKeywords retrieves the keyword artifact with bounded retry.
func (c *Client) FetchKeywords(ctx context.Context) ([]string, error) {
	var keywords []string
	err := c.withRetry(ctx, "keywords", func() error {
		body, err := c.get(ctx, c.keywordURL)
		if err != nil {
			return err
		}
		var art keywordArtifact
		if err := json.Unmarshal(body, &art); err != nil {
			return fmt.Errorf("decoding keyword artifact: %w", err)
		}
		keywords = keywords[:0]
		for _, item := range art.DataList {
			if item.Text != "" {
				keywords = append(keywords, item.Text)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keywords, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return io.ReadAll(resp.Body)
}

// withRetry runs fn up to c.attempts times with linearly increasing delay
// between attempts (1×delay after the first failure, 2×delay after the
// second, ...).
func (c *Client) withRetry(ctx context.Context, what string, fn func() error) error {
	var lastErr error
	for i := 0; i < c.attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		c.logger.Warn(map[string]any{
			"source":  what,
			"attempt": i + 1,
			"error":   lastErr,
		}, "source fetch failed")
		if i < c.attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i+1) * c.delay):
			}
		}
	}
	return fmt.Errorf("fetching %s after %d attempts: %w", what, c.attempts, lastErr)
}
