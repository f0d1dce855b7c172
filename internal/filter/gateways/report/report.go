// Package report submits feedback and manual reports to the remote endpoint.
// Payloads are sealed with the shared-key scheme in cryptobox and posted as
// {"data": "<base64>"}. A failed submission is surfaced to the caller so the
// initiating surface can inform the user; local lists are only mutated on
// success, by the caller.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/axssbug/twitter-plugin/internal/filter/common/cryptobox"
	"github.com/axssbug/twitter-plugin/internal/filter/common/log"
)

const defaultTimeout = 15 * time.Second

// payload is the cleartext reporting schema. URL is only set for manual
// reports. Field names are shared with the endpoint.
type payload struct {
	TwAccount    string `json:"twAccount"`
	FeedbackUser string `json:"feedbackUser"`
	URL          string `json:"url,omitempty"`
}

type envelope struct {
	Data string `json:"data"`
}

// Client posts encrypted reports to the remote endpoint.
type Client struct {
	baseURL string
	box     *cryptobox.Box
	http    *http.Client
	logger  log.Logger
}

// Options configures a report Client.
type Options struct {
	BaseURL    string // endpoint base; "/feedback" and "/manual" are appended
	Key        []byte // shared sealing key
	HTTPClient *http.Client
	Logger     log.Logger
}

// NewClient constructs a Client.
func NewClient(opts Options) (*Client, error) {
	box, err := cryptobox.New(opts.Key)
	if err != nil {
		return nil, fmt.Errorf("report client: %w", err)
	}
	c := &Client{
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
		box:     box,
		http:    opts.HTTPClient,
		logger:  opts.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultTimeout}
	}
	if c.logger == nil {
		c.logger = log.GetLogger()
	}
	return c, nil
}

// SubmitFeedback reports a wrongly-suppressed account. On success the caller
// is expected to allow-list the account.
func (c *Client) SubmitFeedback(ctx context.Context, account, reportingUser string) error {
	return c.post(ctx, "/feedback", payload{
		TwAccount:    account,
		FeedbackUser: reportingUser,
	})
}

// SubmitManualReport reports an account the user wants suppressed, including
// the page it was seen on. On success the caller is expected to block-list
// the account.
func (c *Client) SubmitManualReport(ctx context.Context, account, sourceURL, reportingUser string) error {
	return c.post(ctx, "/manual", payload{
		TwAccount:    account,
		FeedbackUser: reportingUser,
		URL:          sourceURL,
	})
}

func (c *Client) post(ctx context.Context, path string, p payload) error {
	sealed, err := c.box.Seal(p)
	if err != nil {
		return fmt.Errorf("sealing report: %w", err)
	}
	body, err := json.Marshal(envelope{Data: sealed})
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("posting report: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("report endpoint returned status %d", resp.StatusCode)
	}

	c.logger.Info(map[string]any{"path": path, "account": p.TwAccount}, "report submitted")
	return nil
}
