// Package stream delivers newly-rendered records from the host surface over a
// websocket feed. It is a thin observation gateway: it discovers records and
// hands them to the processor, nothing more.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/axssbug/twitter-plugin/internal/filter/common/log"
	"github.com/axssbug/twitter-plugin/internal/filter/domain"
)

const reconnectDelay = 5 * time.Second

// Handler receives each discovered record.
type Handler func(domain.Record)

// Subscriber connects to the record feed and forwards events.
type Subscriber struct {
	url     string
	handler Handler
	logger  log.Logger
}

// NewSubscriber creates a subscriber for the given feed URL.
func NewSubscriber(url string, handler Handler, logger log.Logger) *Subscriber {
	return &Subscriber{url: url, handler: handler, logger: logger}
}

// recordEvent is the wire shape of one stream item.
type recordEvent struct {
	ID          string `json:"id"`
	Author      string `json:"author"`
	DisplayName string `json:"displayName"`
	Text        string `json:"text"`
}

// Start connects to the feed and forwards records until the context is
// cancelled. It automatically reconnects on transient errors.
func (s *Subscriber) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := s.subscribe(ctx); err != nil {
				s.logger.Error(map[string]any{"error": err}, "record feed connection error, reconnecting")
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(reconnectDelay):
				}
			}
		}
	}
}

func (s *Subscriber) subscribe(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial record feed: %w", err)
	}
	defer func() { _ = conn.Close() }()

	s.logger.Info(map[string]any{"url": s.url}, "connected to record feed")

	// Unblock ReadMessage when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		var ev recordEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			s.logger.Error(map[string]any{"error": err}, "failed to parse record event")
			continue
		}

		rec, err := domain.NewRecord(ev.ID, ev.Author, ev.DisplayName, ev.Text)
		if err != nil {
			s.logger.Debug(map[string]any{"error": err}, "dropping malformed record event")
			continue
		}
		s.handler(rec)
	}
}
