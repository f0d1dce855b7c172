// Package syncer bridges rule-state mutations to forced re-evaluation of all
// known records, and schedules the periodic remote refresh.
package syncer

import (
	"time"

	"github.com/axssbug/twitter-plugin/internal/filter/common/log"
)

// RuleFeed is the rule store's change subscription surface. Local writes and
// externally-originated store changes both arrive through it.
type RuleFeed interface {
	SubscribeExternalChanges(handler func())
}

// Reevaluator re-runs classification over every known record.
type Reevaluator interface {
	ReevaluateAll()
}

// Syncer debounces rule-change notifications into bulk re-evaluation passes.
// The debounce window is the backpressure valve against high-churn rule
// updates: bursts collapse into a single pass.
type Syncer struct {
	feed     RuleFeed
	debounce *Debouncer
	logger   log.Logger
}

// New wires a Syncer between the rule feed and the processor.
func New(feed RuleFeed, proc Reevaluator, window time.Duration, logger log.Logger) *Syncer {
	s := &Syncer{feed: feed, logger: logger}
	s.debounce = NewDebouncer(window, func() {
		logger.Debug(nil, "rule change settled, re-evaluating")
		proc.ReevaluateAll()
	})
	return s
}

// Start subscribes to the rule feed. Every coalesced change batch kicks the
// debouncer.
func (s *Syncer) Start() {
	s.feed.SubscribeExternalChanges(s.Kick)
}

// Kick requests a re-evaluation pass, subject to debouncing.
func (s *Syncer) Kick() {
	s.debounce.Trigger()
}

// Stop cancels any pending pass.
func (s *Syncer) Stop() {
	s.debounce.Stop()
}
