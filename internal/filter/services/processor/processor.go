// Package processor applies classification outcomes to concrete records. It
// owns the per-record state machine, the cumulative block counter increments,
// and the aggregation view of currently-suppressed records.
package processor

import (
	"sync"

	"github.com/axssbug/twitter-plugin/internal/filter/common/log"
	"github.com/axssbug/twitter-plugin/internal/filter/domain"
)

// Classifier produces a classification for a record.
type Classifier interface {
	Classify(domain.Record) domain.Classification
	ForgetName(handle string)
}

// BlockRecorder bumps the persisted cumulative block counter.
type BlockRecorder interface {
	RecordBlock()
}

// Presenter is the rendering collaborator: it hides a suppressed record
// behind a placeholder and restores a revealed one.
type Presenter interface {
	Hide(rec domain.Record, tag domain.SuppressionTag)
	Show(rec domain.Record)
}

// NopPresenter discards presentation calls. Used when no rendering surface is
// attached.
type NopPresenter struct{}

func (NopPresenter) Hide(domain.Record, domain.SuppressionTag) {}
func (NopPresenter) Show(domain.Record)                        {}

type tracked struct {
	rec   domain.Record
	state domain.RecordState
	tag   domain.SuppressionTag
}

// Processor tracks every record seen so far. Records are never dropped, only
// toggled between visible and suppressed.
type Processor struct {
	mu        sync.Mutex
	classify  Classifier
	counter   BlockRecorder
	presenter Presenter
	logger    log.Logger
	records   map[string]*tracked
}

// New constructs a Processor. A nil presenter defaults to NopPresenter.
func New(classify Classifier, counter BlockRecorder, presenter Presenter, logger log.Logger) *Processor {
	if presenter == nil {
		presenter = NopPresenter{}
	}
	return &Processor{
		classify:  classify,
		counter:   counter,
		presenter: presenter,
		logger:    logger,
		records:   make(map[string]*tracked),
	}
}

// Observe handles first-sight delivery of a record. Re-delivery of an
// already-known record is a no-op; only forced re-evaluation revisits known
// records.
func (p *Processor) Observe(rec domain.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, known := p.records[rec.ID]; known {
		return
	}
	t := &tracked{rec: rec, state: domain.StateVisible}
	p.records[rec.ID] = t
	p.apply(t, p.classify.Classify(rec), false)
}

// ReevaluateAll re-runs classification over every known record regardless of
// prior state. Triggered after rule mutations; runs to completion before the
// next pass can start.
func (p *Processor) ReevaluateAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.records {
		p.apply(t, p.classify.Classify(t.rec), true)
	}
	p.logger.Debug(map[string]any{"records": len(p.records)}, "re-evaluation pass complete")
}

// apply advances one record through the state machine. The counter bumps
// exactly once per visible→suppressed transition and never on
// suppressed→suppressed, so re-processing under an unchanged snapshot cannot
// inflate it. Caller holds the lock.
func (p *Processor) apply(t *tracked, c domain.Classification, forced bool) {
	switch {
	case t.state == domain.StateSuppressed && c.Matched:
		// Still suppressed. Re-attribute if a different rule matches now,
		// but the original suppression already counted.
		t.tag = c.Tag()

	case t.state == domain.StateSuppressed && !c.Matched:
		if !forced {
			return
		}
		t.state = domain.StateVisible
		t.tag = domain.SuppressionTag{}
		p.presenter.Show(t.rec)

	case c.Matched:
		t.state = domain.StateSuppressed
		t.tag = c.Tag()
		p.counter.RecordBlock()
		p.presenter.Hide(t.rec, t.tag)
		p.logger.Debug(map[string]any{
			"record":   t.rec.ID,
			"category": t.tag.Category.String(),
			"value":    t.tag.Value,
		}, "record suppressed")

	default:
		// visible, still no match
	}
}

// Unsuppress reveals every suppressed record whose tag matches, clearing tags
// without touching the counter (it is a lifetime count, not a gauge). The
// author's cached display name is dropped so it re-resolves next pass.
// Returns the number of records revealed.
func (p *Processor) Unsuppress(tag domain.SuppressionTag) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	revealed := 0
	for _, t := range p.records {
		if t.state != domain.StateSuppressed || t.tag != tag {
			continue
		}
		t.state = domain.StateVisible
		t.tag = domain.SuppressionTag{}
		p.presenter.Show(t.rec)
		if tag.Category == domain.CategoryAccount && t.rec.AuthorHandle != "" {
			p.classify.ForgetName(t.rec.AuthorHandle)
		}
		revealed++
	}
	return revealed
}

// Suppressions recomputes the aggregation view from the current set of
// suppressed records: how many records each rule currently hides.
func (p *Processor) Suppressions() map[domain.SuppressionTag]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	agg := make(map[domain.SuppressionTag]int)
	for _, t := range p.records {
		if t.state == domain.StateSuppressed {
			agg[t.tag]++
		}
	}
	return agg
}

// SuppressedCount returns how many records are currently suppressed.
func (p *Processor) SuppressedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, t := range p.records {
		if t.state == domain.StateSuppressed {
			n++
		}
	}
	return n
}
