package command

import (
	"context"
	"fmt"

	"github.com/axssbug/twitter-plugin/internal/filter/common/log"
	"github.com/axssbug/twitter-plugin/internal/filter/domain"
)

// Rules is the mutation surface of the rule store.
type Rules interface {
	SetGlobalEnabled(enabled bool)
	SetEnabled(cat domain.Category, enabled bool)
	AddToAllowList(cat domain.Category, value string)
	AddToBlockList(cat domain.Category, value string)
}

// Records is the processor's out-of-band surface.
type Records interface {
	Unsuppress(tag domain.SuppressionTag) int
	Suppressions() map[domain.SuppressionTag]int
}

// Reporter submits feedback and manual reports upstream.
type Reporter interface {
	SubmitFeedback(ctx context.Context, account, reportingUser string) error
	SubmitManualReport(ctx context.Context, account, sourceURL, reportingUser string) error
}

// Refresher forces an immediate refresh of all remote sources.
type Refresher interface {
	RefreshAll(ctx context.Context)
}

// Dispatcher executes commands against the wired components. Rule mutations
// made here propagate to re-evaluation through the store's change feed, so
// the dispatcher never schedules passes itself.
type Dispatcher struct {
	rules     Rules
	records   Records
	reporter  Reporter
	refresher Refresher
	logger    log.Logger
}

// NewDispatcher wires a Dispatcher.
func NewDispatcher(rules Rules, records Records, reporter Reporter, refresher Refresher, logger log.Logger) *Dispatcher {
	return &Dispatcher{
		rules:     rules,
		records:   records,
		reporter:  reporter,
		refresher: refresher,
		logger:    logger,
	}
}

// Dispatch runs one command. A reporting failure surfaces as an error and
// leaves the local lists untouched, so the caller can inform the user.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) (Result, error) {
	d.logger.Debug(map[string]any{"kind": cmd.Kind.String()}, "dispatching command")

	switch cmd.Kind {
	case KindToggleGlobal:
		d.rules.SetGlobalEnabled(cmd.Enabled)
		return Result{}, nil

	case KindToggleCategory:
		if !cmd.Category.Valid() {
			return Result{}, fmt.Errorf("toggle_category: invalid category %v", cmd.Category)
		}
		d.rules.SetEnabled(cmd.Category, cmd.Enabled)
		return Result{}, nil

	case KindAddAllow:
		if !cmd.Category.Valid() || cmd.Value == "" {
			return Result{}, fmt.Errorf("add_allow: category and value required")
		}
		d.rules.AddToAllowList(cmd.Category, cmd.Value)
		revealed := d.records.Unsuppress(domain.SuppressionTag{Category: cmd.Category, Value: cmd.Value})
		return Result{Revealed: revealed}, nil

	case KindAddBlock:
		if !cmd.Category.Valid() || cmd.Value == "" {
			return Result{}, fmt.Errorf("add_block: category and value required")
		}
		d.rules.AddToBlockList(cmd.Category, cmd.Value)
		return Result{}, nil

	case KindFeedback:
		if cmd.Value == "" {
			return Result{}, fmt.Errorf("feedback: account required")
		}
		if err := d.reporter.SubmitFeedback(ctx, cmd.Value, cmd.ReportingUser); err != nil {
			return Result{}, fmt.Errorf("feedback: %w", err)
		}
		d.rules.AddToAllowList(domain.CategoryAccount, cmd.Value)
		revealed := d.records.Unsuppress(domain.SuppressionTag{Category: domain.CategoryAccount, Value: cmd.Value})
		return Result{Revealed: revealed}, nil

	case KindManualReport:
		if cmd.Value == "" {
			return Result{}, fmt.Errorf("manual_report: account required")
		}
		if err := d.reporter.SubmitManualReport(ctx, cmd.Value, cmd.SourceURL, cmd.ReportingUser); err != nil {
			return Result{}, fmt.Errorf("manual_report: %w", err)
		}
		d.rules.AddToBlockList(domain.CategoryAccount, cmd.Value)
		return Result{}, nil

	case KindForceRefresh:
		d.refresher.RefreshAll(ctx)
		return Result{}, nil

	case KindQuerySuppressions:
		return Result{Suppressions: d.records.Suppressions()}, nil

	default:
		return Result{}, fmt.Errorf("unsupported command kind: %v", cmd.Kind)
	}
}
