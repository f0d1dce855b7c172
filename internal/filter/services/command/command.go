// Package command is the typed surface exposed to UI collaborators. Each
// message the host surface can send maps to one Kind; dispatch is a single
// exhaustive switch, so adding a command is a compile-time-checked change.
package command

import (
	"fmt"

	"github.com/axssbug/twitter-plugin/internal/filter/domain"
)

// Kind enumerates the supported commands.
type Kind uint8

const (
	// KindToggleGlobal flips the master filter switch.
	KindToggleGlobal Kind = iota
	// KindToggleCategory flips one category's switch.
	KindToggleCategory
	// KindAddAllow adds a value to a category's allow-list and reveals the
	// records it was suppressing.
	KindAddAllow
	// KindAddBlock adds a value to a category's block-list.
	KindAddBlock
	// KindFeedback reports a wrong suppression upstream; on success the
	// account is allow-listed locally and its records revealed.
	KindFeedback
	// KindManualReport reports an account upstream; on success the account
	// is block-listed locally.
	KindManualReport
	// KindForceRefresh refreshes all remote sources, bypassing staleness.
	KindForceRefresh
	// KindQuerySuppressions returns the per-rule suppressed-record tally.
	KindQuerySuppressions
)

// String returns a stable string representation of the command kind.
func (k Kind) String() string {
	switch k {
	case KindToggleGlobal:
		return "toggle_global"
	case KindToggleCategory:
		return "toggle_category"
	case KindAddAllow:
		return "add_allow"
	case KindAddBlock:
		return "add_block"
	case KindFeedback:
		return "feedback"
	case KindManualReport:
		return "manual_report"
	case KindForceRefresh:
		return "force_refresh"
	case KindQuerySuppressions:
		return "query_suppressions"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Command is one request from a UI collaborator. Only the fields relevant to
// the Kind are read.
type Command struct {
	Kind          Kind
	Category      domain.Category // ToggleCategory, AddAllow, AddBlock
	Value         string          // list value or reported account
	Enabled       bool            // ToggleGlobal, ToggleCategory
	SourceURL     string          // ManualReport: page the account was seen on
	ReportingUser string          // Feedback, ManualReport
}

// Result carries command output back to the caller.
type Result struct {
	// Suppressions is set for QuerySuppressions.
	Suppressions map[domain.SuppressionTag]int
	// Revealed is the number of records made visible by AddAllow/Feedback.
	Revealed int
}
