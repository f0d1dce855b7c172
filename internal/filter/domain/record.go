package domain

import (
	"fmt"
	"strings"
)

// Record is one item of the observed stream, reduced to the facts the engine
// classifies on. Records are never deleted, only toggled between visible and
// suppressed.
//
// Notes:
//   - AuthorHandle may be empty when the author could not be located in the
//     record's rendered form; the account and username checks are skipped then.
//   - DisplayName is the raw candidate found next to the handle. It may be
//     empty or junk; resolution (validation, caching, fallback to the handle)
//     happens in the engine.
type Record struct {
	ID           string // opaque stream identity
	AuthorHandle string
	DisplayName  string
	BodyText     string
}

// NewRecord constructs a Record and validates its identity.
func NewRecord(id, handle, displayName, body string) (Record, error) {
	r := Record{
		ID:           strings.TrimSpace(id),
		AuthorHandle: strings.TrimSpace(handle),
		DisplayName:  strings.TrimSpace(displayName),
		BodyText:     body,
	}
	if r.ID == "" {
		return Record{}, fmt.Errorf("record id must not be empty")
	}
	return r, nil
}

// RecordState tracks where a record sits in the processor's state machine.
type RecordState uint8

const (
	// StateVisible means the record passed classification (or was reverted).
	StateVisible RecordState = iota
	// StateSuppressed means the record is hidden behind a placeholder.
	StateSuppressed
)

// String returns a stable string representation of the record state.
func (s RecordState) String() string {
	switch s {
	case StateVisible:
		return "visible"
	case StateSuppressed:
		return "suppressed"
	default:
		return fmt.Sprintf("RecordState(%d)", s)
	}
}
