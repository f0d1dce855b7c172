package domain

// Classification represents the outcome of evaluating a record against the
// current rule state. Pure value type, no external dependencies.
//
// Exactly one category wins per record: evaluation short-circuits on the first
// match, so Category is only meaningful when Matched is true.
type Classification struct {
	Matched  bool     // true if any rule source matched
	Category Category // the winning filter class
	Value    string   // the matched value (handle, display name, or keyword)
}

// IsMatch is a convenience accessor.
func (c Classification) IsMatch() bool { return c.Matched }

// NoMatch returns a not-matched classification.
func NoMatch() Classification { return Classification{Matched: false} }

// Match constructs a matched classification for the given category and value.
func Match(cat Category, value string) Classification {
	return Classification{Matched: true, Category: cat, Value: value}
}

// Tag converts a matched classification into the suppression tag attached to
// the record. Calling Tag on a no-match classification yields a zero tag.
func (c Classification) Tag() SuppressionTag {
	if !c.Matched {
		return SuppressionTag{}
	}
	return SuppressionTag{Category: c.Category, Value: c.Value}
}

// SuppressionTag records which rule suppressed a record. It is attached when
// the record transitions to suppressed and cleared only when the record is
// explicitly shown again, never by re-running the same rule set.
type SuppressionTag struct {
	Category Category
	Value    string
}
