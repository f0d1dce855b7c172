// Package engine holds the classification decision logic: one pass over a
// record's derived facts against the current rule state and lookup index.
package engine

import (
	"fmt"
	"strings"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/axssbug/twitter-plugin/internal/filter/domain"
)

// Rules is the read view of the rule snapshot the engine classifies against.
type Rules interface {
	GlobalEnabled() bool
	CategoryEnabled(domain.Category) bool
	InAllowList(cat domain.Category, value string) bool
	InBlockList(cat domain.Category, value string) bool
	KeywordAllowList() []string
	KeywordBlockList() []string
}

// Lookup is the bulk remote-origin index. When not loaded, the engine falls
// back to the user-origin lists only.
type Lookup interface {
	Loaded() bool
	HasAccount(handle string) bool
	MatchKeyword(text string) (matched string, ok bool)
}

// Engine classifies records. Classification has no side effects beyond the
// display-name resolution cache, so for a fixed rule/index snapshot the same
// record always classifies the same way.
type Engine struct {
	rules Rules
	index Lookup
	names *lru.Cache[string, string]
}

// New constructs an Engine with a display-name cache of the given capacity.
func New(rules Rules, index Lookup, nameCacheSize int) (*Engine, error) {
	names, err := lru.New[string, string](nameCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating name cache: %w", err)
	}
	return &Engine{rules: rules, index: index, names: names}, nil
}

// Classify evaluates the record under layered precedence:
//
//   - the global switch turns everything off;
//   - categories are checked in fixed order (account, username, keyword) and
//     the first match wins;
//   - within a category the allow-list beats every block source of that
//     category, and only that category — evaluation continues to the next one.
func (e *Engine) Classify(rec domain.Record) domain.Classification {
	if !e.rules.GlobalEnabled() {
		return domain.NoMatch()
	}

	if c := e.classifyAccount(rec); c.Matched {
		return c
	}
	if c := e.classifyUsername(rec); c.Matched {
		return c
	}
	return e.classifyKeyword(rec)
}

func (e *Engine) classifyAccount(rec domain.Record) domain.Classification {
	h := rec.AuthorHandle
	if h == "" || !e.rules.CategoryEnabled(domain.CategoryAccount) {
		return domain.NoMatch()
	}
	if e.rules.InAllowList(domain.CategoryAccount, h) {
		return domain.NoMatch()
	}
	if e.index.Loaded() && e.index.HasAccount(h) {
		return domain.Match(domain.CategoryAccount, h)
	}
	if e.rules.InBlockList(domain.CategoryAccount, h) {
		return domain.Match(domain.CategoryAccount, h)
	}
	return domain.NoMatch()
}

func (e *Engine) classifyUsername(rec domain.Record) domain.Classification {
	if rec.AuthorHandle == "" || !e.rules.CategoryEnabled(domain.CategoryUsername) {
		return domain.NoMatch()
	}
	d := e.ResolveDisplayName(rec)
	if e.rules.InAllowList(domain.CategoryUsername, d) {
		return domain.NoMatch()
	}
	if e.rules.InBlockList(domain.CategoryUsername, d) {
		return domain.Match(domain.CategoryUsername, d)
	}
	return domain.NoMatch()
}

func (e *Engine) classifyKeyword(rec domain.Record) domain.Classification {
	if !e.rules.CategoryEnabled(domain.CategoryKeyword) {
		return domain.NoMatch()
	}
	lower := strings.ToLower(rec.BodyText)

	// Any allow-list substring shields the whole body from keyword matching.
	for _, a := range e.rules.KeywordAllowList() {
		if a != "" && strings.Contains(lower, strings.ToLower(a)) {
			return domain.NoMatch()
		}
	}

	if e.index.Loaded() {
		if k, ok := e.index.MatchKeyword(rec.BodyText); ok {
			return domain.Match(domain.CategoryKeyword, k)
		}
	}
	for _, b := range e.rules.KeywordBlockList() {
		if b != "" && strings.Contains(lower, strings.ToLower(b)) {
			return domain.Match(domain.CategoryKeyword, b)
		}
	}
	return domain.NoMatch()
}

// ResolveDisplayName returns the display name for the record's author,
// cached per handle for the lifetime of the run. The raw candidate is
// rejected when it cannot be a real display name (empty, a handle form, the
// handle itself, or a single glyph such as the "·" separator), in which case
// the handle stands in.
func (e *Engine) ResolveDisplayName(rec domain.Record) string {
	h := rec.AuthorHandle
	if d, ok := e.names.Get(h); ok {
		return d
	}
	d := rec.DisplayName
	if d == "" || strings.HasPrefix(d, "@") || d == h || utf8.RuneCountInString(d) <= 1 {
		return h
	}
	e.names.Add(h, d)
	return d
}

// ForgetName drops the cached display name for a handle, so the next
// classification re-resolves it. Called when the author's records are
// explicitly revealed again.
func (e *Engine) ForgetName(handle string) {
	e.names.Remove(handle)
}
