package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axssbug/twitter-plugin/internal/filter/domain"
)

// fakeRules is an in-memory Rules snapshot for tests.
type fakeRules struct {
	globalOff    bool
	disabled     map[domain.Category]bool
	allow        map[domain.Category]map[string]bool
	block        map[domain.Category]map[string]bool
	keywordAllow []string
	keywordBlock []string
}

func newFakeRules() *fakeRules {
	return &fakeRules{
		disabled: make(map[domain.Category]bool),
		allow:    make(map[domain.Category]map[string]bool),
		block:    make(map[domain.Category]map[string]bool),
	}
}

func (f *fakeRules) GlobalEnabled() bool                          { return !f.globalOff }
func (f *fakeRules) CategoryEnabled(c domain.Category) bool       { return !f.disabled[c] }
func (f *fakeRules) InAllowList(c domain.Category, v string) bool { return f.allow[c][v] }
func (f *fakeRules) InBlockList(c domain.Category, v string) bool { return f.block[c][v] }
func (f *fakeRules) KeywordAllowList() []string                   { return f.keywordAllow }
func (f *fakeRules) KeywordBlockList() []string                   { return f.keywordBlock }

func (f *fakeRules) addAllow(c domain.Category, v string) {
	if c == domain.CategoryKeyword {
		f.keywordAllow = append(f.keywordAllow, v)
		return
	}
	if f.allow[c] == nil {
		f.allow[c] = make(map[string]bool)
	}
	f.allow[c][v] = true
}

func (f *fakeRules) addBlock(c domain.Category, v string) {
	if c == domain.CategoryKeyword {
		f.keywordBlock = append(f.keywordBlock, v)
		return
	}
	if f.block[c] == nil {
		f.block[c] = make(map[string]bool)
	}
	f.block[c][v] = true
}

// fakeLookup is an in-memory bulk index for tests.
type fakeLookup struct {
	loaded   bool
	accounts map[string]bool
	keywords []string
}

func (f *fakeLookup) Loaded() bool { return f.loaded }

func (f *fakeLookup) HasAccount(handle string) bool {
	h := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
	return f.accounts[h]
}

func (f *fakeLookup) MatchKeyword(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, k := range f.keywords {
		if strings.Contains(lower, k) {
			return k, true
		}
	}
	return "", false
}

func newEngine(t *testing.T, rules Rules, index Lookup) *Engine {
	t.Helper()
	e, err := New(rules, index, 16)
	require.NoError(t, err)
	return e
}

func rec(handle, display, body string) domain.Record {
	return domain.Record{ID: "r1", AuthorHandle: handle, DisplayName: display, BodyText: body}
}

func TestClassifyGlobalDisabled(t *testing.T) {
	rules := newFakeRules()
	rules.globalOff = true
	rules.addBlock(domain.CategoryAccount, "spammer")
	index := &fakeLookup{loaded: true, accounts: map[string]bool{"spammer": true}}

	e := newEngine(t, rules, index)
	c := e.Classify(rec("spammer", "Spammer", "buy now"))
	assert.False(t, c.Matched, "global switch off must bypass every rule")
}

func TestClassifyAccount(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(*fakeRules, *fakeLookup)
		handle    string
		wantMatch bool
	}{
		{
			name: "bulk index hit",
			setup: func(r *fakeRules, l *fakeLookup) {
				l.loaded = true
				l.accounts = map[string]bool{"spammer": true}
			},
			handle:    "spammer",
			wantMatch: true,
		},
		{
			name: "user block list hit without index",
			setup: func(r *fakeRules, l *fakeLookup) {
				r.addBlock(domain.CategoryAccount, "spammer")
			},
			handle:    "spammer",
			wantMatch: true,
		},
		{
			name: "allow list beats bulk index",
			setup: func(r *fakeRules, l *fakeLookup) {
				l.loaded = true
				l.accounts = map[string]bool{"spammer": true}
				r.addAllow(domain.CategoryAccount, "spammer")
			},
			handle:    "spammer",
			wantMatch: false,
		},
		{
			name: "allow list beats user block list",
			setup: func(r *fakeRules, l *fakeLookup) {
				r.addBlock(domain.CategoryAccount, "spammer")
				r.addAllow(domain.CategoryAccount, "spammer")
			},
			handle:    "spammer",
			wantMatch: false,
		},
		{
			name: "index not loaded falls back to user lists",
			setup: func(r *fakeRules, l *fakeLookup) {
				l.loaded = false
				l.accounts = map[string]bool{"spammer": true}
			},
			handle:    "spammer",
			wantMatch: false,
		},
		{
			name: "category disabled",
			setup: func(r *fakeRules, l *fakeLookup) {
				r.disabled[domain.CategoryAccount] = true
				r.addBlock(domain.CategoryAccount, "spammer")
			},
			handle:    "spammer",
			wantMatch: false,
		},
		{
			name:      "missing handle skips the category",
			setup:     func(r *fakeRules, l *fakeLookup) { r.addBlock(domain.CategoryAccount, "") },
			handle:    "",
			wantMatch: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := newFakeRules()
			index := &fakeLookup{}
			tt.setup(rules, index)
			e := newEngine(t, rules, index)

			c := e.Classify(rec(tt.handle, "Display", "harmless text"))
			assert.Equal(t, tt.wantMatch, c.Matched)
			if tt.wantMatch {
				assert.Equal(t, domain.CategoryAccount, c.Category)
				assert.Equal(t, tt.handle, c.Value)
			}
		})
	}
}

func TestClassifyAccountSigilAndCase(t *testing.T) {
	rules := newFakeRules()
	index := &fakeLookup{loaded: true, accounts: map[string]bool{"spammer": true}}
	e := newEngine(t, rules, index)

	c := e.Classify(rec("@SPAMMER", "Someone", "hello"))
	require.True(t, c.Matched, "index lookup must normalize sigil and case")
	assert.Equal(t, domain.CategoryAccount, c.Category)
}

func TestClassifyUsername(t *testing.T) {
	rules := newFakeRules()
	rules.addBlock(domain.CategoryUsername, "Crypto Guru")
	e := newEngine(t, rules, &fakeLookup{})

	c := e.Classify(rec("someguy", "Crypto Guru", "hello"))
	require.True(t, c.Matched)
	assert.Equal(t, domain.CategoryUsername, c.Category)
	assert.Equal(t, "Crypto Guru", c.Value)
}

func TestClassifyUsernameAllowBeatsBlock(t *testing.T) {
	rules := newFakeRules()
	rules.addBlock(domain.CategoryUsername, "Crypto Guru")
	rules.addAllow(domain.CategoryUsername, "Crypto Guru")
	rules.addBlock(domain.CategoryKeyword, "crypto")
	e := newEngine(t, rules, &fakeLookup{})

	// Allowed in the username category, but evaluation continues and the
	// keyword category still fires on the body.
	c := e.Classify(rec("someguy", "Crypto Guru", "all about crypto"))
	require.True(t, c.Matched)
	assert.Equal(t, domain.CategoryKeyword, c.Category)
}

func TestClassifyAccountAllowFallsThrough(t *testing.T) {
	rules := newFakeRules()
	rules.addAllow(domain.CategoryAccount, "spammer")
	rules.addBlock(domain.CategoryKeyword, "airdrop")
	index := &fakeLookup{loaded: true, accounts: map[string]bool{"spammer": true}}
	e := newEngine(t, rules, index)

	// Allow-listing the account only shields the account category; the body
	// is still checked.
	c := e.Classify(rec("spammer", "Spammer", "join the airdrop"))
	require.True(t, c.Matched)
	assert.Equal(t, domain.CategoryKeyword, c.Category)
}

func TestClassifyCategoryPrecedence(t *testing.T) {
	rules := newFakeRules()
	rules.addBlock(domain.CategoryAccount, "spammer")
	rules.addBlock(domain.CategoryUsername, "Spam King")
	rules.addBlock(domain.CategoryKeyword, "spam")
	e := newEngine(t, rules, &fakeLookup{})

	// All three categories match; the account category is checked first.
	c := e.Classify(rec("spammer", "Spam King", "spam spam spam"))
	require.True(t, c.Matched)
	assert.Equal(t, domain.CategoryAccount, c.Category)
}

func TestClassifyKeyword(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(*fakeRules, *fakeLookup)
		body      string
		wantMatch bool
		wantValue string
	}{
		{
			name: "case insensitive substring from user list",
			setup: func(r *fakeRules, l *fakeLookup) {
				r.keywordBlock = []string{"Giveaway"}
			},
			body:      "HUGE GIVEAWAY inside",
			wantMatch: true,
			wantValue: "Giveaway",
		},
		{
			name: "bulk index checked before user list",
			setup: func(r *fakeRules, l *fakeLookup) {
				l.loaded = true
				l.keywords = []string{"airdrop"}
				r.keywordBlock = []string{"airdrop"}
			},
			body:      "free airdrop today",
			wantMatch: true,
			wantValue: "airdrop",
		},
		{
			name: "allow substring shields the body",
			setup: func(r *fakeRules, l *fakeLookup) {
				l.loaded = true
				l.keywords = []string{"airdrop"}
				r.keywordAllow = []string{"research"}
			},
			body:      "airdrop research thread",
			wantMatch: false,
		},
		{
			name: "empty entries are ignored",
			setup: func(r *fakeRules, l *fakeLookup) {
				r.keywordBlock = []string{""}
				r.keywordAllow = []string{""}
			},
			body:      "anything at all",
			wantMatch: false,
		},
		{
			name: "no match",
			setup: func(r *fakeRules, l *fakeLookup) {
				r.keywordBlock = []string{"casino"}
			},
			body:      "nice weather today",
			wantMatch: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := newFakeRules()
			index := &fakeLookup{}
			tt.setup(rules, index)
			e := newEngine(t, rules, index)

			c := e.Classify(rec("author", "Author", tt.body))
			assert.Equal(t, tt.wantMatch, c.Matched)
			if tt.wantMatch {
				assert.Equal(t, domain.CategoryKeyword, c.Category)
				assert.Equal(t, tt.wantValue, c.Value)
			}
		})
	}
}

func TestClassifyDeterministic(t *testing.T) {
	rules := newFakeRules()
	rules.keywordBlock = []string{"spam"}
	e := newEngine(t, rules, &fakeLookup{})

	r := rec("author", "Author", "spam spam")
	first := e.Classify(r)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, e.Classify(r))
	}
}

func TestResolveDisplayName(t *testing.T) {
	tests := []struct {
		name    string
		handle  string
		display string
		want    string
	}{
		{"valid name", "someguy", "Some Guy", "Some Guy"},
		{"empty falls back to handle", "someguy", "", "someguy"},
		{"handle-shaped candidate rejected", "someguy", "@someguy", "someguy"},
		{"identical to handle rejected", "someguy", "someguy", "someguy"},
		{"single glyph rejected", "someguy", "·", "someguy"},
		{"two runes accepted", "someguy", "Ab", "Ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t, newFakeRules(), &fakeLookup{})
			got := e.ResolveDisplayName(rec(tt.handle, tt.display, ""))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveDisplayNameCaching(t *testing.T) {
	e := newEngine(t, newFakeRules(), &fakeLookup{})

	got := e.ResolveDisplayName(rec("someguy", "Some Guy", ""))
	require.Equal(t, "Some Guy", got)

	// The cached value wins even when a different candidate shows up.
	got = e.ResolveDisplayName(rec("someguy", "Other Name", ""))
	assert.Equal(t, "Some Guy", got)

	e.ForgetName("someguy")
	got = e.ResolveDisplayName(rec("someguy", "Other Name", ""))
	assert.Equal(t, "Other Name", got)
}

func TestNewRejectsBadCacheSize(t *testing.T) {
	_, err := New(newFakeRules(), &fakeLookup{}, 0)
	assert.Error(t, err)
}
