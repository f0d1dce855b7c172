package rulestore

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axssbug/twitter-plugin/internal/filter/common/clock"
	"github.com/axssbug/twitter-plugin/internal/filter/common/log"
	"github.com/axssbug/twitter-plugin/internal/filter/domain"
)

// fakeKV is an in-memory KV with a controllable watch feed.
type fakeKV struct {
	mu       sync.Mutex
	data     map[string]json.RawMessage
	watchers []WatchFunc
	failSet  bool
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string]json.RawMessage)}
}

func (f *fakeKV) Get(key string) (json.RawMessage, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.data[key]
	return raw, ok, nil
}

func (f *fakeKV) Set(key string, value any) error {
	return f.SetMulti(map[string]any{key: value})
}

func (f *fakeKV) SetMulti(values map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet {
		return fmt.Errorf("write refused")
	}
	for k, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		f.data[k] = raw
	}
	return nil
}

func (f *fakeKV) Watch(fn WatchFunc) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watchers = append(f.watchers, fn)
	return func() {}
}

func (f *fakeKV) Close() error { return nil }

// seed stores a raw JSON value without notifying watchers.
func (f *fakeKV) seed(key, raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = json.RawMessage(raw)
}

// external simulates a batch written by another execution context.
func (f *fakeKV) external(changes map[string]string) {
	f.mu.Lock()
	batch := make([]Change, 0, len(changes))
	for k, raw := range changes {
		batch = append(batch, Change{Key: k, Old: f.data[k], New: json.RawMessage(raw)})
		f.data[k] = json.RawMessage(raw)
	}
	watchers := append([]WatchFunc(nil), f.watchers...)
	f.mu.Unlock()
	for _, fn := range watchers {
		fn(batch)
	}
}

func (f *fakeKV) get(t *testing.T, key string) json.RawMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.data[key]
	require.True(t, ok, "key %q not persisted", key)
	return raw
}

func newStore(kv KV) *Store {
	return New(kv, clock.RealClock{}, log.NewNoopLogger())
}

func TestLoadDefaults(t *testing.T) {
	s := newStore(newFakeKV())
	s.Load()

	assert.True(t, s.GlobalEnabled())
	for _, c := range domain.Categories {
		assert.True(t, s.CategoryEnabled(c), "category %v should default to enabled", c)
	}
	assert.Zero(t, s.BlockCount())
	assert.True(t, s.LastRefresh().IsZero())
}

func TestLoadRehydratesState(t *testing.T) {
	kv := newFakeKV()
	kv.seed(KeyBlockedAccounts, `["spammer","@shouty"]`)
	kv.seed(KeyAllowedKeywords, `["research"]`)
	kv.seed(KeyEnabled, `false`)
	kv.seed(KeyKeywordEnabled, `false`)
	kv.seed(KeyBlockCount, `17`)
	kv.seed(KeyLastUpdate, `1700000000000`)

	s := newStore(kv)
	s.Load()

	assert.False(t, s.GlobalEnabled())
	assert.False(t, s.CategoryEnabled(domain.CategoryKeyword))
	assert.True(t, s.CategoryEnabled(domain.CategoryAccount))
	assert.True(t, s.InBlockList(domain.CategoryAccount, "spammer"))
	assert.Equal(t, []string{"research"}, s.KeywordAllowList())
	assert.Equal(t, int64(17), s.BlockCount())
	assert.Equal(t, time.UnixMilli(1700000000000), s.LastRefresh())
}

func TestLoadCoercesObjectShapedList(t *testing.T) {
	kv := newFakeKV()
	kv.seed(KeyBlockedKeywords, `{"0":"spam","1":"casino"}`)

	s := newStore(kv)
	s.Load()

	assert.Equal(t, []string{"spam", "casino"}, s.KeywordBlockList())
}

func TestSigilVariants(t *testing.T) {
	kv := newFakeKV()
	kv.seed(KeyBlockedAccounts, `["@spammer"]`)
	kv.seed(KeyBlockedKeywords, `["@promo"]`)

	s := newStore(kv)
	s.Load()

	assert.True(t, s.InBlockList(domain.CategoryAccount, "spammer"),
		"a stored @-variant must match the bare handle")
	assert.True(t, s.InBlockList(domain.CategoryAccount, "@spammer"))
	assert.False(t, s.InBlockList(domain.CategoryKeyword, "promo"),
		"keywords carry no sigil")
}

func TestAddToAllowListMutualExclusion(t *testing.T) {
	kv := newFakeKV()
	s := newStore(kv)

	s.AddToBlockList(domain.CategoryAccount, "someguy")
	require.True(t, s.InBlockList(domain.CategoryAccount, "someguy"))

	s.AddToAllowList(domain.CategoryAccount, "someguy")

	assert.True(t, s.InAllowList(domain.CategoryAccount, "someguy"))
	assert.False(t, s.InBlockList(domain.CategoryAccount, "someguy"))

	// Both lists persist together.
	assert.JSONEq(t, `["someguy"]`, string(kv.get(t, KeyAllowedAccounts)))
	assert.JSONEq(t, `[]`, string(kv.get(t, KeyBlockedAccounts)))
}

func TestAddToAllowListIdempotent(t *testing.T) {
	s := newStore(newFakeKV())

	s.AddToAllowList(domain.CategoryKeyword, "research")
	s.AddToAllowList(domain.CategoryKeyword, "research")

	assert.Equal(t, []string{"research"}, s.KeywordAllowList())
}

func TestAddToBlockListSigilIdempotent(t *testing.T) {
	kv := newFakeKV()
	kv.seed(KeyBlockedAccounts, `["@spammer"]`)
	s := newStore(kv)
	s.Load()

	// The sigil-prefixed variant already covers the bare handle.
	s.AddToBlockList(domain.CategoryAccount, "spammer")

	assert.JSONEq(t, `["@spammer"]`, string(kv.get(t, KeyBlockedAccounts)))
}

func TestAddEmptyValueIgnored(t *testing.T) {
	kv := newFakeKV()
	s := newStore(kv)

	s.AddToAllowList(domain.CategoryAccount, "")
	s.AddToBlockList(domain.CategoryAccount, "")

	kv.mu.Lock()
	defer kv.mu.Unlock()
	assert.Empty(t, kv.data)
}

func TestSetGlobalEnabledPersists(t *testing.T) {
	kv := newFakeKV()
	s := newStore(kv)

	s.SetGlobalEnabled(false)

	assert.False(t, s.GlobalEnabled())
	assert.JSONEq(t, `false`, string(kv.get(t, KeyEnabled)))
}

func TestSetEnabledPersists(t *testing.T) {
	kv := newFakeKV()
	s := newStore(kv)

	s.SetEnabled(domain.CategoryUsername, false)

	assert.False(t, s.CategoryEnabled(domain.CategoryUsername))
	assert.True(t, s.CategoryEnabled(domain.CategoryAccount))
	assert.JSONEq(t, `false`, string(kv.get(t, KeyUsernameEnabled)))
}

func TestSetEnabledSurvivesWriteFailure(t *testing.T) {
	kv := newFakeKV()
	kv.failSet = true
	s := newStore(kv)

	s.SetGlobalEnabled(false)

	assert.False(t, s.GlobalEnabled(), "memory stays authoritative on write failure")
}

func TestRecordBlockPersistsAsync(t *testing.T) {
	kv := newFakeKV()
	s := newStore(kv)

	s.RecordBlock()

	assert.Equal(t, int64(1), s.BlockCount())
	require.Eventually(t, func() bool {
		kv.mu.Lock()
		defer kv.mu.Unlock()
		return string(kv.data[KeyBlockCount]) == `1`
	}, time.Second, 5*time.Millisecond)

	s.RecordBlock()
	s.RecordBlock()
	assert.Equal(t, int64(3), s.BlockCount(), "the in-memory counter never waits on the write")
}

func TestMergeRemoteAccountsReplaces(t *testing.T) {
	kv := newFakeKV()
	kv.seed(KeyRemoteAccounts, `["old1","old2"]`)
	s := newStore(kv)
	s.Load()

	s.MergeRemoteAccounts([]string{"new1", "new2", "new1"})

	assert.JSONEq(t, `["new1","new2"]`, string(kv.get(t, KeyRemoteAccounts)))
}

func TestMergeRemoteKeywordsUnions(t *testing.T) {
	kv := newFakeKV()
	kv.seed(KeyRemoteKeywords, `["manual","shared"]`)
	s := newStore(kv)
	s.Load()

	s.MergeRemoteKeywords([]string{"shared", "fresh"})

	var merged []string
	require.NoError(t, json.Unmarshal(kv.get(t, KeyRemoteKeywords), &merged))
	assert.ElementsMatch(t, []string{"manual", "shared", "fresh"}, merged,
		"manual additions must survive the merge")
	assert.JSONEq(t, `["shared","fresh"]`, string(kv.get(t, KeyServerKeywords)))
}

func TestExternalChangeFoldsIntoSnapshot(t *testing.T) {
	kv := newFakeKV()
	s := newStore(kv)
	s.Load()

	fired := 0
	s.SubscribeExternalChanges(func() { fired++ })

	kv.external(map[string]string{
		KeyBlockedKeywords: `["casino"]`,
		KeyEnabled:         `false`,
	})

	assert.Equal(t, 1, fired, "one batch fires the handler once")
	assert.Equal(t, []string{"casino"}, s.KeywordBlockList())
	assert.False(t, s.GlobalEnabled())
}

func TestExternalCounterChangeDoesNotTrigger(t *testing.T) {
	kv := newFakeKV()
	s := newStore(kv)
	s.Load()

	fired := 0
	s.SubscribeExternalChanges(func() { fired++ })

	kv.external(map[string]string{
		KeyBlockCount:    `99`,
		KeyLastUpdate:    `1700000000000`,
		KeyLastIndexLoad: `1700000000000`,
		KeyAccountCount:  `5`,
	})

	assert.Zero(t, fired, "counters and timestamps must not force a pass")
	assert.Equal(t, int64(99), s.BlockCount())
	assert.Equal(t, time.UnixMilli(1700000000000), s.LastRefresh())
}

func TestExternalUnknownKeyIgnored(t *testing.T) {
	kv := newFakeKV()
	s := newStore(kv)
	s.Load()

	fired := 0
	s.SubscribeExternalChanges(func() { fired++ })

	kv.external(map[string]string{"somethingElse": `"x"`})

	assert.Zero(t, fired)
}

func TestSubscribeTwiceRegistersOneWatch(t *testing.T) {
	kv := newFakeKV()
	s := newStore(kv)

	s.SubscribeExternalChanges(func() {})
	s.SubscribeExternalChanges(func() {})

	kv.mu.Lock()
	defer kv.mu.Unlock()
	assert.Len(t, kv.watchers, 1)
}

func TestNoteIndexLoadedPersistsCounts(t *testing.T) {
	kv := newFakeKV()
	clk := clock.NewMockClock(time.UnixMilli(1700000000000))
	s := New(kv, clk, log.NewNoopLogger())

	s.NoteIndexLoaded(12000, 340)

	assert.JSONEq(t, `1700000000000`, string(kv.get(t, KeyLastIndexLoad)))
	assert.JSONEq(t, `12000`, string(kv.get(t, KeyAccountCount)))
	assert.JSONEq(t, `340`, string(kv.get(t, KeyKeywordCount)))
}

func TestNoteRefreshed(t *testing.T) {
	kv := newFakeKV()
	clk := clock.NewMockClock(time.UnixMilli(1700000000000))
	s := New(kv, clk, log.NewNoopLogger())

	s.NoteRefreshed()

	assert.Equal(t, time.UnixMilli(1700000000000), s.LastRefresh())
	assert.JSONEq(t, `1700000000000`, string(kv.get(t, KeyLastUpdate)))
}
