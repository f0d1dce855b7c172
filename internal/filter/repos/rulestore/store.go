// Package rulestore owns the in-memory snapshot of all rule data and its
// reconciliation with the shared persisted store.
//
// The store is the single writer of the snapshot within this process, but the
// persisted backing is shared across execution contexts: changes made
// elsewhere arrive through the KV watch feed and are folded into the snapshot
// before subscribers are notified. Writes race with last-write-wins semantics
// at key granularity; the design accepts eventual, not immediate,
// cross-context consistency.
package rulestore

import (
	"slices"
	"sync"
	"time"

	"github.com/axssbug/twitter-plugin/internal/filter/common/clock"
	"github.com/axssbug/twitter-plugin/internal/filter/common/log"
	"github.com/axssbug/twitter-plugin/internal/filter/domain"
)

type categoryState struct {
	block   []string
	allow   []string
	enabled bool
}

// Store holds the current rule snapshot and the cumulative block counter.
type Store struct {
	mu     sync.RWMutex
	kv     KV
	clk    clock.Clock
	logger log.Logger

	// Legacy whole-list model: remote-origin lists merged into plain keys.
	// Still read, merged and persisted for storage compatibility, but not
	// consulted on the classification hot path (the lookup index is).
	remoteAccounts []string
	remoteKeywords []string
	serverKeywords []string

	cats          map[domain.Category]*categoryState
	globalEnabled bool
	blockCount    int64

	lastUpdate    time.Time
	lastIndexLoad time.Time

	handler func()
	unwatch func()
}

// New constructs a Store over the given KV backing. Call Load to rehydrate
// and SubscribeExternalChanges to start folding in external writes.
func New(kv KV, clk clock.Clock, logger log.Logger) *Store {
	cats := make(map[domain.Category]*categoryState, len(domain.Categories))
	for _, c := range domain.Categories {
		cats[c] = &categoryState{enabled: true}
	}
	return &Store{
		kv:            kv,
		clk:           clk,
		logger:        logger,
		cats:          cats,
		globalEnabled: true,
	}
}

// Load rehydrates the in-memory snapshot from the persisted store. Absent
// flags default to enabled. Load never fails: a read error or malformed value
// leaves the corresponding field untouched and is logged.
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.remoteAccounts = s.loadStrings(KeyRemoteAccounts, s.remoteAccounts)
	s.remoteKeywords = s.loadStrings(KeyRemoteKeywords, s.remoteKeywords)
	s.serverKeywords = s.loadStrings(KeyServerKeywords, s.serverKeywords)

	for _, c := range domain.Categories {
		ck := keysByCategory[c]
		cs := s.cats[c]
		cs.block = s.loadStrings(ck.block, cs.block)
		cs.allow = s.loadStrings(ck.allow, cs.allow)
		cs.enabled = s.loadBool(ck.enabled, true)
	}
	s.globalEnabled = s.loadBool(KeyEnabled, true)
	s.blockCount = s.loadInt64(KeyBlockCount, s.blockCount)
	s.lastUpdate = s.loadEpochMillis(KeyLastUpdate, s.lastUpdate)
	s.lastIndexLoad = s.loadEpochMillis(KeyLastIndexLoad, s.lastIndexLoad)

	s.logger.Info(map[string]any{
		"remote_accounts": len(s.remoteAccounts),
		"remote_keywords": len(s.remoteKeywords),
		"block_count":     s.blockCount,
		"enabled":         s.globalEnabled,
	}, "rule snapshot loaded")
}

func (s *Store) loadStrings(key string, prior []string) []string {
	raw, found, err := s.kv.Get(key)
	if err != nil {
		s.logger.Error(map[string]any{"key": key, "error": err}, "store read failed")
		return prior
	}
	if !found {
		return prior
	}
	list, ok := decodeStrings(raw)
	if !ok {
		s.logger.Debug(map[string]any{"key": key}, "coercing malformed stored list")
		return nil
	}
	return list
}

func (s *Store) loadBool(key string, def bool) bool {
	raw, found, err := s.kv.Get(key)
	if err != nil {
		s.logger.Error(map[string]any{"key": key, "error": err}, "store read failed")
		return def
	}
	if !found {
		return def
	}
	return decodeBool(raw, def)
}

func (s *Store) loadInt64(key string, def int64) int64 {
	raw, found, err := s.kv.Get(key)
	if err != nil {
		s.logger.Error(map[string]any{"key": key, "error": err}, "store read failed")
		return def
	}
	if !found {
		return def
	}
	return decodeInt64(raw, def)
}

func (s *Store) loadEpochMillis(key string, prior time.Time) time.Time {
	ms := s.loadInt64(key, 0)
	if ms == 0 {
		return prior
	}
	return time.UnixMilli(ms)
}

// MergeRemoteAccounts replaces the legacy remote account list with the latest
// snapshot and persists it. Used only by the refresh path; classification
// consults the lookup index instead.
func (s *Store) MergeRemoteAccounts(list []string) {
	deduped := dedupe(list)
	s.mu.Lock()
	s.remoteAccounts = deduped
	s.mu.Unlock()
	s.persist(KeyRemoteAccounts, deduped)
}

// MergeRemoteKeywords merges server keywords with whatever is already in the
// merged keyword list (preserving manual additions made elsewhere) and
// persists both the merged list and the raw server list.
func (s *Store) MergeRemoteKeywords(list []string) {
	s.mu.Lock()
	merged := dedupe(append(slices.Clone(list), s.remoteKeywords...))
	server := dedupe(list)
	s.remoteKeywords = merged
	s.serverKeywords = server
	s.mu.Unlock()
	s.persistMulti(map[string]any{
		KeyRemoteKeywords: merged,
		KeyServerKeywords: server,
	})
}

// SubscribeExternalChanges registers the single change handler. Every watch
// batch is folded into the snapshot; the handler runs once per batch when at
// least one rule-bearing key changed, so rapid multi-key writes coalesce.
func (s *Store) SubscribeExternalChanges(handler func()) {
	s.mu.Lock()
	s.handler = handler
	alreadyWatching := s.unwatch != nil
	s.mu.Unlock()
	if !alreadyWatching {
		s.mu.Lock()
		s.unwatch = s.kv.Watch(s.handleBatch)
		s.mu.Unlock()
	}
}

func (s *Store) handleBatch(batch []Change) {
	s.mu.Lock()
	trigger := false
	for _, ch := range batch {
		if s.applyChange(ch) && ruleKeys[ch.Key] {
			trigger = true
		}
	}
	handler := s.handler
	s.mu.Unlock()

	if trigger && handler != nil {
		handler()
	}
}

// applyChange folds one key change into the snapshot. Returns true when the
// key is recognized. Caller holds the write lock.
func (s *Store) applyChange(ch Change) bool {
	setStrings := func(dst *[]string) {
		if list, ok := decodeStrings(ch.New); ok {
			*dst = list
		} else {
			*dst = nil
		}
	}
	switch ch.Key {
	case KeyRemoteAccounts:
		setStrings(&s.remoteAccounts)
	case KeyRemoteKeywords:
		setStrings(&s.remoteKeywords)
	case KeyServerKeywords:
		setStrings(&s.serverKeywords)
	case KeyBlockedAccounts:
		setStrings(&s.cats[domain.CategoryAccount].block)
	case KeyAllowedAccounts:
		setStrings(&s.cats[domain.CategoryAccount].allow)
	case KeyBlockedUsernames:
		setStrings(&s.cats[domain.CategoryUsername].block)
	case KeyAllowedUsernames:
		setStrings(&s.cats[domain.CategoryUsername].allow)
	case KeyBlockedKeywords:
		setStrings(&s.cats[domain.CategoryKeyword].block)
	case KeyAllowedKeywords:
		setStrings(&s.cats[domain.CategoryKeyword].allow)
	case KeyEnabled:
		s.globalEnabled = decodeBool(ch.New, true)
	case KeyAccountEnabled:
		s.cats[domain.CategoryAccount].enabled = decodeBool(ch.New, true)
	case KeyUsernameEnabled:
		s.cats[domain.CategoryUsername].enabled = decodeBool(ch.New, true)
	case KeyKeywordEnabled:
		s.cats[domain.CategoryKeyword].enabled = decodeBool(ch.New, true)
	case KeyBlockCount:
		s.blockCount = decodeInt64(ch.New, s.blockCount)
	case KeyLastUpdate:
		if ms := decodeInt64(ch.New, 0); ms != 0 {
			s.lastUpdate = time.UnixMilli(ms)
		}
	case KeyLastIndexLoad:
		if ms := decodeInt64(ch.New, 0); ms != 0 {
			s.lastIndexLoad = time.UnixMilli(ms)
		}
	case KeyAccountCount, KeyKeywordCount:
		// informational only, nothing held in memory
	default:
		return false
	}
	return true
}

// RecordBlock increments the cumulative block counter and persists the new
// value fire-and-forget: a failed write is logged, not retried, and does not
// block the caller. The counter is a lifetime count, never decremented.
func (s *Store) RecordBlock() {
	s.mu.Lock()
	s.blockCount++
	n := s.blockCount
	s.mu.Unlock()

	go func() {
		if err := s.kv.Set(KeyBlockCount, n); err != nil {
			s.logger.Error(map[string]any{"count": n, "error": err}, "persisting block count failed")
		}
	}()
}

// BlockCount returns the cumulative block counter.
func (s *Store) BlockCount() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blockCount
}

// SetGlobalEnabled flips the master switch. The write is issued before
// returning; a store failure is logged only, memory stays authoritative.
func (s *Store) SetGlobalEnabled(enabled bool) {
	s.mu.Lock()
	s.globalEnabled = enabled
	s.mu.Unlock()
	s.persist(KeyEnabled, enabled)
}

// SetEnabled flips one category's switch, persisting like SetGlobalEnabled.
func (s *Store) SetEnabled(cat domain.Category, enabled bool) {
	s.mu.Lock()
	cs, ok := s.cats[cat]
	if ok {
		cs.enabled = enabled
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	s.persist(keysByCategory[cat].enabled, enabled)
}

// GlobalEnabled reports the master switch state.
func (s *Store) GlobalEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.globalEnabled
}

// CategoryEnabled reports one category's switch state.
func (s *Store) CategoryEnabled(cat domain.Category) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.cats[cat]
	return ok && cs.enabled
}

// AddToAllowList inserts value into the category's allow-list (idempotent,
// sigil-aware) and removes that exact value from the block-list, so a value is
// never in both lists at once. Both lists persist in one batch.
func (s *Store) AddToAllowList(cat domain.Category, value string) {
	s.addExclusive(cat, value, true)
}

// AddToBlockList is the mirror of AddToAllowList.
func (s *Store) AddToBlockList(cat domain.Category, value string) {
	s.addExclusive(cat, value, false)
}

func (s *Store) addExclusive(cat domain.Category, value string, allow bool) {
	if value == "" {
		return
	}
	cs, ok := s.cats[cat]
	if !ok {
		return
	}
	ck := keysByCategory[cat]

	s.mu.Lock()
	var target, other *[]string
	if allow {
		target, other = &cs.allow, &cs.block
	} else {
		target, other = &cs.block, &cs.allow
	}
	if !containsVariant(*target, value, ck.sigil) {
		*target = append(*target, value)
	}
	*other = remove(*other, value)
	allowList := slices.Clone(cs.allow)
	blockList := slices.Clone(cs.block)
	s.mu.Unlock()

	s.persistMulti(map[string]any{
		ck.allow: allowList,
		ck.block: blockList,
	})
}

// InAllowList reports whether value, or its sigil-prefixed variant, is an
// exact member of the category's allow-list.
func (s *Store) InAllowList(cat domain.Category, value string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.cats[cat]
	return ok && containsVariant(cs.allow, value, keysByCategory[cat].sigil)
}

// InBlockList reports whether value, or its sigil-prefixed variant, is an
// exact member of the category's block-list.
func (s *Store) InBlockList(cat domain.Category, value string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.cats[cat]
	return ok && containsVariant(cs.block, value, keysByCategory[cat].sigil)
}

// KeywordAllowList returns a copy of the keyword allow-list for substring
// scanning.
func (s *Store) KeywordAllowList() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.cats[domain.CategoryKeyword].allow)
}

// KeywordBlockList returns a copy of the keyword block-list in list order.
func (s *Store) KeywordBlockList() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.cats[domain.CategoryKeyword].block)
}

// LastRefresh returns when the remote lists were last refreshed.
func (s *Store) LastRefresh() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

// NoteRefreshed stamps a successful remote refresh.
func (s *Store) NoteRefreshed() {
	now := s.clk.Now()
	s.mu.Lock()
	s.lastUpdate = now
	s.mu.Unlock()
	s.persist(KeyLastUpdate, now.UnixMilli())
}

// NoteIndexLoaded records a successful lookup-index load: the load timestamp
// and the per-set cardinalities, for the summary surface.
func (s *Store) NoteIndexLoaded(accounts, keywords int) {
	now := s.clk.Now()
	s.mu.Lock()
	s.lastIndexLoad = now
	s.mu.Unlock()
	s.persistMulti(map[string]any{
		KeyLastIndexLoad: now.UnixMilli(),
		KeyAccountCount:  int64(accounts),
		KeyKeywordCount:  int64(keywords),
	})
}

// Close stops watching the persisted store.
func (s *Store) Close() {
	s.mu.Lock()
	unwatch := s.unwatch
	s.unwatch = nil
	s.mu.Unlock()
	if unwatch != nil {
		unwatch()
	}
}

func (s *Store) persist(key string, value any) {
	if err := s.kv.Set(key, value); err != nil {
		s.logger.Error(map[string]any{"key": key, "error": err}, "store write failed")
	}
}

func (s *Store) persistMulti(values map[string]any) {
	if err := s.kv.SetMulti(values); err != nil {
		s.logger.Error(map[string]any{"keys": len(values), "error": err}, "store write failed")
	}
}

// containsVariant checks list membership for value and, when the category has
// an address sigil, its sigil-prefixed variant.
func containsVariant(list []string, value, sigil string) bool {
	if value == "" {
		return false
	}
	if slices.Contains(list, value) {
		return true
	}
	return sigil != "" && slices.Contains(list, sigil+value)
}

func remove(list []string, value string) []string {
	out := list[:0]
	for _, v := range list {
		if v != value {
			out = append(out, v)
		}
	}
	return out
}

func dedupe(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, v := range list {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
