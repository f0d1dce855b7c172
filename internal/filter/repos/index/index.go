// Package index holds the bulk remote-origin lookup structures: an
// exact-match account set and a substring-match keyword set. Both load
// independently and may be absent; callers treat an unloaded index as "no
// match" and fall back to the user-origin lists.
package index

import (
	"context"
	"fmt"
	"strings"
	"sync"

	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/axssbug/twitter-plugin/internal/filter/common/log"
)

// bloomFPRate sizes the account pre-check filter. The filter only short-cuts
// definite misses; hits are confirmed against the exact set, so the match
// itself stays exact regardless of the rate.
const bloomFPRate = 0.001

// AccountSource fetches the remote account artifact.
type AccountSource interface {
	FetchAccounts(ctx context.Context) ([]string, error)
}

// KeywordSource fetches the remote keyword artifact.
type KeywordSource interface {
	FetchKeywords(ctx context.Context) ([]string, error)
}

// Index is the fast lookup structure. A failed load leaves the prior snapshot
// (or the unloaded state) in place; lookups never fail, they return no-match.
type Index struct {
	mu       sync.RWMutex
	accounts map[string]struct{} // nil until the first successful load
	bloom    *bitsbloom.BloomFilter
	keywords []string // lower-cased, deduped, in artifact order

	logger log.Logger
}

// New returns an empty, unloaded Index.
func New(logger log.Logger) *Index {
	return &Index{logger: logger}
}

// LoadAccounts fetches the account artifact and swaps in a fresh exact-match
// set with a Bloom pre-check sized for it.
func (ix *Index) LoadAccounts(ctx context.Context, src AccountSource) error {
	list, err := src.FetchAccounts(ctx)
	if err != nil {
		return fmt.Errorf("loading account index: %w", err)
	}

	set := make(map[string]struct{}, len(list))
	for _, a := range list {
		set[normalizeHandle(a)] = struct{}{}
	}
	delete(set, "")

	bf := bitsbloom.NewWithEstimates(uint(max(len(set), 1)), bloomFPRate)
	for a := range set {
		bf.AddString(a)
	}

	ix.mu.Lock()
	ix.accounts = set
	ix.bloom = bf
	ix.mu.Unlock()

	ix.logger.Info(map[string]any{"accounts": len(set)}, "account index loaded")
	return nil
}

// LoadKeywords fetches the keyword artifact and swaps in a fresh keyword set.
// Iteration order is fixed per snapshot so repeated lookups of the same text
// return the same keyword.
func (ix *Index) LoadKeywords(ctx context.Context, src KeywordSource) error {
	list, err := src.FetchKeywords(ctx)
	if err != nil {
		return fmt.Errorf("loading keyword index: %w", err)
	}

	seen := make(map[string]struct{}, len(list))
	keywords := make([]string, 0, len(list))
	for _, k := range list {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keywords = append(keywords, k)
	}

	ix.mu.Lock()
	ix.keywords = keywords
	ix.mu.Unlock()

	ix.logger.Info(map[string]any{"keywords": len(keywords)}, "keyword index loaded")
	return nil
}

// HasAccount normalizes the handle (strip leading sigil, lower-case) and
// tests exact membership. Returns false when the account set is not loaded.
func (ix *Index) HasAccount(handle string) bool {
	cn := normalizeHandle(handle)
	if cn == "" {
		return false
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.accounts == nil {
		return false
	}
	if ix.bloom != nil && !ix.bloom.TestString(cn) {
		return false
	}
	_, ok := ix.accounts[cn]
	return ok
}

// MatchKeyword lower-cases text and returns the first indexed keyword it
// contains. Returns ok=false when nothing matches or the set is unloaded.
func (ix *Index) MatchKeyword(text string) (string, bool) {
	lower := strings.ToLower(text)

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	for _, k := range ix.keywords {
		if strings.Contains(lower, k) {
			return k, true
		}
	}
	return "", false
}

// AccountCount returns the size of the loaded account set.
func (ix *Index) AccountCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.accounts)
}

// KeywordCount returns the size of the loaded keyword set.
func (ix *Index) KeywordCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.keywords)
}

// Loaded reports whether the index is usable: the account set has loaded and
// the keyword set is non-empty.
func (ix *Index) Loaded() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.accounts != nil && len(ix.keywords) > 0
}

func normalizeHandle(h string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "@"))
}
