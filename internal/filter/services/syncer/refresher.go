package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/axssbug/twitter-plugin/internal/filter/common/clock"
	"github.com/axssbug/twitter-plugin/internal/filter/common/log"
	"github.com/axssbug/twitter-plugin/internal/filter/repos/index"
)

// RuleSink receives refreshed remote rule data and bookkeeping timestamps.
type RuleSink interface {
	MergeRemoteAccounts(list []string)
	MergeRemoteKeywords(list []string)
	LastRefresh() time.Time
	NoteRefreshed()
	NoteIndexLoaded(accounts, keywords int)
}

// Sources fetches the two remote artifacts.
type Sources interface {
	FetchAccounts(ctx context.Context) ([]string, error)
	FetchKeywords(ctx context.Context) ([]string, error)
}

// LookupLoader is the lookup index's load surface.
type LookupLoader interface {
	LoadAccounts(ctx context.Context, src index.AccountSource) error
	LoadKeywords(ctx context.Context, src index.KeywordSource) error
	AccountCount() int
	KeywordCount() int
}

// Refresher keeps the remote-origin rule data fresh: on start and on a fixed
// period it refreshes all sources when more than one period has elapsed since
// the last successful refresh. Sources load concurrently and fail
// independently; the engine keeps running on whatever data is present.
type Refresher struct {
	store    RuleSink
	index    LookupLoader
	src      Sources
	clk      clock.Clock
	interval time.Duration
	logger   log.Logger
}

// NewRefresher constructs a Refresher.
func NewRefresher(store RuleSink, ix LookupLoader, src Sources, clk clock.Clock, interval time.Duration, logger log.Logger) *Refresher {
	return &Refresher{store: store, index: ix, src: src, clk: clk, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled, refreshing stale data on start and on
// every tick.
func (r *Refresher) Run(ctx context.Context) {
	r.RefreshIfStale(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RefreshIfStale(ctx)
		}
	}
}

// RefreshIfStale refreshes all sources unless the last successful refresh is
// younger than the refresh interval.
func (r *Refresher) RefreshIfStale(ctx context.Context) {
	age := r.clk.Now().Sub(r.store.LastRefresh())
	if age < r.interval {
		r.logger.Debug(map[string]any{"age": age.String()}, "rule data still fresh, skipping refresh")
		return
	}
	r.RefreshAll(ctx)
}

// RefreshAll fetches both artifacts concurrently. Each artifact feeds the
// legacy list keys and the lookup index from a single fetch. One source
// exhausting its retries does not block or fail the other.
func (r *Refresher) RefreshAll(ctx context.Context) {
	var wg sync.WaitGroup
	var mu sync.Mutex
	accountsOK, keywordsOK := false, false

	wg.Add(2)
	go func() {
		defer wg.Done()
		list, err := r.src.FetchAccounts(ctx)
		if err != nil {
			r.logger.Warn(map[string]any{"error": err}, "account source unavailable")
			return
		}
		r.store.MergeRemoteAccounts(list)
		if err := r.index.LoadAccounts(ctx, fetchedAccounts(list)); err != nil {
			r.logger.Warn(map[string]any{"error": err}, "account index rebuild failed")
			return
		}
		mu.Lock()
		accountsOK = true
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		list, err := r.src.FetchKeywords(ctx)
		if err != nil {
			r.logger.Warn(map[string]any{"error": err}, "keyword source unavailable")
			return
		}
		r.store.MergeRemoteKeywords(list)
		if err := r.index.LoadKeywords(ctx, fetchedKeywords(list)); err != nil {
			r.logger.Warn(map[string]any{"error": err}, "keyword index rebuild failed")
			return
		}
		mu.Lock()
		keywordsOK = true
		mu.Unlock()
	}()
	wg.Wait()

	if accountsOK || keywordsOK {
		r.store.NoteRefreshed()
		r.store.NoteIndexLoaded(r.index.AccountCount(), r.index.KeywordCount())
	}
	r.logger.Info(map[string]any{
		"accounts_ok": accountsOK,
		"keywords_ok": keywordsOK,
	}, "remote refresh finished")
}

// fetchedAccounts adapts an already-fetched artifact to the index loader, so
// the artifact is fetched once per refresh.
type fetchedAccounts []string

func (l fetchedAccounts) FetchAccounts(context.Context) ([]string, error) { return l, nil }

type fetchedKeywords []string

func (l fetchedKeywords) FetchKeywords(context.Context) ([]string, error) { return l, nil }
