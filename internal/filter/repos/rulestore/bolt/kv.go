// Package bolt persists the shared rule state in a bbolt database and fans
// out change notifications to watchers, standing in for the host platform's
// shared storage area with its change feed.
package bolt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/axssbug/twitter-plugin/internal/filter/repos/rulestore"
)

var bucketState = []byte("state")

// KV implements rulestore.KV over a single bbolt bucket with JSON values.
type KV struct {
	db *bbolt.DB

	mu       sync.Mutex
	watchers map[int]rulestore.WatchFunc
	nextID   int
}

// New opens (or creates) a Bolt database at path and ensures the state bucket
// exists.
func New(path string) (*KV, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketState)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &KV{db: db, watchers: make(map[int]rulestore.WatchFunc)}, nil
}

func (s *KV) Close() error { return s.db.Close() }

// Get returns the raw JSON value stored under key.
func (s *KV) Get(key string) (json.RawMessage, bool, error) {
	var out json.RawMessage
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketState).Get([]byte(key))
		if v != nil {
			out = bytes.Clone(v)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("reading %q: %w", key, err)
	}
	return out, out != nil, nil
}

// Set writes one key and notifies watchers with a single-change batch.
func (s *KV) Set(key string, value any) error {
	return s.SetMulti(map[string]any{key: value})
}

// SetMulti writes all keys in one transaction and notifies watchers with one
// batch, so multi-key updates coalesce downstream. Writes that leave a value
// byte-identical are dropped from the batch.
func (s *KV) SetMulti(values map[string]any) error {
	batch := make([]rulestore.Change, 0, len(values))

	// Deterministic key order keeps batches stable for observers.
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketState)
		for _, k := range keys {
			raw, err := json.Marshal(values[k])
			if err != nil {
				return fmt.Errorf("encoding %q: %w", k, err)
			}
			old := b.Get([]byte(k))
			if bytes.Equal(old, raw) {
				continue
			}
			var oldCopy json.RawMessage
			if old != nil {
				oldCopy = bytes.Clone(old)
			}
			if err := b.Put([]byte(k), raw); err != nil {
				return fmt.Errorf("writing %q: %w", k, err)
			}
			batch = append(batch, rulestore.Change{Key: k, Old: oldCopy, New: raw})
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(batch) > 0 {
		s.notify(batch)
	}
	return nil
}

// Watch registers fn for change batches. Notifications are delivered
// synchronously in registration order.
func (s *KV) Watch(fn rulestore.WatchFunc) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

func (s *KV) notify(batch []rulestore.Change) {
	s.mu.Lock()
	ids := make([]int, 0, len(s.watchers))
	for id := range s.watchers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]rulestore.WatchFunc, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.watchers[id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(batch)
	}
}

var _ rulestore.KV = (*KV)(nil)
