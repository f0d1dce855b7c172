package rulestore

import "encoding/json"

// Change describes one key's transition in the persisted store.
type Change struct {
	Key string
	Old json.RawMessage // nil when the key was absent
	New json.RawMessage
}

// WatchFunc receives one batch of changes. Keys written together arrive
// together, so downstream coalescing works at batch granularity.
type WatchFunc func(batch []Change)

// KV abstracts the shared persisted key-value store. Values are JSON. The
// store is shared across execution contexts with last-write-wins semantics at
// key granularity; Watch delivers both local and externally-originated writes.
type KV interface {
	// Get returns the raw value for key, with found=false when absent.
	Get(key string) (value json.RawMessage, found bool, err error)
	// Set writes a single key and notifies watchers with a one-change batch.
	Set(key string, value any) error
	// SetMulti writes several keys and notifies watchers with a single batch.
	SetMulti(values map[string]any) error
	// Watch registers a listener for change batches. The returned function
	// unregisters it.
	Watch(fn WatchFunc) (cancel func())
	Close() error
}
