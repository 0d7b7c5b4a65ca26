// Package prefstore implements a typed key-value settings store with
// asynchronous disk persistence. Settings live in an in-memory cache of
// categories, each holding typed change-notifying cells; the cache is
// guarded by one global reader/writer lock and serialized to an optionally
// compressed JSON document, with debounced writes based on the document's
// last-write time.
//
// Typical use:
//
//	store, err := prefstore.New(prefstore.Options{
//		DatabasePath: cfgDir,
//		Naming:       prefstore.LowercaseNames,
//	})
//	if err != nil { ... }
//	_, _ = store.Restore(ctx)
//
//	theme := prefstore.GetOrAdd(store, "UI", "Theme", "Light")
//	theme.Set("Dark")
//
//	_, _ = store.Persist(ctx)
package prefstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/bnema/prefstore/internal/logging"
	"github.com/bnema/prefstore/internal/syncx"
)

// Store is the settings cache plus its persistence coordinator. All
// methods are safe for concurrent use.
type Store struct {
	opts Options
	log  zerolog.Logger

	// mu guards categories and count. One global lock, not per category:
	// restore, persist and clear need a consistent view across categories.
	mu         *syncx.RWMutex
	categories map[string]map[string]Cell
	count      int

	// flight coalesces concurrent restores and persists into one
	// execution per kind, sharing its outcome.
	flight singleflight.Group

	// pmu guards the persistence bookkeeping.
	pmu         sync.Mutex
	lastUpdate  time.Time
	dirty       bool
	timer       *time.Timer
	restored    uint64
	persisted   uint64
	lastRestore time.Time
	lastPersist time.Time

	// watchMu guards the watcher state.
	watchMu     sync.Mutex
	watch       *watchHandle
	reloadCbs   []func(restored int)
	selfWriteAt time.Time

	closed atomic.Bool
}

// New creates a store with the given options. The store starts empty; call
// Restore to load previously persisted settings.
func New(opts Options) (*Store, error) {
	opts.applyDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	log := logging.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	return &Store{
		opts:       opts,
		log:        log.With().Str("component", "prefstore").Logger(),
		mu:         syncx.NewRWMutex(),
		categories: make(map[string]map[string]Cell),
	}, nil
}

// GetOrAdd returns the setting for category and key, creating it with
// initial when absent. An existing cell of the right type is returned
// as-is and initial is ignored. A value restored from disk without a type
// yet, or a cell registered under another type, is converted through its
// JSON representation; when conversion fails the slot is overwritten with
// a fresh cell holding initial.
//
// On a closed store GetOrAdd returns a detached, unregistered cell holding
// initial, so callers always receive a usable cell.
func GetOrAdd[T any](s *Store, category, key string, initial T) *Setting[T] {
	cell, _ := getOrAdd(context.Background(), s, category, key, initial)
	return cell
}

// GetOrAddContext is GetOrAdd with a cancellable lock acquisition. On
// cancellation it returns a detached cell holding initial together with
// the context error.
func GetOrAddContext[T any](ctx context.Context, s *Store, category, key string, initial T) (*Setting[T], error) {
	return getOrAdd(ctx, s, category, key, initial)
}

func getOrAdd[T any](ctx context.Context, s *Store, category, key string, initial T) (cell *Setting[T], err error) {
	// A panicking naming policy must not escape; callers are promised a
	// usable cell on any failure.
	defer func() {
		if r := recover(); r != nil {
			cell = NewSetting(initial)
			err = fmt.Errorf("get or add %s/%s panicked: %v", category, key, r)
		}
	}()

	category, key = s.normalize(category, key)

	if s.closed.Load() {
		return NewSetting(initial), ErrClosed
	}

	// Optimistic read: the common case is an existing, correctly typed
	// cell.
	if err := s.mu.RLockContext(ctx); err != nil {
		return NewSetting(initial), err
	}
	if c, ok := s.lookup(category, key); ok {
		if typed, ok := c.(*Setting[T]); ok {
			s.mu.RUnlock()
			return typed, nil
		}
	}
	s.mu.RUnlock()

	// Upgrade to the write lock and re-check; another goroutine may have
	// created or converted the cell in between.
	if err := s.mu.LockContext(ctx); err != nil {
		return NewSetting(initial), err
	}
	defer s.mu.Unlock()

	bucket := s.categories[category]
	if bucket == nil {
		bucket = make(map[string]Cell)
		s.categories[category] = bucket
	}

	existing, ok := bucket[key]
	if !ok {
		cell := newSetting(s, initial)
		bucket[key] = cell
		s.count++
		s.markDirty()
		return cell, nil
	}

	if typed, ok := existing.(*Setting[T]); ok {
		return typed, nil
	}

	cell = convertCell(s, category, key, existing, initial)
	bucket[key] = cell
	s.markDirty()
	return cell, nil
}

// convertCell re-interprets a cell of the wrong shape through its JSON
// encoding. A raw cell decodes into the requested type; a typed cell of
// another type round-trips through JSON the same way. Double failure
// discards the stored value in favor of initial.
func convertCell[T any](s *Store, category, key string, existing Cell, initial T) *Setting[T] {
	raw, err := existing.encode()
	if err == nil {
		var v T
		if err = json.Unmarshal(raw, &v); err == nil {
			return newSetting(s, v)
		}
	}
	s.log.Debug().Str("category", category).Str("key", key).Err(err).
		Msg("stored value does not match requested type, using initial value")
	return newSetting(s, initial)
}

// Remove deletes the setting for category and key, reporting whether it
// existed. The category bucket itself stays, even when emptied.
func (s *Store) Remove(category, key string) bool {
	category, key = s.normalize(category, key)

	s.mu.Lock()
	removed := false
	if bucket, ok := s.categories[category]; ok {
		if _, removed = bucket[key]; removed {
			delete(bucket, key)
			s.count--
		}
	}
	s.mu.Unlock()

	if removed {
		s.markDirty()
	}
	return removed
}

// Contains reports whether a setting exists for category and key.
func (s *Store) Contains(category, key string) bool {
	category, key = s.normalize(category, key)

	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.lookup(category, key)
	return ok
}

// Clear drops every category and setting.
func (s *Store) Clear() {
	s.mu.Lock()
	s.categories = make(map[string]map[string]Cell)
	s.count = 0
	s.mu.Unlock()

	s.markDirty()
}

// Len returns the number of settings across all categories.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Categories returns the category names, sorted.
func (s *Store) Categories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.categories))
	for name := range s.categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Keys returns the setting names in a category, sorted.
func (s *Store) Keys(category string) []string {
	category = s.opts.Naming(category)

	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket := s.categories[category]
	keys := make([]string, 0, len(bucket))
	for key := range bucket {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// ForEach calls fn for every setting, stopping early when fn returns
// false. Iteration walks a snapshot taken under the read lock and fn runs
// outside it, so fn may use the store and the cells it receives.
func (s *Store) ForEach(fn func(category, key string, c Cell) bool) {
	type entry struct {
		category, key string
		cell          Cell
	}

	s.mu.RLock()
	entries := make([]entry, 0, s.count)
	for cat, bucket := range s.categories {
		for key, cell := range bucket {
			entries = append(entries, entry{cat, key, cell})
		}
	}
	s.mu.RUnlock()

	for _, e := range entries {
		if !fn(e.category, e.key, e.cell) {
			return
		}
	}
}

// FilePath returns the effective settings document path, with the
// compression suffix applied.
func (s *Store) FilePath() string {
	return s.opts.filePath()
}

// lookup finds the cell for already-normalized names. Caller holds the
// lock.
func (s *Store) lookup(category, key string) (Cell, bool) {
	bucket, ok := s.categories[category]
	if !ok {
		return nil, false
	}
	c, ok := bucket[key]
	return c, ok
}

func (s *Store) normalize(category, key string) (string, string) {
	return s.opts.Naming(category), s.opts.Naming(key)
}

// logger returns the context logger when one is attached, falling back to
// the store's configured logger.
func (s *Store) logger(ctx context.Context) *zerolog.Logger {
	if l := logging.FromContext(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &s.log
}
