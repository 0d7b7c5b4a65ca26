package prefstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bnema/prefstore/codec"
	"github.com/bnema/prefstore/internal/logging"
)

// Restore loads the persisted document into the cache, replacing its
// contents. Concurrent calls coalesce into one execution and share its
// outcome, including cancellation. A missing document is a trivial
// success; an unreadable or corrupt one logs a warning and keeps the
// current cache rather than failing startup. Returns the number of
// settings restored.
func (s *Store) Restore(ctx context.Context) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	v, err, _ := s.flight.Do("restore", func() (any, error) {
		return s.restore(ctx)
	})
	n, _ := v.(int)
	return n, err
}

func (s *Store) restore(ctx context.Context) (n int, err error) {
	// A panicking naming policy runs inside; it must become the
	// operation's error, never escape the coalesced call.
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("restore panicked: %v", r)
		}
	}()

	log := s.logger(ctx)
	path := s.opts.filePath()

	if err := s.mu.LockContext(ctx); err != nil {
		return 0, fmt.Errorf("failed to acquire write lock: %w", err)
	}
	defer s.mu.Unlock()

	if !s.opts.Backend.Exists(path) {
		log.Debug().Str("path", path).Msg("no settings document, nothing to restore")
		s.noteRestore(0)
		return 0, nil
	}

	doc, err := s.opts.Backend.ReadDocument(ctx, path)
	if err != nil {
		if isCancellation(err) {
			return 0, err
		}
		// An unreadable or corrupt document must not fail startup; the
		// cache keeps its current values and the next persist rewrites
		// the document.
		log.Warn().Err(err).Str("path", path).Msg("settings document unreadable, keeping current settings")
		s.noteRestore(0)
		return 0, nil
	}

	s.categories = make(map[string]map[string]Cell, len(doc))
	s.count = 0
	for _, cat := range sortedKeys(doc) {
		normCat := s.opts.Naming(cat)
		bucket := s.categories[normCat]
		if bucket == nil {
			bucket = make(map[string]Cell, len(doc[cat]))
			s.categories[normCat] = bucket
		}
		values := doc[cat]
		for _, key := range sortedKeys(values) {
			normKey := s.opts.Naming(key)
			// First value wins when normalization folds two on-disk keys
			// into one.
			if _, exists := bucket[normKey]; exists {
				continue
			}
			bucket[normKey] = &rawCell{raw: values[key]}
			s.count++
		}
	}
	n = s.count

	if mod, ok := s.opts.Backend.LastWriteTime(path); ok {
		s.setLastUpdate(mod)
	}
	s.noteRestore(n)

	log.Debug().Int("settings", n).Str("path", path).Msg("settings restored")
	return n, nil
}

// Persist writes a cache snapshot to the document, skipping the write
// while the document is younger than UpdateInterval. Concurrent calls
// coalesce into one execution and share its outcome, including
// cancellation. Unregistered cells, default values (with
// OmitDefaultValues) and entries rejected by PersistFilter are dropped
// from the snapshot. Returns the number of settings written; a debounced
// skip returns (0, nil).
func (s *Store) Persist(ctx context.Context) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	return s.persistShared(ctx, false)
}

func (s *Store) persistShared(ctx context.Context, force bool) (int, error) {
	v, err, _ := s.flight.Do("persist", func() (any, error) {
		return s.persist(ctx, force)
	})
	n, _ := v.(int)
	return n, err
}

func (s *Store) persist(ctx context.Context, force bool) (n int, err error) {
	// User-supplied persist filters and naming policies run inside; a
	// panic must become the operation's error, never escape the
	// coalesced call.
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("persist panicked: %v", r)
		}
	}()

	log := s.logger(ctx)
	path := s.opts.filePath()

	// Read lock only: persisting enumerates, it never mutates the cache.
	// The lock is held across the disk write so a restore cannot slip in
	// between snapshot and write; it also orders this persist after any
	// in-flight restore.
	if err := s.mu.RLockContext(ctx); err != nil {
		return 0, fmt.Errorf("failed to acquire read lock: %w", err)
	}
	defer s.mu.RUnlock()

	if !force && !s.stale() {
		log.Debug().Str("path", path).Msg("persist skipped, document is fresh")
		return 0, nil
	}

	var doc codec.Document
	doc, n = s.snapshotLocked()

	s.noteSelfWrite()
	if err := s.opts.Backend.WriteDocument(ctx, path, doc); err != nil {
		if isCancellation(err) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to write settings document: %w", err)
	}

	if mod, ok := s.opts.Backend.LastWriteTime(path); ok {
		s.setLastUpdate(mod)
	} else {
		s.setLastUpdate(time.Now())
	}
	s.notePersist(n)

	log.Debug().Int("settings", n).Str("path", path).Msg("settings persisted")
	return n, nil
}

// snapshotLocked builds the document to write. Caller holds at least the
// read lock.
func (s *Store) snapshotLocked() (codec.Document, int) {
	doc := make(codec.Document, len(s.categories))
	n := 0
	for cat, bucket := range s.categories {
		out := make(map[string]json.RawMessage, len(bucket))
		for key, cell := range bucket {
			if !cell.IsRegistered() {
				continue
			}
			if s.opts.OmitDefaultValues && cell.isDefault() {
				continue
			}
			if s.opts.PersistFilter != nil && !s.opts.PersistFilter(cat, key) {
				continue
			}
			raw, err := cell.encode()
			if err != nil {
				s.log.Warn().Str("category", cat).Str("key", key).Err(err).
					Msg("setting not serializable, skipping")
				continue
			}
			out[key] = raw
			n++
		}
		doc[cat] = out
	}
	return doc, n
}

// Flush cancels any pending auto-persist and writes immediately when
// there are unsaved changes, bypassing the debounce window.
func (s *Store) Flush(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.flush(ctx)
}

// Close stops the watcher and any pending auto-persist, flushes unsaved
// changes, and marks the store closed. Later operations return ErrClosed;
// GetOrAdd hands out detached cells.
func (s *Store) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.StopWatch()
	return s.flush(ctx)
}

func (s *Store) flush(ctx context.Context) error {
	s.pmu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	dirty := s.dirty
	s.pmu.Unlock()

	if !dirty {
		return nil
	}

	// Joining an in-flight unforced persist shares its outcome,
	// including a debounce skip. Retry until a forced write clears the
	// dirty flag.
	for {
		if _, err := s.persistShared(ctx, true); err != nil {
			return err
		}
		s.pmu.Lock()
		dirty = s.dirty
		s.pmu.Unlock()
		if !dirty {
			return nil
		}
	}
}

// markDirty records unsaved changes and, when auto-persist is enabled,
// rearms the delayed write.
func (s *Store) markDirty() {
	if s.closed.Load() {
		return
	}

	s.pmu.Lock()
	s.dirty = true
	if s.opts.AutoPersist > 0 {
		if s.timer != nil {
			s.timer.Stop()
		}
		s.timer = time.AfterFunc(s.opts.AutoPersist, s.autoPersist)
	}
	s.pmu.Unlock()
}

func (s *Store) autoPersist() {
	if s.closed.Load() {
		return
	}

	ctx := logging.WithContext(context.Background(), s.log)
	if _, err := s.Persist(ctx); err != nil {
		if !errors.Is(err, ErrClosed) {
			s.log.Warn().Err(err).Msg("auto persist failed")
		}
		return
	}

	// The write may have been debounced away; rearm so the change lands
	// once the document is old enough.
	s.pmu.Lock()
	if s.dirty && s.opts.AutoPersist > 0 && !s.closed.Load() {
		delay := time.Until(s.lastUpdate.Add(s.opts.UpdateInterval))
		if delay < s.opts.AutoPersist {
			delay = s.opts.AutoPersist
		}
		if s.timer != nil {
			s.timer.Stop()
		}
		s.timer = time.AfterFunc(delay, s.autoPersist)
	}
	s.pmu.Unlock()
}

// stale reports whether the debounce window has passed since the document
// was last written.
func (s *Store) stale() bool {
	s.pmu.Lock()
	defer s.pmu.Unlock()
	return time.Now().After(s.lastUpdate.Add(s.opts.UpdateInterval))
}

func (s *Store) setLastUpdate(t time.Time) {
	s.pmu.Lock()
	s.lastUpdate = t
	s.pmu.Unlock()
}

func (s *Store) noteRestore(n int) {
	s.pmu.Lock()
	s.restored += uint64(n)
	s.lastRestore = time.Now()
	s.pmu.Unlock()
}

func (s *Store) notePersist(n int) {
	s.pmu.Lock()
	s.persisted += uint64(n)
	s.lastPersist = time.Now()
	s.dirty = false
	s.pmu.Unlock()
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
