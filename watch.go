package prefstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// selfWriteWindow is how long after our own write a file event is treated
// as the echo of that write rather than an external modification.
const selfWriteWindow = time.Second

// watchHandle identifies one watcher activation, so a loop that exits on
// its own (context cancelled, event channel closed) releases exactly its
// own slot and never a successor's.
type watchHandle struct {
	cancel context.CancelFunc
}

// OnReload registers fn to run after the store reloads in response to an
// external document change. fn receives the number of settings restored.
func (s *Store) OnReload(fn func(restored int)) {
	s.watchMu.Lock()
	s.reloadCbs = append(s.reloadCbs, fn)
	s.watchMu.Unlock()
}

// Watch starts monitoring the settings document for external
// modifications, restoring the store and notifying OnReload callbacks
// when the document changes on disk. The store's own writes are ignored.
// Watching stops when ctx is cancelled, StopWatch is called, or the store
// closes. Only file-backed documents emit change events.
func (s *Store) Watch(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory, not the file: atomic saves replace the file,
	// which would silently detach a file-level watch.
	dir := filepath.Dir(s.opts.filePath())
	if err := os.MkdirAll(dir, 0755); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	wctx, cancel := context.WithCancel(ctx)

	h := &watchHandle{cancel: cancel}
	s.watchMu.Lock()
	if s.watch != nil {
		s.watchMu.Unlock()
		cancel()
		_ = watcher.Close()
		return ErrWatcherRunning
	}
	s.watch = h
	s.watchMu.Unlock()

	go s.watchLoop(wctx, watcher, h)

	s.log.Debug().Str("dir", dir).Msg("watching settings document")
	return nil
}

// StopWatch stops the active watcher, if any.
func (s *Store) StopWatch() {
	s.watchMu.Lock()
	h := s.watch
	s.watch = nil
	s.watchMu.Unlock()

	if h != nil {
		h.cancel()
	}
}

func (s *Store) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, h *watchHandle) {
	defer func() {
		_ = watcher.Close()
		s.watchMu.Lock()
		if s.watch == h {
			s.watch = nil
		}
		s.watchMu.Unlock()
		h.cancel()
	}()

	target := filepath.Clean(s.opts.filePath())

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			if s.suppressed() {
				s.log.Debug().Msg("ignoring event from own write")
				continue
			}

			n, err := s.Restore(ctx)
			if err != nil {
				s.log.Warn().Err(err).Msg("failed to reload settings after external change")
				continue
			}
			s.log.Debug().Int("settings", n).Msg("settings reloaded after external change")
			s.notifyReload(n)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn().Err(err).Msg("settings watcher error")
		}
	}
}

// notifyReload invokes reload callbacks on a snapshot of the registration
// list, outside the lock. A panicking callback is logged and must not
// kill the watch loop or starve later callbacks.
func (s *Store) notifyReload(n int) {
	s.watchMu.Lock()
	cbs := make([]func(int), len(s.reloadCbs))
	copy(cbs, s.reloadCbs)
	s.watchMu.Unlock()

	for _, fn := range cbs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error().Interface("panic", r).Msg("reload callback panicked")
				}
			}()
			fn(n)
		}()
	}
}

// noteSelfWrite opens the suppression window just before the store writes
// the document itself.
func (s *Store) noteSelfWrite() {
	s.watchMu.Lock()
	s.selfWriteAt = time.Now()
	s.watchMu.Unlock()
}

func (s *Store) suppressed() bool {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	return time.Since(s.selfWriteAt) < selfWriteWindow
}
