package prefstore

import (
	"fmt"
	"os"
	"time"
)

// Stats provides information about the store's content and persistence
// activity.
type Stats struct {
	Settings    int       // Number of settings across all categories
	Categories  int       // Number of category buckets
	Restored    uint64    // Total settings restored over the store's lifetime
	Persisted   uint64    // Total settings persisted over the store's lifetime
	LastRestore time.Time // When a restore last completed
	LastPersist time.Time // When a persist last completed
	FileSize    int64     // Size of the settings document on disk, when file-backed
	FileModTime time.Time // When the settings document was last written
}

// Stats returns a snapshot of the store's statistics.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	stats := Stats{
		Settings:   s.count,
		Categories: len(s.categories),
	}
	s.mu.RUnlock()

	s.pmu.Lock()
	stats.Restored = s.restored
	stats.Persisted = s.persisted
	stats.LastRestore = s.lastRestore
	stats.LastPersist = s.lastPersist
	s.pmu.Unlock()

	path := s.opts.filePath()
	if info, err := os.Stat(path); err == nil {
		stats.FileSize = info.Size()
	}
	if mod, ok := s.opts.Backend.LastWriteTime(path); ok {
		stats.FileModTime = mod
	}

	return stats
}

// String returns a string representation of the stats.
func (st Stats) String() string {
	return fmt.Sprintf("Settings: %d, Categories: %d, Restored: %d, Persisted: %d, File: %d bytes",
		st.Settings, st.Categories, st.Restored, st.Persisted, st.FileSize)
}
