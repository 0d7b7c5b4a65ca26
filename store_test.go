package prefstore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/prefstore/internal/logging"
)

// newTestStore builds a store over a temp directory. The nanosecond
// update interval disarms the write debounce so every persist in a test
// actually writes; tests of the debounce itself pass their own interval.
func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	if opts.DatabasePath == "" {
		opts.DatabasePath = t.TempDir()
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = time.Nanosecond
	}
	if opts.Logger == nil && testing.Verbose() {
		log := logging.NewFromEnv()
		opts.Logger = &log
	}
	s, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestNew_InvalidOptions(t *testing.T) {
	_, err := New(Options{UpdateInterval: -time.Second})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update_interval must be non-negative")

	_, err = New(Options{DatabaseFileName: "nested/settings.json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database_file_name")
}

func TestGetOrAdd_CreatesWithInitial(t *testing.T) {
	s := newTestStore(t, Options{})

	theme := GetOrAdd(s, "UI", "Theme", "Light")
	assert.Equal(t, "Light", theme.Get())
	assert.True(t, theme.IsRegistered())

	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Contains("UI", "Theme"))
	assert.False(t, s.Contains("UI", "FontSize"))
}

func TestGetOrAdd_ReturnsExistingCell(t *testing.T) {
	s := newTestStore(t, Options{})

	a := GetOrAdd(s, "UI", "Theme", "Light")
	a.Set("Dark")

	// The second initial is ignored; callers share one cell.
	b := GetOrAdd(s, "UI", "Theme", "Solarized")
	assert.Same(t, a, b)
	assert.Equal(t, "Dark", b.Get())
}

func TestGetOrAdd_ConvertsBetweenTypes(t *testing.T) {
	s := newTestStore(t, Options{})

	GetOrAdd(s, "UI", "Scale", 2)

	// An int cell requested as float64 converts through its JSON
	// encoding, keeping the stored value.
	f := GetOrAdd(s, "UI", "Scale", 1.5)
	assert.Equal(t, 2.0, f.Get())
}

func TestGetOrAdd_ConversionFailureUsesInitial(t *testing.T) {
	s := newTestStore(t, Options{})

	GetOrAdd(s, "UI", "Theme", "Dark")

	// "Dark" cannot decode into a struct, so the slot is replaced with
	// the initial value.
	got := GetOrAdd(s, "UI", "Theme", windowPlacement{Width: 800})
	assert.Equal(t, windowPlacement{Width: 800}, got.Get())

	again := GetOrAdd(s, "UI", "Theme", windowPlacement{})
	assert.Equal(t, windowPlacement{Width: 800}, again.Get())
}

func TestGetOrAdd_ClosedStore(t *testing.T) {
	s := newTestStore(t, Options{})
	require.NoError(t, s.Close(context.Background()))

	cell := GetOrAdd(s, "UI", "Theme", "Light")
	assert.False(t, cell.IsRegistered())
	assert.Equal(t, "Light", cell.Get())

	_, err := GetOrAddContext(context.Background(), s, "UI", "Theme", "Light")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestGetOrAddContext_CancelledLock(t *testing.T) {
	s := newTestStore(t, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cell, err := GetOrAddContext(ctx, s, "UI", "Theme", "Light")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, cell.IsRegistered())
	assert.Equal(t, "Light", cell.Get())
}

func TestGetOrAdd_PanickingNamingPolicy(t *testing.T) {
	s := newTestStore(t, Options{
		Naming: func(string) string { panic("bad policy") },
	})

	cell, err := GetOrAddContext(context.Background(), s, "UI", "Theme", "Light")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	assert.False(t, cell.IsRegistered())
	assert.Equal(t, "Light", cell.Get())
}

func TestStore_Remove(t *testing.T) {
	s := newTestStore(t, Options{})

	GetOrAdd(s, "UI", "Theme", "Light")
	assert.True(t, s.Remove("UI", "Theme"))
	assert.False(t, s.Remove("UI", "Theme"))

	assert.False(t, s.Contains("UI", "Theme"))
	assert.Equal(t, 0, s.Len())
}

func TestStore_Clear(t *testing.T) {
	s := newTestStore(t, Options{})

	GetOrAdd(s, "UI", "Theme", "Light")
	GetOrAdd(s, "Net", "Port", 8080)

	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Categories())
}

func TestStore_CategoriesAndKeys(t *testing.T) {
	s := newTestStore(t, Options{Naming: LowercaseNames})

	GetOrAdd(s, "UI", "Theme", "Light")
	GetOrAdd(s, "UI", "FontSize", 12)
	GetOrAdd(s, "Net", "Port", 8080)

	assert.Equal(t, []string{"net", "ui"}, s.Categories())
	assert.Equal(t, []string{"fontsize", "theme"}, s.Keys("UI"))
	assert.Empty(t, s.Keys("missing"))
}

func TestStore_NormalizationConvergence(t *testing.T) {
	s := newTestStore(t, Options{Naming: LowercaseNames})

	a := GetOrAdd(s, "UI", "Theme", "Light")
	b := GetOrAdd(s, "ui", "THEME", "ignored")

	assert.Same(t, a, b)
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Remove("Ui", "theme"))
}

func TestStore_ForEach(t *testing.T) {
	s := newTestStore(t, Options{})

	GetOrAdd(s, "UI", "Theme", "Light")
	GetOrAdd(s, "UI", "FontSize", 12)
	GetOrAdd(s, "Net", "Port", 8080)

	seen := map[string]int{}
	s.ForEach(func(category, key string, c Cell) bool {
		seen[category]++
		return true
	})
	assert.Equal(t, map[string]int{"UI": 2, "Net": 1}, seen)

	visits := 0
	s.ForEach(func(category, key string, c Cell) bool {
		visits++
		return false
	})
	assert.Equal(t, 1, visits)
}

func TestStore_ForEachCallbackMayUseTheStore(t *testing.T) {
	s := newTestStore(t, Options{})
	theme := GetOrAdd(s, "UI", "Theme", "Light")
	GetOrAdd(s, "UI", "FontSize", 12)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.ForEach(func(category, key string, c Cell) bool {
			if !c.IsDefault() && category == "UI" && key == "Theme" {
				theme.Set("Dark")
			}
			return true
		})
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("ForEach held the store lock across the callback")
	}
	assert.Equal(t, "Dark", theme.Get())
}

func TestStore_FilePath(t *testing.T) {
	dir := t.TempDir()

	s := newTestStore(t, Options{DatabasePath: dir, DatabaseFileName: "app.json"})
	assert.Equal(t, filepath.Join(dir, "app.json"), s.FilePath())

	c := newTestStore(t, Options{DatabasePath: dir, DatabaseFileName: "app.json", UseCompression: true})
	assert.Equal(t, filepath.Join(dir, "app.json.gz"), c.FilePath())
}

func TestStore_ConcurrentGetOrAddSameKey(t *testing.T) {
	s := newTestStore(t, Options{})

	const goroutines = 50
	cells := make([]*Setting[int], goroutines)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cells[i] = GetOrAdd(s, "Net", "Port", 8080)
		}(i)
	}
	wg.Wait()

	for _, c := range cells[1:] {
		assert.Same(t, cells[0], c)
	}
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 8080, cells[0].Get())
}

func TestStore_ConcurrentSetAndGet(t *testing.T) {
	s := newTestStore(t, Options{})
	counter := GetOrAdd(s, "Stats", "Visits", 0)

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			counter.Set(v)
		}(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = counter.Get()
		}()
	}
	wg.Wait()

	v := counter.Get()
	assert.GreaterOrEqual(t, v, 1)
	assert.LessOrEqual(t, v, 20)
}
