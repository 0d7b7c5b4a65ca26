package prefstore

import (
	"encoding/json"
	"reflect"
)

// Cell is the store's view of one setting, independent of its value type.
// Both typed cells (Setting) and values restored from disk that no caller
// has typed yet satisfy it. Cells are created by the store; the interface
// cannot be implemented outside this package.
type Cell interface {
	// IsRegistered reports whether the cell belongs to a store. The
	// sentinel cell returned on failed lookups reports false.
	IsRegistered() bool

	// IsDefault reports whether the current value equals its type's zero
	// value. Cells not yet typed report false, since their type (and so
	// its zero value) is unknown.
	IsDefault() bool

	// isDefault is IsDefault without taking the store lock. Called with
	// the store lock held; taking it again would park behind any queued
	// writer.
	isDefault() bool

	// encode returns the value's JSON encoding for persistence. Called
	// with the store lock held.
	encode() (json.RawMessage, error)
}

// Setting is a single typed settings cell. Cells obtained through GetOrAdd
// route value access through the owning store's lock and are safe for
// concurrent use; cells created with NewSetting are plain values for a
// single goroutine.
//
// Observers fire synchronously on the mutating goroutine, after the lock
// is released, with old and new values passed as arguments. The relative
// order of notifications from concurrent Set calls is not defined.
type Setting[T any] struct {
	store      *Store
	registered bool

	value T

	nextID   int
	changing []observer[func(old, next T)]
	changed  []observer[func(T)]
}

type observer[F any] struct {
	id int
	fn F
}

// NewSetting returns a standalone cell holding value. It belongs to no
// store, so IsRegistered reports false and nothing persists it.
func NewSetting[T any](value T) *Setting[T] {
	return &Setting[T]{value: value}
}

// newSetting returns a cell attached to s.
func newSetting[T any](s *Store, value T) *Setting[T] {
	return &Setting[T]{store: s, registered: true, value: value}
}

// Get returns the current value.
func (s *Setting[T]) Get() T {
	s.rlock()
	v := s.value
	s.runlock()
	return v
}

// Set updates the value and notifies observers, pre-change first. Setting
// a value equal to the current one is a no-op and fires nothing. Equality
// is reflect.DeepEqual, so composite values compare by content.
func (s *Setting[T]) Set(v T) {
	s.lock()
	old := s.value
	if reflect.DeepEqual(old, v) {
		s.unlock()
		return
	}
	s.value = v
	changing := make([]observer[func(old, next T)], len(s.changing))
	copy(changing, s.changing)
	changed := make([]observer[func(T)], len(s.changed))
	copy(changed, s.changed)
	st := s.store
	s.unlock()

	for _, o := range changing {
		o.fn(old, v)
	}
	for _, o := range changed {
		o.fn(v)
	}
	if st != nil {
		st.markDirty()
	}
}

// IsDefault reports whether the current value equals T's zero value.
func (s *Setting[T]) IsDefault() bool {
	s.rlock()
	defer s.runlock()
	return s.isDefault()
}

func (s *Setting[T]) isDefault() bool {
	var zero T
	return reflect.DeepEqual(s.value, zero)
}

// IsRegistered reports whether the cell belongs to a store.
func (s *Setting[T]) IsRegistered() bool {
	return s.registered
}

// OnChanging registers fn against the pre-change notification. It returns
// a func that removes the registration.
func (s *Setting[T]) OnChanging(fn func(old, next T)) (unsubscribe func()) {
	s.lock()
	s.nextID++
	id := s.nextID
	s.changing = append(s.changing, observer[func(old, next T)]{id: id, fn: fn})
	s.unlock()

	return func() {
		s.lock()
		for i, o := range s.changing {
			if o.id == id {
				s.changing = append(s.changing[:i], s.changing[i+1:]...)
				break
			}
		}
		s.unlock()
	}
}

// OnChanged registers fn against the post-change notification. It returns
// a func that removes the registration.
func (s *Setting[T]) OnChanged(fn func(T)) (unsubscribe func()) {
	s.lock()
	id := s.addChangedLocked(fn)
	s.unlock()
	return func() { s.removeChanged(id) }
}

// SubscribeAndInvoke registers fn against the post-change notification and
// invokes it immediately with the current value. The registration and the
// initial read happen under one lock acquisition, so fn cannot miss a
// change between them.
func (s *Setting[T]) SubscribeAndInvoke(fn func(T)) (unsubscribe func()) {
	s.lock()
	id := s.addChangedLocked(fn)
	v := s.value
	s.unlock()

	fn(v)
	return func() { s.removeChanged(id) }
}

func (s *Setting[T]) addChangedLocked(fn func(T)) int {
	s.nextID++
	id := s.nextID
	s.changed = append(s.changed, observer[func(T)]{id: id, fn: fn})
	return id
}

func (s *Setting[T]) removeChanged(id int) {
	s.lock()
	for i, o := range s.changed {
		if o.id == id {
			s.changed = append(s.changed[:i], s.changed[i+1:]...)
			break
		}
	}
	s.unlock()
}

func (s *Setting[T]) encode() (json.RawMessage, error) {
	data, err := json.Marshal(s.value)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

func (s *Setting[T]) lock() {
	if s.store != nil {
		s.store.mu.Lock()
	}
}

func (s *Setting[T]) unlock() {
	if s.store != nil {
		s.store.mu.Unlock()
	}
}

func (s *Setting[T]) rlock() {
	if s.store != nil {
		s.store.mu.RLock()
	}
}

func (s *Setting[T]) runlock() {
	if s.store != nil {
		s.store.mu.RUnlock()
	}
}

// rawCell holds a value exactly as restored from disk, type-erased until
// the first typed access upgrades it (see GetOrAdd). Re-persisting an
// unupgraded cell writes the original bytes back, so settings a process
// never touches survive round trips.
type rawCell struct {
	raw json.RawMessage
}

func (c *rawCell) IsRegistered() bool { return true }

func (c *rawCell) IsDefault() bool { return false }

func (c *rawCell) isDefault() bool { return false }

func (c *rawCell) encode() (json.RawMessage, error) { return c.raw, nil }

var (
	_ Cell = (*Setting[string])(nil)
	_ Cell = (*rawCell)(nil)
)
