package prefstore

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type windowPlacement struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func TestNewSetting_Detached(t *testing.T) {
	s := NewSetting("Light")

	assert.Equal(t, "Light", s.Get())
	assert.False(t, s.IsRegistered())

	s.Set("Dark")
	assert.Equal(t, "Dark", s.Get())
}

func TestSetting_SetEqualValueFiresNothing(t *testing.T) {
	s := NewSetting(windowPlacement{X: 10, Y: 20, Width: 800, Height: 600})

	fired := 0
	s.OnChanged(func(windowPlacement) { fired++ })

	// Composite values compare by content, not identity.
	s.Set(windowPlacement{X: 10, Y: 20, Width: 800, Height: 600})
	assert.Zero(t, fired)

	s.Set(windowPlacement{X: 10, Y: 20, Width: 1024, Height: 768})
	assert.Equal(t, 1, fired)
}

func TestSetting_NotificationOrder(t *testing.T) {
	s := NewSetting(1)

	var events []string
	s.OnChanging(func(old, next int) {
		events = append(events, fmt.Sprintf("changing %d->%d", old, next))
	})
	s.OnChanged(func(v int) {
		events = append(events, fmt.Sprintf("changed %d", v))
	})

	s.Set(2)
	assert.Equal(t, []string{"changing 1->2", "changed 2"}, events)
}

func TestSetting_SubscribeAndInvoke(t *testing.T) {
	s := NewSetting("Light")

	var seen []string
	unsubscribe := s.SubscribeAndInvoke(func(v string) { seen = append(seen, v) })
	assert.Equal(t, []string{"Light"}, seen, "must fire immediately with the current value")

	s.Set("Dark")
	assert.Equal(t, []string{"Light", "Dark"}, seen)

	unsubscribe()
	s.Set("Solarized")
	assert.Equal(t, []string{"Light", "Dark"}, seen)
}

func TestSetting_Unsubscribe(t *testing.T) {
	s := NewSetting(0)

	first, second := 0, 0
	stopFirst := s.OnChanged(func(int) { first++ })
	s.OnChanged(func(int) { second++ })

	s.Set(1)
	stopFirst()
	stopFirst() // second call is a no-op
	s.Set(2)

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestSetting_UnsubscribeOnChanging(t *testing.T) {
	s := NewSetting("a")

	fired := 0
	stop := s.OnChanging(func(old, next string) { fired++ })

	s.Set("b")
	stop()
	s.Set("c")

	assert.Equal(t, 1, fired)
}

func TestSetting_IsDefault(t *testing.T) {
	assert.True(t, NewSetting("").IsDefault())
	assert.False(t, NewSetting("Light").IsDefault())

	assert.True(t, NewSetting(windowPlacement{}).IsDefault())
	assert.False(t, NewSetting(windowPlacement{Width: 800}).IsDefault())

	// Moving back to the zero value makes the cell default again.
	s := NewSetting(42)
	s.Set(0)
	assert.True(t, s.IsDefault())
}
