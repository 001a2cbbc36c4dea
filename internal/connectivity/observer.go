// Package connectivity reports whether the hosted store is reachable and
// notifies subscribers when the device comes back online.
package connectivity

import (
	"sort"
	"sync"
)

// Observer exposes the current connectivity and offline-to-online transitions.
type Observer interface {
	IsOnline() bool
	// OnOnline registers fn to run on every offline-to-online transition.
	// The returned function unregisters it.
	OnOnline(fn func()) (cancel func())
}

// Manual is an Observer whose state is set by its owner, typically the app
// shell relaying platform network events.
type Manual struct {
	mu        sync.Mutex
	online    bool
	nextID    int
	listeners map[int]func()
}

// NewManual creates a Manual observer with an initial state.
func NewManual(online bool) *Manual {
	return &Manual{online: online, listeners: map[int]func(){}}
}

// IsOnline reports the last state set.
func (m *Manual) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnOnline registers fn for offline-to-online transitions.
func (m *Manual) OnOnline(fn func()) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// SetOnline records the state. Listeners run synchronously, in registration
// order, only when the state flips from offline to online.
func (m *Manual) SetOnline(online bool) {
	m.mu.Lock()
	wasOnline := m.online
	m.online = online
	var fire []func()
	if online && !wasOnline {
		ids := make([]int, 0, len(m.listeners))
		for id := range m.listeners {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			fire = append(fire, m.listeners[id])
		}
	}
	m.mu.Unlock()

	for _, fn := range fire {
		fn()
	}
}
