package events

import (
	"sync"

	"github.com/google/uuid"
)

// Signal identifies a process-wide notification. Signals carry no payload:
// receivers re-read whatever state they care about.
type Signal string

const (
	// AuthChanged fires after either token scope is written or removed
	AuthChanged Signal = "recach-auth"

	// CaretUpdated fires after the caret notification watermark moves
	CaretUpdated Signal = "recach-caret"

	// RemoteUpdate fires when the server pushes a change notice
	RemoteUpdate Signal = "recach-remote"
)

type listener struct {
	id uuid.UUID
	fn func()
}

// Bus is a synchronous listener registry. The zero value is not usable; use NewBus.
type Bus struct {
	mu        sync.RWMutex
	listeners map[Signal][]listener
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{
		listeners: make(map[Signal][]listener),
	}
}

// Subscribe registers fn for signal and returns a function that removes it.
// Calling the returned function more than once is harmless.
func (b *Bus) Subscribe(signal Signal, fn func()) func() {
	id := uuid.New()

	b.mu.Lock()
	b.listeners[signal] = append(b.listeners[signal], listener{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		current := b.listeners[signal]
		for i, l := range current {
			if l.id == id {
				b.listeners[signal] = append(current[:i:i], current[i+1:]...)
				return
			}
		}
	}
}

// Publish invokes every listener registered for signal at the time of the call.
// Listeners run on the caller's goroutine, in subscription order, without the
// bus lock held so they may subscribe, unsubscribe or publish themselves.
func (b *Bus) Publish(signal Signal) {
	b.mu.RLock()
	snapshot := make([]listener, len(b.listeners[signal]))
	copy(snapshot, b.listeners[signal])
	b.mu.RUnlock()

	for _, l := range snapshot {
		l.fn()
	}
}

// Count returns the number of listeners for signal
func (b *Bus) Count(signal Signal) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[signal])
}
