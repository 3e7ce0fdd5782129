// Package bus is the process-wide broadcast used to tell independently mounted
// dashboards that something happened elsewhere. There is no replay: a listener
// registered after a publish never sees it.
package bus

import (
	"sync"
	"time"
)

// SummaryCompleted signals that a summary was persisted for an appointment.
type SummaryCompleted struct {
	AppointmentID string    `json:"appointment_id"`
	CoachID       string    `json:"coach_id"`
	At            time.Time `json:"at"`

	// Origin is empty for events published in this process and carries the
	// relay id for events received from another process.
	Origin string `json:"origin,omitempty"`
}

type Handler func(SummaryCompleted)

type Bus struct {
	mu   sync.RWMutex
	next uint64
	subs map[uint64]Handler
}

func New() *Bus {
	return &Bus{subs: make(map[uint64]Handler)}
}

// PublishSummaryCompleted delivers ev to every current listener, synchronously, in the caller's goroutine.
// Listeners added or removed by a handler take effect from the next publish.
func (b *Bus) PublishSummaryCompleted(ev SummaryCompleted) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// SubscribeSummaryCompleted registers h and returns its deregistration func.
// Calling the returned func more than once is a no-op.
func (b *Bus) SubscribeSummaryCompleted(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.next++
	id := b.next
	b.subs[id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Listeners returns the number of registered listeners.
func (b *Bus) Listeners() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
