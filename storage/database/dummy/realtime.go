package dummydb

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/trezcool/coachdesk/core"
)

type (
	subscription struct {
		table    string
		filter   core.Filter
		onChange func(core.Change)
	}

	changeHub struct {
		mu           sync.RWMutex
		next         uint64
		subs         map[uint64]subscription
		redelivery   int
		disconnected bool
		onReconnect  []func()
	}
)

var (
	_ core.Subscriber        = (*changeHub)(nil) // interface compliance check
	_ core.ReconnectNotifier = (*changeHub)(nil)
)

func newChangeHub() *changeHub {
	return &changeHub{subs: make(map[uint64]subscription)}
}

func (h *changeHub) setRedelivery(n int) {
	h.mu.Lock()
	h.redelivery = n
	h.mu.Unlock()
}

func (h *changeHub) OnReconnect(fn func()) {
	h.mu.Lock()
	h.onReconnect = append(h.onReconnect, fn)
	h.mu.Unlock()
}

func (h *changeHub) setDisconnected(disconnected bool) (reconnected bool) {
	h.mu.Lock()
	reconnected = h.disconnected && !disconnected
	h.disconnected = disconnected
	h.mu.Unlock()
	return reconnected
}

func (h *changeHub) reconnected() {
	h.mu.RLock()
	hooks := append([]func(){}, h.onReconnect...)
	h.mu.RUnlock()

	for _, fn := range hooks {
		fn()
	}
}

func (h *changeHub) Subscribe(_ context.Context, table string, filter core.Filter, onChange func(core.Change)) (func(), error) {
	h.mu.Lock()
	h.next++
	id := h.next
	h.subs[id] = subscription{table: table, filter: filter, onChange: onChange}
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}, nil
}

// Subscriptions returns the number of live subscriptions.
func (h *changeHub) Subscriptions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// publish delivers the change synchronously. Callers must not hold table locks.
func (h *changeHub) publish(table string, op core.ChangeOp, row interface{}) {
	data, err := json.Marshal(row)
	if err != nil {
		return
	}
	change := core.Change{Table: table, Op: op, Row: data}

	h.mu.RLock()
	if h.disconnected {
		h.mu.RUnlock()
		return
	}
	targets := make([]func(core.Change), 0, len(h.subs))
	for _, sub := range h.subs {
		if sub.table == table && sub.filter.Match(data) {
			targets = append(targets, sub.onChange)
		}
	}
	deliveries := 1 + h.redelivery
	h.mu.RUnlock()

	for i := 0; i < deliveries; i++ {
		for _, fn := range targets {
			fn(change)
		}
	}
}

// Subscriptions exposes the live subscription count of db's push channel.
func (db *DB) Subscriptions() int {
	return db.changes.Subscriptions()
}

// Disconnect drops every change until Reconnect, like a lost LISTEN connection.
func (db *DB) Disconnect() {
	db.changes.setDisconnected(true)
}

// Reconnect resumes deliveries and runs the reconnect hooks synchronously.
func (db *DB) Reconnect() {
	if db.changes.setDisconnected(false) {
		db.changes.reconnected()
	}
}
