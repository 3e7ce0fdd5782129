package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/trezcool/coachdesk/core"
)

// Hub keeps the mounted views by session id.
type Hub struct {
	mu    sync.RWMutex
	views map[string]*View
	deps  Deps
}

const refreshTimeout = 30 * time.Second

// NewHub returns a hub. When the push channel can reconnect, every view is
// refreshed after it does, since the changes made meanwhile were lost.
func NewHub(deps Deps) *Hub {
	h := &Hub{
		views: make(map[string]*View),
		deps:  deps.withDefaults(),
	}
	if rn, ok := h.deps.Changes.(core.ReconnectNotifier); ok {
		rn.OnReconnect(h.onReconnect)
	}
	return h
}

func (h *Hub) onReconnect() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	n := h.RefreshAll(ctx)
	h.deps.Logger.Info(fmt.Sprintf("push channel reconnected, %d sessions refreshed", n))
}

// RefreshAll refetches every view and returns how many succeeded.
func (h *Hub) RefreshAll(ctx context.Context) int {
	n := 0
	for _, v := range h.list() {
		if err := v.Refresh(ctx); err != nil {
			h.deps.Logger.Warn(fmt.Sprintf("session %s not refreshed", v.ID()), err, v.coach)
			continue
		}
		n++
	}
	return n
}

// Open mounts a new view for the coach.
func (h *Hub) Open(ctx context.Context, coach core.Coach) (*View, error) {
	v := NewView(coach, h.deps)
	if err := v.Mount(ctx); err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.views[v.ID()] = v
	h.mu.Unlock()

	h.deps.Logger.Debug(fmt.Sprintf("session %s opened", v.ID()), coach)
	return v, nil
}

// Get returns the coach's view. Sessions of other coaches are reported as not found.
func (h *Hub) Get(sessionID, coachID string) (*View, error) {
	h.mu.RLock()
	v, ok := h.views[sessionID]
	h.mu.RUnlock()

	if !ok || v.coach.ID != coachID {
		return nil, ErrSessionNotFound
	}
	v.Touch()
	return v, nil
}

// Close unmounts and forgets the coach's view.
func (h *Hub) Close(sessionID, coachID string) error {
	h.mu.Lock()
	v, ok := h.views[sessionID]
	if !ok || v.coach.ID != coachID {
		h.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(h.views, sessionID)
	h.mu.Unlock()

	v.Unmount()
	return nil
}

func (h *Hub) list() []*View {
	h.mu.RLock()
	defer h.mu.RUnlock()
	views := make([]*View, 0, len(h.views))
	for _, v := range h.views {
		views = append(views, v)
	}
	return views
}

// TickAll reclassifies every view and returns how many were ticked.
func (h *Hub) TickAll() int {
	views := h.list()
	for _, v := range views {
		v.Tick()
	}
	return len(views)
}

// Sweep unmounts the views idle for longer than ttl and returns how many were closed.
func (h *Hub) Sweep(ttl time.Duration) int {
	cutoff := h.deps.Now().Add(-ttl)

	h.mu.Lock()
	stale := make([]*View, 0)
	for id, v := range h.views {
		if v.LastSeen().Before(cutoff) {
			stale = append(stale, v)
			delete(h.views, id)
		}
	}
	h.mu.Unlock()

	for _, v := range stale {
		v.Unmount()
		h.deps.Logger.Debug(fmt.Sprintf("session %s expired", v.ID()), v.coach)
	}
	return len(stale)
}

// CloseAll unmounts every view.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	views := h.views
	h.views = make(map[string]*View)
	h.mu.Unlock()

	for _, v := range views {
		v.Unmount()
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.views)
}
