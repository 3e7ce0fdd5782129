package appointment

import (
	"sync"
	"time"
)

// Tracker owns the classified state of one dashboard: the last fetched collection
// and the lists derived from it. Summary completions are spliced into both so the
// next reclassification agrees with what a fresh fetch would compute.
//
// Changes arriving while a fetch is in flight (between BeginLoad and FinishLoad)
// are remembered and replayed onto the fetched collection.
type Tracker struct {
	mu      sync.RWMutex
	policy  Policy
	appts   []Appointment
	current Classification
	lastNow time.Time

	loading   int
	completed map[string]struct{}
	upserted  map[string]Appointment
	dropped   map[string]struct{}
}

func NewTracker(p Policy) *Tracker {
	p = p.normalize()
	t := &Tracker{
		policy:  p,
		current: Classify(time.Time{}, nil, p),
	}
	t.resetPending()
	return t
}

func (t *Tracker) resetPending() {
	t.completed = make(map[string]struct{})
	t.upserted = make(map[string]Appointment)
	t.dropped = make(map[string]struct{})
}

// clamp keeps the evaluation instant non-decreasing. Callers hold t.mu.
func (t *Tracker) clamp(now time.Time) time.Time {
	if now.Before(t.lastNow) {
		return t.lastNow
	}
	t.lastNow = now
	return now
}

// Load replaces the collection with a fresh fetch and classifies it.
func (t *Tracker) Load(appts []Appointment, now time.Time) Classification {
	t.BeginLoad()
	return t.FinishLoad(appts, now)
}

// BeginLoad is called before fetching. Every BeginLoad is paired with a FinishLoad or an AbortLoad.
func (t *Tracker) BeginLoad() {
	t.mu.Lock()
	t.loading++
	t.mu.Unlock()
}

// AbortLoad ends a fetch that failed; the held collection is kept.
func (t *Tracker) AbortLoad() {
	t.mu.Lock()
	t.endLoad()
	t.mu.Unlock()
}

func (t *Tracker) endLoad() {
	if t.loading > 0 {
		t.loading--
	}
	if t.loading == 0 {
		t.resetPending()
	}
}

// FinishLoad replaces the collection with the fetched one, replays what changed
// since BeginLoad and classifies the result.
func (t *Tracker) FinishLoad(appts []Appointment, now time.Time) Classification {
	t.mu.Lock()
	defer t.mu.Unlock()

	fetched := make([]Appointment, 0, len(appts)+len(t.upserted))
	seen := make(map[string]bool, len(appts))
	for _, a := range appts {
		if _, ok := t.dropped[a.ID]; ok {
			continue
		}
		if u, ok := t.upserted[a.ID]; ok {
			a = merge(a, u)
		}
		seen[a.ID] = true
		fetched = append(fetched, a)
	}
	for id, u := range t.upserted {
		if !seen[id] {
			fetched = append(fetched, u)
		}
	}
	for i := range fetched {
		if _, ok := t.completed[fetched[i].ID]; ok {
			fetched[i].HasSummary = true
		}
	}
	t.endLoad()

	t.appts = fetched
	t.current = Classify(t.clamp(now), t.appts, t.policy)
	return t.current.clone()
}

// merge returns next with the one-way flags of prev kept.
func merge(prev, next Appointment) Appointment {
	next.HasSummary = next.HasSummary || prev.HasSummary
	next.ReminderSent = next.ReminderSent || prev.ReminderSent
	return next
}

func sameAppointment(a, b Appointment) bool {
	if !a.ScheduledAt.Equal(b.ScheduledAt) || !a.CreatedAt.Equal(b.CreatedAt) {
		return false
	}
	a.ScheduledAt, b.ScheduledAt = time.Time{}, time.Time{}
	a.CreatedAt, b.CreatedAt = time.Time{}, time.Time{}
	return a == b
}

// Upsert applies a pushed appointment row and reclassifies at the last instant seen.
// It reports whether anything changed.
func (t *Tracker) Upsert(a Appointment) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.loading > 0 {
		if prev, ok := t.upserted[a.ID]; ok {
			a = merge(prev, a)
		}
		t.upserted[a.ID] = a
		delete(t.dropped, a.ID)
	}

	idx := -1
	for i := range t.appts {
		if t.appts[i].ID == a.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		t.appts = append(t.appts, a)
	} else {
		a = merge(t.appts[idx], a)
		if sameAppointment(t.appts[idx], a) {
			return false
		}
		t.appts[idx] = a
	}
	t.current = Classify(t.lastNow, t.appts, t.policy)
	return true
}

// Drop forgets a deleted appointment. It reports whether it was held.
func (t *Tracker) Drop(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.loading > 0 {
		t.dropped[id] = struct{}{}
		delete(t.upserted, id)
	}

	for i := range t.appts {
		if t.appts[i].ID == id {
			t.appts = append(t.appts[:i:i], t.appts[i+1:]...)
			t.current = Classify(t.lastNow, t.appts, t.policy)
			return true
		}
	}
	return false
}

// Reclassify re-derives the lists from the held collection without any I/O.
func (t *Tracker) Reclassify(now time.Time) Classification {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current = Classify(t.clamp(now), t.appts, t.policy)
	return t.current.clone()
}

// CompleteSummary moves the appointment from NeedsSummary to the head of Summarized.
// It reports false, changing nothing, when id is not awaiting a summary.
func (t *Tracker) CompleteSummary(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.loading > 0 {
		t.completed[id] = struct{}{}
	}

	idx := -1
	for i, a := range t.current.NeedsSummary {
		if a.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	done := t.current.NeedsSummary[idx]
	done.HasSummary = true

	needs := make([]Appointment, 0, len(t.current.NeedsSummary)-1)
	needs = append(needs, t.current.NeedsSummary[:idx]...)
	needs = append(needs, t.current.NeedsSummary[idx+1:]...)
	t.current.NeedsSummary = needs

	summarized := make([]Appointment, 0, len(t.current.Summarized)+1)
	summarized = append(summarized, done)
	summarized = append(summarized, t.current.Summarized...)
	t.current.Summarized = summarized

	for i := range t.appts {
		if t.appts[i].ID == id {
			t.appts[i].HasSummary = true
			break
		}
	}
	return true
}

// Classification returns a copy of the current lists.
func (t *Tracker) Classification() Classification {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current.clone()
}

// Appointments returns a copy of the held collection.
func (t *Tracker) Appointments() []Appointment {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append(make([]Appointment, 0, len(t.appts)), t.appts...)
}
