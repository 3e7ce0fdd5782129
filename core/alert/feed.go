package alert

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/coachdesk/core"
)

const DefaultFeedSize = 10

// Outcome tells what a push delivery did to the feed.
type Outcome string

const (
	OutcomeAdded     Outcome = "added"
	OutcomeUpdated   Outcome = "updated"
	OutcomeRemoved   Outcome = "removed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeExpired   Outcome = "expired"   // older than everything in a full window
	OutcomeRejected  Outcome = "rejected"  // addressed to another coach
	OutcomeTombstone Outcome = "tombstone" // already removed here
	OutcomeIgnored   Outcome = "ignored"
)

// Feed is the capped, deduplicated, newest-first window of one coach's alerts.
//
// Read and removal are one-way: an event is never marked unread again, and a removed
// id is never re-admitted unless the removal itself failed to persist.
type Feed struct {
	mu      sync.Mutex
	ownerID string
	size    int
	items   []Event
	unread  int
	removed map[string]struct{}

	seq       uint64              // bumped for every pushed event admitted
	pushed    map[string]uint64   // id: seq it was admitted at
	confirmed map[string]struct{} // ids the store reported as read

	writer   Writer
	onChange func()
}

func NewFeed(ownerID string, size int, w Writer) *Feed {
	if size <= 0 {
		size = DefaultFeedSize
	}
	return &Feed{
		ownerID: ownerID,
		size:    size,
		items:   make([]Event, 0, size),
		removed:   make(map[string]struct{}),
		pushed:    make(map[string]uint64),
		confirmed: make(map[string]struct{}),
		writer:    w,
	}
}

// OnChange registers fn to be called, outside the feed lock, after every visible change.
func (f *Feed) OnChange(fn func()) {
	f.mu.Lock()
	f.onChange = fn
	f.mu.Unlock()
}

func (f *Feed) changed() {
	f.mu.Lock()
	fn := f.onChange
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// index, settle, recount & prune expect f.mu to be held.

func (f *Feed) index(id string) int {
	for i, ev := range f.items {
		if ev.ID == id {
			return i
		}
	}
	return -1
}

// settle restores ordering and the cap, then recounts.
func (f *Feed) settle() {
	sort.SliceStable(f.items, func(i, j int) bool {
		a, b := f.items[i], f.items[j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	if len(f.items) > f.size {
		f.items = f.items[:f.size]
	}
	f.recount()
	f.prune()
}

func (f *Feed) recount() {
	n := 0
	for _, ev := range f.items {
		if !ev.IsRead {
			n++
		}
	}
	f.unread = n
}

// prune forgets bookkeeping of ids that left the window. Tombstones are kept.
func (f *Feed) prune() {
	for id := range f.pushed {
		if f.index(id) < 0 {
			delete(f.pushed, id)
		}
	}
	for id := range f.confirmed {
		if f.index(id) < 0 {
			delete(f.confirmed, id)
		}
	}
}

func (f *Feed) owns(ev Event) bool {
	return ev.CoachID == f.ownerID
}

// Mark returns a token to take before fetching a snapshot. Handing it to SeedSince
// keeps the events pushed after it was taken.
func (f *Feed) Mark() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seq
}

// Seed replaces the window with a snapshot.
func (f *Feed) Seed(events []Event) {
	f.SeedSince(f.Mark(), events)
}

// SeedSince replaces the window with a snapshot fetched after mark was taken.
// Events pushed since mark and missing from the snapshot are kept, removed ids
// stay out and an event read on either side stays read.
func (f *Feed) SeedSince(mark uint64, events []Event) {
	f.mu.Lock()
	prev := make(map[string]Event, len(f.items))
	for _, ev := range f.items {
		prev[ev.ID] = ev
	}

	items := make([]Event, 0, len(events))
	seen := make(map[string]bool, len(events))
	for _, ev := range events {
		if !f.owns(ev) || seen[ev.ID] {
			continue
		}
		if _, gone := f.removed[ev.ID]; gone {
			continue
		}
		seen[ev.ID] = true
		if ev.IsRead {
			f.confirmed[ev.ID] = struct{}{}
		} else if p, ok := prev[ev.ID]; ok && p.IsRead {
			ev.IsRead = true
		}
		items = append(items, ev)
	}
	for _, ev := range f.items {
		if !seen[ev.ID] && f.pushed[ev.ID] > mark {
			items = append(items, ev)
		}
	}
	f.items = items
	f.settle()
	f.mu.Unlock()

	f.changed()
}

// Ingest admits one pushed event. Redelivery of a known id is a no-op.
// Events addressed to another coach are dropped silently: the push channel may
// deliver more than the viewer is entitled to.
func (f *Feed) Ingest(ev Event) Outcome {
	if !f.owns(ev) {
		return OutcomeRejected
	}

	f.mu.Lock()
	if _, gone := f.removed[ev.ID]; gone {
		f.mu.Unlock()
		return OutcomeTombstone
	}
	if f.index(ev.ID) >= 0 {
		f.mu.Unlock()
		return OutcomeDuplicate
	}
	f.seq++
	f.pushed[ev.ID] = f.seq
	if ev.IsRead {
		f.confirmed[ev.ID] = struct{}{}
	}
	f.items = append([]Event{ev}, f.items...)
	f.settle()
	kept := f.index(ev.ID) >= 0
	f.mu.Unlock()

	if !kept {
		return OutcomeExpired
	}
	f.changed()
	return OutcomeAdded
}

// Apply routes a row change from the push channel.
func (f *Feed) Apply(c core.Change) (Outcome, error) {
	var ev Event
	if err := c.Decode(&ev); err != nil {
		return OutcomeIgnored, errors.Wrap(err, "decoding alert change")
	}

	switch c.Op {
	case core.OpInsert:
		return f.Ingest(ev), nil
	case core.OpUpdate:
		if !f.owns(ev) {
			return OutcomeRejected, nil
		}
		f.mu.Lock()
		i := f.index(ev.ID)
		if i < 0 {
			f.mu.Unlock()
			// missed the insert; the row still belongs in the window if it is recent enough
			return f.Ingest(ev), nil
		}
		if ev.IsRead {
			f.confirmed[ev.ID] = struct{}{}
		}
		if !ev.IsRead || f.items[i].IsRead {
			f.mu.Unlock()
			return OutcomeDuplicate, nil
		}
		f.items[i].IsRead = true
		f.recount()
		f.mu.Unlock()
		f.changed()
		return OutcomeUpdated, nil
	case core.OpDelete:
		if !f.owns(ev) {
			return OutcomeRejected, nil
		}
		f.mu.Lock()
		f.removed[ev.ID] = struct{}{}
		i := f.index(ev.ID)
		if i < 0 {
			f.mu.Unlock()
			return OutcomeIgnored, nil
		}
		f.items = append(f.items[:i], f.items[i+1:]...)
		f.recount()
		f.mu.Unlock()
		f.changed()
		return OutcomeRemoved, nil
	default:
		return OutcomeIgnored, nil
	}
}

// MarkRead flips the event to read immediately, then persists it.
// If the write fails the flip is reverted and the error returned, unless the
// store reported the event as read in the meantime.
func (f *Feed) MarkRead(ctx context.Context, id string) error {
	f.mu.Lock()
	i := f.index(id)
	if i < 0 {
		f.mu.Unlock()
		return ErrNotFound
	}
	if f.items[i].IsRead {
		f.mu.Unlock()
		return nil
	}
	f.items[i].IsRead = true
	f.recount()
	f.mu.Unlock()
	f.changed()

	if err := f.writer.MarkAlertsRead(ctx, id); err != nil {
		f.mu.Lock()
		if _, ok := f.confirmed[id]; ok {
			f.mu.Unlock()
			return nil
		}
		if i := f.index(id); i >= 0 {
			f.items[i].IsRead = false
			f.recount()
		}
		f.mu.Unlock()
		f.changed()
		return errors.Wrap(err, "marking alert read")
	}

	f.mu.Lock()
	if f.index(id) >= 0 {
		f.confirmed[id] = struct{}{}
	}
	f.mu.Unlock()
	return nil
}

// MarkAllRead persists every currently unread event in one write and
// flips them locally only once that write succeeded.
func (f *Feed) MarkAllRead(ctx context.Context) error {
	f.mu.Lock()
	ids := make([]string, 0, f.unread)
	for _, ev := range f.items {
		if !ev.IsRead {
			ids = append(ids, ev.ID)
		}
	}
	f.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}
	if err := f.writer.MarkAlertsRead(ctx, ids...); err != nil {
		return errors.Wrap(err, "marking alerts read")
	}

	f.mu.Lock()
	for _, id := range ids {
		if i := f.index(id); i >= 0 {
			f.items[i].IsRead = true
			f.confirmed[id] = struct{}{}
		}
	}
	f.recount()
	f.mu.Unlock()
	f.changed()
	return nil
}

// Remove drops the event immediately, then deletes it.
// If the delete fails the event is restored and the error returned.
func (f *Feed) Remove(ctx context.Context, id string) error {
	f.mu.Lock()
	i := f.index(id)
	if i < 0 {
		f.mu.Unlock()
		return ErrNotFound
	}
	ev := f.items[i]
	f.items = append(f.items[:i], f.items[i+1:]...)
	f.removed[id] = struct{}{}
	f.recount()
	f.mu.Unlock()
	f.changed()

	if err := f.writer.DeleteAlert(ctx, id); err != nil {
		f.mu.Lock()
		delete(f.removed, id)
		if f.index(id) < 0 {
			f.items = append(f.items, ev)
			f.settle()
		}
		f.mu.Unlock()
		f.changed()
		return errors.Wrap(err, "deleting alert")
	}
	return nil
}

// Items returns a copy of the window, newest first.
func (f *Feed) Items() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append(make([]Event, 0, len(f.items)), f.items...)
}

func (f *Feed) UnreadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread
}

func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}
