// Package dashboard holds the live, per-session state of a coach's dashboard:
// the classified appointments, the alert feed and the subscriptions keeping them current.
package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/coachdesk/core"
	"github.com/trezcool/coachdesk/core/alert"
	"github.com/trezcool/coachdesk/core/appointment"
	"github.com/trezcool/coachdesk/core/bus"
)

var (
	// errors
	ErrMounted         = errors.New("view already mounted")
	ErrSessionNotFound = errors.New("session not found")
)

// summary application sources
const (
	SourceLocal = "local"
	SourceBus   = "bus"
	SourcePush  = "push"
)

type (
	AppointmentQuerier interface {
		QueryAppointments(ctx context.Context, filter appointment.QueryFilter, ordering []core.DBOrdering) ([]appointment.Appointment, error)
	}

	AlertStore interface {
		alert.Writer
		QueryAlerts(ctx context.Context, coachID string, limit int) ([]alert.Event, error)
	}

	SummarySubmitter interface {
		SubmitSummary(ctx context.Context, coachID string, ns appointment.NewSummary) (appointment.Summary, error)
	}

	// Metrics records what happens to mounted views.
	Metrics interface {
		AlertIngested(outcome string)
		SummaryApplied(source string)
		ViewMounted()
		ViewUnmounted()
	}

	Deps struct {
		Appointments AppointmentQuerier
		Alerts       AlertStore
		Summaries    SummarySubmitter
		Changes      core.Subscriber
		Bus          *bus.Bus
		Logger       core.Logger
		Metrics      Metrics
		Policy       appointment.Policy
		FeedSize     int
		Now          func() time.Time
	}
)

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = core.NopLogger
	}
	if d.Metrics == nil {
		d.Metrics = nopMetrics{}
	}
	if d.FeedSize <= 0 {
		d.FeedSize = alert.DefaultFeedSize
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

type nopMetrics struct{}

func (nopMetrics) AlertIngested(string)  {}
func (nopMetrics) SummaryApplied(string) {}
func (nopMetrics) ViewMounted()          {}
func (nopMetrics) ViewUnmounted()        {}

// Snapshot is what a renderer draws.
type Snapshot struct {
	SessionID    string                    `json:"session_id"`
	CoachID      string                    `json:"coach_id"`
	Now          time.Time                 `json:"now"`
	Upcoming     []appointment.Appointment `json:"upcoming"`
	NeedsSummary []appointment.Appointment `json:"needs_summary"`
	Summarized   []appointment.Appointment `json:"summarized"`
	Monthly      appointment.MonthlyCounts `json:"monthly"`
	Alerts       []alert.Event             `json:"alerts"`
	UnreadAlerts int                       `json:"unread_alerts"`
}

// View is one mounted dashboard. It owns its tracker and feed; nothing else writes to them.
type View struct {
	id    string
	coach core.Coach
	deps  Deps

	tracker *appointment.Tracker
	feed    *alert.Feed

	changed chan struct{}
	done    chan struct{}

	mu        sync.Mutex
	mounted   bool
	unsubs    []func()
	lastSeen  time.Time
	closeOnce sync.Once
}

func NewView(coach core.Coach, deps Deps) *View {
	deps = deps.withDefaults()
	v := &View{
		id:       uuid.New().String(),
		coach:    coach,
		deps:     deps,
		tracker:  appointment.NewTracker(deps.Policy),
		feed:     alert.NewFeed(coach.ID, deps.FeedSize, deps.Alerts),
		changed:  make(chan struct{}, 1),
		done:     make(chan struct{}),
		lastSeen: deps.Now(),
	}
	v.feed.OnChange(v.notify)
	return v
}

func (v *View) ID() string { return v.id }

func (v *View) Coach() core.Coach { return v.coach }

// Changed receives a value whenever the snapshot may have changed. Bursts are coalesced.
func (v *View) Changed() <-chan struct{} { return v.changed }

// Done is closed once the view is unmounted.
func (v *View) Done() <-chan struct{} { return v.done }

func (v *View) notify() {
	select {
	case v.changed <- struct{}{}:
	default:
	}
}

// Mount subscribes to alert and appointment pushes and to summary completions, then
// loads the snapshot. Changes delivered while the load is in flight are replayed onto it.
func (v *View) Mount(ctx context.Context) error {
	v.mu.Lock()
	if v.mounted {
		v.mu.Unlock()
		return ErrMounted
	}
	v.mounted = true
	v.mu.Unlock()

	var unsubs []func()
	if v.deps.Changes != nil {
		unsub, err := v.deps.Changes.Subscribe(ctx, "alerts", core.Filter{"coach_id": v.coach.ID}, v.onAlertChange)
		if err != nil {
			v.abortMount()
			return pkgerrors.Wrap(err, "subscribing to alerts")
		}
		unsubs = append(unsubs, unsub)

		unsub, err = v.deps.Changes.Subscribe(ctx, "appointments", core.Filter{"coach_id": v.coach.ID}, v.onAppointmentChange)
		if err != nil {
			for _, u := range unsubs {
				u()
			}
			v.abortMount()
			return pkgerrors.Wrap(err, "subscribing to appointments")
		}
		unsubs = append(unsubs, unsub)
	}
	if v.deps.Bus != nil {
		unsubs = append(unsubs, v.deps.Bus.SubscribeSummaryCompleted(v.onSummaryCompleted))
	}
	v.mu.Lock()
	v.unsubs = unsubs
	v.mu.Unlock()

	if err := v.Load(ctx); err != nil {
		v.Unmount()
		return err
	}
	v.deps.Metrics.ViewMounted()
	return nil
}

func (v *View) abortMount() {
	v.mu.Lock()
	v.mounted = false
	v.mu.Unlock()
}

// Unmount drops the push subscription and the bus listener. Only the first call has an effect.
func (v *View) Unmount() {
	v.closeOnce.Do(func() {
		v.mu.Lock()
		unsubs := v.unsubs
		v.unsubs = nil
		v.mu.Unlock()

		for _, unsub := range unsubs {
			unsub()
		}
		close(v.done)
		v.deps.Metrics.ViewUnmounted()
	})
}

// Load fetches the coach's appointments and newest alerts and classifies them.
// On failure the view keeps what it had.
func (v *View) Load(ctx context.Context) error {
	v.tracker.BeginLoad()
	mark := v.feed.Mark()

	appts, err := v.deps.Appointments.QueryAppointments(
		ctx,
		appointment.QueryFilter{CoachID: v.coach.ID},
		[]core.DBOrdering{{Field: "scheduled_at", Ascending: true}},
	)
	if err != nil {
		v.tracker.AbortLoad()
		return pkgerrors.Wrap(err, "loading appointments")
	}
	events, err := v.deps.Alerts.QueryAlerts(ctx, v.coach.ID, v.deps.FeedSize)
	if err != nil {
		v.tracker.AbortLoad()
		return pkgerrors.Wrap(err, "loading alerts")
	}

	v.tracker.FinishLoad(appts, v.deps.Now())
	v.feed.SeedSince(mark, events)
	v.notify()
	return nil
}

// Refresh refetches everything. The hub calls it on every view when the push channel reconnects.
func (v *View) Refresh(ctx context.Context) error {
	return v.Load(ctx)
}

// Tick reclassifies the held appointments against the current time, without any I/O.
func (v *View) Tick() {
	before := v.tracker.Classification()
	after := v.tracker.Reclassify(v.deps.Now())
	if bucketsMoved(before, after) {
		v.notify()
	}
}

func bucketsMoved(a, b appointment.Classification) bool {
	return a.Monthly != b.Monthly ||
		!sameIDs(a.Upcoming, b.Upcoming) ||
		!sameIDs(a.NeedsSummary, b.NeedsSummary) ||
		!sameIDs(a.Summarized, b.Summarized)
}

func sameIDs(a, b []appointment.Appointment) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}

func (v *View) Snapshot() Snapshot {
	c := v.tracker.Classification()
	return Snapshot{
		SessionID:    v.id,
		CoachID:      v.coach.ID,
		Now:          c.Now,
		Upcoming:     c.Upcoming,
		NeedsSummary: c.NeedsSummary,
		Summarized:   c.Summarized,
		Monthly:      c.Monthly,
		Alerts:       v.feed.Items(),
		UnreadAlerts: v.feed.UnreadCount(),
	}
}

func (v *View) MarkAlertRead(ctx context.Context, id string) error {
	return v.feed.MarkRead(ctx, id)
}

func (v *View) MarkAllAlertsRead(ctx context.Context) error {
	return v.feed.MarkAllRead(ctx)
}

func (v *View) RemoveAlert(ctx context.Context, id string) error {
	return v.feed.Remove(ctx, id)
}

// SubmitSummary writes the summary and moves the appointment locally once the write succeeded.
func (v *View) SubmitSummary(ctx context.Context, ns appointment.NewSummary) (appointment.Summary, error) {
	s, err := v.deps.Summaries.SubmitSummary(ctx, v.coach.ID, ns)
	if err != nil {
		return appointment.Summary{}, err
	}
	// the bus usually got here first
	v.completeSummary(s.AppointmentID, SourceLocal)
	return s, nil
}

func (v *View) completeSummary(appointmentID, source string) {
	if v.tracker.CompleteSummary(appointmentID) {
		v.deps.Metrics.SummaryApplied(source)
		v.notify()
	}
}

func (v *View) onSummaryCompleted(ev bus.SummaryCompleted) {
	v.completeSummary(ev.AppointmentID, SourceBus)
}

// onAppointmentChange re-buckets appointments written elsewhere, e.g. a summary
// stored by a background job that never went through the bus.
func (v *View) onAppointmentChange(c core.Change) {
	var a appointment.Appointment
	if err := c.Decode(&a); err != nil {
		v.deps.Logger.Warn("dropping appointment change", pkgerrors.Wrap(err, "decoding appointment change"), map[string]interface{}{"session": v.id}, v.coach)
		return
	}
	if a.CoachID != v.coach.ID {
		return
	}

	switch c.Op {
	case core.OpInsert, core.OpUpdate:
		if a.HasSummary {
			v.completeSummary(a.ID, SourcePush)
		}
		if v.tracker.Upsert(a) {
			v.notify()
		}
	case core.OpDelete:
		if v.tracker.Drop(a.ID) {
			v.notify()
		}
	}
}

func (v *View) onAlertChange(c core.Change) {
	out, err := v.feed.Apply(c)
	if err != nil {
		v.deps.Logger.Warn("dropping alert change", err, map[string]interface{}{"session": v.id}, v.coach)
		return
	}
	v.deps.Metrics.AlertIngested(string(out))
}

// Touch records activity on the session.
func (v *View) Touch() {
	now := v.deps.Now()
	v.mu.Lock()
	if now.After(v.lastSeen) {
		v.lastSeen = now
	}
	v.mu.Unlock()
}

func (v *View) LastSeen() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastSeen
}
