package appointment

import (
	"sort"
	"time"
)

type Bucket int

const (
	BucketUpcoming Bucket = iota
	BucketNeedsSummary
	BucketSummarized
)

func (b Bucket) String() string {
	switch b {
	case BucketUpcoming:
		return "upcoming"
	case BucketNeedsSummary:
		return "needs_summary"
	case BucketSummarized:
		return "summarized"
	default:
		return "unknown"
	}
}

const (
	DefaultHorizon   = 7 * 24 * time.Hour
	DefaultPastLimit = 10
)

// Policy sizes the windows drawn from the bucket partition.
type Policy struct {
	Horizon   time.Duration // upcoming: (now, now+Horizon]
	PastLimit int           // only the PastLimit most recent past appointments are split into summary lists
}

func DefaultPolicy() Policy {
	return Policy{Horizon: DefaultHorizon, PastLimit: DefaultPastLimit}
}

func (p Policy) normalize() Policy {
	if p.Horizon <= 0 {
		p.Horizon = DefaultHorizon
	}
	if p.PastLimit <= 0 {
		p.PastLimit = DefaultPastLimit
	}
	return p
}

type MonthlyCounts struct {
	TwoMonthsAgo  int `json:"two_months_ago"`
	LastMonth     int `json:"last_month"`
	CurrentPast   int `json:"current_past"`
	CurrentFuture int `json:"current_future"`
}

type Classification struct {
	Now          time.Time     `json:"now"`
	Upcoming     []Appointment `json:"upcoming"`      // ascending
	NeedsSummary []Appointment `json:"needs_summary"` // most recent first
	Summarized   []Appointment `json:"summarized"`    // most recent first
	Monthly      MonthlyCounts `json:"monthly"`
}

// IsPast reports whether a is no longer upcoming at now.
// An appointment scheduled exactly at now is past, so it is never counted on both sides.
func IsPast(a Appointment, now time.Time) bool {
	return !a.ScheduledAt.After(now)
}

// BucketOf places a in exactly one bucket.
func BucketOf(a Appointment, now time.Time) Bucket {
	switch {
	case !IsPast(a, now):
		return BucketUpcoming
	case a.HasSummary:
		return BucketSummarized
	default:
		return BucketNeedsSummary
	}
}

// Partition is the complete, disjoint bucket membership of appts at now, without any window.
func Partition(now time.Time, appts []Appointment) map[Bucket][]Appointment {
	parts := map[Bucket][]Appointment{
		BucketUpcoming:     {},
		BucketNeedsSummary: {},
		BucketSummarized:   {},
	}
	for _, a := range appts {
		b := BucketOf(a, now)
		parts[b] = append(parts[b], a)
	}
	return parts
}

type monthBounds struct {
	twoMonthsAgo time.Time
	lastMonth    time.Time
	current      time.Time
	next         time.Time
}

// boundsFor returns the first instants of the months around now, in now's location.
func boundsFor(now time.Time) monthBounds {
	y, m, _ := now.Date()
	loc := now.Location()
	first := func(offset int) time.Time { return time.Date(y, m+time.Month(offset), 1, 0, 0, 0, 0, loc) }
	return monthBounds{
		twoMonthsAgo: first(-2),
		lastMonth:    first(-1),
		current:      first(0),
		next:         first(1),
	}
}

// in reports t in [from, to).
func in(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

func (mb monthBounds) count(mc *MonthlyCounts, t, now time.Time) {
	switch {
	case in(t, mb.twoMonthsAgo, mb.lastMonth):
		mc.TwoMonthsAgo++
	case in(t, mb.lastMonth, mb.current):
		mc.LastMonth++
	case in(t, mb.current, mb.next):
		if t.After(now) {
			mc.CurrentFuture++
		} else {
			mc.CurrentPast++
		}
	}
}

// Classify derives the dashboard lists and monthly counters of appts at now.
// It has no side effects; appts is not modified.
func Classify(now time.Time, appts []Appointment, p Policy) Classification {
	p = p.normalize()
	bounds := boundsFor(now)
	horizon := now.Add(p.Horizon)

	c := Classification{
		Now:          now,
		Upcoming:     make([]Appointment, 0),
		NeedsSummary: make([]Appointment, 0),
		Summarized:   make([]Appointment, 0),
	}
	past := make([]Appointment, 0, len(appts))

	for _, a := range appts {
		bounds.count(&c.Monthly, a.ScheduledAt, now)

		if IsPast(a, now) {
			past = append(past, a)
		} else if !a.ScheduledAt.After(horizon) {
			c.Upcoming = append(c.Upcoming, a)
		}
	}

	sort.SliceStable(c.Upcoming, func(i, j int) bool { return before(c.Upcoming[i], c.Upcoming[j]) })
	sort.SliceStable(past, func(i, j int) bool { return before(past[j], past[i]) })
	if len(past) > p.PastLimit {
		past = past[:p.PastLimit]
	}
	for _, a := range past {
		if a.HasSummary {
			c.Summarized = append(c.Summarized, a)
		} else {
			c.NeedsSummary = append(c.NeedsSummary, a)
		}
	}
	return c
}

func before(a, b Appointment) bool {
	if a.ScheduledAt.Equal(b.ScheduledAt) {
		return a.ID < b.ID
	}
	return a.ScheduledAt.Before(b.ScheduledAt)
}

func (c Classification) clone() Classification {
	c.Upcoming = append(make([]Appointment, 0, len(c.Upcoming)), c.Upcoming...)
	c.NeedsSummary = append(make([]Appointment, 0, len(c.NeedsSummary)), c.NeedsSummary...)
	c.Summarized = append(make([]Appointment, 0, len(c.Summarized)), c.Summarized...)
	return c
}
