package appointment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTracker_CompleteSummary(t *testing.T) {
	now := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	tr := NewTracker(DefaultPolicy())
	tr.Load([]Appointment{
		appt("s0", now.Add(-3*time.Hour), true),
		appt("s1", now.Add(-2*time.Hour), false),
		appt("s2", now.Add(-1*time.Hour), false),
		appt("u1", now.Add(time.Hour), false),
	}, now)

	assert.True(t, tr.CompleteSummary("s1"))

	c := tr.Classification()
	assert.Equal(t, []string{"s2"}, ids(c.NeedsSummary))
	assert.Equal(t, []string{"s1", "s0"}, ids(c.Summarized))
	assert.True(t, c.Summarized[0].HasSummary)
	assert.Equal(t, []string{"u1"}, ids(c.Upcoming))

	t.Run("repeat is a no-op", func(t *testing.T) {
		assert.False(t, tr.CompleteSummary("s1"))
		assert.Equal(t, c, tr.Classification())
	})
	t.Run("unknown id is a no-op", func(t *testing.T) {
		assert.False(t, tr.CompleteSummary("nope"))
		assert.Equal(t, c, tr.Classification())
	})
	t.Run("upcoming id is a no-op", func(t *testing.T) {
		assert.False(t, tr.CompleteSummary("u1"))
		assert.Equal(t, c, tr.Classification())
	})
}

func TestTracker_spliceSurvivesReclassify(t *testing.T) {
	now := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	appts := []Appointment{
		appt("s1", now.Add(-2*time.Hour), false),
		appt("s2", now.Add(-1*time.Hour), false),
	}
	tr := NewTracker(DefaultPolicy())
	tr.Load(appts, now)
	tr.CompleteSummary("s1")

	later := now.Add(time.Minute)
	c := tr.Reclassify(later)

	// what a fresh fetch would compute
	fetched := append([]Appointment(nil), appts...)
	fetched[0].HasSummary = true
	assert.Equal(t, Classify(later, fetched, DefaultPolicy()), c)
	assert.False(t, appts[0].HasSummary, "caller's slice is not touched")
}

func TestTracker_nowNeverGoesBackwards(t *testing.T) {
	now := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	tr := NewTracker(DefaultPolicy())
	tr.Load([]Appointment{appt("a", now.Add(-30*time.Second), false)}, now)

	c := tr.Reclassify(now.Add(-time.Minute))

	assert.Equal(t, now, c.Now)
	assert.Equal(t, []string{"a"}, ids(c.NeedsSummary))
}

func TestTracker_returnsCopies(t *testing.T) {
	now := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	tr := NewTracker(DefaultPolicy())
	tr.Load([]Appointment{appt("a", now.Add(-time.Hour), false)}, now)

	c := tr.Classification()
	c.NeedsSummary[0].ID = "mutated"

	assert.Equal(t, []string{"a"}, ids(tr.Classification().NeedsSummary))
}

func TestTracker_changesDuringLoad(t *testing.T) {
	now := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	stale := []Appointment{
		appt("s1", now.Add(-2*time.Hour), false),
		appt("s2", now.Add(-time.Hour), false),
		appt("s3", now.Add(-3*time.Hour), false),
	}

	t.Run("first load", func(t *testing.T) {
		tr := NewTracker(DefaultPolicy())
		tr.BeginLoad()
		assert.False(t, tr.CompleteSummary("s1"), "nothing held yet")
		tr.Upsert(appt("u1", now.Add(time.Hour), false))
		tr.Drop("s2")

		c := tr.FinishLoad(stale, now)

		assert.Equal(t, []string{"s3"}, ids(c.NeedsSummary))
		assert.Equal(t, []string{"s1"}, ids(c.Summarized))
		assert.True(t, c.Summarized[0].HasSummary)
		assert.Equal(t, []string{"u1"}, ids(c.Upcoming))
	})

	t.Run("reload", func(t *testing.T) {
		tr := NewTracker(DefaultPolicy())
		tr.Load(stale, now)
		tr.BeginLoad()
		assert.True(t, tr.CompleteSummary("s1"))

		c := tr.FinishLoad(stale, now)

		assert.Equal(t, []string{"s2", "s3"}, ids(c.NeedsSummary))
		assert.Equal(t, []string{"s1"}, ids(c.Summarized))
	})

	t.Run("aborted load forgets", func(t *testing.T) {
		tr := NewTracker(DefaultPolicy())
		tr.BeginLoad()
		tr.CompleteSummary("s1")
		tr.AbortLoad()

		c := tr.Load(stale, now)
		assert.Equal(t, []string{"s2", "s1", "s3"}, ids(c.NeedsSummary))
	})
}

func TestTracker_Upsert(t *testing.T) {
	now := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	tr := NewTracker(DefaultPolicy())
	tr.Load([]Appointment{
		appt("s1", now.Add(-2*time.Hour), false),
		appt("u1", now.Add(time.Hour), false),
	}, now)

	tests := []struct {
		name         string
		row          Appointment
		changed      bool
		wantUpcoming []string
		wantNeeds    []string
	}{
		{"same row", appt("u1", now.Add(time.Hour), false), false, []string{"u1"}, []string{"s1"}},
		{"new appointment", appt("u2", now.Add(2*time.Hour), false), true, []string{"u1", "u2"}, []string{"s1"}},
		{"rescheduled", appt("u2", now.Add(30*time.Minute), false), true, []string{"u2", "u1"}, []string{"s1"}},
		{"unchanged past row", appt("s1", now.Add(-2*time.Hour), false), false, []string{"u2", "u1"}, []string{"s1"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.changed, tr.Upsert(tc.row))
			c := tr.Classification()
			assert.Equal(t, tc.wantUpcoming, ids(c.Upcoming))
			assert.Equal(t, tc.wantNeeds, ids(c.NeedsSummary))
		})
	}

	t.Run("summarized elsewhere", func(t *testing.T) {
		assert.True(t, tr.Upsert(appt("s1", now.Add(-2*time.Hour), true)))
		c := tr.Classification()
		assert.Empty(t, c.NeedsSummary)
		assert.Equal(t, []string{"s1"}, ids(c.Summarized))

		assert.False(t, tr.Upsert(appt("s1", now.Add(-2*time.Hour), false)))
		assert.Equal(t, []string{"s1"}, ids(tr.Classification().Summarized))
	})

	t.Run("Drop", func(t *testing.T) {
		assert.True(t, tr.Drop("u2"))
		assert.False(t, tr.Drop("u2"))
		assert.Equal(t, []string{"u1"}, ids(tr.Classification().Upcoming))
	})
}
