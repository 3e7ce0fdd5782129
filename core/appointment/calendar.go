package appointment

import (
	"time"

	ical "github.com/arran4/golang-ical"
)

const DefaultSessionDuration = time.Hour

type CalendarOptions struct {
	ProductID string
	Name      string
	Duration  time.Duration // length of every session
	Stamp     time.Time
}

// Calendar renders appointments as VEVENTs, one per appointment, keyed by appointment id.
func Calendar(appts []Appointment, opts CalendarOptions) *ical.Calendar {
	if opts.Duration <= 0 {
		opts.Duration = DefaultSessionDuration
	}
	if opts.Stamp.IsZero() {
		opts.Stamp = time.Now().UTC()
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	if opts.ProductID != "" {
		cal.SetProductId(opts.ProductID)
	}
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}

	for _, a := range appts {
		ev := cal.AddEvent(a.ID)
		ev.SetDtStampTime(opts.Stamp)
		if !a.CreatedAt.IsZero() {
			ev.SetCreatedTime(a.CreatedAt)
		}
		ev.SetStartAt(a.ScheduledAt)
		ev.SetEndAt(a.ScheduledAt.Add(opts.Duration))
		ev.SetSummary("Session with " + a.ParticipantName)
		if a.Location != "" {
			ev.SetLocation(a.Location)
		}
		if a.ParticipantEmail != "" {
			ev.AddAttendee("mailto:" + a.ParticipantEmail)
		}
	}
	return cal
}
