package appointment

import (
	"time"

	"github.com/trezcool/coachdesk/core"
)

type Appointment struct {
	ID               string    `json:"id"`
	CoachID          string    `json:"coach_id"`
	ScheduledAt      time.Time `json:"scheduled_at"` // UTC
	ParticipantID    string    `json:"participant_id"`
	ParticipantName  string    `json:"participant_name"`
	ParticipantEmail string    `json:"participant_email,omitempty"`
	Location         string    `json:"location,omitempty"`
	ReminderSent     bool      `json:"reminder_sent"`
	HasSummary       bool      `json:"has_summary"`
	CreatedAt        time.Time `json:"created_at"` // UTC
}

// Summary is the coach's write-up of a held appointment.
type Summary struct {
	ID            string    `json:"id"`
	AppointmentID string    `json:"appointment_id"`
	CoachID       string    `json:"coach_id"`
	Notes         string    `json:"notes"`
	NextSteps     string    `json:"next_steps,omitempty"`
	CreatedAt     time.Time `json:"created_at"` // UTC
}

// NewSummary contains information needed to summarize an Appointment.
type NewSummary struct {
	AppointmentID string `json:"appointment_id" validate:"required"`
	Notes         string `json:"notes" validate:"notblank,max=10000"`
	NextSteps     string `json:"next_steps" validate:"omitempty,max=5000"`
}

func (ns *NewSummary) Validate() error {
	ns.AppointmentID = core.CleanString(ns.AppointmentID)
	ns.Notes = core.CleanString(ns.Notes)
	ns.NextSteps = core.CleanString(ns.NextSteps)
	return core.Validate.Struct(ns)
}

type QueryFilter struct {
	CoachID        string
	ScheduledAfter time.Time // exclusive
	ScheduledUntil time.Time // inclusive
	ReminderSent   *bool
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.CoachID == "" && qf.ScheduledAfter.IsZero() && qf.ScheduledUntil.IsZero() && qf.ReminderSent == nil
}

// Matches applies the filter in memory.
func (qf *QueryFilter) Matches(a Appointment) bool {
	if qf.CoachID != "" && a.CoachID != qf.CoachID {
		return false
	}
	if !qf.ScheduledAfter.IsZero() && !a.ScheduledAt.After(qf.ScheduledAfter) {
		return false
	}
	if !qf.ScheduledUntil.IsZero() && a.ScheduledAt.After(qf.ScheduledUntil) {
		return false
	}
	if qf.ReminderSent != nil && a.ReminderSent != *qf.ReminderSent {
		return false
	}
	return true
}
