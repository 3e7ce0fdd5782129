package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/coachdesk/core"
	"github.com/trezcool/coachdesk/core/appointment"
)

type appointmentRepository struct {
	db      *appointmentTable
	summary *summaryTable
	changes *changeHub
}

var _ appointment.Repository = (*appointmentRepository)(nil) // interface compliance check

func NewAppointmentRepository(db *DB) appointment.Repository {
	return &appointmentRepository{db: db.appointment, summary: db.summary, changes: db.changes}
}

func (repo *appointmentRepository) query() []appointment.Appointment {
	appts := make([]appointment.Appointment, 0, len(repo.db.table))
	for _, a := range repo.db.table {
		appts = append(appts, *a)
	}
	return appts
}

func (repo *appointmentRepository) CreateAppointment(_ context.Context, appt appointment.Appointment) (appointment.Appointment, error) {
	repo.db.Lock()
	if appt.ID == "" {
		appt.ID = uuid.New().String()
	}
	repo.db.table[appt.ID] = &appt
	repo.db.Unlock()

	repo.changes.publish(TableAppointments, core.OpInsert, appt)
	return appt, nil
}

func (repo *appointmentRepository) GetAppointment(_ context.Context, id string) (appointment.Appointment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if appt, ok := repo.db.table[id]; ok {
		return *appt, nil
	}
	return appointment.Appointment{}, appointment.ErrNotFound
}

func (repo *appointmentRepository) QueryAppointments(
	_ context.Context,
	filter appointment.QueryFilter,
	ordering []core.DBOrdering,
) ([]appointment.Appointment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	appts := make([]appointment.Appointment, 0)
	for _, a := range repo.query() {
		if filter.Matches(a) {
			appts = append(appts, a)
		}
	}

	// only scheduled_at is orderable here; ties fall back to id
	asc := true
	for _, ord := range ordering {
		if ord.Field == "scheduled_at" {
			asc = ord.Ascending
		}
	}
	sort.Slice(appts, func(i, j int) bool {
		a, b := appts[i], appts[j]
		if a.ScheduledAt.Equal(b.ScheduledAt) {
			return a.ID < b.ID
		}
		if asc {
			return a.ScheduledAt.Before(b.ScheduledAt)
		}
		return a.ScheduledAt.After(b.ScheduledAt)
	})
	return appts, nil
}

func (repo *appointmentRepository) MarkReminderSent(_ context.Context, id string) error {
	repo.db.Lock()
	appt, ok := repo.db.table[id]
	if !ok {
		repo.db.Unlock()
		return appointment.ErrNotFound
	}
	appt.ReminderSent = true
	updated := *appt
	repo.db.Unlock()

	repo.changes.publish(TableAppointments, core.OpUpdate, updated)
	return nil
}

func (repo *appointmentRepository) CreateSummary(_ context.Context, s appointment.Summary) (appointment.Summary, error) {
	repo.db.Lock()
	appt, ok := repo.db.table[s.AppointmentID]
	if !ok {
		repo.db.Unlock()
		return appointment.Summary{}, appointment.ErrNotFound
	}
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	repo.summary.Lock()
	repo.summary.table[s.ID] = &s
	repo.summary.Unlock()
	appt.HasSummary = true
	updated := *appt
	repo.db.Unlock()

	repo.changes.publish(TableSummaries, core.OpInsert, s)
	repo.changes.publish(TableAppointments, core.OpUpdate, updated)
	return s, nil
}
