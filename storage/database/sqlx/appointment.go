package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/coachdesk/core"
	"github.com/trezcool/coachdesk/core/appointment"
)

const appointmentColumns = `id, coach_id, scheduled_at, participant_id, participant_name,
participant_email, location, reminder_sent, has_summary, created_at`

// orderable appointment columns
var appointmentOrdering = map[string]bool{
	"scheduled_at": true,
	"created_at":   true,
}

type (
	appointmentRow struct {
		ID               string      `db:"id"`
		CoachID          string      `db:"coach_id"`
		ScheduledAt      time.Time   `db:"scheduled_at"`
		ParticipantID    string      `db:"participant_id"`
		ParticipantName  string      `db:"participant_name"`
		ParticipantEmail string      `db:"participant_email"`
		Location         null.String `db:"location"`
		ReminderSent     bool        `db:"reminder_sent"`
		HasSummary       bool        `db:"has_summary"`
		CreatedAt        time.Time   `db:"created_at"`
	}

	summaryRow struct {
		ID            string    `db:"id"`
		AppointmentID string    `db:"appointment_id"`
		CoachID       string    `db:"coach_id"`
		Notes         string    `db:"notes"`
		NextSteps     string    `db:"next_steps"`
		CreatedAt     time.Time `db:"created_at"`
	}

	appointmentRepository struct {
		db *sqlx.DB
	}
)

var _ appointment.Repository = (*appointmentRepository)(nil) // interface compliance check

func NewAppointmentRepository(db *sqlx.DB) appointment.Repository {
	return &appointmentRepository{db: db}
}

func toAppointmentRow(a appointment.Appointment) appointmentRow {
	return appointmentRow{
		ID:               a.ID,
		CoachID:          a.CoachID,
		ScheduledAt:      a.ScheduledAt.UTC(),
		ParticipantID:    a.ParticipantID,
		ParticipantName:  a.ParticipantName,
		ParticipantEmail: a.ParticipantEmail,
		Location:         null.NewString(a.Location, a.Location != ""),
		ReminderSent:     a.ReminderSent,
		HasSummary:       a.HasSummary,
		CreatedAt:        a.CreatedAt.UTC(),
	}
}

func (r appointmentRow) appointment() appointment.Appointment {
	return appointment.Appointment{
		ID:               r.ID,
		CoachID:          r.CoachID,
		ScheduledAt:      r.ScheduledAt.UTC(),
		ParticipantID:    r.ParticipantID,
		ParticipantName:  r.ParticipantName,
		ParticipantEmail: r.ParticipantEmail,
		Location:         r.Location.String,
		ReminderSent:     r.ReminderSent,
		HasSummary:       r.HasSummary,
		CreatedAt:        r.CreatedAt.UTC(),
	}
}

// trapNoRowsErr maps psql "no rows" err to appointment.ErrNotFound
func (repo *appointmentRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return appointment.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo *appointmentRepository) CreateAppointment(ctx context.Context, appt appointment.Appointment) (appointment.Appointment, error) {
	if appt.ID == "" {
		appt.ID = uuid.New().String()
	}
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = time.Now().UTC()
	}
	row := toAppointmentRow(appt)
	q := `INSERT INTO appointments (` + appointmentColumns + `)
VALUES (:id, :coach_id, :scheduled_at, :participant_id, :participant_name,
        :participant_email, :location, :reminder_sent, :has_summary, :created_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return appointment.Appointment{}, errors.Wrap(err, "inserting appointment")
	}
	return row.appointment(), nil
}

func (repo *appointmentRepository) GetAppointment(ctx context.Context, id string) (appointment.Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return appointment.Appointment{}, appointment.ErrNotFound
	}
	var row appointmentRow
	q := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return appointment.Appointment{}, repo.trapNoRowsErr(err, "getting appointment")
	}
	return row.appointment(), nil
}

func (repo *appointmentRepository) QueryAppointments(
	ctx context.Context,
	filter appointment.QueryFilter,
	ordering []core.DBOrdering,
) ([]appointment.Appointment, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.CoachID != "" {
		where = append(where, "coach_id = "+arg(filter.CoachID))
	}
	if !filter.ScheduledAfter.IsZero() {
		where = append(where, "scheduled_at > "+arg(filter.ScheduledAfter.UTC()))
	}
	if !filter.ScheduledUntil.IsZero() {
		where = append(where, "scheduled_at <= "+arg(filter.ScheduledUntil.UTC()))
	}
	if filter.ReminderSent != nil {
		where = append(where, "reminder_sent = "+arg(*filter.ReminderSent))
	}

	q := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}

	orderBy := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if appointmentOrdering[ord.Field] {
			orderBy = append(orderBy, ord.String())
		}
	}
	orderBy = append(orderBy, "id ASC")
	q += " ORDER BY " + strings.Join(orderBy, ", ")

	var rows []appointmentRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying appointments")
	}
	appts := make([]appointment.Appointment, 0, len(rows))
	for _, r := range rows {
		appts = append(appts, r.appointment())
	}
	return appts, nil
}

func (repo *appointmentRepository) MarkReminderSent(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return appointment.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `UPDATE appointments SET reminder_sent = true WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "flagging reminder")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return appointment.ErrNotFound
	}
	return nil
}

func (repo *appointmentRepository) CreateSummary(ctx context.Context, s appointment.Summary) (appointment.Summary, error) {
	if _, err := uuid.Parse(s.AppointmentID); err != nil {
		return appointment.Summary{}, appointment.ErrNotFound
	}
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return appointment.Summary{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var summarized bool
	err = tx.GetContext(ctx, &summarized, `SELECT has_summary FROM appointments WHERE id = $1 FOR UPDATE`, s.AppointmentID)
	if err != nil {
		return appointment.Summary{}, repo.trapNoRowsErr(err, "locking appointment")
	}
	if summarized {
		return appointment.Summary{}, core.NewValidationError(appointment.ErrAlreadySummarized)
	}

	row := summaryRow{
		ID:            s.ID,
		AppointmentID: s.AppointmentID,
		CoachID:       s.CoachID,
		Notes:         s.Notes,
		NextSteps:     s.NextSteps,
		CreatedAt:     s.CreatedAt.UTC(),
	}
	q := `INSERT INTO summaries (id, appointment_id, coach_id, notes, next_steps, created_at)
VALUES (:id, :appointment_id, :coach_id, :notes, :next_steps, :created_at)`
	if _, err = tx.NamedExecContext(ctx, q, row); err != nil {
		return appointment.Summary{}, errors.Wrap(err, "inserting summary")
	}
	if _, err = tx.ExecContext(ctx, `UPDATE appointments SET has_summary = true WHERE id = $1`, s.AppointmentID); err != nil {
		return appointment.Summary{}, errors.Wrap(err, "flagging appointment")
	}
	if err = tx.Commit(); err != nil {
		return appointment.Summary{}, errors.Wrap(err, "committing summary")
	}
	return s, nil
}
