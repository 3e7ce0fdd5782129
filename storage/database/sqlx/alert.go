package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/coachdesk/core/alert"
)

type (
	alertRow struct {
		ID        string    `db:"id"`
		CoachID   string    `db:"coach_id"`
		Message   string    `db:"message"`
		IsRead    bool      `db:"is_read"`
		CreatedAt time.Time `db:"created_at"`
	}

	alertRepository struct {
		db *sqlx.DB
	}
)

var _ alert.Repository = (*alertRepository)(nil) // interface compliance check

func NewAlertRepository(db *sqlx.DB) alert.Repository {
	return &alertRepository{db: db}
}

func (r alertRow) event() alert.Event {
	return alert.Event{
		ID:        r.ID,
		CoachID:   r.CoachID,
		Message:   r.Message,
		IsRead:    r.IsRead,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func (repo *alertRepository) CreateAlert(ctx context.Context, ev alert.Event) (alert.Event, error) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	row := alertRow{ID: ev.ID, CoachID: ev.CoachID, Message: ev.Message, IsRead: ev.IsRead, CreatedAt: ev.CreatedAt.UTC()}
	q := `INSERT INTO alerts (id, coach_id, message, is_read, created_at)
VALUES (:id, :coach_id, :message, :is_read, :created_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return alert.Event{}, errors.Wrap(err, "inserting alert")
	}
	return row.event(), nil
}

func (repo *alertRepository) QueryAlerts(ctx context.Context, coachID string, limit int) ([]alert.Event, error) {
	q := `SELECT id, coach_id, message, is_read, created_at FROM alerts
WHERE coach_id = $1
ORDER BY created_at DESC, id ASC`
	args := []interface{}{coachID}
	if limit > 0 {
		q += " LIMIT $2"
		args = append(args, limit)
	}

	var rows []alertRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying alerts")
	}
	events := make([]alert.Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, r.event())
	}
	return events, nil
}

func (repo *alertRepository) MarkAlertsRead(ctx context.Context, ids ...string) error {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	q, args, err := sqlx.In(`UPDATE alerts SET is_read = true WHERE id IN (?) AND NOT is_read`, valid)
	if err != nil {
		return errors.Wrap(err, "building alerts update")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "marking alerts read")
	}
	return nil
}

func (repo *alertRepository) DeleteAlert(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return alert.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting alert")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return alert.ErrNotFound
	}
	return nil
}
