package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/coachdesk/core"
	"github.com/trezcool/coachdesk/core/alert"
)

type alertRepository struct {
	db      *alertTable
	changes *changeHub
}

var _ alert.Repository = (*alertRepository)(nil) // interface compliance check

func NewAlertRepository(db *DB) alert.Repository {
	return &alertRepository{db: db.alert, changes: db.changes}
}

func (repo *alertRepository) CreateAlert(_ context.Context, ev alert.Event) (alert.Event, error) {
	repo.db.Lock()
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	repo.db.table[ev.ID] = &ev
	repo.db.Unlock()

	repo.changes.publish(TableAlerts, core.OpInsert, ev)
	return ev, nil
}

func (repo *alertRepository) QueryAlerts(_ context.Context, coachID string, limit int) ([]alert.Event, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	events := make([]alert.Event, 0)
	for _, ev := range repo.db.table {
		if ev.CoachID == coachID {
			events = append(events, *ev)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].ID < events[j].ID
		}
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (repo *alertRepository) MarkAlertsRead(_ context.Context, ids ...string) error {
	repo.db.Lock()
	updated := make([]alert.Event, 0, len(ids))
	for _, id := range ids {
		if ev, ok := repo.db.table[id]; ok && !ev.IsRead {
			ev.IsRead = true
			updated = append(updated, *ev)
		}
	}
	repo.db.Unlock()

	for _, ev := range updated {
		repo.changes.publish(TableAlerts, core.OpUpdate, ev)
	}
	return nil
}

func (repo *alertRepository) DeleteAlert(_ context.Context, id string) error {
	repo.db.Lock()
	ev, ok := repo.db.table[id]
	if !ok {
		repo.db.Unlock()
		return alert.ErrNotFound
	}
	delete(repo.db.table, id)
	deleted := *ev
	repo.db.Unlock()

	repo.changes.publish(TableAlerts, core.OpDelete, deleted)
	return nil
}
