package alert

import (
	"context"
	"errors"
	"time"
)

var (
	// errors
	ErrNotFound = errors.New("alert not found")
)

type (
	// Writer persists the mutations a Feed makes.
	Writer interface {
		// MarkAlertsRead flags every id as read in one write.
		MarkAlertsRead(ctx context.Context, ids ...string) error
		DeleteAlert(ctx context.Context, id string) error
	}

	Repository interface {
		Writer

		CreateAlert(ctx context.Context, ev Event) (Event, error)
		// QueryAlerts returns the coach's newest alerts first.
		QueryAlerts(ctx context.Context, coachID string, limit int) ([]Event, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Notify creates an alert for the coach. Live feeds pick it up from the push channel.
func (svc *Service) Notify(ctx context.Context, coachID, message string) (Event, error) {
	ne := NewEvent{CoachID: coachID, Message: message}
	if err := ne.Validate(); err != nil {
		return Event{}, err
	}
	return svc.repo.CreateAlert(ctx, Event{
		CoachID:   ne.CoachID,
		Message:   ne.Message,
		CreatedAt: time.Now().UTC(),
	})
}

func (svc *Service) Query(ctx context.Context, coachID string, limit int) ([]Event, error) {
	return svc.repo.QueryAlerts(ctx, coachID, limit)
}
