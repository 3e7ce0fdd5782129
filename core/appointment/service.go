package appointment

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/coachdesk/core"
	"github.com/trezcool/coachdesk/core/alert"
	"github.com/trezcool/coachdesk/core/bus"
)

var (
	// errors
	ErrNotFound          = errors.New("appointment not found")
	ErrAlreadySummarized = errors.New("appointment already has a summary")
	ErrNotHeldYet        = errors.New("appointment has not taken place yet")
)

var nowFunc = time.Now // mockable

type (
	Repository interface {
		CreateAppointment(ctx context.Context, appt Appointment) (Appointment, error)
		GetAppointment(ctx context.Context, id string) (Appointment, error)
		QueryAppointments(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Appointment, error)
		MarkReminderSent(ctx context.Context, id string) error
		// CreateSummary stores the summary and flags its appointment as summarized, atomically.
		CreateSummary(ctx context.Context, s Summary) (Summary, error)
	}

	Service struct {
		repo           Repository
		alertSvc       *alert.Service
		bus            *bus.Bus
		mailSvc        core.EmailService
		logger         core.Logger
		reminderWindow time.Duration
		calendar       CalendarOptions
	}
)

func NewService(
	conf *core.Config,
	repo Repository,
	alertSvc *alert.Service,
	b *bus.Bus,
	mailSvc core.EmailService,
	logger core.Logger,
) *Service {
	window := conf.ReminderWindow
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Service{
		repo:           repo,
		alertSvc:       alertSvc,
		bus:            b,
		mailSvc:        mailSvc,
		logger:         logger,
		reminderWindow: window,
		calendar: CalendarOptions{
			ProductID: "-//" + conf.AppName + "//Sessions//EN",
			Name:      conf.AppName,
			Duration:  conf.Dashboard.SessionDuration,
		},
	}
}

// SubmitSummary persists a summary and only then announces the completion to every mounted dashboard.
// Nothing is announced when the write fails.
func (svc *Service) SubmitSummary(ctx context.Context, coachID string, ns NewSummary) (Summary, error) {
	if err := ns.Validate(); err != nil {
		return Summary{}, err
	}

	appt, err := svc.repo.GetAppointment(ctx, ns.AppointmentID)
	if err != nil {
		return Summary{}, err
	}
	if appt.CoachID != coachID {
		return Summary{}, ErrNotFound
	}
	if appt.HasSummary {
		return Summary{}, core.NewValidationError(ErrAlreadySummarized)
	}
	now := nowFunc().UTC()
	if !IsPast(appt, now) {
		return Summary{}, core.NewValidationError(ErrNotHeldYet)
	}

	s, err := svc.repo.CreateSummary(ctx, Summary{
		AppointmentID: appt.ID,
		CoachID:       coachID,
		Notes:         ns.Notes,
		NextSteps:     ns.NextSteps,
		CreatedAt:     now,
	})
	if err != nil {
		return Summary{}, pkgerrors.Wrap(err, "creating summary")
	}

	svc.bus.PublishSummaryCompleted(bus.SummaryCompleted{
		AppointmentID: appt.ID,
		CoachID:       coachID,
		At:            now,
	})
	return s, nil
}

type reminderData struct {
	ParticipantName string
	When            string
	Location        string
}

// SendReminders emails participants of appointments in (now, now+window] that were not reminded yet,
// flags them and tells their coach. It returns how many reminders went out.
func (svc *Service) SendReminders(ctx context.Context, now time.Time) (int, error) {
	notReminded := false
	appts, err := svc.repo.QueryAppointments(ctx, QueryFilter{
		ScheduledAfter: now,
		ScheduledUntil: now.Add(svc.reminderWindow),
		ReminderSent:   &notReminded,
	}, []core.DBOrdering{{Field: "scheduled_at", Ascending: true}})
	if err != nil {
		return 0, pkgerrors.Wrap(err, "querying appointments to remind")
	}

	var (
		sent     int
		failed   int
		firstErr error
	)
	fail := func(err error) {
		failed++
		if firstErr == nil {
			firstErr = err
		}
	}

	for _, appt := range appts {
		if appt.ParticipantEmail == "" {
			svc.logger.Debug(fmt.Sprintf("appointment %s: no participant email, reminder skipped", appt.ID))
			continue
		}

		msg := &core.EmailMessage{
			To:           []mail.Address{{Name: appt.ParticipantName, Address: appt.ParticipantEmail}},
			Subject:      "Session reminder",
			TemplateName: "reminder",
			TemplateData: reminderData{
				ParticipantName: appt.ParticipantName,
				When:            appt.ScheduledAt.Format("Monday, January 2 at 15:04 MST"),
				Location:        appt.Location,
			},
		}
		invite := svc.Calendar([]Appointment{appt}, now).Serialize()
		if err := msg.Attach(strings.NewReader(invite), "session.ics", "text/calendar"); err != nil {
			svc.logger.Warn(fmt.Sprintf("appointment %s: invite not attached", appt.ID), err)
		}
		svc.mailSvc.SendMessages(msg)

		if err := svc.repo.MarkReminderSent(ctx, appt.ID); err != nil {
			fail(pkgerrors.Wrapf(err, "flagging reminder of appointment %s", appt.ID))
			continue
		}
		sent++

		note := fmt.Sprintf("Reminder sent to %s for %s", appt.ParticipantName, appt.ScheduledAt.Format("Jan 2, 15:04"))
		if _, err := svc.alertSvc.Notify(ctx, appt.CoachID, note); err != nil {
			fail(pkgerrors.Wrapf(err, "alerting coach %s", appt.CoachID))
		}
	}

	if firstErr != nil {
		svc.logger.Error(fmt.Sprintf("reminders: %d failure(s)", failed), firstErr)
		return sent, pkgerrors.Wrapf(firstErr, "%d reminder step(s) failed", failed)
	}
	return sent, nil
}

// Calendar renders appts with the service's product id and session length.
func (svc *Service) Calendar(appts []Appointment, stamp time.Time) *ical.Calendar {
	opts := svc.calendar
	opts.Stamp = stamp
	return Calendar(appts, opts)
}

// Schedule records an appointment created by the scheduling side of the application.
func (svc *Service) Schedule(ctx context.Context, appt Appointment) (Appointment, error) {
	appt.ScheduledAt = appt.ScheduledAt.UTC()
	appt.CreatedAt = nowFunc().UTC()
	appt.ReminderSent = false
	appt.HasSummary = false
	return svc.repo.CreateAppointment(ctx, appt)
}

// Upcoming returns the coach's appointments in (now, now+horizon].
func (svc *Service) Upcoming(ctx context.Context, coachID string, now time.Time, horizon time.Duration) ([]Appointment, error) {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return svc.repo.QueryAppointments(ctx, QueryFilter{
		CoachID:        coachID,
		ScheduledAfter: now,
		ScheduledUntil: now.Add(horizon),
	}, []core.DBOrdering{{Field: "scheduled_at", Ascending: true}})
}
