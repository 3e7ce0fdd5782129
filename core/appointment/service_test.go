package appointment_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/coachdesk/core"
	"github.com/trezcool/coachdesk/core/alert"
	"github.com/trezcool/coachdesk/core/appointment"
	"github.com/trezcool/coachdesk/core/bus"
	"github.com/trezcool/coachdesk/storage/database/dummy"
)

type mailRecorder struct {
	mu   sync.Mutex
	sent []*core.EmailMessage
}

func (m *mailRecorder) SendMessages(messages ...*core.EmailMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, messages...)
}

// failingSummaries refuses every summary write.
type failingSummaries struct {
	appointment.Repository
}

var errDBDown = errors.New("db down")

func (failingSummaries) CreateSummary(context.Context, appointment.Summary) (appointment.Summary, error) {
	return appointment.Summary{}, errDBDown
}

type fixture struct {
	repo     appointment.Repository
	alerts   alert.Repository
	bus      *bus.Bus
	mail     *mailRecorder
	svc      *appointment.Service
	received []bus.SummaryCompleted
}

func setup(t *testing.T, wrap ...func(appointment.Repository) appointment.Repository) *fixture {
	db, err := dummydb.Open()
	require.NoError(t, err)

	f := &fixture{
		repo:   dummydb.NewAppointmentRepository(db),
		alerts: dummydb.NewAlertRepository(db),
		bus:    bus.New(),
		mail:   &mailRecorder{},
	}
	repo := f.repo
	for _, w := range wrap {
		repo = w(repo)
	}
	conf := &core.Config{ReminderWindow: 24 * time.Hour}
	f.svc = appointment.NewService(conf, repo, alert.NewService(f.alerts), f.bus, f.mail, core.NopLogger)
	unsub := f.bus.SubscribeSummaryCompleted(func(ev bus.SummaryCompleted) { f.received = append(f.received, ev) })
	t.Cleanup(unsub)
	return f
}

func (f *fixture) create(t *testing.T, coachID string, at time.Time, email string) appointment.Appointment {
	t.Helper()
	appt, err := f.repo.CreateAppointment(context.Background(), appointment.Appointment{
		CoachID:          coachID,
		ScheduledAt:      at,
		ParticipantName:  "Amani",
		ParticipantEmail: email,
	})
	require.NoError(t, err)
	return appt
}

func TestService_SubmitSummary(t *testing.T) {
	now := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	defer appointment.SetNow(now)()
	ctx := context.Background()

	t.Run("persists then announces", func(t *testing.T) {
		f := setup(t)
		appt := f.create(t, "c1", now.Add(-time.Hour), "")

		s, err := f.svc.SubmitSummary(ctx, "c1", appointment.NewSummary{AppointmentID: appt.ID, Notes: " went well "})
		require.NoError(t, err)
		assert.NotEmpty(t, s.ID)
		assert.Equal(t, "went well", s.Notes)

		stored, err := f.repo.GetAppointment(ctx, appt.ID)
		require.NoError(t, err)
		assert.True(t, stored.HasSummary)

		require.Len(t, f.received, 1)
		assert.Equal(t, bus.SummaryCompleted{AppointmentID: appt.ID, CoachID: "c1", At: now}, f.received[0])
	})

	t.Run("nothing announced when the write fails", func(t *testing.T) {
		f := setup(t, func(r appointment.Repository) appointment.Repository { return failingSummaries{r} })
		appt := f.create(t, "c1", now.Add(-time.Hour), "")

		_, err := f.svc.SubmitSummary(ctx, "c1", appointment.NewSummary{AppointmentID: appt.ID, Notes: "notes"})
		assert.True(t, errors.Is(err, errDBDown))
		assert.Empty(t, f.received)
	})

	t.Run("rejections", func(t *testing.T) {
		f := setup(t)
		past := f.create(t, "c1", now.Add(-time.Hour), "")
		future := f.create(t, "c1", now.Add(time.Hour), "")
		atNow := f.create(t, "c1", now, "")
		_, err := f.svc.SubmitSummary(ctx, "c1", appointment.NewSummary{AppointmentID: atNow.ID, Notes: "starts now"})
		require.NoError(t, err)
		f.received = nil

		tests := []struct {
			name    string
			coachID string
			ns      appointment.NewSummary
			wantErr error
		}{
			{name: "blank notes", coachID: "c1", ns: appointment.NewSummary{AppointmentID: past.ID, Notes: "   "}},
			{name: "unknown appointment", coachID: "c1", ns: appointment.NewSummary{AppointmentID: "nope", Notes: "x"}, wantErr: appointment.ErrNotFound},
			{name: "other coach", coachID: "c2", ns: appointment.NewSummary{AppointmentID: past.ID, Notes: "x"}, wantErr: appointment.ErrNotFound},
			{name: "not held yet", coachID: "c1", ns: appointment.NewSummary{AppointmentID: future.ID, Notes: "x"}, wantErr: appointment.ErrNotHeldYet},
			{name: "already summarized", coachID: "c1", ns: appointment.NewSummary{AppointmentID: atNow.ID, Notes: "x"}, wantErr: appointment.ErrAlreadySummarized},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := f.svc.SubmitSummary(ctx, tt.coachID, tt.ns)
				require.Error(t, err)
				if tt.wantErr != nil {
					assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				}
				assert.Empty(t, f.received)
			})
		}
	})
}

func TestService_SendReminders(t *testing.T) {
	now := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()
	f := setup(t)

	soon := f.create(t, "c1", now.Add(2*time.Hour), "amani@test.cd")
	edge := f.create(t, "c1", now.Add(24*time.Hour), "baraka@test.cd")
	f.create(t, "c1", now.Add(25*time.Hour), "later@test.cd")
	f.create(t, "c1", now.Add(-time.Hour), "past@test.cd")
	f.create(t, "c2", now.Add(3*time.Hour), "") // no email

	sent, err := f.svc.SendReminders(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	require.Len(t, f.mail.sent, 2)
	assert.Equal(t, "amani@test.cd", f.mail.sent[0].To[0].Address)
	assert.Equal(t, "reminder", f.mail.sent[0].TemplateName)
	require.Len(t, f.mail.sent[0].Attachments, 1)
	assert.Equal(t, "text/calendar", f.mail.sent[0].Attachments[0].ContentType)

	for _, id := range []string{soon.ID, edge.ID} {
		appt, err := f.repo.GetAppointment(ctx, id)
		require.NoError(t, err)
		assert.True(t, appt.ReminderSent)
	}

	alerts, err := f.alerts.QueryAlerts(ctx, "c1", 10)
	require.NoError(t, err)
	assert.Len(t, alerts, 2)

	t.Run("second run sends nothing", func(t *testing.T) {
		sent, err := f.svc.SendReminders(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 0, sent)
		assert.Len(t, f.mail.sent, 2)
	})
}

func TestService_Upcoming(t *testing.T) {
	now := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	f := setup(t)
	b := f.create(t, "c1", now.Add(48*time.Hour), "")
	a := f.create(t, "c1", now.Add(time.Hour), "")
	f.create(t, "c1", now, "")
	f.create(t, "c1", now.Add(8*24*time.Hour), "")
	f.create(t, "c2", now.Add(time.Hour), "")

	appts, err := f.svc.Upcoming(context.Background(), "c1", now, 0)
	require.NoError(t, err)
	require.Len(t, appts, 2)
	assert.Equal(t, a.ID, appts[0].ID)
	assert.Equal(t, b.ID, appts[1].ID)
}
