package testutil

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/coachdesk/core"
	"github.com/trezcool/coachdesk/core/alert"
	"github.com/trezcool/coachdesk/core/appointment"
	"github.com/trezcool/coachdesk/storage/database"
)

func CreateAppointment(
	t *testing.T,
	repo appointment.Repository,
	coachID, participant string,
	scheduledAt time.Time,
	hasSummary bool,
) appointment.Appointment {
	t.Helper()
	appt, err := repo.CreateAppointment(context.Background(), appointment.Appointment{
		CoachID:          coachID,
		ScheduledAt:      scheduledAt.UTC(),
		ParticipantName:  participant,
		ParticipantEmail: strings.ToLower(participant) + "@test.cd",
		HasSummary:       hasSummary,
		CreatedAt:        time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateAppointment() failed: %v", err)
	}
	return appt
}

func CreateAlert(t *testing.T, repo alert.Repository, coachID, message string, createdAt ...time.Time) alert.Event {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	ev, err := repo.CreateAlert(context.Background(), alert.Event{
		CoachID:   coachID,
		Message:   message,
		CreatedAt: tstamp,
	})
	if err != nil {
		t.Fatalf("CreateAlert() failed: %v", err)
	}
	return ev
}

// PrepareDB returns a migrated, empty test database. It skips the test unless ENV=TEST.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	if strings.ToUpper(os.Getenv("ENV")) != "TEST" {
		t.Skip("database tests need ENV=TEST and a reachable postgres")
	}

	conf := core.NewConfig()
	if err := database.CreateIfNotExist(conf); err != nil {
		t.Fatalf("CreateIfNotExist() failed: %v", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err = database.Migrate(db.DB, "up"); err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	ResetDB(t, db)

	t.Cleanup(func() { _ = db.Close() })
	return db
}

func ResetDB(t *testing.T, db *sqlx.DB) {
	t.Helper()
	if _, err := db.Exec("TRUNCATE summaries, alerts, appointments"); err != nil {
		t.Fatalf("ResetDB() failed: %v", err)
	}
}
