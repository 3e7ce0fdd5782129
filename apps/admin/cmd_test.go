package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/coachdesk/apps/api/echo"
	"github.com/trezcool/coachdesk/core"
	"github.com/trezcool/coachdesk/core/alert"
	"github.com/trezcool/coachdesk/core/appointment"
	"github.com/trezcool/coachdesk/core/bus"
	"github.com/trezcool/coachdesk/services/email"
	"github.com/trezcool/coachdesk/storage/database/dummy"
)

type fixture struct {
	cli    *commandLine
	out    *bytes.Buffer
	appts  appointment.Repository
	alerts alert.Repository
	mail   *emailsvc.ConsoleServiceMock
}

func setup(t *testing.T) *fixture {
	conf := &core.Config{
		AppName:        "Coachdesk",
		SecretKey:      "test-secret",
		ReminderWindow: 24 * time.Hour,
		Server:         core.ServerConfig{JWTExpirationDelta: time.Hour},
	}

	// set up DB & repos
	db, err := dummydb.Open()
	require.NoError(t, err)
	f := &fixture{
		out:    new(bytes.Buffer),
		appts:  dummydb.NewAppointmentRepository(db),
		alerts: dummydb.NewAlertRepository(db),
		mail:   emailsvc.NewConsoleServiceMock(conf),
	}

	// start CLI
	alertSvc := alert.NewService(f.alerts)
	f.cli = &commandLine{
		conf:     conf,
		apptSvc:  appointment.NewService(conf, f.appts, alertSvc, bus.New(), f.mail, core.NopLogger),
		alertSvc: alertSvc,
		out:      f.out,
	}
	return f
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func runCLITests(t *testing.T, cli *commandLine, tests []cliTest) {
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			} else if tt.wantErr != nil || tt.wantErrStr != "" {
				t.Errorf("cli.run() error = nil, wantErr %v %s", tt.wantErr, tt.wantErrStr)
			}
		})
	}
}

func Test_commandLine_root(t *testing.T) {
	f := setup(t)
	runCLITests(t, f.cli, []cliTest{
		{name: "no command", args: nil, wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErrStr: `unknown command "lol" for "admin"`},
	})
}

func Test_commandLine_migrate(t *testing.T) {
	f := setup(t)

	var ran []string
	defer func(orig func(*sql.DB, string, ...string) error) { gooseRunFunc = orig }(gooseRunFunc)
	gooseRunFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		ran = append(ran, strings.TrimSpace(command+" "+strings.Join(args, " ")))
		return nil
	}

	runCLITests(t, f.cli, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "1"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "add_rooms", "sql"}},
	})
	assert.Equal(t, []string{"up", "up-to 1", "down", "status", "create add_rooms sql"}, ran)
}

func Test_commandLine_remind(t *testing.T) {
	f := setup(t)
	at := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	_, err := f.appts.CreateAppointment(context.Background(), appointment.Appointment{
		CoachID:          "c1",
		ScheduledAt:      at.Add(3 * time.Hour),
		ParticipantName:  "Amani",
		ParticipantEmail: "amani@test.cd",
	})
	require.NoError(t, err)

	runCLITests(t, f.cli, []cliTest{
		{name: "bad time", args: []string{"remind", "--at", "tomorrow"}, wantErrStr: `parsing --at: parsing time "tomorrow" as "2006-01-02T15:04:05Z07:00": cannot parse "tomorrow" as "2006"`},
		{name: "remind", args: []string{"remind", "--at", at.Format(time.RFC3339)}},
	})
	assert.Equal(t, "1 reminder(s) sent\n", f.out.String())
	assert.Len(t, f.mail.SentMessages(), 1)

	alerts, err := f.alerts.QueryAlerts(context.Background(), "c1", 10)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func Test_commandLine_notify(t *testing.T) {
	f := setup(t)

	runCLITests(t, f.cli, []cliTest{
		{name: "no message", args: []string{"notify", "c1"}, wantErr: errHelp},
		{name: "notify", args: []string{"notify", "c1", "Room", "4", "is", "closed"}},
	})

	alerts, err := f.alerts.QueryAlerts(context.Background(), "c1", 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "Room 4 is closed", alerts[0].Message)
	assert.Contains(t, f.out.String(), alerts[0].ID)
}

func Test_commandLine_token(t *testing.T) {
	f := setup(t)

	runCLITests(t, f.cli, []cliTest{
		{name: "no coach", args: []string{"token"}, wantErr: errHelp},
		{name: "token", args: []string{"token", "c1", "--name", "Neema"}},
	})

	claims := new(echoapi.Claims)
	_, err := jwt.ParseWithClaims(strings.TrimSpace(f.out.String()), claims, func(*jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, core.Coach{ID: "c1", Name: "Neema"}, claims.Coach())
}

func Test_commandLine_schedule(t *testing.T) {
	f := setup(t)

	runCLITests(t, f.cli, []cliTest{
		{name: "no coach", args: []string{"schedule"}, wantErr: errHelp},
		{name: "no time", args: []string{"schedule", "c1"}, wantErrStr: `required flag(s) "at" not set`},
		{name: "schedule", args: []string{"schedule", "c1", "--at", "2026-10-20T09:00:00+02:00", "--participant", "Amani", "--location", "Room 4"}},
	})

	appts, err := f.appts.QueryAppointments(context.Background(), appointment.QueryFilter{CoachID: "c1"}, nil)
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, time.Date(2026, 10, 20, 7, 0, 0, 0, time.UTC), appts[0].ScheduledAt)
	assert.Equal(t, "Room 4", appts[0].Location)
	assert.Contains(t, f.out.String(), appts[0].ID)
}
