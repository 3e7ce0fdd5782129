package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/coachdesk/apps/api/echo"
	"github.com/trezcool/coachdesk/core"
	"github.com/trezcool/coachdesk/core/alert"
	"github.com/trezcool/coachdesk/core/appointment"
	"github.com/trezcool/coachdesk/core/bus"
	"github.com/trezcool/coachdesk/core/dashboard"
	"github.com/trezcool/coachdesk/services/email"
	"github.com/trezcool/coachdesk/services/metrics"
	"github.com/trezcool/coachdesk/storage/database/dummy"
)

var (
	neema  = core.Coach{ID: "c1", Name: "Neema", Email: "neema@test.cd"}
	jabari = core.Coach{ID: "c2", Name: "Jabari", Email: "jabari@test.cd"}

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
)

type fixture struct {
	conf   *core.Config
	appts  appointment.Repository
	alerts alert.Repository
	hub    *dashboard.Hub
	app    *echoapi.Server
}

func setup(t *testing.T) *fixture {
	conf := &core.Config{
		AppName:   "Coachdesk",
		SecretKey: "test-secret",
		TestMode:  true,
		Server:    core.ServerConfig{JWTExpirationDelta: time.Hour},
		Dashboard: core.DashboardConfig{Horizon: appointment.DefaultHorizon, SessionDuration: time.Hour},
	}

	// set up DB & repos
	db, err := dummydb.Open()
	require.NoError(t, err)
	f := &fixture{
		conf:   conf,
		appts:  dummydb.NewAppointmentRepository(db),
		alerts: dummydb.NewAlertRepository(db),
	}

	// set up services
	b := bus.New()
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	apptSvc := appointment.NewService(conf, f.appts, alert.NewService(f.alerts), b, mailSvc, core.NopLogger)
	f.hub = dashboard.NewHub(dashboard.Deps{
		Appointments: f.appts,
		Alerts:       f.alerts,
		Summaries:    apptSvc,
		Changes:      db.Subscriber(),
		Bus:          b,
		Policy:       appointment.DefaultPolicy(),
	})
	t.Cleanup(f.hub.CloseAll)

	// set up server
	f.app = echoapi.NewServer(echoapi.ServerDeps{
		Conf:           conf,
		Logger:         core.NopLogger,
		Hub:            f.hub,
		AppointmentSvc: apptSvc,
		Metrics:        metricsvc.New("coachdesk").Handler(),
		DisableReqLogs: true,
	})
	return f
}

func (f *fixture) appointment(t *testing.T, coach core.Coach, offset time.Duration) appointment.Appointment {
	t.Helper()
	a, err := f.appts.CreateAppointment(context.Background(), appointment.Appointment{
		CoachID:          coach.ID,
		ScheduledAt:      time.Now().UTC().Add(offset).Truncate(time.Second),
		ParticipantName:  "Zawadi",
		ParticipantEmail: "zawadi@test.cd",
		Location:         "Room 4",
	})
	require.NoError(t, err)
	return a
}

func (f *fixture) alert(t *testing.T, coach core.Coach, msg string) alert.Event {
	t.Helper()
	ev, err := f.alerts.CreateAlert(context.Background(), alert.Event{CoachID: coach.ID, Message: msg, CreatedAt: time.Now().UTC()})
	require.NoError(t, err)
	return ev
}

func (f *fixture) token(t *testing.T, coach core.Coach) string {
	t.Helper()
	token, err := echoapi.GenerateToken(f.conf, echoapi.GetCoachClaims(f.conf, coach))
	require.NoError(t, err)
	return token
}

func (f *fixture) do(req *http.Request, rec *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	f.app.ServeHTTP(rec, req)
	return rec
}

// openSession mounts a dashboard over HTTP and returns its id.
func (f *fixture) openSession(t *testing.T, token string) echoapi.SessionResponse {
	t.Helper()
	rec := f.do(newAuthRequest(http.MethodPost, "/v1/sessions", token))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res echoapi.SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
