package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/coachdesk/core"
	"github.com/trezcool/coachdesk/core/appointment"
	"github.com/trezcool/coachdesk/core/dashboard"
)

type (
	AppointmentService interface {
		SubmitSummary(ctx context.Context, coachID string, ns appointment.NewSummary) (appointment.Summary, error)
		Upcoming(ctx context.Context, coachID string, now time.Time, horizon time.Duration) ([]appointment.Appointment, error)
		Calendar(appts []appointment.Appointment, stamp time.Time) *ical.Calendar
	}

	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		Hub            *dashboard.Hub
		AppointmentSvc AppointmentService
		Metrics        http.Handler // served on /metrics when set
		DisableReqLogs bool
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ http.Handler = (*Server)(nil)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)
	if s.deps.Metrics != nil {
		s.app.GET("/metrics", echo.WrapHandler(s.deps.Metrics))
	}

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(jwtConfig(conf))

	registerSessionAPI(v1, jwt, s.deps.Hub)
	registerAppointmentAPI(v1, jwt, s.deps.Hub, s.deps.AppointmentSvc, conf.Dashboard.Horizon)
}

// Start blocks until the server stops. Unexpected failures are reported on Errors().
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

// SignalShutdown asks the process to shut down gracefully.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
