package dig_container

import (
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/coachdesk/apps/api/echo"
	"github.com/trezcool/coachdesk/apps/api/jobs"
	"github.com/trezcool/coachdesk/core"
	"github.com/trezcool/coachdesk/core/alert"
	"github.com/trezcool/coachdesk/core/appointment"
	"github.com/trezcool/coachdesk/core/bus"
	"github.com/trezcool/coachdesk/core/dashboard"
	"github.com/trezcool/coachdesk/services/broker/natsbus"
	emailsvc "github.com/trezcool/coachdesk/services/email"
	logsvc "github.com/trezcool/coachdesk/services/logger"
	metricsvc "github.com/trezcool/coachdesk/services/metrics"
	"github.com/trezcool/coachdesk/storage/database"
	dummydb "github.com/trezcool/coachdesk/storage/database/dummy"
	"github.com/trezcool/coachdesk/storage/database/pgnotify"
	sqlxrepos "github.com/trezcool/coachdesk/storage/database/sqlx"
)

// database engines
const (
	EnginePostgres = "postgres"
	EngineDummy    = "dummy"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// Storage is what the configured database engine provides.
type Storage struct {
	Appointments appointment.Repository
	Alerts       alert.Repository
	Changes      core.Subscriber
	Close        func() error
}

// Broker relays summary completions between API processes. It does nothing when nats.url is empty.
type Broker struct {
	conn  *nats.Conn
	relay *natsbus.Relay
}

func (b *Broker) Start() error {
	if b.relay == nil {
		return nil
	}
	return b.relay.Start()
}

func (b *Broker) Close() {
	if b.relay == nil {
		return
	}
	b.relay.Stop()
	_ = b.conn.Drain()
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newStorage(conf *core.Config, loggerParam DBLoggerParam) Storage {
	logger := loggerParam.Logger

	if conf.Database.Engine == EngineDummy {
		db, err := dummydb.Open()
		if err != nil {
			logger.Fatal(fmt.Sprintf("opening dummy database: %v", err), err)
		}
		return Storage{
			Appointments: dummydb.NewAppointmentRepository(db),
			Alerts:       dummydb.NewAlertRepository(db),
			Changes:      db.Subscriber(),
			Close:        func() error { return nil },
		}
	}

	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db.DB, "up"); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	sub, err := pgnotify.New(database.DSN(conf, conf.Database.Name, false), logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("listening to row changes: %v", err), err)
	}
	return Storage{
		Appointments: sqlxrepos.NewAppointmentRepository(db),
		Alerts:       sqlxrepos.NewAlertRepository(db),
		Changes:      sub,
		Close: func() error {
			if err := sub.Close(); err != nil {
				logger.Error("closing listener", err)
			}
			return db.Close()
		},
	}
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newMetrics(conf *core.Config) *metricsvc.Metrics {
	return metricsvc.New(core.CleanString(conf.AppName, true))
}

func newAlertService(s Storage) *alert.Service {
	return alert.NewService(s.Alerts)
}

func newAppointmentService(
	conf *core.Config,
	s Storage,
	alertSvc *alert.Service,
	b *bus.Bus,
	mailSvc core.EmailService,
	logger core.Logger,
) *appointment.Service {
	return appointment.NewService(conf, s.Appointments, alertSvc, b, mailSvc, logger)
}

func newHub(
	conf *core.Config,
	s Storage,
	svc *appointment.Service,
	b *bus.Bus,
	logger core.Logger,
	metrics *metricsvc.Metrics,
) *dashboard.Hub {
	return dashboard.NewHub(dashboard.Deps{
		Appointments: s.Appointments,
		Alerts:       s.Alerts,
		Summaries:    svc,
		Changes:      s.Changes,
		Bus:          b,
		Logger:       logger,
		Metrics:      metrics,
		Policy:       appointment.Policy{Horizon: conf.Dashboard.Horizon, PastLimit: conf.Dashboard.PastLimit},
		FeedSize:     conf.Dashboard.FeedSize,
	})
}

func newServer(
	conf *core.Config,
	logger core.Logger,
	hub *dashboard.Hub,
	svc *appointment.Service,
	metrics *metricsvc.Metrics,
) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:           conf,
		Logger:         logger,
		Hub:            hub,
		AppointmentSvc: svc,
		Metrics:        metrics.Handler(),
	})
}

func newJobs(
	conf *core.Config,
	hub *dashboard.Hub,
	svc *appointment.Service,
	logger core.Logger,
	metrics *metricsvc.Metrics,
) *jobs.Jobs {
	return jobs.New(hub, svc, logger, metrics, conf.Dashboard.SessionTTL)
}

func newBroker(conf *core.Config, b *bus.Bus, logger core.Logger, metrics *metricsvc.Metrics) (*Broker, error) {
	if conf.NATS.URL == "" {
		return &Broker{}, nil
	}
	nc, err := natsbus.Connect(conf.NATS.URL, conf.AppName+" API", logger)
	if err != nil {
		return nil, err
	}
	return &Broker{conn: nc, relay: natsbus.NewRelay(nc, conf.NATS.Subject, b, logger, metrics)}, nil
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(newEmailService))
	must(c.Provide(newMetrics))
	must(c.Provide(bus.New))
	must(c.Provide(newAlertService))
	must(c.Provide(newAppointmentService))
	must(c.Provide(newHub))
	must(c.Provide(newServer))
	must(c.Provide(newJobs))
	must(c.Provide(newBroker))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
