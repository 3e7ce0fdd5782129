package main

import (
	"log"
	"os"

	"github.com/trezcool/coachdesk/core"
	"github.com/trezcool/coachdesk/core/alert"
	"github.com/trezcool/coachdesk/core/appointment"
	"github.com/trezcool/coachdesk/core/bus"
	emailsvc "github.com/trezcool/coachdesk/services/email"
	logsvc "github.com/trezcool/coachdesk/services/logger"
	"github.com/trezcool/coachdesk/storage/database"
	sqlxrepos "github.com/trezcool/coachdesk/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	logger.Enable(!conf.Debug)
	defer logger.Close()

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}

	core.ParseEmailTemplates(conf, logger)

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	alertSvc := alert.NewService(sqlxrepos.NewAlertRepository(db))
	apptSvc := appointment.NewService(conf, sqlxrepos.NewAppointmentRepository(db), alertSvc, bus.New(), mailSvc, logger)

	// start CLI
	cli := commandLine{
		conf:     conf,
		db:       db.DB,
		apptSvc:  apptSvc,
		alertSvc: alertSvc,
	}
	err = cli.run(os.Args)
	if w, ok := mailSvc.(interface{ Wait() }); ok {
		w.Wait()
	}
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error("admin: "+err.Error(), err)
		}
		os.Exit(1)
	}
}
