package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"

	dig_container "github.com/trezcool/coachdesk/apps/api/di/dig"
	echoapi "github.com/trezcool/coachdesk/apps/api/echo"
	"github.com/trezcool/coachdesk/apps/api/jobs"
	"github.com/trezcool/coachdesk/core"
	"github.com/trezcool/coachdesk/core/dashboard"
)

func main() {
	c := dig_container.New()
	must(c.Invoke(run))
}

func run(
	conf *core.Config,
	apiLogger core.Logger,
	dbLoggerParam dig_container.DBLoggerParam,
	storage dig_container.Storage,
	broker *dig_container.Broker,
	hub *dashboard.Hub,
	scheduled *jobs.Jobs,
	server *echoapi.Server,
) {
	// =========================================================================
	// Initialize App

	apiLogger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))

	core.ParseEmailTemplates(conf, apiLogger)

	dbLogger := dbLoggerParam.Logger
	defer func() {
		if err := storage.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()
	defer apiLogger.Info("Application stopped")

	// =========================================================================
	// Start Broker & Scheduler

	if err := broker.Start(); err != nil {
		apiLogger.Fatal(fmt.Sprintf("starting broker: %v", err), err)
	}
	defer broker.Close()

	cron := jobs.NewCron(apiLogger)
	if err := scheduled.Schedule(cron, conf.Cron); err != nil {
		apiLogger.Fatal(fmt.Sprintf("scheduling jobs: %v", err), err)
	}
	cron.Start()
	defer func() { <-cron.Stop().Done() }()

	// dashboards go before their storage and broker
	defer hub.CloseAll()

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.Publish("sessions", expvar.Func(func() interface{} { return hub.Len() }))

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugAddress, http.DefaultServeMux); err != nil {
			apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-server.Errors():
		apiLogger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		apiLogger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// ends the open event streams
		hub.CloseAll()

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shut down and shed load
		if err := server.Shutdown(ctx); err != nil {
			apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				apiLogger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
