// Package jobs holds the periodic work of the API process.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/coachdesk/core"
	"github.com/trezcool/coachdesk/core/dashboard"
)

const reminderTimeout = time.Minute

type (
	Reminder interface {
		SendReminders(ctx context.Context, now time.Time) (int, error)
	}

	Counter interface {
		RemindersSent(n int)
	}

	Jobs struct {
		hub        *dashboard.Hub
		reminder   Reminder
		logger     core.Logger
		counter    Counter
		sessionTTL time.Duration
		now        func() time.Time
	}
)

func New(hub *dashboard.Hub, reminder Reminder, logger core.Logger, counter Counter, sessionTTL time.Duration) *Jobs {
	return &Jobs{
		hub:        hub,
		reminder:   reminder,
		logger:     logger,
		counter:    counter,
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
}

// NewCron returns a scheduler that skips a run while the previous one is still going
// and survives panicking jobs.
func NewCron(logger core.Logger) *cron.Cron {
	l := cronLogger{logger}
	return cron.New(
		cron.WithLogger(l),
		cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
	)
}

// Schedule registers every job on c.
func (j *Jobs) Schedule(c *cron.Cron, conf core.CronConfig) error {
	jobs := []struct {
		name string
		spec string
		run  func()
	}{
		{"tick", conf.Tick, j.Tick},
		{"sweep", conf.Tick, j.Sweep},
		{"reminders", conf.Reminders, j.Remind},
	}
	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		if _, err := c.AddFunc(job.spec, job.run); err != nil {
			return errors.Wrapf(err, "scheduling %s job (%q)", job.name, job.spec)
		}
	}
	return nil
}

// Tick reclassifies every mounted dashboard against the clock.
func (j *Jobs) Tick() {
	j.hub.TickAll()
}

// Sweep unmounts idle dashboards.
func (j *Jobs) Sweep() {
	if n := j.hub.Sweep(j.sessionTTL); n > 0 {
		j.logger.Info(fmt.Sprintf("%d idle sessions closed", n))
	}
}

func (j *Jobs) Remind() {
	ctx, cancel := context.WithTimeout(context.Background(), reminderTimeout)
	defer cancel()

	n, err := j.reminder.SendReminders(ctx, j.now().UTC())
	if n > 0 && j.counter != nil {
		j.counter.RemindersSent(n)
	}
	if err != nil {
		j.logger.Error("sending reminders", err)
		return
	}
	if n > 0 {
		j.logger.Info(fmt.Sprintf("%d reminders sent", n))
	}
}

// cronLogger reports scheduler events through core.Logger.
type cronLogger struct {
	logger core.Logger
}

func (l cronLogger) fields(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, l.fields(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, err, l.fields(keysAndValues))
}
