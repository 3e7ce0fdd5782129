package dummydb

import (
	"sync"

	"github.com/trezcool/coachdesk/core"
	"github.com/trezcool/coachdesk/core/alert"
	"github.com/trezcool/coachdesk/core/appointment"
)

// table names, as in the SQL schema
const (
	TableAppointments = "appointments"
	TableSummaries    = "summaries"
	TableAlerts       = "alerts"
)

type (
	DB struct {
		appointment *appointmentTable
		summary     *summaryTable
		alert       *alertTable
		changes     *changeHub
	}

	appointmentTable struct {
		sync.RWMutex
		table map[string]*appointment.Appointment
	}

	summaryTable struct {
		sync.RWMutex
		table map[string]*appointment.Summary
	}

	alertTable struct {
		sync.RWMutex
		table map[string]*alert.Event
	}
)

func Open() (*DB, error) {
	db := &DB{
		appointment: &appointmentTable{table: make(map[string]*appointment.Appointment)},
		summary:     &summaryTable{table: make(map[string]*appointment.Summary)},
		alert:       &alertTable{table: make(map[string]*alert.Event)},
		changes:     newChangeHub(),
	}
	return db, nil
}

// Subscriber returns the push channel fed by writes to this DB.
func (db *DB) Subscriber() core.Subscriber {
	return db.changes
}

// SetRedelivery makes every change be delivered 1+n times, like an at-least-once channel would.
func (db *DB) SetRedelivery(n int) {
	db.changes.setRedelivery(n)
}
