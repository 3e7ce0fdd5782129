// Package natsbus relays summary completions between processes so dashboards
// mounted on other instances hear about them too.
package natsbus

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/trezcool/coachdesk/core"
	"github.com/trezcool/coachdesk/core/bus"
)

// relay directions
const (
	Outbound = "out"
	Inbound  = "in"
)

type (
	// Conn is the part of *nats.Conn the relay needs.
	Conn interface {
		Publish(subject string, data []byte) error
		Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	}

	Counter interface {
		Relayed(direction string)
	}

	Relay struct {
		conn    Conn
		subject string
		origin  string
		bus     *bus.Bus
		logger  core.Logger
		counter Counter

		mu      sync.Mutex
		sub     *nats.Subscription
		unsub   func()
		started bool
	}
)

// Connect dials the NATS server with reconnects enabled.
func Connect(url, name string, logger core.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats: disconnected", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info(fmt.Sprintf("nats: reconnected to %s", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to nats at %s", url)
	}
	return nc, nil
}

func NewRelay(conn Conn, subject string, b *bus.Bus, logger core.Logger, counter Counter) *Relay {
	if logger == nil {
		logger = core.NopLogger
	}
	return &Relay{
		conn:    conn,
		subject: subject,
		origin:  uuid.New().String(),
		bus:     b,
		logger:  logger,
		counter: counter,
	}
}

func (r *Relay) Origin() string { return r.origin }

// Start forwards local completions to the subject and republishes remote ones on the local bus.
func (r *Relay) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	sub, err := r.conn.Subscribe(r.subject, func(msg *nats.Msg) { r.receive(msg.Data) })
	if err != nil {
		return errors.Wrapf(err, "subscribing to %s", r.subject)
	}
	r.sub = sub
	r.unsub = r.bus.SubscribeSummaryCompleted(r.forward)
	r.started = true
	return nil
}

func (r *Relay) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return
	}
	r.unsub()
	if r.sub != nil {
		if err := r.sub.Unsubscribe(); err != nil {
			r.logger.Warn("nats: unsubscribing relay", err)
		}
	}
	r.started = false
}

func (r *Relay) count(direction string) {
	if r.counter != nil {
		r.counter.Relayed(direction)
	}
}

// forward only sends events raised in this process; relayed ones carry an origin.
func (r *Relay) forward(ev bus.SummaryCompleted) {
	if ev.Origin != "" {
		return
	}
	ev.Origin = r.origin
	data, err := json.Marshal(ev)
	if err != nil {
		r.logger.Error("nats: encoding summary completion", err)
		return
	}
	if err = r.conn.Publish(r.subject, data); err != nil {
		r.logger.Warn("nats: relaying summary completion", err)
		return
	}
	r.count(Outbound)
}

func (r *Relay) receive(data []byte) {
	var ev bus.SummaryCompleted
	if err := json.Unmarshal(data, &ev); err != nil {
		r.logger.Warn("nats: undecodable summary completion", err)
		return
	}
	if ev.Origin == "" || ev.Origin == r.origin || ev.AppointmentID == "" {
		return
	}
	r.bus.PublishSummaryCompleted(ev)
	r.count(Inbound)
}
