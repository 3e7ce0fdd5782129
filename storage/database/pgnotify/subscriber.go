// Package pgnotify turns the row_changes NOTIFY channel fed by the schema triggers
// into a core.Subscriber.
package pgnotify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/coachdesk/core"
)

// Channel is the NOTIFY channel the triggers publish on.
const Channel = "row_changes"

const (
	minReconnect = 10 * time.Second
	maxReconnect = time.Minute
	pingInterval = 90 * time.Second
)

type (
	subscription struct {
		table    string
		filter   core.Filter
		onChange func(core.Change)
	}

	Subscriber struct {
		listener *pq.Listener
		logger   core.Logger

		mu   sync.RWMutex
		next uint64
		subs map[uint64]subscription

		onReconnect []func()

		done      chan struct{}
		closeOnce sync.Once
	}
)

var (
	_ core.Subscriber        = (*Subscriber)(nil) // interface compliance check
	_ core.ReconnectNotifier = (*Subscriber)(nil)
)

func newSubscriber(logger core.Logger) *Subscriber {
	if logger == nil {
		logger = core.NopLogger
	}
	return &Subscriber{
		logger: logger,
		subs:   make(map[uint64]subscription),
		done:   make(chan struct{}),
	}
}

// New listens on Channel using its own connection to dsn.
func New(dsn string, logger core.Logger) (*Subscriber, error) {
	s := newSubscriber(logger)
	s.listener = pq.NewListener(dsn, minReconnect, maxReconnect, s.onListenerEvent)
	if err := s.listener.Listen(Channel); err != nil {
		_ = s.listener.Close()
		return nil, errors.Wrapf(err, "listening on %s", Channel)
	}
	go s.run()
	return s, nil
}

func (s *Subscriber) onListenerEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventDisconnected, pq.ListenerEventConnectionAttemptFailed:
		s.logger.Warn("pgnotify: listener connection lost", err)
	case pq.ListenerEventReconnected:
		s.logger.Info("pgnotify: listener reconnected, changes made meanwhile were not delivered")
		s.mu.RLock()
		hooks := append([]func(){}, s.onReconnect...)
		s.mu.RUnlock()
		// off the listener goroutine: hooks refetch through the same database
		go func() {
			for _, fn := range hooks {
				fn()
			}
		}()
	}
}

// OnReconnect registers fn to run after the listener got its connection back.
func (s *Subscriber) OnReconnect(fn func()) {
	s.mu.Lock()
	s.onReconnect = append(s.onReconnect, fn)
	s.mu.Unlock()
}

func (s *Subscriber) run() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case n, ok := <-s.listener.Notify:
			if !ok {
				return
			}
			if n == nil { // reconnected
				continue
			}
			s.dispatch([]byte(n.Extra))
		case <-ticker.C:
			go func() {
				if err := s.listener.Ping(); err != nil {
					s.logger.Warn("pgnotify: ping failed", err)
				}
			}()
		}
	}
}

// dispatch decodes one NOTIFY payload and hands it to the matching subscriptions.
func (s *Subscriber) dispatch(payload []byte) {
	var c core.Change
	if err := json.Unmarshal(payload, &c); err != nil {
		s.logger.Warn("pgnotify: undecodable payload", errors.Wrap(err, "decoding notification"))
		return
	}
	if c.Table == "" || len(c.Row) == 0 {
		s.logger.Warn(fmt.Sprintf("pgnotify: incomplete payload %q", payload))
		return
	}

	s.mu.RLock()
	targets := make([]func(core.Change), 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.table == c.Table && sub.filter.Match(c.Row) {
			targets = append(targets, sub.onChange)
		}
	}
	s.mu.RUnlock()

	for _, fn := range targets {
		fn(c)
	}
}

func (s *Subscriber) Subscribe(_ context.Context, table string, filter core.Filter, onChange func(core.Change)) (func(), error) {
	select {
	case <-s.done:
		return nil, errors.New("pgnotify: subscriber closed")
	default:
	}

	s.mu.Lock()
	s.next++
	id := s.next
	s.subs[id] = subscription{table: table, filter: filter, onChange: onChange}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}, nil
}

func (s *Subscriber) Subscriptions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Close stops listening. Subscriptions stay registered but receive nothing more.
func (s *Subscriber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.listener != nil {
			err = s.listener.Close()
		}
	})
	return err
}
