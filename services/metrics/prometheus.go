package metricsvc

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/coachdesk/core/dashboard"
)

type Metrics struct {
	registry *prometheus.Registry

	alerts    *prometheus.CounterVec
	summaries *prometheus.CounterVec
	views     prometheus.Gauge
	reminders prometheus.Counter
	relayed   *prometheus.CounterVec
}

var _ dashboard.Metrics = (*Metrics)(nil)

func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_deliveries_total",
			Help:      "Pushed alert changes applied to live feeds, by outcome.",
		}, []string{"outcome"}),
		summaries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_completions_applied_total",
			Help:      "Summary completions spliced into live dashboards, by source.",
		}, []string{"source"}),
		views: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dashboard_views_mounted",
			Help:      "Dashboards currently mounted.",
		}),
		reminders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_sent_total",
			Help:      "Appointment reminders sent.",
		}),
		relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_relay_messages_total",
			Help:      "Bus events relayed between processes, by direction.",
		}, []string{"direction"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.alerts, m.summaries, m.views, m.reminders, m.relayed,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) AlertIngested(outcome string) { m.alerts.WithLabelValues(outcome).Inc() }
func (m *Metrics) SummaryApplied(source string) { m.summaries.WithLabelValues(source).Inc() }
func (m *Metrics) ViewMounted()                 { m.views.Inc() }
func (m *Metrics) ViewUnmounted()               { m.views.Dec() }
func (m *Metrics) RemindersSent(n int)          { m.reminders.Add(float64(n)) }
func (m *Metrics) Relayed(direction string)     { m.relayed.WithLabelValues(direction).Inc() }
