// Package metrics exposes process counters in Prometheus format.
//
// Metrics implements the recorder interfaces of the session, realtime,
// job and notify packages, so each component reports through a narrow
// interface and never imports Prometheus itself.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "macro"

// Metrics owns a private registry and every collector of the service.
type Metrics struct {
	reg *prometheus.Registry

	sessionsCreated   *prometheus.CounterVec
	sessionsDestroyed *prometheus.CounterVec
	reauth            *prometheus.CounterVec

	eventsDelivered *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec

	jobsCreated     prometheus.Counter
	jobsFinished    *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	searchAttempts  prometheus.Counter
	reserveAttempts *prometheus.CounterVec

	notifications *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers every collector, plus the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),

		sessionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "session", Name: "created_total",
			Help: "Sessions created, by rail kind.",
		}, []string{"rail"}),
		sessionsDestroyed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "session", Name: "destroyed_total",
			Help: "Sessions destroyed, by reason.",
		}, []string{"reason"}),
		reauth: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "session", Name: "reauth_total",
			Help: "Provider re-logins, by result.",
		}, []string{"result"}),

		eventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ws", Name: "events_delivered_total",
			Help: "Events queued to observers, by event type.",
		}, []string{"type"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ws", Name: "events_dropped_total",
			Help: "Events dropped because an observer queue was full, by event type.",
		}, []string{"type"}),

		jobsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "job", Name: "created_total",
			Help: "Jobs created.",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "job", Name: "finished_total",
			Help: "Jobs that reached a terminal status.",
		}, []string{"status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "job", Name: "duration_seconds",
			Help:    "Running time of finished jobs.",
			Buckets: []float64{1, 5, 30, 60, 300, 900, 1800, 3600, 4 * 3600},
		}, []string{"status"}),
		searchAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "job", Name: "search_attempts_total",
			Help: "Search attempts across all jobs.",
		}),
		reserveAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "job", Name: "reserve_attempts_total",
			Help: "Reservation attempts, by outcome.",
		}, []string{"outcome"}),

		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "notify", Name: "sent_total",
			Help: "Outbound notifications, by kind and result.",
		}, []string{"kind", "result"}),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests, by method and status code.",
		}, []string{"method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sessionsCreated, m.sessionsDestroyed, m.reauth,
		m.eventsDelivered, m.eventsDropped,
		m.jobsCreated, m.jobsFinished, m.jobDuration, m.searchAttempts, m.reserveAttempts,
		m.notifications,
		m.httpRequests, m.httpDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Gauge registers a gauge sampled from fn at scrape time.
func (m *Metrics) Gauge(subsystem, name, help string, fn func() float64) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	}, fn))
}

// SessionCreated implements session.Recorder.
func (m *Metrics) SessionCreated(kind string) { m.sessionsCreated.WithLabelValues(kind).Inc() }

// SessionDestroyed implements session.Recorder.
func (m *Metrics) SessionDestroyed(reason string) {
	m.sessionsDestroyed.WithLabelValues(reason).Inc()
}

// Reauthenticated implements session.Recorder.
func (m *Metrics) Reauthenticated(ok bool) { m.reauth.WithLabelValues(result(ok)).Inc() }

// EventDelivered implements realtime.Recorder.
func (m *Metrics) EventDelivered(typ string, delivered, dropped int) {
	if delivered > 0 {
		m.eventsDelivered.WithLabelValues(typ).Add(float64(delivered))
	}
	if dropped > 0 {
		m.eventsDropped.WithLabelValues(typ).Add(float64(dropped))
	}
}

// JobCreated implements job.Recorder.
func (m *Metrics) JobCreated() { m.jobsCreated.Inc() }

// JobFinished implements job.Recorder.
func (m *Metrics) JobFinished(status string, d time.Duration) {
	m.jobsFinished.WithLabelValues(status).Inc()
	m.jobDuration.WithLabelValues(status).Observe(d.Seconds())
}

// SearchAttempt implements job.Recorder.
func (m *Metrics) SearchAttempt() { m.searchAttempts.Inc() }

// ReserveAttempt implements job.Recorder.
func (m *Metrics) ReserveAttempt(outcome string) { m.reserveAttempts.WithLabelValues(outcome).Inc() }

// NotificationSent implements notify.Recorder.
func (m *Metrics) NotificationSent(kind string, ok bool) {
	m.notifications.WithLabelValues(kind, result(ok)).Inc()
}

// HTTPRequest records one served request.
func (m *Metrics) HTTPRequest(method string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method).Observe(d.Seconds())
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "fail"
}
