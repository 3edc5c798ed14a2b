// Package metrics holds the relay's Prometheus collectors.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pushrelay"

type Metrics struct {
	reg *prometheus.Registry

	deliveries    *prometheus.CounterVec
	pending       prometheus.Gauge
	watermark     prometheus.Gauge
	notifications *prometheus.CounterVec
	clicks        prometheus.Counter
	dismissals    *prometheus.CounterVec
	streamEvents  *prometheus.CounterVec
	sounds        *prometheus.CounterVec
}

// New builds a registry with the relay collectors plus the Go and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "fires_total",
			Help:      "Scheduled pushes that fired, by outcome.",
		}, []string{"outcome"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "pending",
			Help:      "Scheduled pushes not yet fired.",
		}),
		watermark: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "watermark_seconds",
			Help:      "Modified time of the most recently displayed push.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "shown_total",
			Help:      "Desktop notifications shown, by backend and result.",
		}, []string{"backend", "result"}),
		clicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "clicks_total",
			Help:      "Notification clicks handled.",
		}),
		dismissals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pushapi",
			Name:      "dismissals_total",
			Help:      "Upstream dismiss calls, by result.",
		}, []string{"result"}),
		streamEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "stream_events_total",
			Help:      "Stream lines read, by result.",
		}, []string{"result"}),
		sounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sound",
			Name:      "plays_total",
			Help:      "Sound playbacks, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.deliveries, m.pending, m.watermark,
		m.notifications, m.clicks, m.dismissals,
		m.streamEvents, m.sounds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) Delivery(outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

func (m *Metrics) SetWatermark(sec float64) {
	if m == nil {
		return
	}
	m.watermark.Set(sec)
}

func (m *Metrics) Notification(backend string, err error) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(backend, result(err)).Inc()
}

func (m *Metrics) Click() {
	if m == nil {
		return
	}
	m.clicks.Inc()
}

func (m *Metrics) Dismissal(err error) {
	if m == nil {
		return
	}
	m.dismissals.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) StreamEvent(err error) {
	if m == nil {
		return
	}
	m.streamEvents.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) Sound(err error) {
	if m == nil {
		return
	}
	m.sounds.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
