// Package metrics holds the Prometheus collectors for the sale pipeline and HTTP layer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "retailpos"

type Metrics struct {
	registry *prometheus.Registry

	SaleOutcomes       *prometheus.CounterVec
	StockConflicts     prometheus.Counter
	SideEffects        *prometheus.CounterVec
	SessionTransitions *prometheus.CounterVec
	AlertsCreated      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
}

// New builds the collectors on a private registry. A nil registry gets a fresh one.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: reg,
		SaleOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "outcomes_total",
			Help:      "Sale create and cancel attempts by result code.",
		}, []string{"operation", "result"}),
		StockConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "stock_conflicts_total",
			Help:      "Commit attempts aborted by a concurrent stock update.",
		}),
		SideEffects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "side_effect",
			Name:      "tasks_total",
			Help:      "Fire-and-forget side effects by kind and result.",
		}, []string{"kind", "result"}),
		SessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cash_session",
			Name:      "transitions_total",
			Help:      "Cash session opens and closes.",
		}, []string{"transition"}),
		AlertsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "notifications_total",
			Help:      "Notification rows created by kind.",
		}, []string{"kind"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SaleOutcomes,
		m.StockConflicts,
		m.SideEffects,
		m.SessionTransitions,
		m.AlertsCreated,
		m.RequestDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.RequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
