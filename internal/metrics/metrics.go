package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sudo-init-do/diecasthub/internal/trade"
)

// Metrics owns the service collectors. It satisfies trade.Observer and
// outbox.Observer.
type Metrics struct {
	reg *prometheus.Registry

	transitions     *prometheus.CounterVec
	engineErrors    *prometheus.CounterVec
	outboxSent      *prometheus.CounterVec
	outboxFailed    prometheus.Counter
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trade_transitions_total",
				Help: "Trade status transitions by operation.",
			},
			[]string{"op", "from", "to"},
		),
		engineErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trade_errors_total",
				Help: "Refused or failed trade operations by error code.",
			},
			[]string{"op", "code"},
		),
		outboxSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trade_outbox_dispatched_total",
				Help: "Outbox messages dispatched by topic.",
			},
			[]string{"topic"},
		),
		outboxFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trade_outbox_publish_failures_total",
			Help: "Outbox messages whose publish attempt failed.",
		}),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "code"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of response latency (seconds) for HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"handler", "method"},
		),
	}
	m.reg.MustRegister(
		m.transitions, m.engineErrors, m.outboxSent, m.outboxFailed,
		m.requestsTotal, m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Transition(op string, from, to trade.Status) {
	if from == "" {
		from = "none"
	}
	m.transitions.WithLabelValues(op, string(from), string(to)).Inc()
}

func (m *Metrics) Failed(op string, err error) {
	code := "internal"
	if te, ok := trade.AsError(err); ok {
		code = te.Code
	}
	m.engineErrors.WithLabelValues(op, code).Inc()
}

func (m *Metrics) Dispatched(topic string, n int) {
	m.outboxSent.WithLabelValues(topic).Add(float64(n))
}

func (m *Metrics) PublishFailed(n int) {
	m.outboxFailed.Add(float64(n))
}

// Middleware records request counts and latency per route.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			m.requestsTotal.WithLabelValues(route, c.Request().Method, strconv.Itoa(status)).Inc()
			m.requestDuration.WithLabelValues(route, c.Request().Method).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}
