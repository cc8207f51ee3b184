// Package metrics exposes Prometheus instrumentation for the session manager
// and the stub auth service.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sessionclient"

// Session records session manager activity.
type Session struct {
	operations    *prometheus.CounterVec
	authenticated prometheus.Gauge
	callbacks     prometheus.Counter
}

func NewSession(reg prometheus.Registerer) *Session {
	m := &Session{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Session operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		authenticated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "authenticated",
			Help:      "1 while the local session is believed valid.",
		}),
		callbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callbacks_fired_total",
			Help:      "Subscriber callbacks invoked after state changes.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.authenticated, m.callbacks)
	}
	return m
}

func (m *Session) ObserveOperation(operation, outcome string) {
	m.operations.WithLabelValues(operation, outcome).Inc()
}

func (m *Session) SetAuthenticated(ok bool) {
	if ok {
		m.authenticated.Set(1)
		return
	}
	m.authenticated.Set(0)
}

func (m *Session) ObserveCallbacks(n int) {
	m.callbacks.Add(float64(n))
}

// HTTP counts requests served by the stub auth service.
type HTTP struct {
	requests *prometheus.CounterVec
}

func NewHTTP(reg prometheus.Registerer) *HTTP {
	m := &HTTP{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stub",
			Name:      "http_requests_total",
			Help:      "Stub auth service requests by route and status code.",
		}, []string{"route", "code"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests)
	}
	return m
}

func (m *HTTP) Observe(route string, code int) {
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
