// Package metrics records request, handshake and connection counters.
// Exposition is left to whoever owns the registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder receives dispatcher and acceptor events.
type Recorder interface {
	Before(route, resource, method string)
	After(route, resource, method, outcome string)
	HandshakeFailed()
	ConnOpened()
	ConnClosed()
}

// Noop discards everything.
type Noop struct{}

func (Noop) Before(string, string, string)         {}
func (Noop) After(string, string, string, string) {}
func (Noop) HandshakeFailed()                      {}
func (Noop) ConnOpened()                           {}
func (Noop) ConnClosed()                           {}

type PrometheusRecorder struct {
	requests   *prometheus.CounterVec
	completed  *prometheus.CounterVec
	inFlight   *prometheus.GaugeVec
	handshakes prometheus.Counter
	conns      prometheus.Gauge
}

// NewPrometheusRecorder registers the collectors with reg.
func NewPrometheusRecorder(reg prometheus.Registerer, namespace string) (*PrometheusRecorder, error) {
	r := &PrometheusRecorder{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests dispatched, by route.",
		}, []string{"route", "resource", "method"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_completed_total",
			Help:      "Requests completed, by route and status class.",
		}, []string{"route", "resource", "method", "outcome"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_in_flight",
			Help:      "Requests currently being handled.",
		}, []string{"resource", "method"}),
		handshakes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tls_handshake_failures_total",
			Help:      "TLS handshakes that failed or timed out.",
		}),
		conns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Connections past the TLS handshake and still open.",
		}),
	}

	for _, c := range []prometheus.Collector{r.requests, r.completed, r.inFlight, r.handshakes, r.conns} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *PrometheusRecorder) Before(route, resource, method string) {
	r.requests.WithLabelValues(route, resource, method).Inc()
	r.inFlight.WithLabelValues(resource, method).Inc()
}

func (r *PrometheusRecorder) After(route, resource, method, outcome string) {
	r.inFlight.WithLabelValues(resource, method).Dec()
	r.completed.WithLabelValues(route, resource, method, outcome).Inc()
}

func (r *PrometheusRecorder) HandshakeFailed() { r.handshakes.Inc() }
func (r *PrometheusRecorder) ConnOpened()      { r.conns.Inc() }
func (r *PrometheusRecorder) ConnClosed()      { r.conns.Dec() }

// Outcome maps an HTTP status to its class label.
func Outcome(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
