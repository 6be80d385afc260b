package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewPrometheusRecorder(reg, "api")
	require.NoError(t, err)

	r.Before("POST /login", "auth", "login")
	assert.Equal(t, 1.0, testutil.ToFloat64(r.inFlight.WithLabelValues("auth", "login")))

	r.After("POST /login", "auth", "login", "2xx")
	assert.Equal(t, 0.0, testutil.ToFloat64(r.inFlight.WithLabelValues("auth", "login")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.requests.WithLabelValues("POST /login", "auth", "login")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.completed.WithLabelValues("POST /login", "auth", "login", "2xx")))

	r.HandshakeFailed()
	r.HandshakeFailed()
	assert.Equal(t, 2.0, testutil.ToFloat64(r.handshakes))

	r.ConnOpened()
	r.ConnOpened()
	r.ConnClosed()
	assert.Equal(t, 1.0, testutil.ToFloat64(r.conns))
}

func TestNewPrometheusRecorder_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheusRecorder(reg, "api")
	require.NoError(t, err)

	_, err = NewPrometheusRecorder(reg, "api")
	assert.Error(t, err)
}

func TestOutcome(t *testing.T) {
	tests := map[int]string{200: "2xx", 201: "2xx", 302: "3xx", 404: "4xx", 409: "4xx", 500: "5xx", 503: "5xx"}
	for status, want := range tests {
		assert.Equal(t, want, Outcome(status), "status %d", status)
	}
}

func TestNoop(t *testing.T) {
	var r Recorder = Noop{}
	r.Before("a", "b", "c")
	r.After("a", "b", "c", "2xx")
	r.HandshakeFailed()
	r.ConnOpened()
	r.ConnClosed()
}
