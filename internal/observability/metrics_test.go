package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecorders(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordRequest("/user/me", "GET", 200, 15*time.Millisecond)
	m.RecordError("/user/me", "GET", "UNAUTHORIZED")
	m.RecordGateDecision(GateRevoked)
	m.RecordGateDecision(GateRevoked)
	m.RecordRevocationError("mark_revoked")
	m.RecordLogin(true)
	m.RecordLogin(false)
	m.RecordLogin(false)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues("GET", "/user/me", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.errors.WithLabelValues("GET", "/user/me", "UNAUTHORIZED")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.gateDecisions.WithLabelValues(GateRevoked)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.revocationErrors.WithLabelValues("mark_revoked")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.logins.WithLabelValues("success")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.logins.WithLabelValues("failure")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("/", "GET", 200, time.Millisecond)
		m.RecordError("/", "GET", "X")
		m.RecordGateDecision(GateAccepted)
		m.RecordRevocationError("is_revoked")
		m.RecordLogin(true)
	})
}
