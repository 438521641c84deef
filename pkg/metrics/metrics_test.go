package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Request("sendmail")
		m.Enqueued()
		m.EnqueueFailed()
		m.Duplicate()
		m.Sent(time.Second)
		m.Failed("auth", time.Second)
	})
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Request("sendmail")
	m.Request("sendmail")
	m.Request("talktome")
	m.Enqueued()
	m.Sent(10 * time.Millisecond)
	m.Failed("auth", 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("sendmail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("talktome")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsEnqueued))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailsSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailsFailed.WithLabelValues("auth")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "messaging_send_duration_seconds")
}
