package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestRunsTotalIncrements(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RunsTotal.WithLabelValues("success").Inc()
	m.RunsTotal.WithLabelValues("success").Inc()
	m.RunsTotal.WithLabelValues("failed").Inc()

	require.Equal(t, float64(2), counterValue(t, m.RunsTotal.WithLabelValues("success")))
	require.Equal(t, float64(1), counterValue(t, m.RunsTotal.WithLabelValues("failed")))
}

func TestQueueDepthGaugeReflectsCallback(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	depth := 3
	m.SetQueueDepth(reg, func() int { return depth })

	var out dto.Metric
	require.NoError(t, m.QueueDepth.Write(&out))
	require.Equal(t, float64(3), out.GetGauge().GetValue())

	depth = 7
	require.NoError(t, m.QueueDepth.Write(&out))
	require.Equal(t, float64(7), out.GetGauge().GetValue())
}

func TestSubscribersGaugeReflectsCallback(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	count := 0
	m.SetSubscribers(reg, func() int { return count })

	var out dto.Metric
	require.NoError(t, m.Subscribers.Write(&out))
	require.Equal(t, float64(0), out.GetGauge().GetValue())

	count = 5
	require.NoError(t, m.Subscribers.Write(&out))
	require.Equal(t, float64(5), out.GetGauge().GetValue())
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, c.Write(&out))
	return out.GetCounter().GetValue()
}
