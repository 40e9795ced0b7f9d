package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestRegistryObserveGraphState(t *testing.T) {
	r := NewRegistry(prometheus.NewRegistry())
	r.ObserveGraphState("G", 1)
	require.Equal(t, float64(1), gaugeValue(t, r.GraphState.WithLabelValues("G")))
}

func TestRegistryIncRestartAndAbort(t *testing.T) {
	r := NewRegistry(prometheus.NewRegistry())
	r.IncRestart("G")
	r.IncRestart("G")
	r.IncAbort("G", 99)
	require.Equal(t, float64(2), counterValue(t, r.RestartsTotal.WithLabelValues("G")))
	require.Equal(t, float64(1), counterValue(t, r.AbortsTotal.WithLabelValues("G", "63")))
}

func TestRegistrySetStateCounters(t *testing.T) {
	r := NewRegistry(prometheus.NewRegistry())
	r.IncSetState("G", "Success")
	r.IncSetState("G", "Success")
	r.IncSetState("G", "Cancelled")
	require.Equal(t, float64(2), counterValue(t, r.SetStateTotal.WithLabelValues("G", "Success")))
	require.Equal(t, float64(1), counterValue(t, r.SetStateTotal.WithLabelValues("G", "Cancelled")))
}
